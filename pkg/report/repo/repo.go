package repo

import (
	"context"

	"gorm.io/gorm"
)

type IRepo interface {
	BatchRound() IBatchRound
	BatchTrade() IBatchTrade
	// Transaction runs fn against a repo bound to one database transaction.
	Transaction(ctx context.Context, fn func(IRepo) error) error
}

type Repo struct {
	reportDB *gorm.DB
}

func NewRepo(reportDB *gorm.DB) IRepo {
	return &Repo{
		reportDB: reportDB,
	}
}

func (r *Repo) BatchRound() IBatchRound {
	return NewBatchRoundSQLRepo(r.reportDB)
}

func (r *Repo) BatchTrade() IBatchTrade {
	return NewBatchTradeSQLRepo(r.reportDB)
}

func (r *Repo) Transaction(ctx context.Context, fn func(IRepo) error) error {
	return r.reportDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repo{reportDB: tx})
	})
}
