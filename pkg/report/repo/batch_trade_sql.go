package repo

import (
	"context"

	"github.com/joripage/batch-auction/pkg/report/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BatchTradeSQLRepo struct {
	db *gorm.DB
}

func NewBatchTradeSQLRepo(db *gorm.DB) *BatchTradeSQLRepo {
	return &BatchTradeSQLRepo{
		db: db,
	}
}

func (r *BatchTradeSQLRepo) dbWithContext(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *BatchTradeSQLRepo) BulkCreate(ctx context.Context, records []*model.BatchTrade) ([]*model.BatchTrade, error) {
	if len(records) == 0 {
		return records, nil
	}
	return records, r.dbWithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(records, 500).Error
}

func (r *BatchTradeSQLRepo) ListByRound(ctx context.Context, round uint64) ([]*model.BatchTrade, error) {
	var trades []*model.BatchTrade
	err := r.dbWithContext(ctx).Where("round = ?", round).Order("idx").Find(&trades).Error
	return trades, err
}
