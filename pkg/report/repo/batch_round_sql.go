package repo

import (
	"context"

	"github.com/joripage/batch-auction/pkg/report/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BatchRoundSQLRepo struct {
	db *gorm.DB
}

func NewBatchRoundSQLRepo(db *gorm.DB) *BatchRoundSQLRepo {
	return &BatchRoundSQLRepo{
		db: db,
	}
}

func (r *BatchRoundSQLRepo) dbWithContext(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

// BulkCreate skips rounds that are already stored, so a redelivered report is a no-op.
func (r *BatchRoundSQLRepo) BulkCreate(ctx context.Context, records []*model.BatchRound) ([]*model.BatchRound, error) {
	if len(records) == 0 {
		return records, nil
	}
	return records, r.dbWithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(records).Error
}

func (r *BatchRoundSQLRepo) Latest(ctx context.Context) (*model.BatchRound, error) {
	var round model.BatchRound
	if err := r.dbWithContext(ctx).Order("round DESC").Take(&round).Error; err != nil {
		return nil, err
	}
	return &round, nil
}
