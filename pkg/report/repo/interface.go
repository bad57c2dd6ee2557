package repo

import (
	"context"

	"github.com/joripage/batch-auction/pkg/report/model"
)

type IBatchRound interface {
	BulkCreate(ctx context.Context, records []*model.BatchRound) ([]*model.BatchRound, error)
	Latest(ctx context.Context) (*model.BatchRound, error)
}

type IBatchTrade interface {
	BulkCreate(ctx context.Context, records []*model.BatchTrade) ([]*model.BatchTrade, error)
	ListByRound(ctx context.Context, round uint64) ([]*model.BatchTrade, error)
}
