package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/joripage/batch-auction/pkg/auction"
	kafkawrapper "github.com/joripage/batch-auction/pkg/kafka_wrapper"
	"github.com/joripage/batch-auction/pkg/logging"
	"github.com/joripage/batch-auction/pkg/report/model"
	"github.com/joripage/batch-auction/pkg/report/repo"
	"go.uber.org/zap"
)

// Consumer is the part of kafkawrapper.ConsumerGroup the worker needs.
type Consumer interface {
	Run(ctx context.Context, handler func(context.Context, []kafkawrapper.Message) error) error
}

// Worker persists batch reports read from Kafka into batch_rounds and batch_trades.
type Worker struct {
	repo   repo.IRepo
	logger *logging.Logger
}

func NewWorker(r repo.IRepo, logger *logging.Logger) *Worker {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Worker{
		repo:   r,
		logger: logger,
	}
}

// Start blocks consuming until ctx is done.
func (w *Worker) Start(ctx context.Context, consumer Consumer) error {
	w.logger.Info(ctx, "report worker started")
	err := consumer.Run(ctx, w.HandleBatch)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// HandleBatch stores one batch of messages in a single transaction. Messages
// that do not decode are logged and skipped; a storage error fails the whole
// batch so the consumer retries it.
func (w *Worker) HandleBatch(ctx context.Context, msgs []kafkawrapper.Message) error {
	var (
		rounds []*model.BatchRound
		trades []*model.BatchTrade
		seen   = make(map[uint64]bool, len(msgs))
	)
	for _, msg := range msgs {
		var report auction.BatchReport
		if err := json.Unmarshal(msg.Value, &report); err != nil {
			w.logger.Warn(ctx, "skip undecodable report",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			continue
		}
		if seen[report.Round] {
			continue
		}
		seen[report.Round] = true

		round, ts := model.FromReport(&report)
		rounds = append(rounds, round)
		trades = append(trades, ts...)
	}
	if len(rounds) == 0 {
		return nil
	}

	err := w.repo.Transaction(ctx, func(tx repo.IRepo) error {
		if _, err := tx.BatchRound().BulkCreate(ctx, rounds); err != nil {
			return fmt.Errorf("store rounds: %w", err)
		}
		if _, err := tx.BatchTrade().BulkCreate(ctx, trades); err != nil {
			return fmt.Errorf("store trades: %w", err)
		}
		return nil
	})
	if err != nil {
		w.logger.Error(ctx, "persist batch failed", zap.Int("rounds", len(rounds)), zap.Error(err))
		return err
	}

	w.logger.Debug(ctx, "persisted rounds",
		zap.Uint64("first", rounds[0].Round),
		zap.Int("rounds", len(rounds)),
		zap.Int("trades", len(trades)))
	return nil
}
