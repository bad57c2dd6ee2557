// Package report fans settled batch reports out to external sinks.
package report

import (
	"context"
	"sync"

	"github.com/joripage/batch-auction/pkg/auction"
	"github.com/joripage/batch-auction/pkg/logging"
	"github.com/joripage/batch-auction/pkg/metrics"
	"go.uber.org/zap"
)

// Sink delivers one report to an external system.
type Sink interface {
	Name() string
	Publish(ctx context.Context, r *auction.BatchReport) error
}

const defaultQueueSize = 1024

// Dispatcher decouples the auction controller from slow sinks. Handle only
// enqueues; a single goroutine delivers reports to every sink in round order.
// A failing sink is logged and counted and never affects the others.
type Dispatcher struct {
	sinks   []Sink
	queue   chan *auction.BatchReport
	logger  *logging.Logger
	metrics *metrics.Metrics

	wg sync.WaitGroup
}

func NewDispatcher(queueSize int, logger *logging.Logger, m *metrics.Metrics, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Dispatcher{
		sinks:   sinks,
		queue:   make(chan *auction.BatchReport, queueSize),
		logger:  logger,
		metrics: m,
	}
}

// Handle is registered as the engine's report callback.
func (d *Dispatcher) Handle(r *auction.BatchReport) {
	if len(d.sinks) == 0 {
		return
	}
	select {
	case d.queue <- r:
	default:
		d.metrics.SinkFailed("dispatch")
		d.logger.Warn(context.Background(), "report queue full, round dropped", zap.Uint64("round", r.Round))
	}
}

// Start delivers queued reports until ctx is done, then drains what is
// already queued with a fresh context.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case r := <-d.queue:
				d.deliver(ctx, r)
			case <-ctx.Done():
				d.drain()
				return
			}
		}
	}()
}

// Wait blocks until the delivery goroutine has drained and exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) drain() {
	ctx := context.Background()
	for {
		select {
		case r := <-d.queue:
			d.deliver(ctx, r)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, r *auction.BatchReport) {
	for _, s := range d.sinks {
		if err := s.Publish(ctx, r); err != nil {
			d.metrics.SinkFailed(s.Name())
			d.logger.Error(ctx, "report sink failed",
				zap.String("sink", s.Name()),
				zap.Uint64("round", r.Round),
				zap.Error(err))
		}
	}
}
