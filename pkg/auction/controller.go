package auction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joripage/batch-auction/pkg/logging"
	"github.com/joripage/batch-auction/pkg/orderbook"
	"go.uber.org/zap"
)

type State int32

const (
	Idle State = iota
	Clearing
	Halted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Clearing:
		return "clearing"
	case Halted:
		return "halted"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Settler runs a clearing function against a consistent snapshot and applies
// the fills it returns atomically. *orderbook.Book implements it.
type Settler interface {
	Settle(clear func(orderbook.Snapshot) ([]orderbook.Fill, error)) error
}

type ControllerConfig struct {
	Interval time.Duration
	TieBreak TieBreak
}

// Controller drives clearing rounds. At most one round runs at a time; a
// tick arriving while a round is in flight is skipped.
type Controller struct {
	book     Settler
	clearer  *Clearer
	interval time.Duration
	logger   *logging.Logger

	state atomic.Int32
	round atomic.Uint64
	last  atomic.Pointer[BatchReport]

	mu        sync.RWMutex
	callbacks []func(*BatchReport)
	haltErr   error

	now func() time.Time
}

func NewController(book Settler, cfg ControllerConfig, logger *logging.Logger) (*Controller, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("auction interval must be positive, got %s", cfg.Interval)
	}
	clearer, err := NewClearer(cfg.TieBreak)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Controller{
		book:     book,
		clearer:  clearer,
		interval: cfg.Interval,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// RegisterReportCallback adds cb to the sinks notified after each settled
// round. Callbacks run on the controller goroutine, in registration order.
func (c *Controller) RegisterReportCallback(cb func(*BatchReport)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.callbacks = append(c.callbacks, cb)
}

func (c *Controller) State() State {
	return State(c.state.Load())
}

// LastReport returns the most recent settled round, or nil.
func (c *Controller) LastReport() *BatchReport {
	return c.last.Load()
}

// Err returns the error that halted the controller.
func (c *Controller) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.haltErr
}

// Tick runs one clearing round. It returns (nil, nil) when nothing traded.
func (c *Controller) Tick(ctx context.Context) (*BatchReport, error) {
	if !c.state.CompareAndSwap(int32(Idle), int32(Clearing)) {
		if c.State() == Halted {
			return nil, ErrHalted
		}
		return nil, ErrRoundInFlight
	}

	var res *Result
	err := c.book.Settle(func(snap orderbook.Snapshot) ([]orderbook.Fill, error) {
		r, err := c.clearer.Clear(snap)
		if err != nil {
			return nil, err
		}
		res = r
		if !r.Traded() {
			return nil, nil
		}
		return r.Fills(), nil
	})
	if err != nil {
		c.halt(ctx, err)
		return nil, err
	}

	if !res.Traded() {
		c.state.Store(int32(Idle))
		c.logger.Debug(ctx, "No Trade")
		return nil, nil
	}

	report := res.Report(c.round.Add(1), c.now())
	c.last.Store(report)

	c.logger.Info(ctx, report.String(),
		zap.Uint64("round", report.Round),
		zap.Int("trades", len(report.Trades)))
	// reports of consecutive rounds never interleave at the sinks
	c.emit(report)
	c.state.Store(int32(Idle))

	return report, nil
}

// Run ticks every interval until ctx is done or a round fails. A round
// failure halts the controller and is returned.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info(ctx, "auction controller started", zap.Duration("interval", c.interval))
	for {
		select {
		case <-ctx.Done():
			c.logger.Info(ctx, "auction controller stopped")
			return nil
		case <-ticker.C:
			_, err := c.Tick(ctx)
			switch {
			case err == nil:
			case errors.Is(err, ErrRoundInFlight):
				c.logger.Warn(ctx, "tick skipped, round in flight")
			default:
				return err
			}
		}
	}
}

func (c *Controller) halt(ctx context.Context, err error) {
	c.mu.Lock()
	c.haltErr = err
	c.mu.Unlock()

	c.state.Store(int32(Halted))
	c.logger.Error(ctx, "clearing round aborted, controller halted", zap.Error(err))
}

func (c *Controller) emit(report *BatchReport) {
	c.mu.RLock()
	cbs := c.callbacks
	c.mu.RUnlock()

	for _, cb := range cbs {
		cb(report)
	}
}
