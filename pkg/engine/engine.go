package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/joripage/batch-auction/pkg/auction"
	"github.com/joripage/batch-auction/pkg/logging"
	"github.com/joripage/batch-auction/pkg/metrics"
	"github.com/joripage/batch-auction/pkg/orderbook"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CancelResult string

const (
	Found    CancelResult = "FOUND"
	NotFound CancelResult = "NOT_FOUND"
)

type Config struct {
	PriceScale int32
	Interval   time.Duration
	TieBreak   auction.TieBreak
	Risk       RiskConfig
}

// maxTicks keeps doubled prices and half-tick midpoints inside int64.
var maxTicks = decimal.NewFromInt(math.MaxInt64 / 4)

// Engine is what the gateways talk to: it converts wire prices to book
// ticks, mutates the book and drives the auction controller.
type Engine struct {
	cfg        Config
	book       *orderbook.Book
	controller *auction.Controller
	riskRules  []RiskRule
	logger     *logging.Logger
	metrics    *metrics.Metrics
}

func New(cfg Config, logger *logging.Logger, m *metrics.Metrics) (*Engine, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	riskRules, err := buildRiskRules(cfg.Risk, cfg.PriceScale)
	if err != nil {
		return nil, err
	}

	book := orderbook.NewBook(cfg.PriceScale)
	controller, err := auction.NewController(book, auction.ControllerConfig{
		Interval: cfg.Interval,
		TieBreak: cfg.TieBreak,
	}, logger.Named("auction"))
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		book:       book,
		controller: controller,
		riskRules:  riskRules,
		logger:     logger,
		metrics:    m,
	}
	controller.RegisterReportCallback(e.observeRound)

	return e, nil
}

// SubmitAdd rests a new limit order. Non-positive prices (after rounding to
// the book's tick) and quantities fail with orderbook.ErrInvalidOrder.
func (e *Engine) SubmitAdd(ctx context.Context, side orderbook.Side, price decimal.Decimal, qty int64) error {
	ticks, err := e.ToTicks(price)
	if err != nil {
		e.metrics.ObserveCommand("ADD", "invalid")
		return err
	}
	for _, rule := range e.riskRules {
		if err := rule.Check(side, ticks, qty); err != nil {
			e.metrics.ObserveCommand("ADD", "risk")
			e.logger.Debug(ctx, "add rejected by risk rule", zap.Error(err))
			return err
		}
	}

	seq, err := e.book.Insert(side, ticks, qty)
	if err != nil {
		e.metrics.ObserveCommand("ADD", "invalid")
		e.logger.Debug(ctx, "add rejected", zap.Error(err))
		return err
	}

	e.metrics.ObserveCommand("ADD", "ok")
	e.observeResting(side)
	e.logger.Debug(ctx, "order added",
		zap.Uint64("seq", seq),
		zap.String("side", string(side)),
		zap.Int64("price_ticks", ticks),
		zap.Int64("qty", qty))
	return nil
}

// SubmitCancel removes the earliest resting order matching all three
// attributes. Values that could never rest in the book are simply NotFound.
func (e *Engine) SubmitCancel(ctx context.Context, side orderbook.Side, price decimal.Decimal, qty int64) CancelResult {
	result := NotFound
	if ticks, err := e.ToTicks(price); err == nil && e.book.Cancel(side, ticks, qty) {
		result = Found
		e.observeResting(side)
	}

	e.metrics.ObserveCommand("CANCEL", string(result))
	e.logger.Debug(ctx, "cancel",
		zap.String("side", string(side)),
		zap.String("price", price.String()),
		zap.Int64("qty", qty),
		zap.String("result", string(result)))
	return result
}

// ToTicks rounds price to the configured scale and returns it as an integer
// tick count.
func (e *Engine) ToTicks(price decimal.Decimal) (int64, error) {
	ticks := price.Shift(e.cfg.PriceScale).Round(0)
	if !ticks.IsPositive() {
		return 0, fmt.Errorf("%w: price %s is not positive at scale %d", orderbook.ErrInvalidOrder, price, e.cfg.PriceScale)
	}
	if ticks.GreaterThan(maxTicks) {
		return 0, fmt.Errorf("%w: price %s out of range", orderbook.ErrInvalidOrder, price)
	}
	return ticks.IntPart(), nil
}

// PriceOf converts a tick count back to its decimal price.
func (e *Engine) PriceOf(ticks int64) decimal.Decimal {
	return decimal.New(ticks, -e.cfg.PriceScale)
}

func (e *Engine) RegisterReportCallback(cb func(*auction.BatchReport)) {
	e.controller.RegisterReportCallback(cb)
}

// Run drives clearing rounds until ctx ends or a round fails.
func (e *Engine) Run(ctx context.Context) error {
	return e.controller.Run(ctx)
}

func (e *Engine) Tick(ctx context.Context) (*auction.BatchReport, error) {
	return e.controller.Tick(ctx)
}

func (e *Engine) State() auction.State {
	return e.controller.State()
}

func (e *Engine) LastReport() *auction.BatchReport {
	return e.controller.LastReport()
}

func (e *Engine) Depth() orderbook.Depth {
	return e.book.Depth()
}

func (e *Engine) observeRound(r *auction.BatchReport) {
	px, _ := r.Price.Float64()
	e.metrics.ObserveRound(px, r.Volume, len(r.Trades))
	e.observeResting(orderbook.BUY)
	e.observeResting(orderbook.SELL)
}

func (e *Engine) observeResting(side orderbook.Side) {
	if e.metrics == nil {
		return
	}
	_, n := e.book.Volume(side)
	e.metrics.SetResting(string(side), n)
}
