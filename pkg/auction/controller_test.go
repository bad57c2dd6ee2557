package auction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/joripage/batch-auction/pkg/logging"
	"github.com/joripage/batch-auction/pkg/orderbook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func newController(t *testing.T, book Settler) *Controller {
	t.Helper()
	c, err := NewController(book, ControllerConfig{Interval: time.Millisecond, TieBreak: TieBreakMidpoint}, logging.NewNopLogger())
	require.NoError(t, err)
	c.now = func() time.Time { return fixedTime }
	return c
}

type blockingSettler struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSettler) Settle(func(orderbook.Snapshot) ([]orderbook.Fill, error)) error {
	close(s.entered)
	<-s.release
	return nil
}

type failingSettler struct {
	err error
}

func (s failingSettler) Settle(func(orderbook.Snapshot) ([]orderbook.Fill, error)) error {
	return s.err
}

func TestNewControllerValidates(t *testing.T) {
	book := orderbook.NewBook(2)

	_, err := NewController(book, ControllerConfig{TieBreak: TieBreakLower}, nil)
	assert.Error(t, err)

	_, err = NewController(book, ControllerConfig{Interval: time.Second, TieBreak: "upper"}, nil)
	assert.ErrorIs(t, err, ErrTieBreak)
}

func TestTickNoTrade(t *testing.T) {
	book := newBook(t, buy(4900, 10), sell(5000, 10))
	c := newController(t, book)

	called := false
	c.RegisterReportCallback(func(*BatchReport) { called = true })

	report, err := c.Tick(context.Background())
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.False(t, called)
	assert.Nil(t, c.LastReport())
	assert.Equal(t, Idle, c.State())
}

func TestTickSettlesRound(t *testing.T) {
	book := newBook(t, buy(5500, 20), sell(5000, 5), sell(5200, 10))
	c := newController(t, book)

	var got []*BatchReport
	c.RegisterReportCallback(func(r *BatchReport) { got = append(got, r) })
	c.RegisterReportCallback(func(r *BatchReport) {
		assert.Equal(t, Clearing, c.State())
	})

	report, err := c.Tick(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.EqualValues(t, 1, report.Round)
	assert.Equal(t, "53.5", report.Price.String())
	assert.EqualValues(t, 15, report.Volume)
	assert.Equal(t, 0, report.ClearedBids)
	assert.Equal(t, 2, report.ClearedAsks)
	assert.Len(t, report.Trades, 2)
	assert.Equal(t, fixedTime, report.At)

	require.Len(t, got, 1)
	assert.Same(t, report, got[0])
	assert.Same(t, report, c.LastReport())
	assert.Equal(t, Idle, c.State())

	// nothing left to cross
	report, err = c.Tick(context.Background())
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.Len(t, got, 1)

	_, err = book.Insert(orderbook.SELL, 5500, 5)
	require.NoError(t, err)
	report, err = c.Tick(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.EqualValues(t, 2, report.Round)
	assert.Equal(t, 1, report.ClearedBids)
}

func TestTickSkipsWhileRoundInFlight(t *testing.T) {
	s := &blockingSettler{entered: make(chan struct{}), release: make(chan struct{})}
	c := newController(t, s)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := c.Tick(context.Background())
		assert.NoError(t, err)
	}()

	<-s.entered
	assert.Equal(t, Clearing, c.State())
	_, err := c.Tick(context.Background())
	assert.ErrorIs(t, err, ErrRoundInFlight)

	close(s.release)
	wg.Wait()
	assert.Equal(t, Idle, c.State())
}

func TestTickHaltsOnImpossibleFill(t *testing.T) {
	fault := fmt.Errorf("%w: order 9 is not resting", orderbook.ErrImpossibleFill)
	c := newController(t, failingSettler{err: fault})

	_, err := c.Tick(context.Background())
	assert.ErrorIs(t, err, orderbook.ErrImpossibleFill)
	assert.Equal(t, Halted, c.State())
	assert.ErrorIs(t, c.Err(), orderbook.ErrImpossibleFill)

	_, err = c.Tick(context.Background())
	assert.ErrorIs(t, err, ErrHalted)
}

func TestRunReturnsRoundFailure(t *testing.T) {
	c := newController(t, failingSettler{err: orderbook.ErrImpossibleFill})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := c.Run(ctx)
	assert.True(t, errors.Is(err, orderbook.ErrImpossibleFill))
	assert.Equal(t, Halted, c.State())
}

func TestRunStopsOnCancel(t *testing.T) {
	book := newBook(t, buy(5100, 10))
	c := newController(t, book)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	_, err := book.Insert(orderbook.SELL, 5000, 8)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return c.LastReport() != nil }, 5*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, "50.5", c.LastReport().Price.String())
}
