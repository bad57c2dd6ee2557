package auction

import (
	"math"
	"testing"

	"github.com/joripage/batch-auction/pkg/orderbook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBook(t *testing.T, orders ...orderbook.Order) *orderbook.Book {
	t.Helper()
	book := orderbook.NewBook(2)
	for _, o := range orders {
		_, err := book.Insert(o.Side, o.Price, o.Qty)
		require.NoError(t, err)
	}
	return book
}

func buy(price, qty int64) orderbook.Order {
	return orderbook.Order{Side: orderbook.BUY, Price: price, Qty: qty}
}

func sell(price, qty int64) orderbook.Order {
	return orderbook.Order{Side: orderbook.SELL, Price: price, Qty: qty}
}

func runClear(t *testing.T, tb TieBreak, book *orderbook.Book) *Result {
	t.Helper()
	c, err := NewClearer(tb)
	require.NoError(t, err)
	res, err := c.Clear(book.Snapshot())
	require.NoError(t, err)
	return res
}

func TestClearSingleCross(t *testing.T) {
	cases := []struct {
		tieBreak TieBreak
		price    string
	}{
		{TieBreakMidpoint, "50.5"},
		{TieBreakLower, "50"},
	}
	for _, tc := range cases {
		t.Run(string(tc.tieBreak), func(t *testing.T) {
			book := newBook(t, buy(5100, 10), sell(5000, 8))

			res := runClear(t, tc.tieBreak, book)
			require.True(t, res.Traded())
			assert.Equal(t, tc.price, res.Price.String())
			assert.EqualValues(t, 8, res.Volume)

			require.Len(t, res.Trades, 1)
			assert.EqualValues(t, 8, res.Trades[0].Qty)
			assert.Equal(t, "51", res.Trades[0].Buy.Limit.String())
			assert.Equal(t, "50", res.Trades[0].Sell.Limit.String())

			report := res.Report(1, fixedTime)
			assert.Equal(t, 0, report.ClearedBids)
			assert.Equal(t, 1, report.ClearedAsks)

			require.NoError(t, book.ApplyFills(res.Fills()))
			snap := book.Snapshot()
			assert.Empty(t, snap.Asks)
			require.Len(t, snap.Bids, 1)
			assert.EqualValues(t, 2, snap.Bids[0].Qty)
			assert.EqualValues(t, 5100, snap.Bids[0].Price)
		})
	}
}

func TestClearPartialAcrossLevels(t *testing.T) {
	cases := []struct {
		tieBreak TieBreak
		price    string
	}{
		{TieBreakMidpoint, "53.5"},
		{TieBreakLower, "52"},
	}
	for _, tc := range cases {
		t.Run(string(tc.tieBreak), func(t *testing.T) {
			book := newBook(t, buy(5500, 20), sell(5000, 5), sell(5200, 10))

			res := runClear(t, tc.tieBreak, book)
			assert.Equal(t, tc.price, res.Price.String())
			assert.EqualValues(t, 15, res.Volume)

			require.Len(t, res.Trades, 2)
			assert.EqualValues(t, 5, res.Trades[0].Qty)
			assert.Equal(t, "50", res.Trades[0].Sell.Limit.String())
			assert.EqualValues(t, 10, res.Trades[1].Qty)
			assert.Equal(t, "52", res.Trades[1].Sell.Limit.String())
			assert.Equal(t, res.Trades[0].Buy.Seq, res.Trades[1].Buy.Seq)

			require.NoError(t, book.ApplyFills(res.Fills()))
			snap := book.Snapshot()
			assert.Empty(t, snap.Asks)
			require.Len(t, snap.Bids, 1)
			assert.EqualValues(t, 5, snap.Bids[0].Qty)
		})
	}
}

func TestClearNoCross(t *testing.T) {
	cases := map[string]*orderbook.Book{
		"empty":       newBook(t),
		"only bids":   newBook(t, buy(5000, 10)),
		"only asks":   newBook(t, sell(5000, 10)),
		"bid < ask":   newBook(t, buy(4900, 10), sell(5000, 10)),
		"wide spread": newBook(t, buy(4000, 10), buy(3000, 10), sell(6000, 1)),
	}
	for name, book := range cases {
		t.Run(name, func(t *testing.T) {
			res := runClear(t, TieBreakMidpoint, book)
			assert.False(t, res.Traded())
			assert.Empty(t, res.Trades)
			assert.Empty(t, res.Fills())
		})
	}
}

func TestClearMidpointHalfTick(t *testing.T) {
	book := newBook(t, buy(5001, 5), sell(5000, 5))

	res := runClear(t, TieBreakMidpoint, book)
	assert.Equal(t, "50.005", res.Price.String())

	res = runClear(t, TieBreakLower, book)
	assert.Equal(t, "50", res.Price.String())
}

func TestClearHugeQuantitiesStillTrade(t *testing.T) {
	book := newBook(t, buy(5000, orderbook.MaxQty), buy(5000, orderbook.MaxQty), sell(4000, 10))

	_, err := book.Insert(orderbook.BUY, 5000, math.MaxInt64)
	require.ErrorIs(t, err, orderbook.ErrInvalidOrder)

	res := runClear(t, TieBreakMidpoint, book)
	require.True(t, res.Traded())
	assert.EqualValues(t, 10, res.Volume)
	assert.Equal(t, "45", res.Price.String())
	require.Len(t, res.Bids, 1)
	assert.EqualValues(t, 10, res.Bids[0].Qty)
}

func TestHalfTicksAtPriceLimit(t *testing.T) {
	// odd doubled price just past the sum of two max-tick levels
	assert.Equal(t, "23058430092136939.515", halfTicks(math.MaxInt64/2, 2).String())
	assert.Equal(t, "50.005", halfTicks(10001, 2).String())
}

func TestClearImbalanceBreaksVolumeTie(t *testing.T) {
	// volume is 10 at 50, 51 and 52 but only 52 leaves an imbalance of 3
	book := newBook(t, buy(5200, 10), buy(5100, 6), sell(5000, 10), sell(5200, 3))

	for _, tb := range []TieBreak{TieBreakMidpoint, TieBreakLower} {
		res := runClear(t, tb, book)
		assert.Equal(t, "52", res.Price.String(), tb)
		assert.EqualValues(t, 10, res.Volume, tb)
		require.Len(t, res.Bids, 1)
		assert.EqualValues(t, 5200, res.Bids[0].Order.Price)
		require.Len(t, res.Asks, 1)
		assert.EqualValues(t, 5000, res.Asks[0].Order.Price)
	}
}

func TestClearTimePriorityWithinLevel(t *testing.T) {
	book := newBook(t, sell(5000, 4), sell(5000, 4), sell(5000, 4), buy(5000, 6))

	res := runClear(t, TieBreakMidpoint, book)
	require.Len(t, res.Asks, 2)
	assert.EqualValues(t, 4, res.Asks[0].Qty)
	assert.EqualValues(t, 2, res.Asks[1].Qty)
	assert.Less(t, res.Asks[0].Order.Seq, res.Asks[1].Order.Seq)

	report := res.Report(7, fixedTime)
	assert.EqualValues(t, 7, report.Round)
	assert.Equal(t, 1, report.ClearedBids)
	assert.Equal(t, 1, report.ClearedAsks)
	assert.Equal(t, "Batch: cleared BID=1, cleared ASK=1, price=50, qty=6", report.String())
}

func TestClearDoesNotMutateSnapshot(t *testing.T) {
	book := newBook(t, buy(5100, 10), sell(5000, 8))
	snap := book.Snapshot()

	c, err := NewClearer(TieBreakMidpoint)
	require.NoError(t, err)
	_, err = c.Clear(snap)
	require.NoError(t, err)

	assert.Equal(t, book.Snapshot(), snap)
}

func TestParseTieBreak(t *testing.T) {
	tb, err := ParseTieBreak("")
	require.NoError(t, err)
	assert.Equal(t, TieBreakMidpoint, tb)

	tb, err = ParseTieBreak("lower")
	require.NoError(t, err)
	assert.Equal(t, TieBreakLower, tb)

	_, err = ParseTieBreak("upper")
	assert.ErrorIs(t, err, ErrTieBreak)

	_, err = NewClearer("upper")
	assert.ErrorIs(t, err, ErrTieBreak)
}
