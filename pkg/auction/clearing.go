package auction

import (
	"fmt"
	"time"

	"github.com/joripage/batch-auction/pkg/orderbook"
	"github.com/shopspring/decimal"
)

// TieBreak decides the price when several levels reach the same volume and
// imbalance.
type TieBreak string

const (
	TieBreakMidpoint TieBreak = "midpoint"
	TieBreakLower    TieBreak = "lower"
)

func ParseTieBreak(s string) (TieBreak, error) {
	switch tb := TieBreak(s); tb {
	case "":
		return TieBreakMidpoint, nil
	case TieBreakMidpoint, TieBreakLower:
		return tb, nil
	}
	return "", fmt.Errorf("%w: %q", ErrTieBreak, s)
}

// Allocation is the quantity one resting order contributes to a round.
type Allocation struct {
	Order orderbook.Order
	Qty   int64
}

// Result is the outcome of one clearing pass over a snapshot.
type Result struct {
	Scale  int32
	Price  decimal.Decimal
	Volume int64
	Bids   []Allocation
	Asks   []Allocation
	Trades []Trade
}

func (r *Result) Traded() bool {
	return r != nil && r.Volume > 0
}

// Fills converts the allocations of both sides into book fills.
func (r *Result) Fills() []orderbook.Fill {
	fills := make([]orderbook.Fill, 0, len(r.Bids)+len(r.Asks))
	for _, a := range r.Bids {
		fills = append(fills, orderbook.Fill{Seq: a.Order.Seq, Qty: a.Qty})
	}
	for _, a := range r.Asks {
		fills = append(fills, orderbook.Fill{Seq: a.Order.Seq, Qty: a.Qty})
	}
	return fills
}

// Report builds the batch report of round. Only orders filled completely
// count as cleared.
func (r *Result) Report(round uint64, at time.Time) *BatchReport {
	return &BatchReport{
		Round:       round,
		Price:       r.Price,
		Volume:      r.Volume,
		ClearedBids: fullyFilled(r.Bids),
		ClearedAsks: fullyFilled(r.Asks),
		Trades:      r.Trades,
		At:          at,
	}
}

func fullyFilled(allocs []Allocation) int {
	n := 0
	for _, a := range allocs {
		if a.Qty == a.Order.Qty {
			n++
		}
	}
	return n
}

// Clearer computes the uniform clearing price of a snapshot and allocates
// the executable volume in price then time priority.
type Clearer struct {
	tieBreak TieBreak
}

func NewClearer(tb TieBreak) (*Clearer, error) {
	if tb != TieBreakMidpoint && tb != TieBreakLower {
		return nil, fmt.Errorf("%w: %q", ErrTieBreak, tb)
	}
	return &Clearer{tieBreak: tb}, nil
}

// Clear never mutates snap. A book that does not cross yields an empty
// result, not an error. ErrImpossibleFill means the allocation does not add
// up and the round must be aborted.
func (c *Clearer) Clear(snap orderbook.Snapshot) (*Result, error) {
	res := &Result{Scale: snap.Scale}
	if len(snap.Bids) == 0 || len(snap.Asks) == 0 {
		return res, nil
	}
	if snap.Bids[0].Price < snap.Asks[0].Price {
		return res, nil
	}

	lo, hi, ok := intersect(buildCurves(snap.Bids, snap.Asks))
	if !ok {
		return res, nil
	}

	// the clearing price is kept in half ticks so a midpoint stays exact
	p2 := 2 * lo.price
	if c.tieBreak == TieBreakMidpoint {
		p2 = lo.price + hi.price
	}

	res.Volume = lo.volume()
	res.Price = halfTicks(p2, snap.Scale)

	var err error
	res.Bids, err = allocate(snap.Bids, res.Volume, func(o orderbook.Order) bool { return 2*o.Price >= p2 })
	if err != nil {
		return nil, err
	}
	res.Asks, err = allocate(snap.Asks, res.Volume, func(o orderbook.Order) bool { return 2*o.Price <= p2 })
	if err != nil {
		return nil, err
	}
	res.Trades = pair(res.Price, snap.Scale, res.Bids, res.Asks)

	return res, nil
}

// allocate walks orders in priority order, filling each completely until
// volume runs out; the marginal order is filled partially.
func allocate(orders []orderbook.Order, volume int64, eligible func(orderbook.Order) bool) ([]Allocation, error) {
	var out []Allocation
	left := volume
	for _, o := range orders {
		if left == 0 || !eligible(o) {
			break
		}
		q := min(o.Qty, left)
		out = append(out, Allocation{Order: o, Qty: q})
		left -= q
	}
	if left != 0 {
		return nil, fmt.Errorf("%w: %d of %d allocated", orderbook.ErrImpossibleFill, volume-left, volume)
	}
	return out, nil
}

// pair matches buy and sell allocations front to front. Every trade carries
// the same quantity on both legs.
func pair(price decimal.Decimal, scale int32, bids, asks []Allocation) []Trade {
	var trades []Trade
	i, j := 0, 0
	var bidUsed, askUsed int64
	for i < len(bids) && j < len(asks) {
		q := min(bids[i].Qty-bidUsed, asks[j].Qty-askUsed)
		if q > 0 {
			trades = append(trades, Trade{
				Price: price,
				Buy:   refOf(bids[i].Order, scale),
				Sell:  refOf(asks[j].Order, scale),
				Qty:   q,
			})
		}
		bidUsed += q
		askUsed += q
		if bidUsed == bids[i].Qty {
			i++
			bidUsed = 0
		}
		if askUsed == asks[j].Qty {
			j++
			askUsed = 0
		}
	}
	return trades
}

func refOf(o orderbook.Order, scale int32) OrderRef {
	return OrderRef{Seq: o.Seq, Limit: decimal.New(o.Price, -scale)}
}

func halfTicks(p2 int64, scale int32) decimal.Decimal {
	if p2%2 == 0 {
		return decimal.New(p2/2, -scale)
	}
	return decimal.New(p2/2, -scale).Add(decimal.New(5, -(scale + 1)))
}
