package orderbook

import "math"

// MaxQty bounds the quantity of a single order. Cumulative curve sums and
// side totals stay inside int64 for any book that fits in memory.
const MaxQty = math.MaxUint32

type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

func (s Side) Valid() bool {
	return s == BUY || s == SELL
}

// Order is a resting limit order. Price is in ticks (fixed point, see Book.Scale).
// Seq is assigned by the book on insert and orders equal-priced orders FIFO.
type Order struct {
	Seq   uint64
	Side  Side
	Price int64
	Qty   int64
}

// Fill removes Qty from the resting order identified by Seq.
type Fill struct {
	Seq uint64
	Qty int64
}

// Snapshot is a point-in-time copy of the book. Bids are sorted by price
// descending, asks by price ascending, both by Seq ascending within a level.
type Snapshot struct {
	Scale int32
	Bids  []Order
	Asks  []Order
}

// Level is one aggregated price level, used for depth views.
type Level struct {
	Price  int64
	Qty    int64
	Orders int
}

// Depth is the aggregated view of both sides, best level first.
type Depth struct {
	Scale int32
	Bids  []Level
	Asks  []Level
}
