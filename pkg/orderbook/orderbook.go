// file: pkg/orderbook/orderbook.go

package orderbook

import (
	"container/heap"
	"fmt"
	"slices"
	"sync"

	"github.com/gammazero/deque"
)

// Book holds the resting orders of the single instrument. All mutations and
// reads go through one mutex so a snapshot never observes a half-applied
// insert, cancel or settlement.
type Book struct {
	scale int32

	buyOrders  map[int64]*deque.Deque[*Order]
	sellOrders map[int64]*deque.Deque[*Order]

	// the heaps serve top-of-book only; Snapshot and Depth sort the level keys
	buyHeap  *PriceHeap
	sellHeap *PriceHeap

	// orders indexes every resting order by Seq. Seq values are never reused.
	orders  map[uint64]*Order
	lastSeq uint64

	mu sync.Mutex
}

// NewBook creates an empty book whose prices are ticks of 10^-scale.
func NewBook(scale int32) *Book {
	buyHeap := NewPriceHeap(func(i, j int64) bool { return i > j })  // Max-heap
	sellHeap := NewPriceHeap(func(i, j int64) bool { return i < j }) // Min-heap

	return &Book{
		scale:      scale,
		buyOrders:  make(map[int64]*deque.Deque[*Order]),
		sellOrders: make(map[int64]*deque.Deque[*Order]),
		buyHeap:    buyHeap,
		sellHeap:   sellHeap,
		orders:     make(map[uint64]*Order),
	}
}

func (ob *Book) Scale() int32 {
	return ob.scale
}

// Insert appends a new order at the back of its price level and returns its Seq.
func (ob *Book) Insert(side Side, price, qty int64) (uint64, error) {
	if !side.Valid() {
		return 0, fmt.Errorf("%w: side %q", ErrInvalidOrder, side)
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: price must be positive", ErrInvalidOrder)
	}
	if qty <= 0 {
		return 0, fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}
	if qty > MaxQty {
		return 0, fmt.Errorf("%w: quantity above %d", ErrInvalidOrder, int64(MaxQty))
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.lastSeq++
	order := &Order{Seq: ob.lastSeq, Side: side, Price: price, Qty: qty}

	book, priceHeap := ob.sideOf(side)
	if book[price] == nil {
		book[price] = &deque.Deque[*Order]{}
		heap.Push(priceHeap, price)
	}
	book[price].PushBack(order)
	ob.orders[order.Seq] = order

	return order.Seq, nil
}

// Cancel removes the earliest resting order on side with exactly this price
// and quantity. It reports whether such an order existed.
func (ob *Book) Cancel(side Side, price, qty int64) bool {
	if !side.Valid() {
		return false
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()

	book, _ := ob.sideOf(side)
	q := book[price]
	if q == nil {
		return false
	}

	// levels are appended in Seq order, so the first match is the earliest
	i := q.Index(func(o *Order) bool { return o.Qty == qty })
	if i < 0 {
		return false
	}
	o := q.Remove(i)
	delete(ob.orders, o.Seq)
	ob.dropLevelIfEmpty(side, price)

	return true
}

// Snapshot copies the resting orders of both sides in priority order.
func (ob *Book) Snapshot() Snapshot {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	return ob.snapshot()
}

// ApplyFills decrements the referenced orders and removes those that reach
// zero. Either every fill is applied or, on ErrImpossibleFill, none is.
func (ob *Book) ApplyFills(fills []Fill) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	return ob.applyFills(fills)
}

// Settle runs clear against a snapshot and applies the fills it returns,
// all inside one critical section.
func (ob *Book) Settle(clear func(Snapshot) ([]Fill, error)) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	fills, err := clear(ob.snapshot())
	if err != nil {
		return err
	}
	return ob.applyFills(fills)
}

// Best returns the highest bid or the lowest ask.
func (ob *Book) Best(side Side) (int64, bool) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	_, priceHeap := ob.sideOf(side)
	return priceHeap.Peek()
}

// Volume returns the total resting quantity and order count on side.
func (ob *Book) Volume(side Side) (qty int64, count int) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	book, _ := ob.sideOf(side)
	for _, q := range book {
		for i := 0; i < q.Len(); i++ {
			qty += q.At(i).Qty
		}
		count += q.Len()
	}
	return qty, count
}

// Depth aggregates both sides per price level, best level first.
func (ob *Book) Depth() Depth {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	return Depth{
		Scale: ob.scale,
		Bids:  levelsOf(ob.buyOrders, sortedPrices(ob.buyOrders, true)),
		Asks:  levelsOf(ob.sellOrders, sortedPrices(ob.sellOrders, false)),
	}
}

func (ob *Book) snapshot() Snapshot {
	return Snapshot{
		Scale: ob.scale,
		Bids:  ordersOf(ob.buyOrders, sortedPrices(ob.buyOrders, true)),
		Asks:  ordersOf(ob.sellOrders, sortedPrices(ob.sellOrders, false)),
	}
}

func (ob *Book) applyFills(fills []Fill) error {
	want := make(map[uint64]int64, len(fills))
	for _, f := range fills {
		if f.Qty <= 0 {
			return fmt.Errorf("%w: order %d fill quantity %d", ErrImpossibleFill, f.Seq, f.Qty)
		}
		want[f.Seq] += f.Qty
	}
	for seq, qty := range want {
		o, ok := ob.orders[seq]
		if !ok {
			return fmt.Errorf("%w: order %d is not resting", ErrImpossibleFill, seq)
		}
		if qty > o.Qty {
			return fmt.Errorf("%w: order %d holds %d, fill %d", ErrImpossibleFill, seq, o.Qty, qty)
		}
	}

	for _, f := range fills {
		o := ob.orders[f.Seq]
		o.Qty -= f.Qty
		if o.Qty == 0 {
			ob.remove(o)
		}
	}
	return nil
}

func (ob *Book) remove(o *Order) {
	book, _ := ob.sideOf(o.Side)
	q := book[o.Price]
	if i := q.Index(func(x *Order) bool { return x.Seq == o.Seq }); i >= 0 {
		q.Remove(i)
	}
	delete(ob.orders, o.Seq)
	ob.dropLevelIfEmpty(o.Side, o.Price)
}

func (ob *Book) dropLevelIfEmpty(side Side, price int64) {
	book, priceHeap := ob.sideOf(side)
	if q := book[price]; q != nil && q.Len() > 0 {
		return
	}
	delete(book, price)
	if i := priceHeap.position(price); i >= 0 {
		heap.Remove(priceHeap, i)
	}
}

func (ob *Book) sideOf(side Side) (map[int64]*deque.Deque[*Order], *PriceHeap) {
	if side == BUY {
		return ob.buyOrders, ob.buyHeap
	}
	return ob.sellOrders, ob.sellHeap
}

func sortedPrices(book map[int64]*deque.Deque[*Order], desc bool) []int64 {
	prices := make([]int64, 0, len(book))
	for p := range book {
		prices = append(prices, p)
	}
	slices.Sort(prices)
	if desc {
		slices.Reverse(prices)
	}
	return prices
}

func ordersOf(book map[int64]*deque.Deque[*Order], prices []int64) []Order {
	var out []Order
	for _, p := range prices {
		q := book[p]
		for i := 0; i < q.Len(); i++ {
			out = append(out, *q.At(i))
		}
	}
	return out
}

func levelsOf(book map[int64]*deque.Deque[*Order], prices []int64) []Level {
	out := make([]Level, 0, len(prices))
	for _, p := range prices {
		q := book[p]
		lvl := Level{Price: p, Orders: q.Len()}
		for i := 0; i < q.Len(); i++ {
			lvl.Qty += q.At(i).Qty
		}
		out = append(out, lvl)
	}
	return out
}
