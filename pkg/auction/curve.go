package auction

import (
	"slices"

	"github.com/joripage/batch-auction/pkg/orderbook"
)

// segment is one candidate clearing level: cumulative demand at or above
// price and cumulative supply at or below it.
type segment struct {
	price  int64
	demand int64
	supply int64
}

func (s segment) volume() int64 {
	return min(s.demand, s.supply)
}

func (s segment) imbalance() int64 {
	if s.demand > s.supply {
		return s.demand - s.supply
	}
	return s.supply - s.demand
}

// buildCurves returns the candidate levels in ascending price order. Only
// levels inside [best ask, best bid] are candidates, everywhere else one of
// the curves is zero. bids must be sorted best first, asks likewise, and the
// book must be crossed.
func buildCurves(bids, asks []orderbook.Order) []segment {
	lo, hi := asks[0].Price, bids[0].Price

	prices := make([]int64, 0, len(bids)+len(asks))
	for _, o := range bids {
		if o.Price < lo {
			break
		}
		prices = append(prices, o.Price)
	}
	for _, o := range asks {
		if o.Price > hi {
			break
		}
		prices = append(prices, o.Price)
	}
	slices.Sort(prices)
	prices = slices.Compact(prices)

	curve := make([]segment, len(prices))

	var cum int64
	j := 0
	for i, p := range prices {
		for j < len(asks) && asks[j].Price <= p {
			cum += asks[j].Qty
			j++
		}
		curve[i] = segment{price: p, supply: cum}
	}

	cum, j = 0, 0
	for i := len(prices) - 1; i >= 0; i-- {
		for j < len(bids) && bids[j].Price >= prices[i] {
			cum += bids[j].Qty
			j++
		}
		curve[i].demand = cum
	}

	return curve
}

// intersect picks the maximum-volume levels, narrowed to minimum imbalance,
// and returns the lowest and highest of the remaining ties.
func intersect(curve []segment) (lo, hi segment, ok bool) {
	for _, s := range curve {
		v := s.volume()
		if v == 0 {
			continue
		}
		switch {
		case !ok || v > lo.volume() || (v == lo.volume() && s.imbalance() < lo.imbalance()):
			lo, hi, ok = s, s, true
		case v == lo.volume() && s.imbalance() == lo.imbalance():
			hi = s
		}
	}
	return lo, hi, ok
}
