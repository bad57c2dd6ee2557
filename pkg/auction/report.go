package auction

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderRef identifies a resting order inside a report. Seq is internal
// bookkeeping and never accepted back from clients.
type OrderRef struct {
	Seq   uint64          `json:"seq"`
	Limit decimal.Decimal `json:"limit"`
}

// Trade is one buy/sell pairing settled at the round's uniform price.
type Trade struct {
	Price decimal.Decimal `json:"price"`
	Buy   OrderRef        `json:"buy"`
	Sell  OrderRef        `json:"sell"`
	Qty   int64           `json:"qty"`
}

// BatchReport describes one settled round. Rounds without a trade produce no report.
type BatchReport struct {
	Round       uint64          `json:"round"`
	Price       decimal.Decimal `json:"price"`
	Volume      int64           `json:"volume"`
	ClearedBids int             `json:"cleared_bids"`
	ClearedAsks int             `json:"cleared_asks"`
	Trades      []Trade         `json:"trades"`
	At          time.Time       `json:"at"`
}

func (r *BatchReport) String() string {
	return fmt.Sprintf("Batch: cleared BID=%d, cleared ASK=%d, price=%s, qty=%d",
		r.ClearedBids, r.ClearedAsks, r.Price, r.Volume)
}
