package model

import (
	"time"

	"github.com/joripage/batch-auction/pkg/auction"
	"github.com/shopspring/decimal"
)

// BatchRound is one settled round as stored in batch_rounds.
type BatchRound struct {
	Round       uint64          `gorm:"primaryKey;autoIncrement:false"`
	Price       decimal.Decimal `gorm:"type:numeric(38,8)"`
	Volume      int64
	ClearedBids int
	ClearedAsks int
	TradeCount  int
	SettledAt   time.Time
}

func (BatchRound) TableName() string { return "batch_rounds" }

// BatchTrade is one trade event of a round as stored in batch_trades.
type BatchTrade struct {
	Round     uint64          `gorm:"primaryKey;autoIncrement:false"`
	Idx       int             `gorm:"primaryKey;autoIncrement:false"`
	Price     decimal.Decimal `gorm:"type:numeric(38,8)"`
	BuySeq    uint64
	BuyLimit  decimal.Decimal `gorm:"type:numeric(38,8)"`
	SellSeq   uint64
	SellLimit decimal.Decimal `gorm:"type:numeric(38,8)"`
	Qty       int64
}

func (BatchTrade) TableName() string { return "batch_trades" }

// FromReport flattens a batch report into its round row and trade rows.
func FromReport(r *auction.BatchReport) (*BatchRound, []*BatchTrade) {
	round := &BatchRound{
		Round:       r.Round,
		Price:       r.Price,
		Volume:      r.Volume,
		ClearedBids: r.ClearedBids,
		ClearedAsks: r.ClearedAsks,
		TradeCount:  len(r.Trades),
		SettledAt:   r.At,
	}
	trades := make([]*BatchTrade, 0, len(r.Trades))
	for i, t := range r.Trades {
		trades = append(trades, &BatchTrade{
			Round:     r.Round,
			Idx:       i,
			Price:     t.Price,
			BuySeq:    t.Buy.Seq,
			BuyLimit:  t.Buy.Limit,
			SellSeq:   t.Sell.Seq,
			SellLimit: t.Sell.Limit,
			Qty:       t.Qty,
		})
	}
	return round, trades
}
