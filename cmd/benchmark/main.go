package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/joripage/batch-auction/pkg/auction"
	"github.com/joripage/batch-auction/pkg/engine"
	"github.com/joripage/batch-auction/pkg/orderbook"
	"github.com/shopspring/decimal"
)

const (
	minPrice = 100.0
	maxPrice = 200.0
	minQty   = 1
	maxQty   = 100
)

func randomOrder(rng *rand.Rand) (orderbook.Side, decimal.Decimal, int64) {
	side := orderbook.BUY
	if rng.Intn(2) == 0 {
		side = orderbook.SELL
	}
	price := decimal.NewFromFloat(minPrice + rng.Float64()*(maxPrice-minPrice)).Round(2)
	qty := int64(rng.Intn(maxQty-minQty+1) + minQty)
	return side, price, qty
}

func main() {
	var (
		numOrders   int
		perRound    int
		tieBreak    string
		seed        int64
		cancelRatio float64
	)
	flag.IntVar(&numOrders, "orders", 1_000_000, "Orders to submit")
	flag.IntVar(&perRound, "per-round", 1_000, "Orders submitted between two clearing rounds")
	flag.StringVar(&tieBreak, "tie-break", string(auction.TieBreakMidpoint), "midpoint or lower")
	flag.Int64Var(&seed, "seed", time.Now().UnixNano(), "Random seed")
	flag.Float64Var(&cancelRatio, "cancel-ratio", 0.1, "Share of commands that cancel a random earlier order")
	flag.Parse()

	tb, err := auction.ParseTieBreak(tieBreak)
	if err != nil {
		log.Fatal(err)
	}
	eng, err := engine.New(engine.Config{PriceScale: 2, Interval: time.Second, TieBreak: tb}, nil, nil)
	if err != nil {
		log.Fatal(err)
	}

	var (
		rounds, trades, cancels int
		totalQty                int64
	)
	eng.RegisterReportCallback(func(r *auction.BatchReport) {
		rounds++
		trades += len(r.Trades)
		totalQty += r.Volume
		if rounds <= 5 {
			log.Printf("round %d: %s", r.Round, r)
		}
	})

	type submitted struct {
		side  orderbook.Side
		price decimal.Decimal
		qty   int64
	}
	rng := rand.New(rand.NewSource(seed))
	history := make([]submitted, 0, perRound)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < numOrders; i++ {
		if len(history) > 0 && rng.Float64() < cancelRatio {
			o := history[rng.Intn(len(history))]
			if eng.SubmitCancel(ctx, o.side, o.price, o.qty) == engine.Found {
				cancels++
			}
		} else {
			side, price, qty := randomOrder(rng)
			if err := eng.SubmitAdd(ctx, side, price, qty); err != nil {
				log.Fatal(err)
			}
			history = append(history, submitted{side, price, qty})
		}

		if (i+1)%perRound == 0 {
			if _, err := eng.Tick(ctx); err != nil {
				log.Fatal(err)
			}
			history = history[:0]
		}
	}
	if _, err := eng.Tick(ctx); err != nil {
		log.Fatal(err)
	}
	elapsed := time.Since(start)

	fmt.Println("--------")
	fmt.Printf("Total Orders     : %d\n", numOrders)
	fmt.Printf("Cancels Found    : %d\n", cancels)
	fmt.Printf("Rounds Settled   : %d\n", rounds)
	fmt.Printf("Total Trades     : %d\n", trades)
	fmt.Printf("Total Matched Qty: %d\n", totalQty)
	fmt.Printf("Time Taken       : %s\n", elapsed)
}
