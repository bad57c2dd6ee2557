package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joripage/batch-auction/config"
	"github.com/joripage/batch-auction/pkg/auction"
	redis_wrapper "github.com/joripage/batch-auction/pkg/infra/redis"
	"github.com/redis/go-redis/v9"
)

// reportwatch tails the batch reports the engine publishes to Redis.
func main() {
	var configFile string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Redis == nil || cfg.Redis.Channel == "" {
		log.Fatal("redis.channel is not configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redis_wrapper.InitRedisWithBackoff(ctx, cfg.Redis, 30*time.Second)
	if err != nil {
		log.Fatal(err)
	}
	defer rdb.Close() // nolint

	if cfg.Redis.LastPriceKey != "" {
		last, err := rdb.Get(ctx, cfg.Redis.LastPriceKey).Result()
		switch {
		case errors.Is(err, redis.Nil):
			fmt.Println("no round settled yet")
		case err != nil:
			log.Fatal(err)
		default:
			fmt.Printf("last clearing price: %s\n", last)
		}
	}

	sub := rdb.Subscribe(ctx, cfg.Redis.Channel)
	defer sub.Close() // nolint
	if _, err := sub.Receive(ctx); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("watching %s\n", cfg.Redis.Channel)

	var (
		rounds   int
		totalQty int64
	)
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			fmt.Printf("rounds=%d matched_qty=%d\n", rounds, totalQty)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var r auction.BatchReport
			if err := json.Unmarshal([]byte(msg.Payload), &r); err != nil {
				log.Printf("bad payload: %v", err)
				continue
			}
			rounds++
			totalQty += r.Volume
			fmt.Printf("%s round=%d %s trades=%d\n", r.At.Format(time.RFC3339Nano), r.Round, r.String(), len(r.Trades))
		}
	}
}
