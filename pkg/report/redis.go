package report

import (
	"context"
	"encoding/json"
	"time"

	"github.com/joripage/batch-auction/pkg/auction"
	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of redis.Cmdable the sink uses.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisSink publishes each report on a channel and keeps the last clearing
// price under a plain key.
type RedisSink struct {
	client       RedisClient
	channel      string
	lastPriceKey string
}

func NewRedisSink(client RedisClient, channel, lastPriceKey string) *RedisSink {
	return &RedisSink{client: client, channel: channel, lastPriceKey: lastPriceKey}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Publish(ctx context.Context, r *auction.BatchReport) error {
	if s.channel != "" {
		payload, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
			return err
		}
	}
	if s.lastPriceKey != "" {
		return s.client.Set(ctx, s.lastPriceKey, r.Price.String(), 0).Err()
	}
	return nil
}
