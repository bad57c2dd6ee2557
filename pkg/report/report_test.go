package report

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/joripage/batch-auction/pkg/auction"
	"github.com/joripage/batch-auction/pkg/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport(round uint64) *auction.BatchReport {
	return &auction.BatchReport{
		Round:  round,
		Price:  decimal.RequireFromString("50.5"),
		Volume: 8,
		Trades: []auction.Trade{{Price: decimal.RequireFromString("50.5"), Qty: 8}},
		At:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func sinkFailures(t *testing.T, m *metrics.Metrics, sink string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "batch_auction_report_sink_failures_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == "sink" && l.GetValue() == sink {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

type recordingSink struct {
	name string
	err  error

	mu     sync.Mutex
	rounds []uint64
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(_ context.Context, r *auction.BatchReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds = append(s.rounds, r.Round)
	return s.err
}

func (s *recordingSink) seen() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.rounds...)
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	m := metrics.New()
	good := &recordingSink{name: "good"}
	bad := &recordingSink{name: "bad", err: errors.New("broker down")}
	d := NewDispatcher(16, nil, m, bad, good)

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	for i := uint64(1); i <= 5; i++ {
		d.Handle(sampleReport(i))
	}
	cancel()
	d.Wait()

	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, good.seen())
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, bad.seen())
	assert.Equal(t, 5.0, sinkFailures(t, m, "bad"))
	assert.Equal(t, 0.0, sinkFailures(t, m, "good"))
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	m := metrics.New()
	sink := &recordingSink{name: "s"}
	d := NewDispatcher(1, nil, m, sink)

	d.Handle(sampleReport(1))
	d.Handle(sampleReport(2))
	assert.Equal(t, 1.0, sinkFailures(t, m, "dispatch"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Start(ctx)
	d.Wait()
	assert.Equal(t, []uint64{1}, sink.seen())
}

type fakePublisher struct {
	topic, key string
	value      any
	headers    map[string]string
}

func (p *fakePublisher) PublishJSON(_ context.Context, topic, key string, v any, headers map[string]string) error {
	p.topic, p.key, p.value, p.headers = topic, key, v, headers
	return nil
}

func TestKafkaSink(t *testing.T) {
	p := &fakePublisher{}
	s := NewKafkaSink(p, "batch-reports")
	require.NoError(t, s.Publish(context.Background(), sampleReport(12)))

	assert.Equal(t, "kafka", s.Name())
	assert.Equal(t, "batch-reports", p.topic)
	assert.Equal(t, "12", p.key)
	assert.Equal(t, "batch", p.headers["type"])
	assert.EqualValues(t, 12, p.value.(*auction.BatchReport).Round)
}

type fakeRedis struct {
	published map[string][]byte
	set       map[string]any
	setErr    error
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.published[channel] = message.([]byte)
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.set[key] = value
	return redis.NewStatusResult("OK", nil)
}

func TestRedisSink(t *testing.T) {
	client := &fakeRedis{published: map[string][]byte{}, set: map[string]any{}}
	s := NewRedisSink(client, "auction:batches", "auction:last_price")
	require.NoError(t, s.Publish(context.Background(), sampleReport(3)))

	var got auction.BatchReport
	require.NoError(t, json.Unmarshal(client.published["auction:batches"], &got))
	assert.EqualValues(t, 3, got.Round)
	assert.Equal(t, "50.5", client.set["auction:last_price"])

	client.setErr = errors.New("READONLY")
	assert.Error(t, s.Publish(context.Background(), sampleReport(4)))
}
