package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joripage/batch-auction/pkg/auction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("service_name: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.ServiceName)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 100*time.Millisecond, cfg.Auction.Interval)
	assert.EqualValues(t, 2, cfg.Auction.PriceScale)
	assert.Equal(t, auction.TieBreakMidpoint, cfg.Auction.TieBreak)
	assert.Equal(t, "0.0.0.0:7777", cfg.Gateway.ListenAddr)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Nil(t, cfg.Redis)
	assert.Nil(t, cfg.ReportDB)
}

func TestParseExpandsEnv(t *testing.T) {
	t.Setenv("TEST_BROKER", "kafka-1:9092")
	t.Setenv("TEST_REDIS", "redis://cache:6379/1")

	cfg, err := Parse([]byte(`
auction:
  interval: 250ms
  price_scale: 4
  tie_break: lower
  risk:
    min_price: 0.5
    max_price: "1000"
    max_qty: 5000
kafka:
  brokers: ["${TEST_BROKER}", "${TEST_UNSET_BROKER}"]
  topic: rounds
redis:
  connection_url: ${TEST_REDIS}
  channel: auction:batches
`))
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Auction.Interval)
	assert.EqualValues(t, 4, cfg.Auction.PriceScale)
	assert.Equal(t, auction.TieBreakLower, cfg.Auction.TieBreak)
	assert.Equal(t, "0.5", cfg.Auction.Risk.MinPrice.String())
	assert.Equal(t, "1000", cfg.Auction.Risk.MaxPrice.String())
	assert.EqualValues(t, 5000, cfg.Auction.Risk.MaxQty)
	assert.Equal(t, []string{"kafka-1:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
	require.NotNil(t, cfg.Redis)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.ConnectionURL)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"zero interval":      "auction:\n  interval: 0s\n",
		"negative interval":  "auction:\n  interval: -1s\n",
		"scale too large":    "auction:\n  price_scale: 9\n",
		"unknown tie break":  "auction:\n  tie_break: upper\n",
		"fix without file":   "fix:\n  enabled: true\n  config_file: \"\"\n",
		"redis without url":  "redis:\n  pool_size: 3\n",
		"db without dsn":     "report_db:\n  max_open_conns: 3\n",
		"not yaml":           "auction: [",
		"bad duration":       "auction:\n  interval: soon\n",
		"negative line size": "gateway:\n  max_line_bytes: -1\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromEnvFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte("service_name: from-file\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.ServiceName)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSampleConfig(t *testing.T) {
	t.Setenv("KAFKA_BROKER", "localhost:9092")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("REPORT_DB_DSN", "host=localhost dbname=auction")

	cfg, err := Load("config.yaml")
	require.NoError(t, err)
	assert.True(t, cfg.Feed.Enabled)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, "auction:last_price", cfg.Redis.LastPriceKey)
}
