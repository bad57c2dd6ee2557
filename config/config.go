package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"github.com/joripage/batch-auction/pkg/auction"
	"github.com/joripage/batch-auction/pkg/engine"
	postgres_wrapper "github.com/joripage/batch-auction/pkg/infra/postgres"
	redis_wrapper "github.com/joripage/batch-auction/pkg/infra/redis"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const maxPriceScale = 8

type AppConfig struct {
	ServiceName string `yaml:"service_name"`
	LogLevel    string `yaml:"log_level"`

	Auction  AuctionConfig                    `yaml:"auction"`
	Gateway  GatewayConfig                    `yaml:"gateway"`
	Fix      FixConfig                        `yaml:"fix"`
	Feed     FeedConfig                       `yaml:"feed"`
	Kafka    KafkaConfig                      `yaml:"kafka"`
	Redis    *redis_wrapper.RedisConfig       `yaml:"redis"`
	ReportDB *postgres_wrapper.PostgresConfig `yaml:"report_db"`
}

type AuctionConfig struct {
	Interval   time.Duration    `yaml:"interval"`
	PriceScale int32            `yaml:"price_scale"`
	TieBreak   auction.TieBreak `yaml:"tie_break"`
	// Risk holds optional pre-trade checks; all are off by default.
	Risk engine.RiskConfig `yaml:"risk"`
}

type GatewayConfig struct {
	ListenAddr   string `yaml:"listen_addr"`
	MaxLineBytes int    `yaml:"max_line_bytes"`
	Shards       int    `yaml:"shards"`
	QueueSize    int    `yaml:"queue_size"`
	OutboxSize   int    `yaml:"outbox_size"`
}

type FixConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ConfigFile string `yaml:"config_file"`
}

type FeedConfig struct {
	Enabled        bool     `yaml:"enabled"`
	ListenAddr     string   `yaml:"listen_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	GroupID  string   `yaml:"group_id"`
	DLQTopic string   `yaml:"dlq_topic"`
	Workers  int      `yaml:"workers"`
}

// Enabled reports whether batch reports go to Kafka.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

// Load load config from file and environment variables. A .env file next to
// the working directory is loaded first so the YAML can reference its values.
func Load(filePath string) (*AppConfig, error) {
	_ = godotenv.Load()

	if len(filePath) == 0 {
		filePath = os.Getenv("CONFIG_FILE")
	}

	sugar := zap.S().With("func", "config.Load", "filePath", filePath)
	sugar.Debug("Load config...")

	configBytes, err := os.ReadFile(filePath)
	if err != nil {
		sugar.Error("Failed to load config file")
		return nil, err
	}

	cfg, err := Parse(configBytes)
	if err != nil {
		sugar.Errorf("Failed to parse config file: %v", err)
		return nil, err
	}

	zap.S().Debugf("config: %+v", cfg)
	return cfg, nil
}

// Parse expands environment variables in raw, decodes it and applies defaults.
func Parse(raw []byte) (*AppConfig, error) {
	raw = []byte(os.ExpandEnv(string(raw)))

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, err
	}
	// keys set to an unset ${VAR} decode as empty
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Auction.TieBreak == "" {
		cfg.Auction.TieBreak = auction.TieBreakMidpoint
	}
	cfg.Kafka.Brokers = slices.DeleteFunc(cfg.Kafka.Brokers, func(b string) bool { return b == "" })
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default is the configuration used for keys the file leaves out.
func Default() *AppConfig {
	return &AppConfig{
		ServiceName: "batch-auction",
		LogLevel:    "info",
		Auction: AuctionConfig{
			Interval:   100 * time.Millisecond,
			PriceScale: 2,
			TieBreak:   auction.TieBreakMidpoint,
		},
		Gateway: GatewayConfig{
			ListenAddr:   "0.0.0.0:7777",
			MaxLineBytes: 1024,
			Shards:       8,
			QueueSize:    1024,
			OutboxSize:   1024,
		},
		Fix: FixConfig{
			ConfigFile: "./config/fixgateway.cfg",
		},
		Feed: FeedConfig{
			ListenAddr: "0.0.0.0:8080",
		},
		Kafka: KafkaConfig{
			Topic:   "batch-reports",
			GroupID: "batch-report-worker",
			Workers: 2,
		},
	}
}

func (c *AppConfig) Validate() error {
	var errs []error
	if c.Auction.Interval <= 0 {
		errs = append(errs, errors.New("auction.interval must be positive"))
	}
	if c.Auction.PriceScale < 0 || c.Auction.PriceScale > maxPriceScale {
		errs = append(errs, fmt.Errorf("auction.price_scale must be within [0, %d]", maxPriceScale))
	}
	if _, err := auction.ParseTieBreak(string(c.Auction.TieBreak)); err != nil {
		errs = append(errs, err)
	}
	if c.Gateway.ListenAddr == "" {
		errs = append(errs, errors.New("gateway.listen_addr is required"))
	}
	if c.Gateway.MaxLineBytes < 0 || c.Gateway.Shards < 0 || c.Gateway.QueueSize < 0 || c.Gateway.OutboxSize < 0 {
		errs = append(errs, errors.New("gateway sizes must not be negative"))
	}
	if c.Fix.Enabled && c.Fix.ConfigFile == "" {
		errs = append(errs, errors.New("fix.config_file is required when fix is enabled"))
	}
	if c.Feed.Enabled && c.Feed.ListenAddr == "" {
		errs = append(errs, errors.New("feed.listen_addr is required when feed is enabled"))
	}
	if c.Redis != nil && c.Redis.ConnectionURL == "" {
		errs = append(errs, errors.New("redis.connection_url is required"))
	}
	if c.ReportDB != nil && c.ReportDB.DataSource == "" {
		errs = append(errs, errors.New("report_db.data_source is required"))
	}
	return errors.Join(errs...)
}
