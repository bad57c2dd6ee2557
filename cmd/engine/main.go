package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joripage/batch-auction/config"
	"github.com/joripage/batch-auction/pkg/engine"
	"github.com/joripage/batch-auction/pkg/feed"
	"github.com/joripage/batch-auction/pkg/fixgateway"
	"github.com/joripage/batch-auction/pkg/gateway"
	redis_wrapper "github.com/joripage/batch-auction/pkg/infra/redis"
	kafkawrapper "github.com/joripage/batch-auction/pkg/kafka_wrapper"
	"github.com/joripage/batch-auction/pkg/logging"
	"github.com/joripage/batch-auction/pkg/metrics"
	"github.com/joripage/batch-auction/pkg/report"
	kafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		zap.S().Fatalf("load config: %v", err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		zap.S().Fatalf("parse log level: %v", err)
	}
	logger := logging.NewLogger(level)
	defer logger.Sync() // nolint
	zap.ReplaceGlobals(logger.Zap().With(zap.String("service", cfg.ServiceName)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(ctx, "engine stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info(ctx, "exited cleanly")
}

func run(ctx context.Context, cfg *config.AppConfig, logger *logging.Logger) error {
	m := metrics.New()

	eng, err := engine.New(engine.Config{
		PriceScale: cfg.Auction.PriceScale,
		Interval:   cfg.Auction.Interval,
		TieBreak:   cfg.Auction.TieBreak,
		Risk:       cfg.Auction.Risk,
	}, logger.Named("engine"), m)
	if err != nil {
		return err
	}

	gw := gateway.NewServer(gateway.Config{
		ListenAddr:   cfg.Gateway.ListenAddr,
		MaxLineBytes: cfg.Gateway.MaxLineBytes,
		Shards:       cfg.Gateway.Shards,
		QueueSize:    cfg.Gateway.QueueSize,
		OutboxSize:   cfg.Gateway.OutboxSize,
	}, eng, logger.Named("gateway"), m)
	if err := gw.Listen(); err != nil {
		return err
	}
	eng.RegisterReportCallback(gw.Broadcast)

	sinks, closeSinks, err := buildSinks(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSinks()
	dispatcher := report.NewDispatcher(0, logger.Named("report"), m, sinks...)
	eng.RegisterReportCallback(dispatcher.Handle)

	var feedServer *feed.Server
	if cfg.Feed.Enabled {
		feedServer = feed.NewServer(feed.Config{
			ListenAddr:     cfg.Feed.ListenAddr,
			AllowedOrigins: cfg.Feed.AllowedOrigins,
		}, eng, m.Handler(), logger.Named("feed"))
		eng.RegisterReportCallback(feedServer.Publish)
	}

	if cfg.Fix.Enabled {
		fixGateway := fixgateway.NewFixGateway(&fixgateway.FixGatewayConfig{
			ConfigFilepath: cfg.Fix.ConfigFile,
		}, eng, logger.Named("fix"))
		if err := fixGateway.Start(ctx); err != nil {
			return err
		}
		defer fixGateway.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	dispatcher.Start(gctx)
	defer dispatcher.Wait()

	g.Go(func() error {
		// a halted controller ends the process; everything else follows gctx
		return eng.Run(gctx)
	})
	g.Go(func() error {
		return gw.Serve(gctx)
	})
	if feedServer != nil {
		g.Go(func() error {
			return feedServer.ListenAndServe(gctx)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// buildSinks connects the optional Kafka and Redis sinks. The returned func
// releases their clients.
func buildSinks(ctx context.Context, cfg *config.AppConfig) ([]report.Sink, func(), error) {
	var (
		sinks   []report.Sink
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Kafka.Enabled() {
		producer := kafkawrapper.NewProducer(kafkawrapper.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			RequiredAcks: kafka.RequireOne,
		})
		closers = append(closers, func() { _ = producer.Close(context.Background()) })
		sinks = append(sinks, report.NewKafkaSink(producer, cfg.Kafka.Topic))
	}

	if cfg.Redis != nil {
		client, err := redis_wrapper.InitRedisWithBackoff(ctx, cfg.Redis, 30*time.Second)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = client.Close() })
		sinks = append(sinks, report.NewRedisSink(client, cfg.Redis.Channel, cfg.Redis.LastPriceKey))
	}

	return sinks, closeAll, nil
}
