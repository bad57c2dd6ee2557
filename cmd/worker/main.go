package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joripage/batch-auction/config"
	postgres_wrapper "github.com/joripage/batch-auction/pkg/infra/postgres"
	kafkawrapper "github.com/joripage/batch-auction/pkg/kafka_wrapper"
	"github.com/joripage/batch-auction/pkg/logging"
	"github.com/joripage/batch-auction/pkg/report/repo"
	"github.com/joripage/batch-auction/pkg/report/worker"
	"go.uber.org/zap"
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
	zap.ReplaceGlobals(logger.Zap().With(zap.String("service", cfg.ServiceName+"-worker")))

	if cfg.ReportDB == nil || !cfg.Kafka.Enabled() {
		zap.S().Fatal("worker needs report_db and kafka configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres_wrapper.InitPostgresWithBackoff(ctx, cfg.ReportDB, time.Minute)
	if err != nil {
		zap.S().Errorf("init db fail with err: %v", err)
		os.Exit(1)
	}

	consumer, err := kafkawrapper.NewConsumerGroup(kafkawrapper.ConsumerConfig{
		Brokers:     cfg.Kafka.Brokers,
		GroupID:     cfg.Kafka.GroupID,
		Topic:       cfg.Kafka.Topic,
		DLQTopic:    cfg.Kafka.DLQTopic,
		WorkerCount: cfg.Kafka.Workers,
		MaxRetries:  5,
		OnError: func(err error) {
			zap.S().Warnf("kafka consumer: %v", err)
		},
	})
	if err != nil {
		zap.S().Errorf("init consumer fail with err: %v", err)
		os.Exit(1)
	}
	defer consumer.Close() // nolint

	w := worker.NewWorker(repo.NewRepo(db), logger.Named("worker"))
	if err := w.Start(ctx, consumer); err != nil {
		logger.Error(ctx, "worker stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info(ctx, "worker exited cleanly")
}
