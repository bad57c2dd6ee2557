package report

import (
	"context"
	"strconv"

	"github.com/joripage/batch-auction/pkg/auction"
)

// Publisher is satisfied by *kafkawrapper.Producer.
type Publisher interface {
	PublishJSON(ctx context.Context, topic string, key string, v any, headers map[string]string) error
}

// KafkaSink writes each report as JSON keyed by its round number.
type KafkaSink struct {
	producer Publisher
	topic    string
}

func NewKafkaSink(producer Publisher, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Publish(ctx context.Context, r *auction.BatchReport) error {
	return s.producer.PublishJSON(ctx, s.topic, strconv.FormatUint(r.Round, 10), r, map[string]string{
		"type": "batch",
	})
}
