package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaConfig contains Kafka sink configuration.
type KafkaConfig struct {
	Brokers []string `hcl:"brokers"`
	Topic   string   `hcl:"topic,optional"` // default: "kbsolrutil.reports"
}

// KafkaSink publishes reports as JSON records keyed by core name.
type KafkaSink struct {
	client *kgo.Client
	topic  string
	logger hclog.Logger
}

// NewKafkaSink creates a producer for the report topic.
func NewKafkaSink(cfg KafkaConfig, logger hclog.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = "kbsolrutil.reports"
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RetryBackoffFn(func(tries int) time.Duration {
			backoff := time.Duration(tries) * 100 * time.Millisecond
			if backoff > 5*time.Second {
				backoff = 5 * time.Second
			}
			return backoff
		}),
		kgo.RequestRetries(5),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &KafkaSink{
		client: client,
		topic:  cfg.Topic,
		logger: logger.Named("report-kafka"),
	}, nil
}

// Publish implements Sink. The reference has the form topic/partition/offset.
func (k *KafkaSink) Publish(ctx context.Context, r *Report) (string, error) {
	value, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(r.Core),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "kind", Value: []byte(r.Kind)},
			{Key: "status", Value: []byte(r.Status)},
		},
	}
	results := k.client.ProduceSync(ctx, record)
	if err := results.FirstErr(); err != nil {
		return "", fmt.Errorf("failed to produce report: %w", err)
	}

	rec := results[0].Record
	ref := fmt.Sprintf("%s/%d/%d", rec.Topic, rec.Partition, rec.Offset)
	k.logger.Debug("published report", "ref", ref, "kind", r.Kind, "core", r.Core)
	return ref, nil
}

// Close flushes and closes the producer.
func (k *KafkaSink) Close() {
	k.client.Close()
}
