// Package notify publishes the outcome of each pipeline run.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"ai-course-pipeline/config"
)

// Event is the message published once per run.
type Event struct {
	RunID     string    `json:"run_id"`
	Date      string    `json:"date"`
	Topic     string    `json:"topic"`
	Status    string    `json:"status"`
	RemoteID  string    `json:"remote_id,omitempty"`
	ShortID   string    `json:"short_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	Attempts  int       `json:"attempts"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers run events. Implementations must be safe to call once
// per run from a single goroutine.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop drops every event. Used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error { return nil }

// KafkaPublisher writes events as JSON to a Kafka topic, keyed by date so all
// attempts for one day land on the same partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   zerolog.Logger
}

// New returns a KafkaPublisher when brokers are configured, otherwise Nop.
func New(cfg config.NotifyConfig, logger zerolog.Logger) (Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return Nop{}, nil
	}
	sc := sarama.NewConfig()
	sc.Version = sarama.V3_6_0_0
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewKafkaPublisher(producer, cfg.Topic, logger), nil
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string, logger zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
		logger:   logger.With().Str("stage", "notify").Logger(),
	}
}

func (k *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	partition, offset, err := k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(ev.Date),
		Value: sarama.ByteEncoder(body),
	})
	if err != nil {
		return fmt.Errorf("publish run event: %w", err)
	}
	k.logger.Debug().
		Str("topic", k.topic).
		Int32("partition", partition).
		Int64("offset", offset).
		Str("status", ev.Status).
		Msg("run event published")
	return nil
}

func (k *KafkaPublisher) Close() error {
	return k.producer.Close()
}
