// Package notify announces completed rebalance cycles.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"crypto-index-lab/internal/logging"
)

// DefaultTopic receives CycleCompleted messages.
const DefaultTopic = "index.cycle.completed"

// CycleCompleted is published once a cycle reaches the confirmed state.
type CycleCompleted struct {
	CycleID          string  `json:"cycle_id"`
	IndexID          uint64  `json:"index_id"`
	Timestamp        int64   `json:"timestamp"`
	Price            float64 `json:"price"`
	Constituents     int     `json:"constituents"`
	Deployed         bool    `json:"deployed"`
	AlreadyPublished bool    `json:"already_published"`
	TxHash           string  `json:"tx_hash,omitempty"`
}

// Notifier publishes cycle events.
type Notifier interface {
	CycleCompleted(ctx context.Context, ev CycleCompleted) error
}

// Nop drops every event.
type Nop struct{}

// CycleCompleted implements Notifier.
func (Nop) CycleCompleted(context.Context, CycleCompleted) error { return nil }

// MessageWriter is the subset of *kafka.Writer used by Kafka.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaOptions for creating a Kafka notifier.
type KafkaOptions struct {
	Brokers []string
	Topic   string
	Writer  MessageWriter // overrides Brokers when set
	Logger  *zerolog.Logger
}

// Kafka publishes JSON events keyed by index id.
type Kafka struct {
	writer MessageWriter
	topic  string
	logger zerolog.Logger
}

// NewKafka creates a Kafka notifier.
func NewKafka(opts KafkaOptions) *Kafka {
	if opts.Topic == "" {
		opts.Topic = DefaultTopic
	}
	w := opts.Writer
	if w == nil {
		w = &kafka.Writer{
			Addr:                   kafka.TCP(opts.Brokers...),
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
			RequiredAcks:           kafka.RequireAll,
			MaxAttempts:            3,
			WriteBackoffMin:        100 * time.Millisecond,
			WriteBackoffMax:        time.Second,
		}
	}
	return &Kafka{
		writer: w,
		topic:  opts.Topic,
		logger: logging.OrNop(opts.Logger).With().Str("component", "notify").Logger(),
	}
}

var _ Notifier = (*Kafka)(nil)

// CycleCompleted implements Notifier.
func (k *Kafka) CycleCompleted(ctx context.Context, ev CycleCompleted) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal cycle event: %w", err)
	}

	msg := kafka.Message{
		Topic: k.topic,
		Key:   []byte(strconv.FormatUint(ev.IndexID, 10)),
		Value: data,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish cycle event for index %d: %w", ev.IndexID, err)
	}

	k.logger.Debug().
		Str("topic", k.topic).
		Uint64("index_id", ev.IndexID).
		Str("cycle_id", ev.CycleID).
		Msg("cycle event published")
	return nil
}

// Close flushes and closes the underlying writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
