// Package events publishes sync domain events to Kafka.
//
// Events are informational: a failed publish is logged by the caller and
// never rolls back the database work that produced it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/config"
)

// Event types
const (
	TypeOrderSynced   = "order.synced"
	TypeStockDeducted = "stock.deducted"
)

// OrderSyncedEvent is emitted after an order is imported or updated
type OrderSyncedEvent struct {
	Type            string    `json:"type"`
	AccountID       int64     `json:"account_id"`
	OrderID         int64     `json:"order_id"`
	ExternalOrderID string    `json:"external_order_id"`
	Status          string    `json:"status"`
	Created         bool      `json:"created"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// StockDeductedEvent is emitted after an order's stock exits are committed
type StockDeductedEvent struct {
	Type          string    `json:"type"`
	AccountID     int64     `json:"account_id"`
	OrderID       int64     `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	ItemsDeducted int       `json:"items_deducted"`
	Unmatched     int       `json:"unmatched"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Batch groups the events produced by one committed transaction
type Batch struct {
	OrdersSynced  []OrderSyncedEvent
	StockDeducted []StockDeductedEvent
}

// Len is the number of events in the batch
func (b Batch) Len() int {
	return len(b.OrdersSynced) + len(b.StockDeducted)
}

// Publisher is the sink for domain events
type Publisher interface {
	// Publish sends every event of the batch in a single write
	Publish(ctx context.Context, batch Batch) error
	Close() error
}

// Writer is the subset of *kafka.Writer used by the producer
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes JSON events to a single topic
type Producer struct {
	writer Writer
	now    func() time.Time
}

// NewProducer creates a Kafka producer for the given brokers and topic.
// Messages of one Publish call go out together, so the writer only waits
// BatchTimeout for the tail of a batch.
func NewProducer(brokers []string, topic string) *Producer {
	return NewProducerWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		BatchSize:    500,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	})
}

// NewProducerWithWriter wraps an existing writer
func NewProducerWithWriter(w Writer) *Producer {
	return &Producer{writer: w, now: time.Now}
}

func accountKey(accountID int64) []byte {
	return []byte(fmt.Sprintf("account-%d", accountID))
}

func newMessage(key []byte, event any, at time.Time) (kafka.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return kafka.Message{Key: key, Value: payload, Time: at}, nil
}

func (p *Producer) Publish(ctx context.Context, batch Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	now := p.now()
	msgs := make([]kafka.Message, 0, batch.Len())

	for _, event := range batch.OrdersSynced {
		event.Type = TypeOrderSynced
		if event.OccurredAt.IsZero() {
			event.OccurredAt = now
		}
		msg, err := newMessage(accountKey(event.AccountID), event, now)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	for _, event := range batch.StockDeducted {
		event.Type = TypeStockDeducted
		if event.OccurredAt.IsZero() {
			event.OccurredAt = now
		}
		msg, err := newMessage(accountKey(event.AccountID), event, now)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write %d messages to kafka: %w", len(msgs), err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Noop discards every event
type Noop struct{}

func (Noop) Publish(context.Context, Batch) error { return nil }
func (Noop) Close() error                         { return nil }

// New returns a Kafka producer when brokers are configured and Noop otherwise
func New(cfg config.KafkaConfig) Publisher {
	if len(cfg.Brokers) == 0 {
		return Noop{}
	}
	return NewProducer(cfg.Brokers, cfg.Topic)
}
