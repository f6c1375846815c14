package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/checkout"
)

// EventVersion is bumped on breaking changes to the event payload.
const EventVersion = "1"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct{ w messageWriter }

func NewProducer(brokers []string) *Producer {
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{}, // partition by Kafka message key
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *Producer) Close() error { return p.w.Close() }

// Envelope is the standard event schema published on the checkout topic.
// Keep it small and stable.
type Envelope struct {
	EventType    string      `json:"eventType"`
	EventVersion string      `json:"eventVersion"`
	OccurredAt   time.Time   `json:"occurredAt"`
	AggregateID  string      `json:"aggregateId"` // checkout session id
	Data         interface{} `json:"data"`
}

// Publish writes a single message to Kafka.
// 'key' is the Kafka partition key (session id keeps per-checkout ordering).
func (p *Producer) Publish(ctx context.Context, topic, key string, evt Envelope) error {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	val, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", evt.EventType, err)
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: val,
	})
}

// Publisher forwards checkout events to Kafka. Publishing is best effort: failures are
// logged and never reach the checkout flow.
type Publisher struct {
	producer *Producer
	topic    string
	logger   *log.Logger
}

func NewPublisher(producer *Producer, topic string, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.Default()
	}
	return &Publisher{producer: producer, topic: topic, logger: logger}
}

func (p *Publisher) OnEvent(ctx context.Context, evt checkout.Event) {
	env := Envelope{
		EventType:    string(evt.Type),
		EventVersion: EventVersion,
		OccurredAt:   evt.OccurredAt,
		AggregateID:  evt.SessionID,
		Data:         evt,
	}
	if err := p.producer.Publish(ctx, p.topic, evt.SessionID, env); err != nil {
		p.logger.Printf("[Events] publish %s for session %s failed: %v", evt.Type, evt.SessionID, err)
	}
}

// DecodeEvent parses a message published by Publisher.
func DecodeEvent(value []byte) (checkout.Event, error) {
	var raw struct {
		EventType    string          `json:"eventType"`
		EventVersion string          `json:"eventVersion"`
		Data         json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(value, &raw); err != nil {
		return checkout.Event{}, fmt.Errorf("decode envelope: %w", err)
	}
	var evt checkout.Event
	if len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, &evt); err != nil {
			return checkout.Event{}, fmt.Errorf("decode %s data: %w", raw.EventType, err)
		}
	}
	if evt.Type == "" {
		evt.Type = checkout.EventType(raw.EventType)
	}
	return evt, nil
}
