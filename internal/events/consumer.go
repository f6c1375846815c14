package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/segmentio/kafka-go"

	"github.com/AnthonyGillesRudolfo/Storefront-Checkout/internal/checkout"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer replays checkout events from Kafka into a listener.
type Consumer struct {
	r      messageReader
	topic  string
	group  string
	logger *log.Logger
}

func NewConsumer(brokers []string, topic, group string, logger *log.Logger) *Consumer {
	if logger == nil {
		logger = log.Default()
	}
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  group,
			MinBytes: 1e3, MaxBytes: 10e6,
		}),
		topic:  topic,
		group:  group,
		logger: logger,
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

// Run blocks until ctx is cancelled or the reader fails. Undecodable messages are skipped.
func (c *Consumer) Run(ctx context.Context, listener checkout.Listener) error {
	c.logger.Printf("[%s] consumer started (group=%s)", c.topic, c.group)
	for {
		msg, err := c.r.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("[%s] read error: %w", c.topic, err)
		}

		evt, err := DecodeEvent(msg.Value)
		if err != nil {
			c.logger.Printf("[%s] bad JSON: %v; payload=%s", c.topic, err, string(msg.Value))
			continue
		}
		listener.OnEvent(ctx, evt)
	}
}
