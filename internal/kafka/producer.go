package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/jmehdipour/duebot/internal/model"
)

type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration // default 50ms
	WriteTimeout time.Duration // default 5s
}

// Publisher emits message lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, ev model.MessageEvent) error
	Close() error
}

// Producer is a thin wrapper around segmentio/kafka-go Writer.
type Producer struct {
	w *kafka.Writer
}

// NewPublisher returns a kafka-backed Publisher, or a no-op one when no
// brokers are configured.
func NewPublisher(c Config) Publisher {
	if len(c.Brokers) == 0 || c.Topic == "" {
		return Nop{}
	}

	bt := c.BatchTimeout
	if bt <= 0 {
		bt = 50 * time.Millisecond
	}
	wt := c.WriteTimeout
	if wt <= 0 {
		wt = 5 * time.Second
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(c.Brokers...),
		Topic:                  c.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           bt,
		WriteTimeout:           wt,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &Producer{w: w}
}

type Message = kafka.Message

// Publish writes ev keyed by tenant so a tenant's events stay ordered.
func (p *Producer) Publish(ctx context.Context, ev model.MessageEvent) error {
	m, err := encode(ev)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, m)
}

func (p *Producer) Close() error { return p.w.Close() }

func encode(ev model.MessageEvent) (Message, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Key:   []byte(strconv.FormatInt(ev.TenantID, 10)),
		Value: b,
		Time:  ev.At,
	}, nil
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, model.MessageEvent) error { return nil }
func (Nop) Close() error                                      { return nil }
