package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/jmehdipour/duebot/internal/model"
)

type ConsumerConfig struct {
	Brokers        []string
	Topic          string
	GroupID        string
	MinBytes       int           // default 1KB
	MaxBytes       int           // default 10MB
	CommitInterval time.Duration // 0 = commit synchronously on Commit
	MaxWait        time.Duration // default 500ms
}

// Consumer is a thin wrapper around segmentio/kafka-go Reader.
type Consumer struct {
	r *kafka.Reader
}

func NewConsumer(c ConsumerConfig) *Consumer {
	minB := c.MinBytes
	if minB <= 0 {
		minB = 1 << 10 // 1KB
	}
	maxB := c.MaxBytes
	if maxB <= 0 {
		maxB = 10 << 20 // 10MB
	}
	mw := c.MaxWait
	if mw <= 0 {
		mw = 500 * time.Millisecond
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        c.Brokers,
		GroupID:        c.GroupID,
		Topic:          c.Topic,
		MinBytes:       minB,
		MaxBytes:       maxB,
		CommitInterval: c.CommitInterval,
		MaxWait:        mw,
	})

	return &Consumer{r: r}
}

func (c *Consumer) Fetch(ctx context.Context) (Message, error) {
	return c.r.FetchMessage(ctx)
}

// Commit marks msgs as processed for the consumer group.
func (c *Consumer) Commit(ctx context.Context, msgs ...Message) error {
	return c.r.CommitMessages(ctx, msgs...)
}

func (c *Consumer) Close() error { return c.r.Close() }

var errEmptyEvent = errors.New("event without id")

// Decode is the inverse of the producer's encoding.
func Decode(m Message) (model.MessageEvent, error) {
	var ev model.MessageEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		return model.MessageEvent{}, err
	}
	if ev.ID == "" {
		return model.MessageEvent{}, errEmptyEvent
	}
	return ev, nil
}
