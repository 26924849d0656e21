package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jmehdipour/duebot/internal/kafka"
	"github.com/jmehdipour/duebot/internal/model"
	"github.com/jmehdipour/duebot/internal/repository"
)

const retryDelay = 200 * time.Millisecond

// EventSource is the consumer-group side of the lifecycle topic.
type EventSource interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
}

// EventSink copies lifecycle events from Kafka into ClickHouse with a
// size/time based flush. Offsets are committed only after the batch is
// stored, so delivery into ClickHouse is at-least-once.
type EventSink struct {
	Source EventSource
	Store  repository.DeliverySink
	Log    *zap.Logger

	BatchSize  int           // default 500
	FlushEvery time.Duration // default 1s
}

func NewEventSink(src EventSource, store repository.DeliverySink, log *zap.Logger, batchSize int, flushEvery time.Duration) *EventSink {
	return &EventSink{
		Source:     src,
		Store:      store,
		Log:        log.Named("events"),
		BatchSize:  batchSize,
		FlushEvery: flushEvery,
	}
}

// Run blocks until ctx is cancelled, then flushes what it holds.
func (s *EventSink) Run(ctx context.Context) error {
	size := s.BatchSize
	if size <= 0 {
		size = 500
	}
	every := s.FlushEvery
	if every <= 0 {
		every = time.Second
	}

	in := make(chan kafka.Message, size)
	go s.fetch(ctx, in)

	var (
		evs  []model.MessageEvent
		msgs []kafka.Message
	)
	flush := func(ctx context.Context) {
		for len(msgs) > 0 {
			if err := s.Store.InsertBatch(ctx, evs); err != nil {
				s.Log.Error("insert events", zap.Int("count", len(evs)), zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(retryDelay):
				}
				continue
			}
			if err := s.Source.Commit(ctx, msgs...); err != nil {
				s.Log.Warn("commit offsets", zap.Error(err))
			}
			s.Log.Debug("events stored", zap.Int("events", len(evs)), zap.Int("messages", len(msgs)))
			evs, msgs = evs[:0], msgs[:0]
		}
	}

	add := func(m kafka.Message) {
		ev, err := kafka.Decode(m)
		if err != nil {
			// poison: committed with the batch, never stored
			s.Log.Warn("skip malformed event", zap.Int64("offset", m.Offset), zap.Error(err))
		} else {
			evs = append(evs, ev)
		}
		msgs = append(msgs, m)
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case m, ok := <-in:
			if !ok {
				s.drain(ctx, flush)
				return nil
			}
			add(m)
			if len(msgs) >= size {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			// fetch closes in once it observes the cancellation
			for m := range in {
				add(m)
			}
			s.drain(ctx, flush)
			return nil
		}
	}
}

// drain gives the last partial batch a bounded window after shutdown.
func (s *EventSink) drain(ctx context.Context, flush func(context.Context)) {
	final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	flush(final)
}

func (s *EventSink) fetch(ctx context.Context, out chan<- kafka.Message) {
	defer close(out)
	for {
		m, err := s.Source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.Log.Warn("kafka fetch", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
			continue
		}
		select {
		case out <- m:
		case <-ctx.Done():
			return
		}
	}
}
