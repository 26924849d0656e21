package worker

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/jmehdipour/duebot/internal/dispatcher"
	"github.com/jmehdipour/duebot/internal/metrics"
	"github.com/jmehdipour/duebot/internal/model"
	"github.com/jmehdipour/duebot/internal/repository"
)

// Bridge delivers one rendered message.
type Bridge interface {
	Send(ctx context.Context, out dispatcher.Outbound) (dispatcher.SendResult, error)
}

// Marker records the outcome of a delivery.
type Marker interface {
	MarkSent(ctx context.Context, m model.QueuedMessage) error
	MarkError(ctx context.Context, m model.QueuedMessage, reason string) error
}

// Sender:
// - renders each pending message from its template,
// - dispatches it through the WhatsApp bridge on a bounded set of goroutines,
// - records sent | error per message. One failure never stops the batch.
type Sender struct {
	// Dependencies
	Templates repository.TemplatesRepository
	Dispatch  Bridge
	Queue     Marker
	Log       *zap.Logger

	// Behavior
	Workers       int    // goroutines dispatching concurrently
	SessionPrefix string // bridge session id = prefix + tenant id
	Kind          string // template kind, metrics label
}

// Result summarises one batch.
type Result struct {
	Sent   int
	Failed int
}

func NewSender(
	templates repository.TemplatesRepository,
	dispatch Bridge,
	marker Marker,
	log *zap.Logger,
	workers int,
	sessionPrefix, kind string,
) *Sender {
	return &Sender{
		Templates:     templates,
		Dispatch:      dispatch,
		Queue:         marker,
		Log:           log.Named("sender"),
		Workers:       workers,
		SessionPrefix: sessionPrefix,
		Kind:          kind,
	}
}

// Process delivers msgs and blocks until every one of them has a recorded outcome.
func (w *Sender) Process(ctx context.Context, msgs []model.QueuedMessage) Result {
	if len(msgs) == 0 {
		return Result{}
	}
	workers := w.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(msgs) {
		workers = len(msgs)
	}

	tpls := w.loadTemplates(ctx, msgs)

	in := make(chan model.QueuedMessage)
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		res Result
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range in {
				ok := w.processOne(ctx, m, tpls)
				mu.Lock()
				if ok {
					res.Sent++
				} else {
					res.Failed++
				}
				mu.Unlock()
			}
		}()
	}

	for _, m := range msgs {
		in <- m
	}
	close(in)
	wg.Wait()

	w.Log.Info("batch processed",
		zap.Int("total", len(msgs)), zap.Int("sent", res.Sent), zap.Int("failed", res.Failed))
	return res
}

// loadTemplates resolves each distinct template once per batch. Missing
// templates are absent from the map.
func (w *Sender) loadTemplates(ctx context.Context, msgs []model.QueuedMessage) map[int64]model.Template {
	out := make(map[int64]model.Template)
	for _, m := range msgs {
		if _, seen := out[m.TemplateID]; seen {
			continue
		}
		t, err := w.Templates.GetByID(ctx, m.TemplateID)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				w.Log.Warn("load template", zap.Int64("template_id", m.TemplateID), zap.Error(err))
			}
			continue
		}
		out[m.TemplateID] = t
	}
	return out
}

func (w *Sender) processOne(ctx context.Context, m model.QueuedMessage, tpls map[int64]model.Template) bool {
	log := w.Log.With(zap.String("id", m.ID), zap.Int64("tenant_id", m.TenantID))

	tpl, ok := tpls[m.TemplateID]
	if !ok {
		w.fail(ctx, log, m, "template not found")
		return false
	}

	out := dispatcher.Outbound{
		Phone:     m.Phone,
		Text:      Render(tpl.Content, m.Variables),
		SessionID: w.SessionPrefix + strconv.FormatInt(m.TenantID, 10),
	}

	res, err := w.Dispatch.Send(ctx, out)
	if err != nil {
		w.fail(ctx, log, m, err.Error())
		return false
	}
	if !res.Success {
		w.fail(ctx, log, m, res.Error)
		return false
	}

	metrics.MessagesTotal.WithLabelValues("sent", w.Kind).Inc()
	if err := w.Queue.MarkSent(ctx, m); err != nil {
		log.Error("mark sent", zap.Error(err))
	}
	return true
}

func (w *Sender) fail(ctx context.Context, log *zap.Logger, m model.QueuedMessage, reason string) {
	metrics.MessagesTotal.WithLabelValues("error", w.Kind).Inc()
	log.Warn("delivery failed", zap.String("reason", reason))
	if err := w.Queue.MarkError(ctx, m, reason); err != nil {
		log.Error("mark error", zap.Error(err))
	}
}
