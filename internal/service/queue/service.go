package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jmehdipour/duebot/internal/kafka"
	"github.com/jmehdipour/duebot/internal/metrics"
	"github.com/jmehdipour/duebot/internal/model"
	"github.com/jmehdipour/duebot/internal/repository"
	"github.com/jmehdipour/duebot/internal/util"
)

var (
	// ErrNoTemplateFound means the tenant has no active template of the kind.
	ErrNoTemplateFound = errors.New("no active template found")
	// ErrAlreadyQueued means a message for the same client, due date and kind exists.
	ErrAlreadyQueued = errors.New("message already queued")
)

// Variable keys substituted into billing templates.
const (
	VarName    = "nome"
	VarValue   = "valor"
	VarDueDate = "vencimento"
)

// Service persists outbound reminders and moves them through
// pending -> sent | error.
type Service struct {
	msgs      repository.MessagesRepository
	templates repository.TemplatesRepository
	events    kafka.Publisher
	log       *zap.Logger

	loc *time.Location
	now func() time.Time
}

// New constructs the queue service. loc decides the civil "today" used as
// scheduled date.
func New(
	messagesRepo repository.MessagesRepository,
	templatesRepo repository.TemplatesRepository,
	events kafka.Publisher,
	log *zap.Logger,
	loc *time.Location,
) *Service {
	if events == nil {
		events = kafka.Nop{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		msgs:      messagesRepo,
		templates: templatesRepo,
		events:    events,
		log:       log.Named("queue"),
		loc:       loc,
		now:       time.Now,
	}
}

// SetClock overrides the wall clock.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// IdempotencyKey identifies a reminder by (tenant, client, due date, kind).
func IdempotencyKey(tenantID, clientID int64, due time.Time, kind string) string {
	return fmt.Sprintf("%d:%d:%s:%s", tenantID, clientID, due.Format(repository.DateLayout), kind)
}

// Variables builds the placeholder values for a client reminder.
func Variables(c model.Client) model.Variables {
	return model.Variables{
		VarName:    c.Name,
		VarValue:   c.Value.StringFixed(2),
		VarDueDate: c.DueDate.Format(repository.DateLayout),
	}
}

// Enqueue resolves the tenant's latest active template of kind and stores a
// pending reminder for the client scheduled for today. Returns the new id.
func (s *Service) Enqueue(ctx context.Context, tenantID int64, c model.Client, kind string) (string, error) {
	tpl, err := s.templates.LatestActive(ctx, tenantID, kind)
	if errors.Is(err, repository.ErrNotFound) {
		metrics.MessagesTotal.WithLabelValues("skipped", kind).Inc()
		return "", fmt.Errorf("%w: tenant=%d kind=%s", ErrNoTemplateFound, tenantID, kind)
	}
	if err != nil {
		return "", fmt.Errorf("resolve template: %w", err)
	}

	now := s.now().In(s.loc)
	msg := model.QueuedMessage{
		ID:             util.NewID(now),
		TenantID:       tenantID,
		ClientID:       c.ID,
		TemplateID:     tpl.ID,
		Phone:          c.Phone,
		Variables:      Variables(c),
		ScheduledDate:  now,
		Status:         model.StatusPending,
		IdempotencyKey: IdempotencyKey(tenantID, c.ID, c.DueDate, kind),
	}

	inserted, err := s.msgs.InsertPending(ctx, nil, msg)
	if err != nil {
		return "", fmt.Errorf("insert pending: %w", err)
	}
	if !inserted {
		return "", fmt.Errorf("%w: %s", ErrAlreadyQueued, msg.IdempotencyKey)
	}

	metrics.MessagesTotal.WithLabelValues("queued", kind).Inc()
	s.publish(ctx, msg, model.StatusPending, "")

	return msg.ID, nil
}

// DrainPending lists the tenant's pending messages due on or before asOf,
// oldest first. It does not change their status.
func (s *Service) DrainPending(ctx context.Context, tenantID int64, asOf time.Time) ([]model.QueuedMessage, error) {
	return s.msgs.ListPending(ctx, tenantID, asOf.In(s.loc))
}

// DrainAllPending is DrainPending without the tenant filter.
func (s *Service) DrainAllPending(ctx context.Context, asOf time.Time) ([]model.QueuedMessage, error) {
	return s.msgs.ListAllPending(ctx, asOf.In(s.loc))
}

// MarkSent records a successful delivery. Already-terminal messages are left
// untouched.
func (s *Service) MarkSent(ctx context.Context, m model.QueuedMessage) error {
	if m.Status.Terminal() {
		s.log.Debug("mark sent skipped, message already terminal", zap.String("id", m.ID), zap.String("status", string(m.Status)))
		return nil
	}
	changed, err := s.msgs.MarkSent(ctx, m.ID, s.now())
	if err != nil {
		return fmt.Errorf("mark sent %s: %w", m.ID, err)
	}
	if !changed {
		s.log.Debug("mark sent ignored, message not pending", zap.String("id", m.ID))
		return nil
	}
	s.publish(ctx, m, model.StatusSent, "")
	return nil
}

// MarkError records a failed delivery with its reason. Already-terminal
// messages are left untouched.
func (s *Service) MarkError(ctx context.Context, m model.QueuedMessage, reason string) error {
	if m.Status.Terminal() {
		s.log.Debug("mark error skipped, message already terminal", zap.String("id", m.ID), zap.String("status", string(m.Status)))
		return nil
	}
	changed, err := s.msgs.MarkError(ctx, m.ID, reason)
	if err != nil {
		return fmt.Errorf("mark error %s: %w", m.ID, err)
	}
	if !changed {
		s.log.Debug("mark error ignored, message not pending", zap.String("id", m.ID))
		return nil
	}
	s.publish(ctx, m, model.StatusError, reason)
	return nil
}

// ListByTenant backs the admin queue listing.
func (s *Service) ListByTenant(ctx context.Context, tenantID int64, status model.MessageStatus, limit, offset int) ([]model.QueuedMessage, error) {
	return s.msgs.ListByTenant(ctx, tenantID, status, limit, offset)
}

func (s *Service) publish(ctx context.Context, m model.QueuedMessage, status model.MessageStatus, reason string) {
	ev := model.MessageEvent{
		ID:       m.ID,
		TenantID: m.TenantID,
		ClientID: m.ClientID,
		Phone:    m.Phone,
		Status:   status,
		Error:    reason,
		At:       s.now().UTC(),
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("publish message event", zap.String("id", m.ID), zap.Error(err))
	}
}
