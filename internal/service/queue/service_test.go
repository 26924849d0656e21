package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jmehdipour/duebot/internal/model"
	"github.com/jmehdipour/duebot/internal/repository/repotest"
)

type recorder struct {
	mu     sync.Mutex
	events []model.MessageEvent
}

func (r *recorder) Publish(_ context.Context, ev model.MessageEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) Close() error { return nil }

var today = time.Date(2024, 1, 11, 8, 0, 0, 0, time.UTC)

func newService(t *testing.T, tpls ...model.Template) (*Service, *repotest.Messages, *recorder) {
	t.Helper()
	msgs := repotest.NewMessages()
	rec := &recorder{}
	s := New(msgs, repotest.NewTemplates(tpls...), rec, zap.NewNop(), time.UTC)
	s.SetClock(func() time.Time { return today })
	return s, msgs, rec
}

func ana() model.Client {
	return model.Client{
		ID:           7,
		TenantID:     42,
		Name:         "Ana",
		Phone:        "5511987654321",
		Value:        decimal.RequireFromString("35"),
		DueDate:      time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		Active:       true,
		BillingOptIn: true,
	}
}

func TestEnqueue(t *testing.T) {
	s, msgs, rec := newService(t,
		model.Template{ID: 1, TenantID: 42, Kind: "cobranca", Active: true},
		model.Template{ID: 5, TenantID: 42, Kind: "cobranca", Active: true},
		model.Template{ID: 9, TenantID: 42, Kind: "cobranca", Active: false},
	)

	id, err := s.Enqueue(context.Background(), 42, ana(), "cobranca")
	require.NoError(t, err)

	got, ok := msgs.Get(id)
	require.True(t, ok)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, int64(5), got.TemplateID, "latest active template wins")
	assert.Equal(t, model.Variables{"nome": "Ana", "valor": "35.00", "vencimento": "2024-01-10"}, got.Variables)
	assert.Equal(t, "2024-01-11", got.ScheduledDate.Format("2006-01-02"))
	assert.Equal(t, "42:7:2024-01-10:cobranca", got.IdempotencyKey)

	require.Len(t, rec.events, 1)
	assert.Equal(t, model.StatusPending, rec.events[0].Status)
}

func TestEnqueue_NoTemplate(t *testing.T) {
	s, msgs, _ := newService(t, model.Template{ID: 1, TenantID: 99, Kind: "cobranca", Active: true})

	_, err := s.Enqueue(context.Background(), 42, ana(), "cobranca")
	assert.ErrorIs(t, err, ErrNoTemplateFound)
	assert.Empty(t, msgs.All())
}

func TestEnqueue_AlreadyQueued(t *testing.T) {
	s, msgs, _ := newService(t, model.Template{ID: 1, TenantID: 42, Kind: "cobranca", Active: true})

	_, err := s.Enqueue(context.Background(), 42, ana(), "cobranca")
	require.NoError(t, err)

	_, err = s.Enqueue(context.Background(), 42, ana(), "cobranca")
	assert.ErrorIs(t, err, ErrAlreadyQueued)
	assert.Len(t, msgs.All(), 1)
}

func TestDrainPending_OrderAndScope(t *testing.T) {
	s, _, _ := newService(t,
		model.Template{ID: 1, TenantID: 42, Kind: "cobranca", Active: true},
		model.Template{ID: 2, TenantID: 43, Kind: "cobranca", Active: true},
	)
	ctx := context.Background()

	a := ana()
	b := ana()
	b.ID, b.Name = 8, "Bia"
	c := ana()
	c.ID, c.TenantID = 9, 43

	id1, err := s.Enqueue(ctx, 42, a, "cobranca")
	require.NoError(t, err)
	id2, err := s.Enqueue(ctx, 42, b, "cobranca")
	require.NoError(t, err)
	_, err = s.Enqueue(ctx, 43, c, "cobranca")
	require.NoError(t, err)

	pending, err := s.DrainPending(ctx, 42, today)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, []string{id1, id2}, []string{pending[0].ID, pending[1].ID})

	none, err := s.DrainPending(ctx, 42, today.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Empty(t, none, "future-scheduled rows are not drained")

	all, err := s.DrainAllPending(ctx, today)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMarkSent_Idempotent(t *testing.T) {
	s, msgs, rec := newService(t, model.Template{ID: 1, TenantID: 42, Kind: "cobranca", Active: true})
	ctx := context.Background()

	id, err := s.Enqueue(ctx, 42, ana(), "cobranca")
	require.NoError(t, err)
	m, _ := msgs.Get(id)

	require.NoError(t, s.MarkSent(ctx, m))
	require.NoError(t, s.MarkSent(ctx, m))
	require.NoError(t, s.MarkError(ctx, m, "late failure"))

	got, _ := msgs.Get(id)
	assert.Equal(t, model.StatusSent, got.Status)
	assert.Nil(t, got.ErrorNote)
	require.NotNil(t, got.SentAt)
	assert.Len(t, rec.events, 2, "pending + sent only")
}

func TestMark_SkipsTerminalSnapshot(t *testing.T) {
	s, msgs, rec := newService(t, model.Template{ID: 1, TenantID: 42, Kind: "cobranca", Active: true})
	ctx := context.Background()

	id, err := s.Enqueue(ctx, 42, ana(), "cobranca")
	require.NoError(t, err)
	m, _ := msgs.Get(id)
	m.Status = model.StatusError

	require.NoError(t, s.MarkSent(ctx, m))
	require.NoError(t, s.MarkError(ctx, m, "again"))

	got, _ := msgs.Get(id)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Nil(t, got.SentAt)
	assert.Len(t, rec.events, 1, "pending only")
}

func TestMarkError(t *testing.T) {
	s, msgs, rec := newService(t, model.Template{ID: 1, TenantID: 42, Kind: "cobranca", Active: true})
	ctx := context.Background()

	id, err := s.Enqueue(ctx, 42, ana(), "cobranca")
	require.NoError(t, err)
	m, _ := msgs.Get(id)

	require.NoError(t, s.MarkError(ctx, m, "timeout"))

	got, _ := msgs.Get(id)
	assert.Equal(t, model.StatusError, got.Status)
	require.NotNil(t, got.ErrorNote)
	assert.Equal(t, "timeout", *got.ErrorNote)
	assert.Equal(t, "timeout", rec.events[1].Error)
}
