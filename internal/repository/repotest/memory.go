// Package repotest provides in-memory repositories for tests.
package repotest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jmehdipour/duebot/internal/model"
	"github.com/jmehdipour/duebot/internal/repository"
)

// ErrUnavailable is returned by stores configured to fail.
var ErrUnavailable = errors.New("store unavailable")

func civil(t time.Time) string { return t.Format(repository.DateLayout) }

// Messages is an in-memory message_queue.
type Messages struct {
	mu   sync.Mutex
	rows map[string]*model.QueuedMessage // by id
	keys map[string]string               // idempotency key -> id
}

func NewMessages() *Messages {
	return &Messages{rows: map[string]*model.QueuedMessage{}, keys: map[string]string{}}
}

var _ repository.MessagesRepository = (*Messages)(nil)

func (m *Messages) InsertPending(_ context.Context, _ *sqlx.Tx, msg model.QueuedMessage) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[msg.IdempotencyKey]; ok {
		return false, nil
	}
	msg.Status = model.StatusPending
	m.rows[msg.ID] = &msg
	m.keys[msg.IdempotencyKey] = msg.ID
	return true, nil
}

func (m *Messages) list(match func(*model.QueuedMessage) bool) []model.QueuedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.QueuedMessage
	for _, r := range m.rows {
		if match(r) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Messages) ListPending(_ context.Context, tenantID int64, asOf time.Time) ([]model.QueuedMessage, error) {
	return m.list(func(r *model.QueuedMessage) bool {
		return r.TenantID == tenantID && r.Status == model.StatusPending && civil(r.ScheduledDate) <= civil(asOf)
	}), nil
}

func (m *Messages) ListAllPending(_ context.Context, asOf time.Time) ([]model.QueuedMessage, error) {
	return m.list(func(r *model.QueuedMessage) bool {
		return r.Status == model.StatusPending && civil(r.ScheduledDate) <= civil(asOf)
	}), nil
}

func (m *Messages) MarkSent(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.Status != model.StatusPending {
		return false, nil
	}
	r.Status = model.StatusSent
	r.SentAt = &at
	r.ErrorNote = nil
	return true, nil
}

func (m *Messages) MarkError(_ context.Context, id string, note string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.Status != model.StatusPending {
		return false, nil
	}
	r.Status = model.StatusError
	r.ErrorNote = &note
	return true, nil
}

func (m *Messages) ListByTenant(_ context.Context, tenantID int64, status model.MessageStatus, _, _ int) ([]model.QueuedMessage, error) {
	return m.list(func(r *model.QueuedMessage) bool {
		return r.TenantID == tenantID && (status == "" || r.Status == status)
	}), nil
}

// All returns every stored message ordered by id.
func (m *Messages) All() []model.QueuedMessage {
	return m.list(func(*model.QueuedMessage) bool { return true })
}

// Get returns a copy of the stored message.
func (m *Messages) Get(id string) (model.QueuedMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return model.QueuedMessage{}, false
	}
	return *r, true
}

// Templates is an in-memory templates table.
type Templates struct {
	mu   sync.Mutex
	rows []model.Template
}

var _ repository.TemplatesRepository = (*Templates)(nil)

func NewTemplates(rows ...model.Template) *Templates {
	return &Templates{rows: rows}
}

func (t *Templates) LatestActive(_ context.Context, tenantID int64, kind string) (model.Template, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var best *model.Template
	for i := range t.rows {
		r := &t.rows[i]
		if r.TenantID == tenantID && r.Kind == kind && r.Active && (best == nil || r.ID > best.ID) {
			best = r
		}
	}
	if best == nil {
		return model.Template{}, repository.ErrNotFound
	}
	return *best, nil
}

func (t *Templates) GetByID(_ context.Context, id int64) (model.Template, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return model.Template{}, repository.ErrNotFound
}

func (t *Templates) Insert(_ context.Context, _ *sqlx.Tx, tpl model.Template) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tpl.ID = int64(len(t.rows) + 1)
	t.rows = append(t.rows, tpl)
	return tpl.ID, nil
}

// Clients is an in-memory clients table.
type Clients struct {
	mu   sync.Mutex
	rows []model.Client
	Err  error // returned by every read when set
}

var _ repository.ClientsRepository = (*Clients)(nil)

func NewClients(rows ...model.Client) *Clients {
	return &Clients{rows: rows}
}

func (c *Clients) FindOverdueByOneDay(_ context.Context, tenantID int64, today time.Time) ([]model.Client, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	want := civil(today.AddDate(0, 0, -1))
	var out []model.Client
	for _, r := range c.rows {
		if r.TenantID == tenantID && r.Active && r.BillingOptIn && civil(r.DueDate) == want {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *Clients) ListActive(_ context.Context, tenantID int64) ([]model.Client, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.Client
	for _, r := range c.rows {
		if r.TenantID == tenantID && r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *Clients) Upsert(_ context.Context, _ *sqlx.Tx, cl model.Client) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = append(c.rows, cl)
	return nil
}

// Settings is an in-memory tenant_settings table.
type Settings struct {
	mu   sync.Mutex
	rows map[int64]model.TenantSchedule
	Err  error // returned by every call when set
}

var _ repository.SettingsRepository = (*Settings)(nil)

func NewSettings(rows ...model.TenantSchedule) *Settings {
	s := &Settings{rows: map[int64]model.TenantSchedule{}}
	for _, r := range rows {
		s.rows[r.TenantID] = r
	}
	return s
}

func (s *Settings) TenantsWithCustomSchedule(context.Context) ([]int64, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, r := range s.rows {
		if r.CheckTime != nil || r.SendTime != nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Settings) GetSchedule(_ context.Context, tenantID int64) (model.TenantSchedule, error) {
	if s.Err != nil {
		return model.TenantSchedule{}, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[tenantID]
	if !ok {
		return model.TenantSchedule{TenantID: tenantID}, nil
	}
	return r, nil
}

func (s *Settings) UpsertSchedule(_ context.Context, _ *sqlx.Tx, sch model.TenantSchedule) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[sch.TenantID] = sch
	return nil
}

// Tenants is an in-memory tenants table.
type Tenants struct {
	mu   sync.Mutex
	rows []model.Tenant
	Err  error
}

var _ repository.TenantsRepository = (*Tenants)(nil)

func NewTenants(rows ...model.Tenant) *Tenants {
	return &Tenants{rows: rows}
}

func (t *Tenants) ListDigestTargets(context.Context) ([]model.Tenant, error) {
	if t.Err != nil {
		return nil, t.Err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []model.Tenant
	for _, r := range t.rows {
		if r.ReceivesDigest() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *Tenants) Upsert(_ context.Context, _ *sqlx.Tx, tn model.Tenant) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = append(t.rows, tn)
	return nil
}

// Add appends templates.
func (t *Templates) Add(rows ...model.Template) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = append(t.rows, rows...)
}

// Add appends clients.
func (c *Clients) Add(rows ...model.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = append(c.rows, rows...)
}

// Put stores schedules, replacing any previous one of the same tenant.
func (s *Settings) Put(rows ...model.TenantSchedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.rows[r.TenantID] = r
	}
}

// Add appends tenants.
func (t *Tenants) Add(rows ...model.Tenant) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = append(t.rows, rows...)
}
