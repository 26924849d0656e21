package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jmehdipour/duebot/internal/dispatcher"
	"github.com/jmehdipour/duebot/internal/model"
	"github.com/jmehdipour/duebot/internal/repository/repotest"
	"github.com/jmehdipour/duebot/internal/service/queue"
	"github.com/jmehdipour/duebot/internal/worker"
)

type fakeEntry struct {
	spec string
	job  cron.Job
}

type fakeEngine struct {
	mu      sync.Mutex
	nextID  cron.EntryID
	entries map[cron.EntryID]fakeEntry
	running bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{entries: map[cron.EntryID]fakeEntry{}}
}

func (f *fakeEngine) Add(spec string, job cron.Job) (cron.EntryID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.entries[f.nextID] = fakeEntry{spec: spec, job: job}
	return f.nextID, nil
}

func (f *fakeEngine) Remove(id cron.EntryID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, id)
}

func (f *fakeEngine) Next(cron.EntryID) time.Time { return time.Time{} }

func (f *fakeEngine) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
}

func (f *fakeEngine) Stop() context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

func (f *fakeEngine) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeEngine) specs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.entries {
		out = append(out, e.spec)
	}
	return out
}

// fire runs every job registered at spec, as the engine would at that minute.
func (f *fakeEngine) fire(spec string) int {
	f.mu.Lock()
	var jobs []cron.Job
	for _, e := range f.entries {
		if e.spec == spec {
			jobs = append(jobs, e.job)
		}
	}
	f.mu.Unlock()
	for _, j := range jobs {
		j.Run()
	}
	return len(jobs)
}

type sentNotice struct {
	chatID int64
	text   string
}

type fakeNotifier struct {
	mu     sync.Mutex
	sent   []sentNotice
	failOn map[int64]bool
}

func (n *fakeNotifier) Notify(_ context.Context, chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failOn[chatID] {
		return errors.New("telegram down")
	}
	n.sent = append(n.sent, sentNotice{chatID: chatID, text: text})
	return nil
}

type fakeBridge struct {
	mu   sync.Mutex
	sent []dispatcher.Outbound
	res  dispatcher.SendResult
	err  error
}

func (b *fakeBridge) Send(_ context.Context, out dispatcher.Outbound) (dispatcher.SendResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, out)
	return b.res, b.err
}

type memLocker struct {
	mu    sync.Mutex
	taken map[string]bool
}

func (l *memLocker) Acquire(_ context.Context, kind string, tenantID int64, day time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := fmt.Sprintf("%s:%d:%s", kind, tenantID, day.Format("2006-01-02"))
	if l.taken[k] {
		return false, nil
	}
	l.taken[k] = true
	return true, nil
}

type harness struct {
	s         *Scheduler
	engine    *fakeEngine
	settings  *repotest.Settings
	clients   *repotest.Clients
	tenants   *repotest.Tenants
	messages  *repotest.Messages
	templates *repotest.Templates
	bridge    *fakeBridge
	notifier  *fakeNotifier
}

// today is 2024-01-11 08:00 in São Paulo.
func fixedNow(t *testing.T) (time.Time, *time.Location) {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Fatal(err)
	}
	return time.Date(2024, 1, 11, 8, 0, 0, 0, loc), loc
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	now, loc := fixedNow(t)

	h := &harness{
		engine:    newFakeEngine(),
		settings:  repotest.NewSettings(),
		clients:   repotest.NewClients(),
		tenants:   repotest.NewTenants(),
		messages:  repotest.NewMessages(),
		templates: repotest.NewTemplates(),
		bridge:    &fakeBridge{res: dispatcher.SendResult{Success: true}},
		notifier:  &fakeNotifier{failOn: map[int64]bool{}},
	}

	log := zap.NewNop()
	q := queue.New(h.messages, h.templates, nil, log, loc)
	q.SetClock(func() time.Time { return now })
	sender := worker.NewSender(h.templates, h.bridge, q, log, 2, "user_", "cobranca")

	h.s = New(Deps{
		Settings: h.settings,
		Clients:  h.clients,
		Tenants:  h.tenants,
		Queue:    q,
		Sender:   sender,
		Notifier: h.notifier,
		Engine:   h.engine,
		Log:      log,
	}, Options{Location: loc, DefaultCheck: "09:00", DefaultSend: "09:05", TemplateKind: "cobranca"})
	h.s.SetClock(func() time.Time { return now })
	return h
}

func civilDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func client(id, tenant int64, name string, due time.Time) model.Client {
	return model.Client{
		ID:           id,
		TenantID:     tenant,
		Name:         name,
		Phone:        fmt.Sprintf("5511987654%03d", id),
		Value:        decimal.RequireFromString("35"),
		DueDate:      due,
		Active:       true,
		BillingOptIn: true,
	}
}

func strptr(s string) *string { return &s }
