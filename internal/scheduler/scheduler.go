// Package scheduler fires the per-tenant check and send jobs and the daily
// digest.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jmehdipour/duebot/internal/lock"
	"github.com/jmehdipour/duebot/internal/metrics"
	"github.com/jmehdipour/duebot/internal/model"
	"github.com/jmehdipour/duebot/internal/notify"
	"github.com/jmehdipour/duebot/internal/repository"
	"github.com/jmehdipour/duebot/internal/service/queue"
	"github.com/jmehdipour/duebot/internal/worker"
)

var (
	fallbackCheck = ClockTime{Hour: 9, Minute: 0}
	fallbackSend  = ClockTime{Hour: 9, Minute: 5}
)

// Queue is the part of the outbound queue the scheduler drives.
type Queue interface {
	Enqueue(ctx context.Context, tenantID int64, c model.Client, kind string) (string, error)
	DrainPending(ctx context.Context, tenantID int64, asOf time.Time) ([]model.QueuedMessage, error)
	DrainAllPending(ctx context.Context, asOf time.Time) ([]model.QueuedMessage, error)
}

// Sender delivers a drained batch.
type Sender interface {
	Process(ctx context.Context, msgs []model.QueuedMessage) worker.Result
}

type Options struct {
	Location     *time.Location
	DefaultCheck string // HH:MM
	DefaultSend  string // HH:MM
	TemplateKind string
}

type Deps struct {
	Settings repository.SettingsRepository
	Clients  repository.ClientsRepository
	Tenants  repository.TenantsRepository
	Queue    Queue
	Sender   Sender
	Notifier notify.Notifier
	Locker   lock.Locker
	Engine   Engine
	Log      *zap.Logger
}

type Scheduler struct {
	settings repository.SettingsRepository
	clients  repository.ClientsRepository
	tenants  repository.TenantsRepository
	queue    Queue
	sender   Sender
	notifier notify.Notifier
	locker   lock.Locker
	engine   Engine
	registry *Registry
	log      *zap.Logger

	loc          *time.Location
	defaultCheck ClockTime
	defaultSend  ClockTime
	kind         string
	now          func() time.Time

	mu      sync.Mutex
	running bool
	baseCtx context.Context
}

func New(d Deps, opt Options) *Scheduler {
	log := d.Log.Named("scheduler")

	loc := opt.Location
	if loc == nil {
		loc = time.UTC
	}
	check, err := ParseClock(opt.DefaultCheck)
	if err != nil {
		log.Warn("default check time invalid, using 09:00", zap.Error(err))
		check = fallbackCheck
	}
	send, err := ParseClock(opt.DefaultSend)
	if err != nil {
		log.Warn("default send time invalid, using 09:05", zap.Error(err))
		send = fallbackSend
	}
	kind := opt.TemplateKind
	if kind == "" {
		kind = model.TemplateKindBilling
	}
	locker := d.Locker
	if locker == nil {
		locker = lock.Noop{}
	}
	engine := d.Engine
	if engine == nil {
		engine = NewCronEngine(loc, d.Log)
	}

	s := &Scheduler{
		settings:     d.Settings,
		clients:      d.Clients,
		tenants:      d.Tenants,
		queue:        d.Queue,
		sender:       d.Sender,
		notifier:     d.Notifier,
		locker:       locker,
		engine:       engine,
		log:          log,
		loc:          loc,
		defaultCheck: check,
		defaultSend:  send,
		kind:         kind,
		now:          time.Now,
		baseCtx:      context.Background(),
	}
	s.registry = NewRegistry(engine, s.fire)
	return s
}

// SetClock overrides the wall clock.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

func (s *Scheduler) Registry() *Registry { return s.registry }

// Jobs lists the registered jobs.
func (s *Scheduler) Jobs() []JobInfo { return s.registry.List() }

func (s *Scheduler) today() time.Time { return s.now().In(s.loc) }

// Start configures every tenant and starts the engine. It is a no-op while
// already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.baseCtx = context.WithoutCancel(ctx)

	if err := s.ConfigureAll(ctx); err != nil {
		s.log.Warn("running in degraded mode", zap.Error(err))
	}
	s.engine.Start()
	s.running = true
	s.log.Info("scheduler started", zap.Int("jobs", s.registry.Len()), zap.String("tz", s.loc.String()))
	return nil
}

// Stop removes all jobs and halts the engine, waiting for in-flight callbacks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.registry.Clear()
	done := s.engine.Stop()
	s.running = false
	s.mu.Unlock()

	<-done.Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && s.engine.Running()
}

// ConfigureAll rebuilds the registry from stored schedules. When tenants
// cannot be enumerated it registers the global fallback pair and returns an
// error wrapping ErrStoreUnavailable.
func (s *Scheduler) ConfigureAll(ctx context.Context) error {
	s.registry.Clear()

	ids, err := s.settings.TenantsWithCustomSchedule(ctx)
	if err != nil {
		s.registerGlobal()
		return fmt.Errorf("%w: enumerate tenants: %w", ErrStoreUnavailable, err)
	}

	for _, id := range ids {
		if err := s.Configure(ctx, id); err != nil {
			s.log.Error("configure tenant", zap.Int64("tenant_id", id), zap.Error(err))
		}
	}
	s.log.Info("schedules configured", zap.Int("tenants", len(ids)), zap.Int("jobs", s.registry.Len()))
	return nil
}

func (s *Scheduler) registerGlobal() {
	for _, j := range []struct {
		kind model.JobKind
		at   ClockTime
	}{{model.JobCheck, fallbackCheck}, {model.JobSend, fallbackSend}} {
		key := model.JobKey{TenantID: model.GlobalTenant, Kind: j.kind}
		if err := s.registry.Register(key, j.at); err != nil {
			s.log.Error("register global job", zap.Stringer("key", key), zap.Error(err))
		}
	}
}

// Configure (re)registers the tenant's check and send jobs from its stored
// schedule. Malformed stored times fall back to the defaults.
func (s *Scheduler) Configure(ctx context.Context, tenantID int64) error {
	sch, err := s.settings.GetSchedule(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("%w: schedule of tenant %d: %w", ErrStoreUnavailable, tenantID, err)
	}

	check := s.resolve(tenantID, model.JobCheck, sch.CheckTime, s.defaultCheck)
	send := s.resolve(tenantID, model.JobSend, sch.SendTime, s.defaultSend)

	if err := s.registry.Register(model.JobKey{TenantID: tenantID, Kind: model.JobCheck}, check); err != nil {
		return err
	}
	if err := s.registry.Register(model.JobKey{TenantID: tenantID, Kind: model.JobSend}, send); err != nil {
		return err
	}
	s.log.Debug("tenant configured",
		zap.Int64("tenant_id", tenantID), zap.Stringer("check", check), zap.Stringer("send", send))
	return nil
}

func (s *Scheduler) resolve(tenantID int64, kind model.JobKind, stored *string, def ClockTime) ClockTime {
	if stored == nil || *stored == "" {
		return def
	}
	at, err := ParseClock(*stored)
	if err != nil {
		s.log.Warn("stored time invalid, using default",
			zap.Int64("tenant_id", tenantID), zap.String("kind", string(kind)),
			zap.Stringer("default", def), zap.Error(err))
		return def
	}
	return at
}

// Reschedule validates and persists new times for the tenant, then replaces
// its job pair.
func (s *Scheduler) Reschedule(ctx context.Context, tenantID int64, checkTime, sendTime string) error {
	if tenantID == model.GlobalTenant {
		return fmt.Errorf("tenant id %d is reserved", tenantID)
	}
	check, err := ParseClock(checkTime)
	if err != nil {
		return err
	}
	send, err := ParseClock(sendTime)
	if err != nil {
		return err
	}

	c, sd := check.String(), send.String()
	if err := s.settings.UpsertSchedule(ctx, nil, model.TenantSchedule{TenantID: tenantID, CheckTime: &c, SendTime: &sd}); err != nil {
		return fmt.Errorf("%w: save schedule: %w", ErrStoreUnavailable, err)
	}
	return s.Configure(ctx, tenantID)
}

// RunNow runs the daily digest synchronously.
func (s *Scheduler) RunNow(ctx context.Context) error {
	return s.RunDigest(ctx)
}

// fire is the engine callback. Each (kind, tenant) runs at most once per day
// across processes sharing the lock store.
func (s *Scheduler) fire(key model.JobKey) {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	today := s.today()
	ok, err := s.locker.Acquire(ctx, string(key.Kind), key.TenantID, today)
	if err != nil {
		s.log.Warn("run lock unavailable, running anyway", zap.Stringer("job", key), zap.Error(err))
	} else if !ok {
		metrics.JobRunsTotal.WithLabelValues(string(key.Kind), "locked").Inc()
		s.log.Info("job already ran today", zap.Stringer("job", key))
		return
	}
	s.RunJob(ctx, key)
}

// RunJob executes the job body for key right away, bypassing the run lock.
// The global check runs the digest; the global send drains every tenant.
func (s *Scheduler) RunJob(ctx context.Context, key model.JobKey) {
	switch {
	case key.TenantID == model.GlobalTenant && key.Kind == model.JobCheck:
		if err := s.RunDigest(ctx); err != nil {
			s.log.Error("global digest", zap.Error(err))
		}
	case key.TenantID == model.GlobalTenant:
		s.sendAll(ctx)
	case key.Kind == model.JobCheck:
		s.OnCheck(ctx, key.TenantID)
	default:
		s.OnSend(ctx, key.TenantID)
	}
}

// OnCheck enqueues a reminder for every client of the tenant that became
// overdue yesterday. Per-client failures are logged and skipped.
func (s *Scheduler) OnCheck(ctx context.Context, tenantID int64) {
	log := s.log.With(zap.Int64("tenant_id", tenantID), zap.String("job", "check"))
	today := s.today()

	clients, err := s.clients.FindOverdueByOneDay(ctx, tenantID, today)
	if err != nil {
		metrics.JobRunsTotal.WithLabelValues("check", "failed").Inc()
		log.Error("find overdue clients", zap.Error(err))
		return
	}

	queued := 0
	for _, c := range clients {
		_, err := s.queue.Enqueue(ctx, tenantID, c, s.kind)
		switch {
		case err == nil:
			queued++
		case errors.Is(err, queue.ErrNoTemplateFound):
			log.Warn("no template, client skipped", zap.Int64("client_id", c.ID), zap.Error(err))
		case errors.Is(err, queue.ErrAlreadyQueued):
			log.Debug("reminder already queued", zap.Int64("client_id", c.ID))
		default:
			log.Error("enqueue reminder", zap.Int64("client_id", c.ID), zap.Error(err))
		}
	}

	metrics.JobRunsTotal.WithLabelValues("check", "ok").Inc()
	log.Info("check done", zap.Int("overdue", len(clients)), zap.Int("queued", queued))
}

// OnSend delivers the tenant's pending messages due today or earlier.
func (s *Scheduler) OnSend(ctx context.Context, tenantID int64) {
	log := s.log.With(zap.Int64("tenant_id", tenantID), zap.String("job", "send"))

	msgs, err := s.queue.DrainPending(ctx, tenantID, s.today())
	if err != nil {
		metrics.JobRunsTotal.WithLabelValues("send", "failed").Inc()
		log.Error("drain pending", zap.Error(err))
		return
	}
	s.deliver(ctx, log, msgs)
}

func (s *Scheduler) sendAll(ctx context.Context) {
	log := s.log.With(zap.String("job", "send"), zap.Bool("global", true))

	msgs, err := s.queue.DrainAllPending(ctx, s.today())
	if err != nil {
		metrics.JobRunsTotal.WithLabelValues("send", "failed").Inc()
		log.Error("drain all pending", zap.Error(err))
		return
	}
	s.deliver(ctx, log, msgs)
}

func (s *Scheduler) deliver(ctx context.Context, log *zap.Logger, msgs []model.QueuedMessage) {
	metrics.JobRunsTotal.WithLabelValues("send", "ok").Inc()
	if len(msgs) == 0 {
		log.Debug("nothing pending")
		return
	}
	res := s.sender.Process(ctx, msgs)
	log.Info("send done", zap.Int("sent", res.Sent), zap.Int("failed", res.Failed))
}
