package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Engine is the trigger engine firing registered jobs.
type Engine interface {
	Add(spec string, job cron.Job) (cron.EntryID, error)
	Remove(id cron.EntryID)
	Next(id cron.EntryID) time.Time
	Start()
	// Stop halts future firings; the returned context is done once running
	// jobs have returned.
	Stop() context.Context
	Running() bool
}

// cronEngine adapts robfig/cron, which does not expose its running state.
type cronEngine struct {
	c *cron.Cron

	mu      sync.Mutex
	running bool
}

// NewCronEngine builds a daily-spec engine in loc. A job still running when
// its next firing comes due is skipped for that firing.
func NewCronEngine(loc *time.Location, log *zap.Logger) Engine {
	l := cronLogger{s: log.Named("cron").Sugar()}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &cronEngine{
		c: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(loc),
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
	}
}

func (e *cronEngine) Add(spec string, job cron.Job) (cron.EntryID, error) {
	return e.c.AddJob(spec, job)
}

func (e *cronEngine) Remove(id cron.EntryID) { e.c.Remove(id) }

func (e *cronEngine) Next(id cron.EntryID) time.Time { return e.c.Entry(id).Next }

func (e *cronEngine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.c.Start()
	e.running = true
}

func (e *cronEngine) Stop() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	return e.c.Stop()
}

func (e *cronEngine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// cronLogger routes cron's own logging to zap. Wakeup chatter goes to debug.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
