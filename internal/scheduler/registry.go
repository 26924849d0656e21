package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmehdipour/duebot/internal/model"
)

// Job is one registered trigger. It carries its own key so firing never
// depends on captured loop state.
type Job struct {
	Key model.JobKey
	At  ClockTime

	entryID cron.EntryID
}

// JobInfo is a read-only view of a registered job.
type JobInfo struct {
	Key  model.JobKey
	At   ClockTime
	Next time.Time // zero until the engine runs
}

type firing struct {
	key  model.JobKey
	fire func(model.JobKey)
}

func (f firing) Run() { f.fire(f.key) }

// Registry maps job keys to engine entries with replace-on-register semantics.
type Registry struct {
	mu     sync.Mutex
	engine Engine
	fire   func(model.JobKey)
	jobs   map[model.JobKey]*Job
}

func NewRegistry(engine Engine, fire func(model.JobKey)) *Registry {
	return &Registry{engine: engine, fire: fire, jobs: map[model.JobKey]*Job{}}
}

// Register adds a daily job at the given time, replacing any job with the same key.
func (r *Registry) Register(key model.JobKey, at ClockTime) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := r.engine.Add(at.Spec(), firing{key: key, fire: r.fire})
	if err != nil {
		return fmt.Errorf("register %s at %s: %w", key, at, err)
	}
	if old, ok := r.jobs[key]; ok {
		r.engine.Remove(old.entryID)
	}
	r.jobs[key] = &Job{Key: key, At: at, entryID: id}
	return nil
}

func (r *Registry) Remove(key model.JobKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[key]
	if !ok {
		return false
	}
	r.engine.Remove(j.entryID)
	delete(r.jobs, key)
	return true
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, j := range r.jobs {
		r.engine.Remove(j.entryID)
		delete(r.jobs, k)
	}
}

func (r *Registry) Get(key model.JobKey) (JobInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[key]
	if !ok {
		return JobInfo{}, false
	}
	return JobInfo{Key: j.Key, At: j.At, Next: r.engine.Next(j.entryID)}, true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// List returns every job ordered by tenant then kind.
func (r *Registry) List() []JobInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]JobInfo, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, JobInfo{Key: j.Key, At: j.At, Next: r.engine.Next(j.entryID)})
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].Key.TenantID != out[k].Key.TenantID {
			return out[i].Key.TenantID < out[k].Key.TenantID
		}
		return out[i].Key.Kind < out[k].Key.Kind
	})
	return out
}

func (r *Registry) Keys() []model.JobKey {
	infos := r.List()
	keys := make([]model.JobKey, len(infos))
	for i, j := range infos {
		keys[i] = j.Key
	}
	return keys
}
