// Package jobs is the queue capability the scheduler depends on: a
// recurring-job repeater keyed by monitor id and a bounded worker pool.
package jobs

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hamed0406/monitorcore/internal/domain"
)

var ErrInvalidInterval = errors.New("frequency must be at least one minute")

// Job is the payload of one recurring schedule.
type Job struct {
	MonitorID        domain.MonitorID
	Kind             domain.CheckKind
	Target           string
	Config           domain.MonitorConfig
	FrequencyMinutes int
}

// Handle is the deterministic schedule handle for a monitor and interval.
func Handle(id domain.MonitorID, minutes int) string {
	return fmt.Sprintf("monitor:%s:every:%dm", id, minutes)
}

type entry struct {
	id     cron.EntryID
	handle string
	job    Job
}

// Repeater keeps at most one cron entry per monitor id. Upserting the same
// monitor again replaces its entry.
type Repeater struct {
	cron *cron.Cron
	fire func(Job)
	log  *zap.Logger

	mu       sync.Mutex
	byID     map[domain.MonitorID]*entry
	byHandle map[string]domain.MonitorID
}

// NewRepeater calls fire on every tick. fire must not block for long; the
// scheduler hands the work to the pool and returns.
func NewRepeater(fire func(Job), log *zap.Logger) *Repeater {
	if log == nil {
		log = zap.NewNop()
	}
	cl := cronLogger{log.Sugar()}
	return &Repeater{
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		fire:     fire,
		log:      log,
		byID:     make(map[domain.MonitorID]*entry),
		byHandle: make(map[string]domain.MonitorID),
	}
}

func (r *Repeater) Start() {
	r.cron.Start()
	r.log.Info("repeater_started")
}

// Stop halts future ticks and waits for running tick callbacks.
func (r *Repeater) Stop() {
	<-r.cron.Stop().Done()
	r.log.Info("repeater_stopped")
}

// Upsert schedules job, superseding any prior schedule for the same monitor.
func (r *Repeater) Upsert(job Job) (string, error) {
	if job.FrequencyMinutes < 1 {
		return "", ErrInvalidInterval
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byID[job.MonitorID]; ok {
		r.cron.Remove(old.id)
		delete(r.byHandle, old.handle)
		delete(r.byID, job.MonitorID)
	}

	j := job
	spec := fmt.Sprintf("@every %dm", job.FrequencyMinutes)
	id, err := r.cron.AddFunc(spec, func() { r.fire(j) })
	if err != nil {
		return "", fmt.Errorf("add schedule %q: %w", spec, err)
	}
	h := Handle(job.MonitorID, job.FrequencyMinutes)
	r.byID[job.MonitorID] = &entry{id: id, handle: h, job: j}
	r.byHandle[h] = job.MonitorID

	r.log.Debug("repeater_upsert",
		zap.String("monitor_id", string(job.MonitorID)),
		zap.String("handle", h),
		zap.Time("next", r.cron.Entry(id).Next),
	)
	return h, nil
}

// Cancel removes the schedule behind handle. Unknown or already cancelled
// handles return false.
func (r *Repeater) Cancel(handle string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byHandle[handle]
	if !ok {
		return false
	}
	e := r.byID[id]
	r.cron.Remove(e.id)
	delete(r.byHandle, handle)
	delete(r.byID, id)
	return true
}

// Handles lists active handles in sorted order.
func (r *Repeater) Handles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.byHandle))
	for h := range r.byHandle {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Next reports the next tick for handle. Before Start it is the zero time.
func (r *Repeater) Next(handle string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byHandle[handle]
	if !ok {
		return time.Time{}, false
	}
	return r.cron.Entry(r.byID[id].id).Next, true
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, kv ...interface{}) { l.s.Debugw("cron_"+msg, kv...) }

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.s.Errorw("cron_"+msg, append(kv, "error", err)...)
}
