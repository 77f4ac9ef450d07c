package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/monitorcore/internal/domain"
	"github.com/hamed0406/monitorcore/internal/jobs"
	"github.com/hamed0406/monitorcore/internal/repo"
)

// Executor runs one check. executor.Executor implements it.
type Executor interface {
	Execute(ctx context.Context, id domain.MonitorID, kind domain.CheckKind, target string, cfg domain.MonitorConfig) domain.ExecutionResult
}

// Admitter is the capacity gate.
type Admitter interface {
	Admit(ctx context.Context) error
}

// Pool is the bounded worker pool. jobs.Pool implements it.
type Pool interface {
	Submit(t jobs.Task) error
	Do(ctx context.Context, key string, fn func(ctx context.Context)) error
}

// Runner is the run pipeline: tick -> admit -> pool -> load -> execute ->
// reconcile. Every path goes through the same gate.
type Runner struct {
	store    repo.MonitorStore
	exec     Executor
	gate     Admitter
	pool     Pool
	rec      *Reconciler
	log      *zap.Logger
	tickWait time.Duration
}

func NewRunner(store repo.MonitorStore, exec Executor, gate Admitter, pool Pool, rec *Reconciler, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{store: store, exec: exec, gate: gate, pool: pool, rec: rec, log: log, tickWait: 5 * time.Second}
}

// Tick is the repeater callback. It never blocks on the check itself.
func (r *Runner) Tick(job jobs.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), r.tickWait)
	defer cancel()
	id := job.MonitorID
	if err := r.gate.Admit(ctx); err != nil {
		r.log.Warn("run_rejected_capacity", zap.String("monitor_id", string(id)), zap.Error(err))
		return
	}
	err := r.pool.Submit(jobs.Task{Key: string(id), Run: func(ctx context.Context) {
		r.runMonitor(ctx, id)
	}})
	switch {
	case err == nil:
	case errors.Is(err, jobs.ErrDuplicate):
		r.log.Debug("run_collapsed_pending", zap.String("monitor_id", string(id)))
	default:
		r.log.Warn("run_submit_failed", zap.String("monitor_id", string(id)), zap.Error(err))
	}
}

// runMonitor loads the monitor fresh so a run queued before an update uses
// the current definition.
func (r *Runner) runMonitor(ctx context.Context, id domain.MonitorID) {
	m, err := r.store.GetMonitor(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		r.log.Debug("run_skipped_deleted", zap.String("monitor_id", string(id)))
		return
	}
	if err != nil {
		r.log.Warn("run_load_failed", zap.String("monitor_id", string(id)), zap.Error(err))
		return
	}
	if m.Status == domain.StatusPaused {
		r.log.Debug("run_skipped_paused", zap.String("monitor_id", string(id)))
		return
	}
	r.execute(ctx, m)
}

func (r *Runner) execute(ctx context.Context, m *domain.Monitor) (domain.ExecutionResult, Outcome) {
	res := r.exec.Execute(ctx, m.ID, m.Kind, m.Target, m.Config)
	if abandoned(ctx, res) {
		r.log.Info("run_abandoned",
			zap.String("monitor_id", string(m.ID)),
			zap.String("status", string(res.Status)),
			zap.Error(ctx.Err()),
		)
		return res, Outcome{Skipped: true}
	}
	// the check finished; persisting must survive a shutdown that starts now
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	out, err := r.rec.Record(pctx, res)
	if err != nil {
		r.log.Error("result_record_failed",
			zap.String("monitor_id", string(m.ID)),
			zap.String("correlation_id", res.Details.CorrelationID),
			zap.Error(err),
		)
		return res, out
	}
	r.log.Debug("monitor_checked",
		zap.String("monitor_id", string(m.ID)),
		zap.String("status", string(res.Status)),
		zap.String("monitor_status", string(out.Status)),
		zap.Int("alerts", len(out.Alerts)),
	)
	return res, out
}

// abandoned reports a result produced only because the caller's context
// ended: the executor turns that into timeout or error, which says nothing
// about the target. A check cut short by its own deadline leaves ctx intact.
func abandoned(ctx context.Context, res domain.ExecutionResult) bool {
	if ctx.Err() == nil {
		return false
	}
	return res.Status == domain.ResultTimeout || res.Status == domain.ResultError
}

// RunNow executes a monitor immediately and waits for the result. It shares
// the monitor's pool key, so it cannot overlap a scheduled run.
func (r *Runner) RunNow(ctx context.Context, id domain.MonitorID) (domain.ExecutionResult, error) {
	m, err := r.store.GetMonitor(ctx, id)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	if err := r.gate.Admit(ctx); err != nil {
		return domain.ExecutionResult{}, err
	}
	ch := make(chan domain.ExecutionResult, 1)
	err = r.pool.Do(ctx, string(id), func(ctx context.Context) {
		res, _ := r.execute(ctx, m)
		ch <- res
	})
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	return collect(ch)
}

// Test runs an ad-hoc check that is never persisted.
func (r *Runner) Test(ctx context.Context, kind domain.CheckKind, target string, cfg domain.MonitorConfig) (domain.ExecutionResult, error) {
	if err := r.gate.Admit(ctx); err != nil {
		return domain.ExecutionResult{}, err
	}
	ch := make(chan domain.ExecutionResult, 1)
	key := "test:" + uuid.NewString()
	err := r.pool.Do(ctx, key, func(ctx context.Context) {
		ch <- r.exec.Execute(ctx, "", kind, target, cfg)
	})
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	return collect(ch)
}

// ErrRunAborted means a pooled run finished without producing a result.
var ErrRunAborted = errors.New("run aborted")

func collect(ch <-chan domain.ExecutionResult) (domain.ExecutionResult, error) {
	select {
	case res := <-ch:
		return res, nil
	default:
		return domain.ExecutionResult{}, ErrRunAborted
	}
}
