package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/monitorcore/internal/alert"
	"github.com/hamed0406/monitorcore/internal/domain"
	"github.com/hamed0406/monitorcore/internal/notify"
	"github.com/hamed0406/monitorcore/internal/repo"
)

// Emitter is the outbound alert channel. notify.Dispatcher implements it.
type Emitter interface {
	Emit(a notify.Alert) bool
}

// Reconciler persists results and derives status changes and alerts from
// them. It never waits on alert delivery.
type Reconciler struct {
	store       repo.Store
	alerts      Emitter
	warningDays int
	log         *zap.Logger
	now         func() time.Time
}

func NewReconciler(store repo.Store, alerts Emitter, warningDays int, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{store: store, alerts: alerts, warningDays: warningDays, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Outcome summarizes what Record did with a result.
type Outcome struct {
	Result  domain.MonitorResult
	Status  domain.MonitorStatus
	Changed bool
	Alerts  []domain.AlertKind
	Skipped bool // monitor was deleted before the result arrived
}

// Record is the reconciliation step for one executed check.
func (r *Reconciler) Record(ctx context.Context, res domain.ExecutionResult) (Outcome, error) {
	var out Outcome
	id := res.MonitorID
	m, err := r.store.GetMonitor(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		r.log.Info("result_dropped_monitor_deleted", zap.String("monitor_id", string(id)))
		out.Skipped = true
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("load monitor: %w", err)
	}

	row := res.Result()
	if row.CheckedAt.IsZero() {
		row.CheckedAt = r.now()
	}
	if err := r.store.AppendResult(ctx, &row); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			out.Skipped = true
			return out, nil
		}
		return out, fmt.Errorf("append result: %w", err)
	}
	out.Result = row

	if res.SSLCheckedAt != nil {
		var days *int
		if ssl := res.Details.SSL; ssl != nil {
			d := ssl.DaysRemaining
			days = &d
		}
		if err := r.store.UpdateSSLCheck(ctx, id, *res.SSLCheckedAt, days); err != nil {
			r.log.Warn("ssl_check_persist_failed", zap.String("monitor_id", string(id)), zap.Error(err))
		}
	}

	m, err = r.writeStatus(ctx, m, row, &out)
	if err != nil {
		return out, err
	}
	if out.Skipped {
		return out, nil
	}
	next := out.Status

	// paused and maintenance monitors keep their status and never page
	if next == domain.StatusPaused || next == domain.StatusMaintenance {
		return out, nil
	}
	out.Alerts = r.evaluate(ctx, m, next)
	return out, nil
}

const statusWriteAttempts = 3

// writeStatus compare-and-sets the derived status against the status it was
// derived from. When a pause or another run got there first the monitor is
// reloaded and the status derived again, so a paused monitor stays paused.
func (r *Reconciler) writeStatus(ctx context.Context, m *domain.Monitor, row domain.MonitorResult, out *Outcome) (*domain.Monitor, error) {
	id := m.ID
	for attempt := 1; ; attempt++ {
		next := nextStatus(m.Status, row)
		upd := repo.StatusUpdate{Status: next, LastCheckAt: row.CheckedAt, Expect: m.Status}
		if next != m.Status {
			at := row.CheckedAt
			upd.ChangedAt = &at
		}
		err := r.store.UpdateStatus(ctx, id, upd)
		switch {
		case err == nil:
			out.Status = next
			out.Changed = next != m.Status
			if out.Changed {
				r.log.Info("monitor_status_changed",
					zap.String("monitor_id", string(id)),
					zap.String("from", string(m.Status)),
					zap.String("to", string(next)),
				)
			}
			return m, nil
		case errors.Is(err, repo.ErrNotFound):
			out.Skipped = true
			return m, nil
		case !errors.Is(err, repo.ErrStale) || attempt == statusWriteAttempts:
			return m, fmt.Errorf("update status: %w", err)
		}

		r.log.Debug("status_write_stale", zap.String("monitor_id", string(id)), zap.Int("attempt", attempt))
		fresh, err := r.store.GetMonitor(ctx, id)
		if errors.Is(err, repo.ErrNotFound) {
			out.Skipped = true
			return m, nil
		}
		if err != nil {
			return m, fmt.Errorf("reload monitor: %w", err)
		}
		m = fresh
	}
}

// nextStatus derives the operational status from the stored status and the
// newest result.
func nextStatus(cur domain.MonitorStatus, row domain.MonitorResult) domain.MonitorStatus {
	switch {
	case cur == domain.StatusPaused || cur == domain.StatusMaintenance:
		return cur
	case row.IsUp:
		return domain.StatusUp
	case row.Status == domain.ResultError:
		return domain.StatusError
	default:
		return domain.StatusDown
	}
}

func (r *Reconciler) evaluate(ctx context.Context, m *domain.Monitor, current domain.MonitorStatus) []domain.AlertKind {
	cfg := m.AlertConfig
	if !cfg.Enabled {
		return nil
	}
	recent, err := r.store.RecentResults(ctx, m.ID, alert.Lookback(cfg))
	if err != nil {
		r.log.Warn("alert_history_failed", zap.String("monitor_id", string(m.ID)), zap.Error(err))
		return nil
	}
	st, err := r.store.GetAlertState(ctx, m.ID)
	if err != nil {
		r.log.Warn("alert_state_failed", zap.String("monitor_id", string(m.ID)), zap.Error(err))
		return nil
	}
	state := domain.AlertState{MonitorID: m.ID}
	if st != nil {
		state = *st
	}

	warn := m.Config.SSLWarningDays
	if warn <= 0 {
		warn = r.warningDays
	}
	d := alert.Decide(alert.Input{
		Config:      cfg,
		Monitor:     m.ID,
		Name:        m.Name,
		Target:      m.Target,
		Current:     current,
		Recent:      recent,
		State:       state,
		WarningDays: warn,
		Now:         r.now(),
	})
	if d.Changed {
		if err := r.store.SetAlertState(ctx, d.State); err != nil {
			// without the state the same alert would fire again next run
			r.log.Warn("alert_state_persist_failed", zap.String("monitor_id", string(m.ID)), zap.Error(err))
			return nil
		}
	}

	kinds := make([]domain.AlertKind, 0, len(d.Alerts))
	for _, a := range d.Alerts {
		kinds = append(kinds, a.Kind)
		if r.alerts == nil {
			continue
		}
		r.alerts.Emit(notify.Alert{
			MonitorID: m.ID,
			Name:      m.Name,
			Kind:      a.Kind,
			Reason:    a.Reason,
			Metadata:  a.Metadata,
			Channels:  append([]string(nil), cfg.NotificationChannels...),
		})
	}
	return kinds
}
