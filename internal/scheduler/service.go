// Package scheduler owns the recurring-job lifecycle of each monitor, the
// pipeline that runs a check when a schedule fires, and the reconciler that
// turns results into status changes and alerts.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/monitorcore/internal/domain"
	"github.com/hamed0406/monitorcore/internal/jobs"
	"github.com/hamed0406/monitorcore/internal/repo"
	"github.com/hamed0406/monitorcore/internal/validate"
)

// Queue is the recurring-job capability. jobs.Repeater implements it.
type Queue interface {
	// Upsert supersedes any prior schedule for the same monitor.
	Upsert(job jobs.Job) (string, error)
	// Cancel returns false for unknown or already cancelled handles.
	Cancel(handle string) bool
}

// Action is what the scheduler does with a monitor's schedule after a change.
type Action int

const (
	Noop Action = iota
	Schedule
	Reschedule
	Unschedule
)

func (a Action) String() string {
	switch a {
	case Schedule:
		return "schedule"
	case Reschedule:
		return "reschedule"
	case Unschedule:
		return "unschedule"
	}
	return "noop"
}

// plan maps a monitor transition onto a schedule action. prev is nil for a
// newly created monitor.
func plan(prev, next *domain.Monitor, ch domain.Changes) Action {
	if next.Status == domain.StatusPaused || next.FrequencyMinutes <= 0 {
		if next.Scheduled() {
			return Unschedule
		}
		return Noop
	}
	if !next.Scheduled() {
		return Schedule
	}
	if prev != nil && prev.Status == domain.StatusPaused {
		return Schedule
	}
	if ch.Definition() {
		return Reschedule
	}
	return Noop
}

type Service struct {
	store     repo.MonitorStore
	queue     Queue
	validator *validate.Validator
	log       *zap.Logger
	now       func() time.Time
}

func NewService(store repo.MonitorStore, q Queue, v *validate.Validator, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if v == nil {
		v = validate.New(false)
	}
	return &Service{store: store, queue: q, validator: v, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// check validates a monitor definition before it is stored.
func (s *Service) check(m *domain.Monitor) error {
	m.Name = strings.TrimSpace(m.Name)
	m.Target = strings.TrimSpace(m.Target)
	if !m.Kind.Valid() {
		return &validate.Error{Field: "type", Reason: fmt.Sprintf("unsupported monitor type %q", m.Kind)}
	}
	if m.FrequencyMinutes < 0 {
		return &validate.Error{Field: "frequency_minutes", Reason: "must not be negative"}
	}
	if !m.Status.Valid() {
		return &validate.Error{Field: "status", Reason: fmt.Sprintf("unknown status %q", m.Status)}
	}
	if m.Config.TimeoutSeconds < 0 {
		return &validate.Error{Field: "config.timeout_seconds", Reason: "must not be negative"}
	}
	return s.validator.Monitor(m.Kind, m.Target, m.Config)
}

// Create stores m and schedules it when its frequency is positive.
func (s *Service) Create(ctx context.Context, m *domain.Monitor) error {
	if m.Status == "" {
		m.Status = domain.StatusPending
	}
	if m.Name == "" {
		m.Name = m.Target
	}
	m.ScheduledJobID = nil
	if err := s.check(m); err != nil {
		return err
	}
	if err := s.store.CreateMonitor(ctx, m); err != nil {
		return fmt.Errorf("create monitor: %w", err)
	}
	s.log.Info("monitor_created",
		zap.String("monitor_id", string(m.ID)),
		zap.String("type", string(m.Kind)),
		zap.Int("frequency_minutes", m.FrequencyMinutes),
	)
	return s.apply(ctx, nil, m, domain.Changes{})
}

// Update applies a partial update and reconciles the schedule.
func (s *Service) Update(ctx context.Context, id domain.MonitorID, u domain.MonitorUpdate) (*domain.Monitor, error) {
	cur, err := s.store.GetMonitor(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := cur.Clone()
	ch := u.Apply(cur)
	if !ch.Any() {
		return cur, nil
	}
	if err := s.check(cur); err != nil {
		return nil, err
	}
	// status is only written when the caller asked for it, so a rename
	// cannot roll back what the reconciler wrote since cur was read
	if ch.Status {
		if err := s.store.SetStatus(ctx, id, cur.Status, s.now()); err != nil {
			return nil, fmt.Errorf("set status: %w", err)
		}
	}
	if ch.Definition() || ch.Alert || ch.Name {
		if err := s.store.SaveMonitor(ctx, cur); err != nil {
			return nil, fmt.Errorf("save monitor: %w", err)
		}
	}
	if err := s.apply(ctx, prev, cur, ch); err != nil {
		return nil, err
	}
	if fresh, err := s.store.GetMonitor(ctx, id); err == nil {
		return fresh, nil
	}
	return cur, nil
}

// Pause stops future runs. An in-flight run still records its result.
func (s *Service) Pause(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error) {
	st := domain.StatusPaused
	return s.Update(ctx, id, domain.MonitorUpdate{Status: &st})
}

// Resume re-enters the scheduled state with a fresh schedule. Monitors that
// are not paused are returned unchanged.
func (s *Service) Resume(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error) {
	cur, err := s.store.GetMonitor(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status != domain.StatusPaused {
		return cur, nil
	}
	st := domain.StatusPending
	return s.Update(ctx, id, domain.MonitorUpdate{Status: &st})
}

// Delete cancels the schedule best-effort and removes the monitor with its
// results.
func (s *Service) Delete(ctx context.Context, id domain.MonitorID) error {
	m, err := s.store.GetMonitor(ctx, id)
	if err != nil {
		return err
	}
	if m.Scheduled() {
		if !s.queue.Cancel(*m.ScheduledJobID) {
			s.log.Warn("schedule_cancel_missed",
				zap.String("monitor_id", string(id)),
				zap.String("handle", *m.ScheduledJobID),
			)
		}
	}
	if err := s.store.DeleteMonitor(ctx, id); err != nil {
		return fmt.Errorf("delete monitor: %w", err)
	}
	s.log.Info("monitor_deleted", zap.String("monitor_id", string(id)))
	return nil
}

// Restore re-registers every monitor that has a persisted handle. The monitor
// rows are the source of truth, not the queue's own state.
func (s *Service) Restore(ctx context.Context) error {
	ms, err := s.store.ListScheduled(ctx)
	if err != nil {
		return fmt.Errorf("list scheduled: %w", err)
	}
	var errs error
	restored := 0
	for _, m := range ms {
		if m.Status == domain.StatusPaused || m.FrequencyMinutes <= 0 {
			// row says scheduled but the definition says otherwise
			if err := s.store.SetScheduleHandle(ctx, m.ID, nil); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("clear handle %s: %w", m.ID, err))
			}
			continue
		}
		if err := s.schedule(ctx, m); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("restore %s: %w", m.ID, err))
			continue
		}
		restored++
	}
	s.log.Info("schedules_restored", zap.Int("restored", restored), zap.Int("rows", len(ms)))
	return errs
}

func (s *Service) apply(ctx context.Context, prev, next *domain.Monitor, ch domain.Changes) error {
	act := plan(prev, next, ch)
	if act == Noop {
		return nil
	}
	s.log.Debug("schedule_plan",
		zap.String("monitor_id", string(next.ID)),
		zap.Stringer("action", act),
	)
	switch act {
	case Schedule:
		return s.schedule(ctx, next)
	case Reschedule:
		s.queue.Cancel(*next.ScheduledJobID)
		return s.schedule(ctx, next)
	case Unschedule:
		return s.unschedule(ctx, next)
	}
	return nil
}

func (s *Service) schedule(ctx context.Context, m *domain.Monitor) error {
	h, err := s.queue.Upsert(jobOf(m))
	if err != nil {
		return fmt.Errorf("schedule monitor: %w", err)
	}
	if err := s.store.SetScheduleHandle(ctx, m.ID, &h); err != nil {
		// keep the row authoritative: no row handle, no schedule
		s.queue.Cancel(h)
		return fmt.Errorf("persist handle: %w", err)
	}
	m.ScheduledJobID = &h
	s.log.Info("scheduler_job_created",
		zap.String("monitor_id", string(m.ID)),
		zap.String("handle", h),
	)
	return nil
}

func (s *Service) unschedule(ctx context.Context, m *domain.Monitor) error {
	h := *m.ScheduledJobID
	if !s.queue.Cancel(h) {
		s.log.Warn("schedule_cancel_missed",
			zap.String("monitor_id", string(m.ID)),
			zap.String("handle", h),
		)
	}
	if err := s.store.SetScheduleHandle(ctx, m.ID, nil); err != nil {
		return fmt.Errorf("clear handle: %w", err)
	}
	m.ScheduledJobID = nil
	s.log.Info("scheduler_job_removed",
		zap.String("monitor_id", string(m.ID)),
		zap.String("handle", h),
	)
	return nil
}

func jobOf(m *domain.Monitor) jobs.Job {
	return jobs.Job{
		MonitorID:        m.ID,
		Kind:             m.Kind,
		Target:           m.Target,
		Config:           m.Config.Clone(),
		FrequencyMinutes: m.FrequencyMinutes,
	}
}

// IsValidation reports whether err is a user input problem.
func IsValidation(err error) bool {
	var ve *validate.Error
	return errors.As(err, &ve)
}
