package repo

import (
	"context"
	"errors"
	"time"

	"github.com/hamed0406/monitorcore/internal/domain"
)

var ErrNotFound = errors.New("not found")

// ErrStale means a conditional write found the row changed since it was read.
var ErrStale = errors.New("stale write")

// StatusUpdate sets the operational fields of a monitor row.
type StatusUpdate struct {
	Status      domain.MonitorStatus
	LastCheckAt time.Time
	// ChangedAt is set only when the status actually changed.
	ChangedAt *time.Time
	// Expect, when set, makes the write conditional on the row still holding
	// this status. A mismatch returns ErrStale and writes nothing.
	Expect domain.MonitorStatus
}

// Ports (interfaces) — swap in any DB adapter later.
type MonitorStore interface {
	CreateMonitor(ctx context.Context, m *domain.Monitor) error
	// GetMonitor returns ErrNotFound for unknown ids.
	GetMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error)
	ListMonitors(ctx context.Context) ([]*domain.Monitor, error)
	// ListScheduled returns monitors whose row holds a schedule handle.
	ListScheduled(ctx context.Context) ([]*domain.Monitor, error)
	// SaveMonitor writes the definition fields (name, type, target,
	// frequency, config, alert config). Status and the SSL bookkeeping in
	// config belong to the reconciler and are left as stored.
	SaveMonitor(ctx context.Context, m *domain.Monitor) error
	// SetStatus is an operator status change (pause, resume, maintenance).
	SetStatus(ctx context.Context, id domain.MonitorID, status domain.MonitorStatus, changedAt time.Time) error
	SetScheduleHandle(ctx context.Context, id domain.MonitorID, handle *string) error
	UpdateStatus(ctx context.Context, id domain.MonitorID, u StatusUpdate) error
	UpdateSSLCheck(ctx context.Context, id domain.MonitorID, checkedAt time.Time, daysRemaining *int) error
	// DeleteMonitor removes the monitor with its results and alert state.
	DeleteMonitor(ctx context.Context, id domain.MonitorID) error
}

type ResultStore interface {
	// AppendResult inserts r and sets r.ID. Rows are never updated.
	AppendResult(ctx context.Context, r *domain.MonitorResult) error
	// RecentResults returns up to n results, newest first.
	RecentResults(ctx context.Context, id domain.MonitorID, n int) ([]domain.MonitorResult, error)
}

// Store is everything the service needs from persistence.
type Store interface {
	MonitorStore
	ResultStore
	AlertStore
}
