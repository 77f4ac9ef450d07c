package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/monitorcore/internal/domain"
	"github.com/hamed0406/monitorcore/internal/repo"
)

// Store keeps everything in process memory. Values are copied in and out so
// callers never share state with the store.
type Store struct {
	mu       sync.RWMutex
	monitors map[domain.MonitorID]*domain.Monitor
	results  map[domain.MonitorID][]domain.MonitorResult // oldest first
	alerts   map[domain.MonitorID]domain.AlertState
	nextID   int64
}

func New() *Store {
	return &Store{
		monitors: make(map[domain.MonitorID]*domain.Monitor),
		results:  make(map[domain.MonitorID][]domain.MonitorResult),
		alerts:   make(map[domain.MonitorID]domain.AlertState),
	}
}

// ---- MonitorStore ----

func (m *Store) CreateMonitor(ctx context.Context, mon *domain.Monitor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mon.ID == "" {
		mon.ID = domain.MonitorID(uuid.NewString())
	}
	now := time.Now().UTC()
	if mon.CreatedAt.IsZero() {
		mon.CreatedAt = now
	}
	mon.UpdatedAt = now
	m.monitors[mon.ID] = mon.Clone()
	return nil
}

func (m *Store) GetMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mon, ok := m.monitors[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return mon.Clone(), nil
}

func (m *Store) ListMonitors(ctx context.Context) ([]*domain.Monitor, error) {
	return m.list(func(*domain.Monitor) bool { return true }), nil
}

func (m *Store) ListScheduled(ctx context.Context) ([]*domain.Monitor, error) {
	return m.list((*domain.Monitor).Scheduled), nil
}

func (m *Store) list(keep func(*domain.Monitor) bool) []*domain.Monitor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Monitor, 0, len(m.monitors))
	for _, mon := range m.monitors {
		if keep(mon) {
			out = append(out, mon.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *Store) SaveMonitor(ctx context.Context, mon *domain.Monitor) error {
	return m.update(mon.ID, func(cur *domain.Monitor) error {
		cur.Name = mon.Name
		cur.Kind = mon.Kind
		cur.Target = mon.Target
		cur.FrequencyMinutes = mon.FrequencyMinutes
		checked, days := cur.Config.SSLLastCheckedAt, cur.Config.SSLDaysRemaining
		cur.Config = mon.Config.Clone()
		if checked != nil {
			cur.Config.SSLLastCheckedAt = checked
		}
		if days != nil {
			cur.Config.SSLDaysRemaining = days
		}
		cur.AlertConfig = mon.Clone().AlertConfig
		return nil
	})
}

func (m *Store) SetStatus(ctx context.Context, id domain.MonitorID, status domain.MonitorStatus, changedAt time.Time) error {
	return m.update(id, func(cur *domain.Monitor) error {
		cur.Status = status
		at := changedAt
		cur.LastStatusChangeAt = &at
		return nil
	})
}

func (m *Store) SetScheduleHandle(ctx context.Context, id domain.MonitorID, handle *string) error {
	return m.update(id, func(cur *domain.Monitor) error {
		if handle == nil {
			cur.ScheduledJobID = nil
			return nil
		}
		h := *handle
		cur.ScheduledJobID = &h
		return nil
	})
}

func (m *Store) UpdateStatus(ctx context.Context, id domain.MonitorID, u repo.StatusUpdate) error {
	return m.update(id, func(cur *domain.Monitor) error {
		if u.Expect != "" && cur.Status != u.Expect {
			return repo.ErrStale
		}
		cur.Status = u.Status
		at := u.LastCheckAt
		cur.LastCheckAt = &at
		if u.ChangedAt != nil {
			c := *u.ChangedAt
			cur.LastStatusChangeAt = &c
		}
		return nil
	})
}

func (m *Store) UpdateSSLCheck(ctx context.Context, id domain.MonitorID, checkedAt time.Time, daysRemaining *int) error {
	return m.update(id, func(cur *domain.Monitor) error {
		at := checkedAt
		cur.Config.SSLLastCheckedAt = &at
		if daysRemaining != nil {
			d := *daysRemaining
			cur.Config.SSLDaysRemaining = &d
		}
		return nil
	})
}

func (m *Store) update(id domain.MonitorID, fn func(*domain.Monitor) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.monitors[id]
	if !ok {
		return repo.ErrNotFound
	}
	if err := fn(cur); err != nil {
		return err
	}
	cur.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Store) DeleteMonitor(ctx context.Context, id domain.MonitorID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.monitors[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.monitors, id)
	delete(m.results, id)
	delete(m.alerts, id)
	return nil
}

// ---- ResultStore ----

func (m *Store) AppendResult(ctx context.Context, r *domain.MonitorResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.monitors[r.MonitorID]; !ok {
		return repo.ErrNotFound
	}
	m.nextID++
	r.ID = m.nextID
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now().UTC()
	}
	m.results[r.MonitorID] = append(m.results[r.MonitorID], *r)
	return nil
}

func (m *Store) RecentResults(ctx context.Context, id domain.MonitorID, n int) ([]domain.MonitorResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.results[id]
	if n <= 0 || n > len(all) {
		n = len(all)
	}
	out := make([]domain.MonitorResult, 0, n)
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, all[i])
	}
	// rows are appended in arrival order; keep checkedAt order authoritative
	sort.SliceStable(out, func(i, j int) bool { return out[i].CheckedAt.After(out[j].CheckedAt) })
	return out, nil
}

// ---- AlertStore ----

func (m *Store) GetAlertState(ctx context.Context, id domain.MonitorID) (*domain.AlertState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.alerts[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Store) SetAlertState(ctx context.Context, s domain.AlertState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.monitors[s.MonitorID]; !ok {
		return repo.ErrNotFound
	}
	m.alerts[s.MonitorID] = s
	return nil
}

var _ repo.Store = (*Store)(nil)
