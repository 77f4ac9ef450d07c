package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/monitorcore/internal/domain"
	"github.com/hamed0406/monitorcore/internal/notify"
	"github.com/hamed0406/monitorcore/internal/repo/memory"
)

type fakeEmitter struct {
	mu   sync.Mutex
	sent []notify.Alert
}

func (f *fakeEmitter) Emit(a notify.Alert) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, a)
	return true
}

func (f *fakeEmitter) kinds() []domain.AlertKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.AlertKind, 0, len(f.sent))
	for _, a := range f.sent {
		out = append(out, a.Kind)
	}
	return out
}

type clock struct{ t time.Time }

func (c *clock) next() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

func newReconciler(t *testing.T, status domain.MonitorStatus, ac domain.AlertConfig) (*Reconciler, *memory.Store, *fakeEmitter, *domain.Monitor, *clock) {
	t.Helper()
	store := memory.New()
	em := &fakeEmitter{}
	m := &domain.Monitor{
		Name:             "api",
		Kind:             domain.KindHTTPRequest,
		Target:           "https://example.com",
		FrequencyMinutes: 1,
		Status:           status,
		AlertConfig:      ac,
	}
	require.NoError(t, store.CreateMonitor(context.Background(), m))
	c := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	r := NewReconciler(store, em, 30, nil)
	r.now = func() time.Time { return c.t }
	return r, store, em, m, c
}

func checkResult(id domain.MonitorID, c *clock, status domain.ResultStatus) domain.ExecutionResult {
	rt := int64(120)
	return domain.ExecutionResult{
		MonitorID:      id,
		Status:         status,
		IsUp:           status == domain.ResultUp,
		CheckedAt:      c.next(),
		ResponseTimeMs: &rt,
	}
}

func alertsOn(failTh, recTh int) domain.AlertConfig {
	return domain.AlertConfig{
		Enabled:           true,
		AlertOnFailure:    true,
		AlertOnRecovery:   true,
		FailureThreshold:  failTh,
		RecoveryThreshold: recTh,
	}
}

func TestReconciler_FailureAlertOncePerStreak(t *testing.T) {
	ctx := context.Background()
	r, store, em, m, c := newReconciler(t, domain.StatusPending, alertsOn(3, 1))

	for i := 0; i < 2; i++ {
		_, err := r.Record(ctx, checkResult(m.ID, c, domain.ResultDown))
		require.NoError(t, err)
	}
	assert.Empty(t, em.kinds(), "below threshold")

	out, err := r.Record(ctx, checkResult(m.ID, c, domain.ResultDown))
	require.NoError(t, err)
	assert.Equal(t, []domain.AlertKind{domain.AlertFailure}, out.Alerts)

	for i := 0; i < 3; i++ {
		_, err := r.Record(ctx, checkResult(m.ID, c, domain.ResultTimeout))
		require.NoError(t, err)
	}
	assert.Equal(t, []domain.AlertKind{domain.AlertFailure}, em.kinds())

	got, _ := store.GetMonitor(ctx, m.ID)
	assert.Equal(t, domain.StatusDown, got.Status)
	require.NotNil(t, got.LastStatusChangeAt)
	require.NotNil(t, got.LastCheckAt)
	assert.True(t, got.LastStatusChangeAt.Before(*got.LastCheckAt), "status changed on the first down only")

	em.mu.Lock()
	first := em.sent[0]
	em.mu.Unlock()
	assert.Equal(t, m.ID, first.MonitorID)
	assert.Equal(t, "3", first.Metadata["streak"])
	assert.Contains(t, first.Reason, "api")
}

func TestReconciler_RecoveryAfterAlertedFailure(t *testing.T) {
	ctx := context.Background()
	r, store, em, m, c := newReconciler(t, domain.StatusUp, alertsOn(2, 2))

	_, _ = r.Record(ctx, checkResult(m.ID, c, domain.ResultDown))
	_, _ = r.Record(ctx, checkResult(m.ID, c, domain.ResultDown))
	out, err := r.Record(ctx, checkResult(m.ID, c, domain.ResultUp))
	require.NoError(t, err)
	assert.Empty(t, out.Alerts, "one up is below the recovery threshold")
	assert.True(t, out.Changed)

	out, err = r.Record(ctx, checkResult(m.ID, c, domain.ResultUp))
	require.NoError(t, err)
	assert.Equal(t, []domain.AlertKind{domain.AlertRecovery}, out.Alerts)
	assert.Equal(t, []domain.AlertKind{domain.AlertFailure, domain.AlertRecovery}, em.kinds())

	st, _ := store.GetAlertState(ctx, m.ID)
	require.NotNil(t, st)
	assert.False(t, st.Open)
}

func TestReconciler_NoRecoveryWithoutFailure(t *testing.T) {
	ctx := context.Background()
	r, _, em, m, c := newReconciler(t, domain.StatusPending, alertsOn(3, 1))

	_, _ = r.Record(ctx, checkResult(m.ID, c, domain.ResultDown))
	_, _ = r.Record(ctx, checkResult(m.ID, c, domain.ResultUp))
	assert.Empty(t, em.kinds())
}

func TestReconciler_ErrorResultsDoNotPage(t *testing.T) {
	ctx := context.Background()
	r, store, em, m, c := newReconciler(t, domain.StatusUp, alertsOn(1, 1))

	out, err := r.Record(ctx, checkResult(m.ID, c, domain.ResultError))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, out.Status)
	assert.Empty(t, em.kinds())

	got, _ := store.GetMonitor(ctx, m.ID)
	assert.Equal(t, domain.StatusError, got.Status)
}

func TestReconciler_MaintenanceAndPausedKeepStatus(t *testing.T) {
	for _, st := range []domain.MonitorStatus{domain.StatusMaintenance, domain.StatusPaused} {
		t.Run(string(st), func(t *testing.T) {
			ctx := context.Background()
			r, store, em, m, c := newReconciler(t, st, alertsOn(1, 1))

			out, err := r.Record(ctx, checkResult(m.ID, c, domain.ResultDown))
			require.NoError(t, err)
			assert.False(t, out.Changed)
			assert.Empty(t, em.kinds())

			got, _ := store.GetMonitor(ctx, m.ID)
			assert.Equal(t, st, got.Status)
			assert.NotNil(t, got.LastCheckAt)
			assert.Nil(t, got.LastStatusChangeAt)

			recent, _ := store.RecentResults(ctx, m.ID, 10)
			assert.Len(t, recent, 1, "result is still persisted")
		})
	}
}

func TestReconciler_AlertsDisabled(t *testing.T) {
	ctx := context.Background()
	ac := alertsOn(1, 1)
	ac.Enabled = false
	r, _, em, m, c := newReconciler(t, domain.StatusUp, ac)

	_, err := r.Record(ctx, checkResult(m.ID, c, domain.ResultDown))
	require.NoError(t, err)
	assert.Empty(t, em.kinds())
}

func TestReconciler_DeletedMonitorSkipped(t *testing.T) {
	ctx := context.Background()
	r, store, _, m, c := newReconciler(t, domain.StatusUp, alertsOn(1, 1))
	require.NoError(t, store.DeleteMonitor(ctx, m.ID))

	out, err := r.Record(ctx, checkResult(m.ID, c, domain.ResultUp))
	require.NoError(t, err)
	assert.True(t, out.Skipped)
}

func TestReconciler_SSLCheckPersistedAndAlerted(t *testing.T) {
	ctx := context.Background()
	ac := domain.AlertConfig{Enabled: true, AlertOnSSLExpiration: true, FailureThreshold: 1, RecoveryThreshold: 1}
	r, store, em, m, c := newReconciler(t, domain.StatusUp, ac)

	res := checkResult(m.ID, c, domain.ResultUp)
	checked := res.CheckedAt
	res.SSLCheckedAt = &checked
	res.Details.SSL = &domain.SSLDetails{DaysRemaining: 10, ValidTo: checked.Add(10 * 24 * time.Hour), Issuer: "Test CA"}

	out, err := r.Record(ctx, res)
	require.NoError(t, err)
	assert.Equal(t, []domain.AlertKind{domain.AlertSSLExpiring}, out.Alerts)

	got, _ := store.GetMonitor(ctx, m.ID)
	require.NotNil(t, got.Config.SSLLastCheckedAt)
	assert.True(t, got.Config.SSLLastCheckedAt.Equal(checked))
	require.NotNil(t, got.Config.SSLDaysRemaining)
	assert.Equal(t, 10, *got.Config.SSLDaysRemaining)

	// within 24h the same warning does not repeat
	again := checkResult(m.ID, c, domain.ResultUp)
	again.Details.SSL = res.Details.SSL
	_, err = r.Record(ctx, again)
	require.NoError(t, err)
	assert.Len(t, em.kinds(), 1)
}

func TestNextStatus(t *testing.T) {
	up := domain.MonitorResult{Status: domain.ResultUp, IsUp: true}
	down := domain.MonitorResult{Status: domain.ResultDown}
	timeout := domain.MonitorResult{Status: domain.ResultTimeout}
	errd := domain.MonitorResult{Status: domain.ResultError}

	assert.Equal(t, domain.StatusUp, nextStatus(domain.StatusPending, up))
	assert.Equal(t, domain.StatusDown, nextStatus(domain.StatusUp, down))
	assert.Equal(t, domain.StatusDown, nextStatus(domain.StatusUp, timeout))
	assert.Equal(t, domain.StatusError, nextStatus(domain.StatusUp, errd))
	assert.Equal(t, domain.StatusPaused, nextStatus(domain.StatusPaused, up))
	assert.Equal(t, domain.StatusMaintenance, nextStatus(domain.StatusMaintenance, down))
}
