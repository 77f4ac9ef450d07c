package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/monitorcore/internal/capacity"
	"github.com/hamed0406/monitorcore/internal/domain"
	apimw "github.com/hamed0406/monitorcore/internal/httpapi/middleware"
	"github.com/hamed0406/monitorcore/internal/jobs"
	"github.com/hamed0406/monitorcore/internal/repo/memory"
	"github.com/hamed0406/monitorcore/internal/scheduler"
	"github.com/hamed0406/monitorcore/internal/validate"
)

// ---- test helpers ----

type fakeRuns struct {
	mu   sync.Mutex
	err  error
	res  domain.ExecutionResult
	runs int
}

func (f *fakeRuns) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeRuns) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func (f *fakeRuns) RunNow(_ context.Context, id domain.MonitorID) (domain.ExecutionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	if f.err != nil {
		return domain.ExecutionResult{}, f.err
	}
	out := f.res
	out.MonitorID = id
	return out, nil
}

func (f *fakeRuns) Test(_ context.Context, _ domain.CheckKind, _ string, _ domain.MonitorConfig) (domain.ExecutionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return f.res, f.err
}

type fakeCapacity struct{}

func (fakeCapacity) Snapshot(context.Context) (capacity.Snapshot, error) {
	return capacity.Snapshot{Running: 1, Queued: 2, RunningCapacity: 50, QueuedCapacity: 500}, nil
}

type env struct {
	ts    *httptest.Server
	store *memory.Store
	rep   *jobs.Repeater
	runs  *fakeRuns
}

func setup(t *testing.T) *env {
	t.Helper()
	log := zap.NewNop()
	store := memory.New()
	rep := jobs.NewRepeater(func(jobs.Job) {}, log)
	svc := scheduler.NewService(store, rep, validate.New(false), log)
	runs := &fakeRuns{res: domain.ExecutionResult{Status: domain.ResultUp, IsUp: true, CheckedAt: time.Now().UTC()}}

	srv := NewServer(log, svc, store, runs, fakeCapacity{})
	keys := apimw.Keys{
		Public: []string{"pub_test"},
		Admin:  []string{"adm_test"},
	}
	// very high rate limits to avoid flakiness in tests
	ts := httptest.NewServer(srv.Router(keys, nil, 10_000, 10_000, 10_000, 10_000))
	t.Cleanup(ts.Close)
	return &env{ts: ts, store: store, rep: rep, runs: runs}
}

func (e *env) do(t *testing.T, method, path, key string, body any) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, e.ts.URL+path, rd)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func (e *env) create(t *testing.T, freq int) domain.Monitor {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/monitors", "adm_test", map[string]any{
		"name":              "example",
		"type":              "http_request",
		"target":            "https://example.com",
		"frequency_minutes": freq,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: want 201, got %d", resp.StatusCode)
	}
	var m domain.Monitor
	decodeBody(t, resp, &m)
	return m
}

// ---- tests ----

func TestCreateMonitor_SchedulesAndLists(t *testing.T) {
	e := setup(t)
	m := e.create(t, 5)

	if m.ID == "" || m.Status != domain.StatusPending {
		t.Fatalf("unexpected monitor: %+v", m)
	}
	if m.ScheduledJobID == nil || *m.ScheduledJobID != jobs.Handle(m.ID, 5) {
		t.Fatalf("expected schedule handle, got %v", m.ScheduledJobID)
	}
	if !m.AlertConfig.Enabled || m.AlertConfig.FailureThreshold != 1 {
		t.Fatalf("expected default alert config, got %+v", m.AlertConfig)
	}
	if got := e.rep.Handles(); len(got) != 1 {
		t.Fatalf("expected 1 active schedule, got %v", got)
	}

	resp := e.do(t, http.MethodGet, "/api/monitors", "pub_test", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: want 200, got %d", resp.StatusCode)
	}
	var list []domain.Monitor
	decodeBody(t, resp, &list)
	if len(list) != 1 || list[0].ID != m.ID {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestCreateMonitor_RejectsInternalAndBadPayload(t *testing.T) {
	e := setup(t)

	resp := e.do(t, http.MethodPost, "/api/monitors", "adm_test", map[string]any{
		"type":   "http_request",
		"target": "http://127.0.0.1:8080/admin",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("internal target: want 400, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["error"] == "" {
		t.Fatalf("expected error message")
	}

	resp = e.do(t, http.MethodPost, "/api/monitors", "adm_test", map[string]any{"unknown": 1})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown field: want 400, got %d", resp.StatusCode)
	}

	all, _ := e.store.ListMonitors(context.Background())
	if len(all) != 0 {
		t.Fatalf("nothing should be stored, got %d", len(all))
	}
}

func TestAuth_PublicCannotWrite(t *testing.T) {
	e := setup(t)

	resp := e.do(t, http.MethodPost, "/api/monitors", "pub_test", map[string]any{
		"type": "http_request", "target": "https://example.com",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("public key write: want 403, got %d", resp.StatusCode)
	}
	resp = e.do(t, http.MethodGet, "/api/monitors", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no key read: want 401, got %d", resp.StatusCode)
	}
}

func TestPauseResumeDelete(t *testing.T) {
	e := setup(t)
	m := e.create(t, 5)

	resp := e.do(t, http.MethodPost, "/api/monitors/"+string(m.ID)+"/pause", "adm_test", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pause: want 200, got %d", resp.StatusCode)
	}
	var paused domain.Monitor
	decodeBody(t, resp, &paused)
	if paused.Status != domain.StatusPaused || paused.ScheduledJobID != nil {
		t.Fatalf("unexpected paused monitor: %+v", paused)
	}
	if got := e.rep.Handles(); len(got) != 0 {
		t.Fatalf("pause should remove the schedule, got %v", got)
	}

	resp = e.do(t, http.MethodPost, "/api/monitors/"+string(m.ID)+"/resume", "adm_test", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resume: want 200, got %d", resp.StatusCode)
	}
	if got := e.rep.Handles(); len(got) != 1 {
		t.Fatalf("resume should recreate one schedule, got %v", got)
	}

	resp = e.do(t, http.MethodDelete, "/api/monitors/"+string(m.ID), "adm_test", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: want 204, got %d", resp.StatusCode)
	}
	resp = e.do(t, http.MethodGet, "/api/monitors/"+string(m.ID), "pub_test", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: want 404, got %d", resp.StatusCode)
	}
}

func TestPatchMonitor_Reschedules(t *testing.T) {
	e := setup(t)
	m := e.create(t, 5)

	resp := e.do(t, http.MethodPatch, "/api/monitors/"+string(m.ID), "adm_test", map[string]any{
		"frequency_minutes": 15,
		"config":            map[string]any{"expected_status_codes": []string{"2xx", "301"}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch: want 200, got %d", resp.StatusCode)
	}
	var got domain.Monitor
	decodeBody(t, resp, &got)
	if got.FrequencyMinutes != 15 || len(got.Config.ExpectedStatusCodes) != 2 {
		t.Fatalf("patch not applied: %+v", got)
	}
	if hs := e.rep.Handles(); len(hs) != 1 || hs[0] != jobs.Handle(m.ID, 15) {
		t.Fatalf("expected rescheduled handle, got %v", hs)
	}
}

func TestExecute_CapacityMapsTo429(t *testing.T) {
	e := setup(t)
	m := e.create(t, 0)

	resp := e.do(t, http.MethodPost, "/api/monitors/"+string(m.ID)+"/execute", "adm_test", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("execute: want 200, got %d", resp.StatusCode)
	}
	var res domain.ExecutionResult
	decodeBody(t, resp, &res)
	if res.MonitorID != m.ID || !res.IsUp {
		t.Fatalf("unexpected result: %+v", res)
	}

	e.runs.fail(capacity.ErrCapacityExceeded)
	resp = e.do(t, http.MethodPost, "/api/monitors/"+string(m.ID)+"/execute", "adm_test", nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("saturated: want 429, got %d", resp.StatusCode)
	}

	e.runs.fail(capacity.ErrCapacityUnknown)
	resp = e.do(t, http.MethodPost, "/api/checks/test", "adm_test", map[string]any{
		"type": "ping_host", "target": "example.com",
	})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unknown capacity: want 503, got %d", resp.StatusCode)
	}
}

func TestResults_NewestFirstWithLimit(t *testing.T) {
	e := setup(t)
	m := e.create(t, 0)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		r := &domain.MonitorResult{MonitorID: m.ID, CheckedAt: base.Add(time.Duration(i) * time.Minute), Status: domain.ResultUp, IsUp: true}
		if err := e.store.AppendResult(ctx, r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	resp := e.do(t, http.MethodGet, "/api/monitors/"+string(m.ID)+"/results?limit=2", "pub_test", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("results: want 200, got %d", resp.StatusCode)
	}
	var rs []domain.MonitorResult
	decodeBody(t, resp, &rs)
	if len(rs) != 2 || !rs[0].CheckedAt.After(rs[1].CheckedAt) {
		t.Fatalf("expected 2 results newest first, got %+v", rs)
	}

	resp = e.do(t, http.MethodGet, "/api/monitors/"+string(m.ID)+"/results?limit=zero", "pub_test", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit: want 400, got %d", resp.StatusCode)
	}
	resp = e.do(t, http.MethodGet, "/api/monitors/missing/results", "pub_test", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing monitor: want 404, got %d", resp.StatusCode)
	}
}

func TestCapacityAndHealth(t *testing.T) {
	e := setup(t)

	resp := e.do(t, http.MethodGet, "/api/capacity", "pub_test", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("capacity: want 200, got %d", resp.StatusCode)
	}
	var snap capacity.Snapshot
	decodeBody(t, resp, &snap)
	if snap.RunningCapacity != 50 || snap.Queued != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	resp = e.do(t, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: want 200, got %d", resp.StatusCode)
	}
}

func TestTest_RejectsUnknownType(t *testing.T) {
	e := setup(t)
	resp := e.do(t, http.MethodPost, "/api/checks/test", "adm_test", map[string]any{
		"type": "smtp", "target": "mail.example.com",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", resp.StatusCode)
	}
	if e.runs.count() != 0 {
		t.Fatalf("no run should happen")
	}
}
