package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/monitorcore/internal/capacity"
	"github.com/hamed0406/monitorcore/internal/domain"
	apimw "github.com/hamed0406/monitorcore/internal/httpapi/middleware"
	"github.com/hamed0406/monitorcore/internal/jobs"
	"github.com/hamed0406/monitorcore/internal/repo"
	"github.com/hamed0406/monitorcore/internal/validate"
)

const (
	maxBodyBytes       = 1 << 20
	defaultResultLimit = 50
	maxResultLimit     = 1000
)

// Monitors is the lifecycle half of the scheduler service.
type Monitors interface {
	Create(ctx context.Context, m *domain.Monitor) error
	Update(ctx context.Context, id domain.MonitorID, u domain.MonitorUpdate) (*domain.Monitor, error)
	Pause(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error)
	Resume(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error)
	Delete(ctx context.Context, id domain.MonitorID) error
}

// Reader is the read side of persistence.
type Reader interface {
	GetMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error)
	ListMonitors(ctx context.Context) ([]*domain.Monitor, error)
	RecentResults(ctx context.Context, id domain.MonitorID, n int) ([]domain.MonitorResult, error)
}

// Runs executes checks on demand.
type Runs interface {
	RunNow(ctx context.Context, id domain.MonitorID) (domain.ExecutionResult, error)
	Test(ctx context.Context, kind domain.CheckKind, target string, cfg domain.MonitorConfig) (domain.ExecutionResult, error)
}

type CapacityReader interface {
	Snapshot(ctx context.Context) (capacity.Snapshot, error)
}

type Server struct {
	Logger   *zap.Logger
	Monitors Monitors
	Reader   Reader
	Runs     Runs
	Capacity CapacityReader
}

func NewServer(l *zap.Logger, m Monitors, rd Reader, runs Runs, c CapacityReader) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Monitors: m, Reader: rd, Runs: runs, Capacity: c}
}

// Router wires the API. Reads need any key, writes need an admin key; with
// no keys configured everything is open (local dev).
func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, pubRPM, pubBurst, admRPM, admBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	if len(allowedOrigins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(apimw.RequireAny(keys))
			r.Use(apimw.RateLimit(pubRPM, pubBurst))
			r.Get("/monitors", s.handleListMonitors)
			r.Get("/monitors/{id}", s.handleGetMonitor)
			r.Get("/monitors/{id}/results", s.handleResults)
			r.Get("/capacity", s.handleCapacity)
		})
		r.Group(func(r chi.Router) {
			r.Use(apimw.RequireAdmin(keys))
			r.Use(apimw.RateLimit(admRPM, admBurst))
			r.Post("/monitors", s.handleCreateMonitor)
			r.Patch("/monitors/{id}", s.handleUpdateMonitor)
			r.Delete("/monitors/{id}", s.handleDeleteMonitor)
			r.Post("/monitors/{id}/pause", s.handlePause)
			r.Post("/monitors/{id}/resume", s.handleResume)
			r.Post("/monitors/{id}/execute", s.handleExecute)
			r.Post("/checks/test", s.handleTest)
		})
	})
	return r
}

type createPayload struct {
	Name             string               `json:"name"`
	Kind             domain.CheckKind     `json:"type"`
	Target           string               `json:"target"`
	FrequencyMinutes int                  `json:"frequency_minutes"`
	Status           domain.MonitorStatus `json:"status"`
	Config           domain.MonitorConfig `json:"config"`
	AlertConfig      *domain.AlertConfig  `json:"alert_config"`
}

// defaultAlertConfig applies when a monitor is created without one.
func defaultAlertConfig() domain.AlertConfig {
	return domain.AlertConfig{
		Enabled:              true,
		AlertOnFailure:       true,
		AlertOnRecovery:      true,
		AlertOnSSLExpiration: true,
		FailureThreshold:     1,
		RecoveryThreshold:    1,
	}
}

func (s *Server) handleCreateMonitor(w http.ResponseWriter, r *http.Request) {
	var p createPayload
	if !decode(w, r, &p) {
		return
	}
	m := &domain.Monitor{
		Name:             p.Name,
		Kind:             p.Kind,
		Target:           p.Target,
		FrequencyMinutes: p.FrequencyMinutes,
		Status:           p.Status,
		Config:           p.Config,
		AlertConfig:      defaultAlertConfig(),
	}
	// ssl bookkeeping is owned by the server
	m.Config.SSLLastCheckedAt, m.Config.SSLDaysRemaining = nil, nil
	if p.AlertConfig != nil {
		m.AlertConfig = *p.AlertConfig
	}
	if err := s.Monitors.Create(r.Context(), m); err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.Logger.Info("api_monitor_created",
		zap.String("monitor_id", string(m.ID)),
		zap.Stringer("role", apimw.RoleFrom(r.Context())),
	)
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	ms, err := s.Reader.ListMonitors(r.Context())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if ms == nil {
		ms = []*domain.Monitor{}
	}
	writeJSON(w, http.StatusOK, ms)
}

func (s *Server) handleGetMonitor(w http.ResponseWriter, r *http.Request) {
	m, err := s.Reader.GetMonitor(r.Context(), monitorID(r))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleUpdateMonitor(w http.ResponseWriter, r *http.Request) {
	var u domain.MonitorUpdate
	if !decode(w, r, &u) {
		return
	}
	m, err := s.Monitors.Update(r.Context(), monitorID(r), u)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteMonitor(w http.ResponseWriter, r *http.Request) {
	if err := s.Monitors.Delete(r.Context(), monitorID(r)); err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.Logger.Info("api_monitor_deleted",
		zap.String("monitor_id", string(monitorID(r))),
		zap.Stringer("role", apimw.RoleFrom(r.Context())),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	m, err := s.Monitors.Pause(r.Context(), monitorID(r))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	m, err := s.Monitors.Resume(r.Context(), monitorID(r))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	res, err := s.Runs.RunNow(r.Context(), monitorID(r))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	limit := defaultResultLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxResultLimit)
	}
	id := monitorID(r)
	if _, err := s.Reader.GetMonitor(r.Context(), id); err != nil {
		s.writeErr(w, r, err)
		return
	}
	rs, err := s.Reader.RecentResults(r.Context(), id, limit)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if rs == nil {
		rs = []domain.MonitorResult{}
	}
	writeJSON(w, http.StatusOK, rs)
}

type testPayload struct {
	Kind   domain.CheckKind     `json:"type"`
	Target string               `json:"target"`
	Config domain.MonitorConfig `json:"config"`
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	var p testPayload
	if !decode(w, r, &p) {
		return
	}
	if !p.Kind.Valid() {
		writeError(w, http.StatusBadRequest, "type: unsupported monitor type")
		return
	}
	res, err := s.Runs.Test(r.Context(), p.Kind, p.Target, p.Config)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCapacity(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Capacity.Snapshot(r.Context())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func monitorID(r *http.Request) domain.MonitorID {
	return domain.MonitorID(chi.URLParam(r, "id"))
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return false
	}
	return true
}

// writeErr maps domain errors onto status codes. Unexpected errors are
// logged and reported without detail.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var ve *validate.Error
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, repo.ErrNotFound):
		writeError(w, http.StatusNotFound, "monitor not found")
	case errors.Is(err, capacity.ErrCapacityExceeded), errors.Is(err, jobs.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, "capacity exceeded")
	case errors.Is(err, jobs.ErrDuplicate):
		writeError(w, http.StatusConflict, "a run for this monitor is already pending")
	case errors.Is(err, capacity.ErrCapacityUnknown), errors.Is(err, jobs.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, "capacity unavailable")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, "request ended before the check finished")
	default:
		s.Logger.Error("api_error",
			zap.String("path", r.URL.Path),
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
