package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/monitorcore/internal/domain"
	"github.com/hamed0406/monitorcore/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS monitors (
  id                    TEXT PRIMARY KEY,
  name                  TEXT NOT NULL,
  type                  TEXT NOT NULL,
  target                TEXT NOT NULL,
  frequency_minutes     INTEGER NOT NULL DEFAULT 0,
  status                TEXT NOT NULL DEFAULT 'pending',
  config                JSONB NOT NULL DEFAULT '{}',
  alert_config          JSONB NOT NULL DEFAULT '{}',
  scheduled_job_id      TEXT NULL,
  last_check_at         TIMESTAMPTZ NULL,
  last_status_change_at TIMESTAMPTZ NULL,
  created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_monitors_scheduled ON monitors (scheduled_job_id) WHERE scheduled_job_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS monitor_results (
  id               BIGSERIAL PRIMARY KEY,
  monitor_id       TEXT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
  checked_at       TIMESTAMPTZ NOT NULL,
  status           TEXT NOT NULL,
  is_up            BOOLEAN NOT NULL,
  response_time_ms BIGINT NULL,
  details          JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_monitor_results_monitor_time ON monitor_results (monitor_id, checked_at DESC);

CREATE TABLE IF NOT EXISTS alert_state (
  monitor_id        TEXT PRIMARY KEY REFERENCES monitors(id) ON DELETE CASCADE,
  open              BOOLEAN NOT NULL DEFAULT FALSE,
  last_sent_at      TIMESTAMPTZ NULL,
  last_ssl_alert_at TIMESTAMPTZ NULL
);
`

// Migrate creates the tables if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	s.log.Info("db_migrated")
	return nil
}

// ---- MonitorStore ----

const monitorColumns = `id, name, type, target, frequency_minutes, status, config, alert_config,
       scheduled_job_id, last_check_at, last_status_change_at, created_at, updated_at`

func (s *Store) CreateMonitor(ctx context.Context, m *domain.Monitor) error {
	if m.ID == "" {
		m.ID = domain.MonitorID(uuid.NewString())
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	cfg, alertCfg, err := marshalConfigs(m)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO monitors
		   (id, name, type, target, frequency_minutes, status, config, alert_config,
		    scheduled_job_id, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		string(m.ID), m.Name, string(m.Kind), m.Target, m.FrequencyMinutes, string(m.Status),
		cfg, alertCfg, m.ScheduledJobID, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert monitor: %w", err)
	}
	return nil
}

func (s *Store) GetMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE id = $1`, string(id))
	m, err := scanMonitor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get monitor: %w", err)
	}
	return m, nil
}

func (s *Store) ListMonitors(ctx context.Context) ([]*domain.Monitor, error) {
	return s.queryMonitors(ctx, `SELECT `+monitorColumns+` FROM monitors ORDER BY created_at DESC, id`)
}

func (s *Store) ListScheduled(ctx context.Context) ([]*domain.Monitor, error) {
	return s.queryMonitors(ctx,
		`SELECT `+monitorColumns+` FROM monitors
		  WHERE scheduled_job_id IS NOT NULL AND scheduled_job_id <> ''
		  ORDER BY created_at DESC, id`)
}

func (s *Store) queryMonitors(ctx context.Context, q string) ([]*domain.Monitor, error) {
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	defer rows.Close()

	var out []*domain.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan monitor: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveMonitor keeps whatever SSL bookkeeping the row already has so a stale
// snapshot cannot roll back UpdateSSLCheck.
func (s *Store) SaveMonitor(ctx context.Context, m *domain.Monitor) error {
	cfg, alertCfg, err := marshalConfigs(m)
	if err != nil {
		return err
	}
	return s.execOne(ctx, "save monitor",
		`UPDATE monitors
		    SET name=$2, type=$3, target=$4, frequency_minutes=$5,
		        config = $6::jsonb || jsonb_strip_nulls(jsonb_build_object(
		                   'ssl_last_checked_at', config->'ssl_last_checked_at',
		                   'ssl_days_remaining', config->'ssl_days_remaining')),
		        alert_config=$7, updated_at=now()
		  WHERE id=$1`,
		string(m.ID), m.Name, string(m.Kind), m.Target, m.FrequencyMinutes, cfg, alertCfg,
	)
}

func (s *Store) SetStatus(ctx context.Context, id domain.MonitorID, status domain.MonitorStatus, changedAt time.Time) error {
	return s.execOne(ctx, "set status",
		`UPDATE monitors SET status=$2, last_status_change_at=$3, updated_at=now() WHERE id=$1`,
		string(id), string(status), changedAt,
	)
}

func (s *Store) SetScheduleHandle(ctx context.Context, id domain.MonitorID, handle *string) error {
	return s.execOne(ctx, "set schedule handle",
		`UPDATE monitors SET scheduled_job_id=$2, updated_at=now() WHERE id=$1`,
		string(id), handle,
	)
}

func (s *Store) UpdateStatus(ctx context.Context, id domain.MonitorID, u repo.StatusUpdate) error {
	err := s.execOne(ctx, "update status",
		`UPDATE monitors
		    SET status=$2, last_check_at=$3,
		        last_status_change_at=COALESCE($4, last_status_change_at),
		        updated_at=now()
		  WHERE id=$1 AND ($5::text = '' OR status = $5::text)`,
		string(id), string(u.Status), u.LastCheckAt, u.ChangedAt, string(u.Expect),
	)
	if errors.Is(err, repo.ErrNotFound) && u.Expect != "" {
		var exists bool
		if qerr := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM monitors WHERE id=$1)`, string(id)).Scan(&exists); qerr != nil {
			return fmt.Errorf("update status: %w", qerr)
		}
		if exists {
			return repo.ErrStale
		}
	}
	return err
}

// UpdateSSLCheck writes into the config document so the SSL cadence survives
// restarts alongside the rest of the monitor definition.
func (s *Store) UpdateSSLCheck(ctx context.Context, id domain.MonitorID, checkedAt time.Time, daysRemaining *int) error {
	return s.execOne(ctx, "update ssl check",
		`UPDATE monitors
		    SET config = config
		          || jsonb_build_object('ssl_last_checked_at', to_jsonb($2::timestamptz))
		          || CASE WHEN $3::int IS NULL THEN '{}'::jsonb
		                  ELSE jsonb_build_object('ssl_days_remaining', $3::int) END,
		        updated_at = now()
		  WHERE id=$1`,
		string(id), checkedAt.UTC(), daysRemaining,
	)
}

func (s *Store) DeleteMonitor(ctx context.Context, id domain.MonitorID) error {
	return s.execOne(ctx, "delete monitor", `DELETE FROM monitors WHERE id=$1`, string(id))
}

func (s *Store) execOne(ctx context.Context, what, q string, args ...any) error {
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// ---- ResultStore ----

func (s *Store) AppendResult(ctx context.Context, r *domain.MonitorResult) error {
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now().UTC()
	}
	details, err := json.Marshal(r.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO monitor_results
		   (monitor_id, checked_at, status, is_up, response_time_ms, details)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 RETURNING id`,
		string(r.MonitorID), r.CheckedAt, string(r.Status), r.IsUp, r.ResponseTimeMs, details,
	).Scan(&r.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return repo.ErrNotFound
		}
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *Store) RecentResults(ctx context.Context, id domain.MonitorID, n int) ([]domain.MonitorResult, error) {
	if n <= 0 {
		n = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, monitor_id, checked_at, status, is_up, response_time_ms, details
		   FROM monitor_results
		  WHERE monitor_id = $1
		  ORDER BY checked_at DESC, id DESC
		  LIMIT $2`, string(id), n)
	if err != nil {
		return nil, fmt.Errorf("recent results: %w", err)
	}
	defer rows.Close()

	var out []domain.MonitorResult
	for rows.Next() {
		var (
			r       domain.MonitorResult
			mid     string
			status  string
			details []byte
		)
		if err := rows.Scan(&r.ID, &mid, &r.CheckedAt, &status, &r.IsUp, &r.ResponseTimeMs, &details); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.MonitorID = domain.MonitorID(mid)
		r.Status = domain.ResultStatus(status)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &r.Details); err != nil {
				return nil, fmt.Errorf("decode details: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func marshalConfigs(m *domain.Monitor) (cfg, alertCfg []byte, err error) {
	if cfg, err = json.Marshal(m.Config); err != nil {
		return nil, nil, fmt.Errorf("marshal config: %w", err)
	}
	if alertCfg, err = json.Marshal(m.AlertConfig); err != nil {
		return nil, nil, fmt.Errorf("marshal alert config: %w", err)
	}
	return cfg, alertCfg, nil
}

func scanMonitor(row pgx.Row) (*domain.Monitor, error) {
	var (
		m                domain.Monitor
		id, kind, status string
		cfg, alertCfg    []byte
	)
	err := row.Scan(&id, &m.Name, &kind, &m.Target, &m.FrequencyMinutes, &status, &cfg, &alertCfg,
		&m.ScheduledJobID, &m.LastCheckAt, &m.LastStatusChangeAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.ID = domain.MonitorID(id)
	m.Kind = domain.CheckKind(kind)
	m.Status = domain.MonitorStatus(status)
	if err := json.Unmarshal(cfg, &m.Config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := json.Unmarshal(alertCfg, &m.AlertConfig); err != nil {
		return nil, fmt.Errorf("decode alert config: %w", err)
	}
	return &m, nil
}
