package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hamed0406/monitorcore/internal/domain"
	"github.com/hamed0406/monitorcore/internal/repo"
)

func (s *Store) GetAlertState(ctx context.Context, id domain.MonitorID) (*domain.AlertState, error) {
	const q = `SELECT open, last_sent_at, last_ssl_alert_at FROM alert_state WHERE monitor_id=$1`
	st := domain.AlertState{MonitorID: id}
	err := s.pool.QueryRow(ctx, q, string(id)).Scan(&st.Open, &st.LastSentAt, &st.LastSSLAlertAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get alert state: %w", err)
	}
	return &st, nil
}

func (s *Store) SetAlertState(ctx context.Context, st domain.AlertState) error {
	const q = `
		INSERT INTO alert_state (monitor_id, open, last_sent_at, last_ssl_alert_at)
		SELECT $1,$2,$3,$4 WHERE EXISTS (SELECT 1 FROM monitors WHERE id=$1)
		ON CONFLICT (monitor_id)
		DO UPDATE SET open=EXCLUDED.open,
		              last_sent_at=EXCLUDED.last_sent_at,
		              last_ssl_alert_at=EXCLUDED.last_ssl_alert_at
	`
	tag, err := s.pool.Exec(ctx, q, string(st.MonitorID), st.Open, st.LastSentAt, st.LastSSLAlertAt)
	if err != nil {
		return fmt.Errorf("set alert state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}
