package repo

import (
	"context"

	"github.com/hamed0406/monitorcore/internal/domain"
)

// AlertStore is implemented by a persistence layer to store alert state.
type AlertStore interface {
	// GetAlertState returns nil, nil if there's no record yet.
	GetAlertState(ctx context.Context, id domain.MonitorID) (*domain.AlertState, error)
	// SetAlertState upserts the record.
	SetAlertState(ctx context.Context, s domain.AlertState) error
}
