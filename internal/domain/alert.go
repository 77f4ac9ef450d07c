package domain

import "time"

type AlertKind string

const (
	AlertFailure     AlertKind = "failure"
	AlertRecovery    AlertKind = "recovery"
	AlertSSLExpiring AlertKind = "ssl_expiring"
)

// AlertState is the per-monitor record that keeps alerts from repeating.
// Open is set once a failure streak reaches the failure threshold and is
// cleared by the matching recovery.
type AlertState struct {
	MonitorID      MonitorID  `json:"monitor_id"`
	Open           bool       `json:"open"`
	LastSentAt     *time.Time `json:"last_sent_at,omitempty"`
	LastSSLAlertAt *time.Time `json:"last_ssl_alert_at,omitempty"`
}
