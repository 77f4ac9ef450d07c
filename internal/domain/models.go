package domain

import "time"

type MonitorID string

// CheckKind selects the protocol checker a monitor runs.
type CheckKind string

const (
	KindHTTPRequest CheckKind = "http_request"
	KindWebsite     CheckKind = "website"
	KindPingHost    CheckKind = "ping_host"
	KindPortCheck   CheckKind = "port_check"
)

// Kinds lists every supported check kind.
var Kinds = []CheckKind{KindHTTPRequest, KindWebsite, KindPingHost, KindPortCheck}

func (k CheckKind) Valid() bool {
	for _, v := range Kinds {
		if k == v {
			return true
		}
	}
	return false
}

// MonitorStatus is the operational status stored on the monitor row.
// It is distinct from the per-check ResultStatus.
type MonitorStatus string

const (
	StatusUp          MonitorStatus = "up"
	StatusDown        MonitorStatus = "down"
	StatusPaused      MonitorStatus = "paused"
	StatusPending     MonitorStatus = "pending"
	StatusMaintenance MonitorStatus = "maintenance"
	StatusError       MonitorStatus = "error"
)

func (s MonitorStatus) Valid() bool {
	switch s {
	case StatusUp, StatusDown, StatusPaused, StatusPending, StatusMaintenance, StatusError:
		return true
	}
	return false
}

type Monitor struct {
	ID                 MonitorID     `json:"id"`
	Name               string        `json:"name"`
	Kind               CheckKind     `json:"type"`
	Target             string        `json:"target"`
	FrequencyMinutes   int           `json:"frequency_minutes"`
	Status             MonitorStatus `json:"status"`
	Config             MonitorConfig `json:"config"`
	AlertConfig        AlertConfig   `json:"alert_config"`
	ScheduledJobID     *string       `json:"scheduled_job_id"`
	LastCheckAt        *time.Time    `json:"last_check_at,omitempty"`
	LastStatusChangeAt *time.Time    `json:"last_status_change_at,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// Scheduled reports whether the monitor row holds a schedule handle.
func (m *Monitor) Scheduled() bool {
	return m.ScheduledJobID != nil && *m.ScheduledJobID != ""
}

// Clone returns a copy that shares no mutable state with m.
func (m *Monitor) Clone() *Monitor {
	c := *m
	c.Config = m.Config.Clone()
	c.AlertConfig.NotificationChannels = append([]string(nil), m.AlertConfig.NotificationChannels...)
	if m.ScheduledJobID != nil {
		v := *m.ScheduledJobID
		c.ScheduledJobID = &v
	}
	if m.LastCheckAt != nil {
		v := *m.LastCheckAt
		c.LastCheckAt = &v
	}
	if m.LastStatusChangeAt != nil {
		v := *m.LastStatusChangeAt
		c.LastStatusChangeAt = &v
	}
	return &c
}

type AuthConfig struct {
	Type     string `json:"type"` // basic | bearer
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

// MonitorConfig holds the protocol-specific settings. Fields that do not
// apply to a monitor's kind are ignored by its checker.
type MonitorConfig struct {
	Method                 string            `json:"method,omitempty"`
	Headers                map[string]string `json:"headers,omitempty"`
	Body                   string            `json:"body,omitempty"`
	Auth                   *AuthConfig       `json:"auth,omitempty"`
	ExpectedStatusCodes    []string          `json:"expected_status_codes,omitempty"`
	KeywordInBody          string            `json:"keyword_in_body,omitempty"`
	KeywordShouldBePresent *bool             `json:"keyword_should_be_present,omitempty"`
	TimeoutSeconds         int               `json:"timeout_seconds,omitempty"`

	EnableSSLCheck         bool       `json:"enable_ssl_check,omitempty"`
	SSLWarningDays         int        `json:"ssl_warning_days,omitempty"`
	SSLCheckFrequencyHours int        `json:"ssl_check_frequency_hours,omitempty"`
	SSLLastCheckedAt       *time.Time `json:"ssl_last_checked_at,omitempty"`
	SSLDaysRemaining       *int       `json:"ssl_days_remaining,omitempty"`

	Port     int    `json:"port,omitempty"`
	Protocol string `json:"protocol,omitempty"` // tcp | udp
}

// KeywordMustBePresent defaults to true when unset.
func (c MonitorConfig) KeywordMustBePresent() bool {
	return c.KeywordShouldBePresent == nil || *c.KeywordShouldBePresent
}

func (c MonitorConfig) Clone() MonitorConfig {
	out := c
	if c.Headers != nil {
		out.Headers = make(map[string]string, len(c.Headers))
		for k, v := range c.Headers {
			out.Headers[k] = v
		}
	}
	if c.Auth != nil {
		a := *c.Auth
		out.Auth = &a
	}
	out.ExpectedStatusCodes = append([]string(nil), c.ExpectedStatusCodes...)
	if c.KeywordShouldBePresent != nil {
		v := *c.KeywordShouldBePresent
		out.KeywordShouldBePresent = &v
	}
	if c.SSLLastCheckedAt != nil {
		v := *c.SSLLastCheckedAt
		out.SSLLastCheckedAt = &v
	}
	if c.SSLDaysRemaining != nil {
		v := *c.SSLDaysRemaining
		out.SSLDaysRemaining = &v
	}
	return out
}

type AlertConfig struct {
	Enabled              bool     `json:"enabled"`
	NotificationChannels []string `json:"notification_channels,omitempty"`
	AlertOnFailure       bool     `json:"alert_on_failure"`
	AlertOnRecovery      bool     `json:"alert_on_recovery"`
	AlertOnSSLExpiration bool     `json:"alert_on_ssl_expiration"`
	FailureThreshold     int      `json:"failure_threshold"`
	RecoveryThreshold    int      `json:"recovery_threshold"`
	CustomMessage        string   `json:"custom_message,omitempty"`
}

// Thresholds returns failure/recovery thresholds clamped to at least 1.
func (a AlertConfig) Thresholds() (failure, recovery int) {
	failure, recovery = a.FailureThreshold, a.RecoveryThreshold
	if failure < 1 {
		failure = 1
	}
	if recovery < 1 {
		recovery = 1
	}
	return failure, recovery
}
