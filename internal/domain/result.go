package domain

import "time"

// ResultStatus is the outcome of one executed check.
type ResultStatus string

const (
	ResultUp      ResultStatus = "up"
	ResultDown    ResultStatus = "down"
	ResultError   ResultStatus = "error"
	ResultTimeout ResultStatus = "timeout"
)

// MonitorResult is an append-only record of one check. It is never updated.
type MonitorResult struct {
	ID             int64         `json:"id"`
	MonitorID      MonitorID     `json:"monitor_id"`
	CheckedAt      time.Time     `json:"checked_at"`
	Status         ResultStatus  `json:"status"`
	IsUp           bool          `json:"is_up"`
	ResponseTimeMs *int64        `json:"response_time_ms"` // pointer to allow nil
	Details        ResultDetails `json:"details"`
}

type ResultDetails struct {
	StatusCode     int               `json:"status_code,omitempty"`
	StatusText     string            `json:"status_text,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	BodyBytes      int64             `json:"body_bytes,omitempty"`
	Truncated      bool              `json:"truncated,omitempty"`
	KeywordFound   *bool             `json:"keyword_found,omitempty"`
	KeywordSnippet string            `json:"keyword_snippet,omitempty"`
	DNSClass       string            `json:"dns_class,omitempty"`

	SSL  *SSLDetails  `json:"ssl,omitempty"`
	Ping *PingDetails `json:"ping,omitempty"`
	Port *PortDetails `json:"port,omitempty"`

	Warning       string `json:"warning,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
	ErrorKind     string `json:"error_kind,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type SSLDetails struct {
	Issuer             string    `json:"issuer"`
	Subject            string    `json:"subject"`
	ValidFrom          time.Time `json:"valid_from"`
	ValidTo            time.Time `json:"valid_to"`
	SerialNumber       string    `json:"serial_number"`
	Fingerprint        string    `json:"fingerprint"`
	DaysRemaining      int       `json:"days_remaining"`
	DNSNames           []string  `json:"dns_names,omitempty"`
	Authorized         bool      `json:"authorized"`
	AuthorizationError string    `json:"authorization_error,omitempty"`
	Message            string    `json:"message,omitempty"`
}

type PingDetails struct {
	Host  string  `json:"host"`
	RTTMs float64 `json:"rtt_ms,omitempty"`
}

type PortDetails struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
	Note     string `json:"note,omitempty"`
}

// ExecutionResult is what the executor hands to the reconciler.
type ExecutionResult struct {
	MonitorID      MonitorID     `json:"monitor_id"`
	Status         ResultStatus  `json:"status"`
	CheckedAt      time.Time     `json:"checked_at"`
	ResponseTimeMs *int64        `json:"response_time_ms,omitempty"`
	Details        ResultDetails `json:"details"`
	IsUp           bool          `json:"is_up"`
	Error          string        `json:"error,omitempty"`

	// SSLCheckedAt is set when a website check ran its SSL sub-check, so the
	// caller can persist the timestamp into the monitor config.
	SSLCheckedAt *time.Time `json:"-"`
}

// Result converts an execution outcome into the row that gets persisted.
func (e ExecutionResult) Result() MonitorResult {
	return MonitorResult{
		MonitorID:      e.MonitorID,
		CheckedAt:      e.CheckedAt,
		Status:         e.Status,
		IsUp:           e.IsUp,
		ResponseTimeMs: e.ResponseTimeMs,
		Details:        e.Details,
	}
}
