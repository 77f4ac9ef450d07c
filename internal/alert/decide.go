// Package alert decides whether a new result should produce a failure,
// recovery or certificate-expiry alert. It does no I/O.
package alert

import (
	"fmt"
	"strconv"
	"time"

	"github.com/hamed0406/monitorcore/internal/domain"
)

// SSLAlertInterval rate-limits certificate expiry alerts per monitor.
const SSLAlertInterval = 24 * time.Hour

const defaultSSLWarningDays = 30

// Outcome groups result statuses for streak counting. Timeouts count as
// failures; errors are their own class so a misconfigured monitor does not
// page anyone.
type Outcome int

const (
	OutcomeUp Outcome = iota
	OutcomeDown
	OutcomeError
)

func OutcomeOf(r domain.MonitorResult) Outcome {
	switch {
	case r.IsUp:
		return OutcomeUp
	case r.Status == domain.ResultError:
		return OutcomeError
	default:
		return OutcomeDown
	}
}

// Streak scans results newest first and counts how many share the newest
// result's outcome, stopping at the first one that differs.
func Streak(recent []domain.MonitorResult) (Outcome, int) {
	if len(recent) == 0 {
		return OutcomeError, 0
	}
	head := OutcomeOf(recent[0])
	n := 0
	for _, r := range recent {
		if OutcomeOf(r) != head {
			break
		}
		n++
	}
	return head, n
}

// Lookback is how many recent results Decide needs.
func Lookback(cfg domain.AlertConfig) int {
	f, r := cfg.Thresholds()
	return max(f, r)
}

type Input struct {
	Config      domain.AlertConfig
	Monitor     domain.MonitorID
	Name        string
	Target      string
	Current     domain.MonitorStatus
	Recent      []domain.MonitorResult // newest first, including the result just recorded
	State       domain.AlertState
	WarningDays int
	Now         time.Time
}

type Alert struct {
	Kind     domain.AlertKind
	Reason   string
	Metadata map[string]string
}

type Decision struct {
	Alerts  []Alert
	State   domain.AlertState
	Changed bool
}

// Decide applies the threshold rules:
//   - a failure alert fires once per failure streak, when the streak first
//     reaches the failure threshold;
//   - a recovery alert fires when a streak that reached the failure threshold
//     is followed by recoveryThreshold consecutive ups;
//   - a certificate expiry alert fires at most once per SSLAlertInterval.
func Decide(in Input) Decision {
	d := Decision{State: in.State}
	d.State.MonitorID = in.Monitor
	if !in.Config.Enabled || len(in.Recent) == 0 {
		return d
	}
	failTh, recTh := in.Config.Thresholds()
	outcome, n := Streak(in.Recent)
	latest := in.Recent[0]
	now := in.Now

	switch {
	case in.Current == domain.StatusDown && outcome == OutcomeDown && n >= failTh && !d.State.Open:
		d.State.Open = true
		d.Changed = true
		if in.Config.AlertOnFailure {
			d.Alerts = append(d.Alerts, Alert{
				Kind:     domain.AlertFailure,
				Reason:   failureReason(in, latest, n),
				Metadata: meta(in, latest, n),
			})
			d.State.LastSentAt = &now
		}
	case in.Current == domain.StatusUp && outcome == OutcomeUp && n >= recTh && d.State.Open:
		d.State.Open = false
		d.Changed = true
		if in.Config.AlertOnRecovery {
			d.Alerts = append(d.Alerts, Alert{
				Kind:     domain.AlertRecovery,
				Reason:   fmt.Sprintf("%s is back up after %d consecutive successful check(s)", label(in), n),
				Metadata: meta(in, latest, n),
			})
			d.State.LastSentAt = &now
		}
	}

	if a, ok := sslAlert(in, latest); ok {
		d.Alerts = append(d.Alerts, a)
		d.State.LastSSLAlertAt = &now
		d.Changed = true
	}
	return d
}

func sslAlert(in Input, latest domain.MonitorResult) (Alert, bool) {
	ssl := latest.Details.SSL
	if !in.Config.AlertOnSSLExpiration || ssl == nil {
		return Alert{}, false
	}
	warn := in.WarningDays
	if warn < 1 {
		warn = defaultSSLWarningDays
	}
	if ssl.DaysRemaining > warn {
		return Alert{}, false
	}
	if last := in.State.LastSSLAlertAt; last != nil && in.Now.Sub(*last) < SSLAlertInterval {
		return Alert{}, false
	}
	reason := fmt.Sprintf("certificate for %s expires in %d day(s)", label(in), ssl.DaysRemaining)
	if ssl.DaysRemaining <= 0 {
		reason = fmt.Sprintf("certificate for %s has expired", label(in))
	}
	m := meta(in, latest, 0)
	m["days_remaining"] = strconv.Itoa(ssl.DaysRemaining)
	m["valid_to"] = ssl.ValidTo.UTC().Format(time.RFC3339)
	m["issuer"] = ssl.Issuer
	return Alert{Kind: domain.AlertSSLExpiring, Reason: reason, Metadata: m}, true
}

func failureReason(in Input, latest domain.MonitorResult, n int) string {
	msg := latest.Details.ErrorMessage
	if msg == "" {
		msg = string(latest.Status)
	}
	return fmt.Sprintf("%s is down after %d consecutive failed check(s): %s", label(in), n, msg)
}

func label(in Input) string {
	if in.Name != "" {
		return in.Name
	}
	return string(in.Monitor)
}

func meta(in Input, latest domain.MonitorResult, streak int) map[string]string {
	m := map[string]string{
		"target":     in.Target,
		"status":     string(latest.Status),
		"checked_at": latest.CheckedAt.UTC().Format(time.RFC3339),
	}
	if streak > 0 {
		m["streak"] = strconv.Itoa(streak)
	}
	if latest.ResponseTimeMs != nil {
		m["response_time_ms"] = strconv.FormatInt(*latest.ResponseTimeMs, 10)
	}
	if latest.Details.StatusCode != 0 {
		m["status_code"] = strconv.Itoa(latest.Details.StatusCode)
	}
	if in.Config.CustomMessage != "" {
		m["custom_message"] = in.Config.CustomMessage
	}
	return m
}
