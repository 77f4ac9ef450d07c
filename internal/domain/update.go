package domain

// MonitorUpdate is a partial update. Nil fields are left unchanged.
type MonitorUpdate struct {
	Name             *string        `json:"name,omitempty"`
	Kind             *CheckKind     `json:"type,omitempty"`
	Target           *string        `json:"target,omitempty"`
	FrequencyMinutes *int           `json:"frequency_minutes,omitempty"`
	Status           *MonitorStatus `json:"status,omitempty"`
	Config           *ConfigPatch   `json:"config,omitempty"`
	AlertConfig      *AlertConfig   `json:"alert_config,omitempty"`
}

// ConfigPatch names every optional config field explicitly. Headers and
// ExpectedStatusCodes replace the stored value when non-nil. An Auth with
// Type "none" clears stored credentials.
type ConfigPatch struct {
	Method                 *string           `json:"method,omitempty"`
	Headers                map[string]string `json:"headers,omitempty"`
	Body                   *string           `json:"body,omitempty"`
	Auth                   *AuthConfig       `json:"auth,omitempty"`
	ExpectedStatusCodes    []string          `json:"expected_status_codes,omitempty"`
	KeywordInBody          *string           `json:"keyword_in_body,omitempty"`
	KeywordShouldBePresent *bool             `json:"keyword_should_be_present,omitempty"`
	TimeoutSeconds         *int              `json:"timeout_seconds,omitempty"`
	EnableSSLCheck         *bool             `json:"enable_ssl_check,omitempty"`
	SSLWarningDays         *int              `json:"ssl_warning_days,omitempty"`
	SSLCheckFrequencyHours *int              `json:"ssl_check_frequency_hours,omitempty"`
	Port                   *int              `json:"port,omitempty"`
	Protocol               *string           `json:"protocol,omitempty"`
}

// Changes records which schedule-relevant parts of a monitor an update touched.
type Changes struct {
	Kind      bool
	Target    bool
	Frequency bool
	Config    bool
	Status    bool
	Alert     bool
	Name      bool
}

// Definition reports whether the check definition itself changed.
func (c Changes) Definition() bool {
	return c.Kind || c.Target || c.Frequency || c.Config
}

func (c Changes) Any() bool {
	return c.Definition() || c.Status || c.Alert || c.Name
}

// Apply mutates m in place and reports what actually changed. Setting a
// field to its current value is not a change.
func (u MonitorUpdate) Apply(m *Monitor) Changes {
	var ch Changes
	if u.Name != nil && *u.Name != m.Name {
		m.Name = *u.Name
		ch.Name = true
	}
	if u.Kind != nil && *u.Kind != m.Kind {
		m.Kind = *u.Kind
		ch.Kind = true
	}
	if u.Target != nil && *u.Target != m.Target {
		m.Target = *u.Target
		ch.Target = true
	}
	if u.FrequencyMinutes != nil && *u.FrequencyMinutes != m.FrequencyMinutes {
		m.FrequencyMinutes = *u.FrequencyMinutes
		ch.Frequency = true
	}
	if u.Status != nil && *u.Status != m.Status {
		m.Status = *u.Status
		ch.Status = true
	}
	if u.Config != nil {
		ch.Config = u.Config.Apply(&m.Config)
	}
	if u.AlertConfig != nil && !alertEqual(*u.AlertConfig, m.AlertConfig) {
		m.AlertConfig = *u.AlertConfig
		m.AlertConfig.NotificationChannels = append([]string(nil), u.AlertConfig.NotificationChannels...)
		ch.Alert = true
	}
	return ch
}

// Apply merges the patch into c and reports whether anything changed.
func (p ConfigPatch) Apply(c *MonitorConfig) bool {
	changed := false
	setString := func(dst *string, src *string) {
		if src != nil && *src != *dst {
			*dst = *src
			changed = true
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil && *src != *dst {
			*dst = *src
			changed = true
		}
	}

	setString(&c.Method, p.Method)
	setString(&c.Body, p.Body)
	setString(&c.KeywordInBody, p.KeywordInBody)
	setString(&c.Protocol, p.Protocol)
	setInt(&c.TimeoutSeconds, p.TimeoutSeconds)
	setInt(&c.SSLWarningDays, p.SSLWarningDays)
	setInt(&c.SSLCheckFrequencyHours, p.SSLCheckFrequencyHours)
	setInt(&c.Port, p.Port)

	if p.Headers != nil && !stringMapEqual(p.Headers, c.Headers) {
		c.Headers = make(map[string]string, len(p.Headers))
		for k, v := range p.Headers {
			c.Headers[k] = v
		}
		changed = true
	}
	if p.ExpectedStatusCodes != nil && !stringSliceEqual(p.ExpectedStatusCodes, c.ExpectedStatusCodes) {
		c.ExpectedStatusCodes = append([]string(nil), p.ExpectedStatusCodes...)
		changed = true
	}
	if p.Auth != nil {
		if p.Auth.Type == "none" {
			if c.Auth != nil {
				c.Auth = nil
				changed = true
			}
		} else if c.Auth == nil || *c.Auth != *p.Auth {
			a := *p.Auth
			c.Auth = &a
			changed = true
		}
	}
	if p.KeywordShouldBePresent != nil {
		if c.KeywordShouldBePresent == nil || *c.KeywordShouldBePresent != *p.KeywordShouldBePresent {
			v := *p.KeywordShouldBePresent
			c.KeywordShouldBePresent = &v
			changed = true
		}
	}
	if p.EnableSSLCheck != nil && *p.EnableSSLCheck != c.EnableSSLCheck {
		c.EnableSSLCheck = *p.EnableSSLCheck
		changed = true
	}
	return changed
}

func alertEqual(a, b AlertConfig) bool {
	if !stringSliceEqual(a.NotificationChannels, b.NotificationChannels) {
		return false
	}
	return a.Enabled == b.Enabled &&
		a.AlertOnFailure == b.AlertOnFailure &&
		a.AlertOnRecovery == b.AlertOnRecovery &&
		a.AlertOnSSLExpiration == b.AlertOnSSLExpiration &&
		a.FailureThreshold == b.FailureThreshold &&
		a.RecoveryThreshold == b.RecoveryThreshold &&
		a.CustomMessage == b.CustomMessage
}

func stringMapEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
