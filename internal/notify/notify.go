package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/monitorcore/internal/domain"
)

// Alert is one notification request. Core code only decides that it should
// be sent; notifiers deliver it.
type Alert struct {
	MonitorID domain.MonitorID  `json:"monitor_id"`
	Name      string            `json:"name,omitempty"`
	Kind      domain.AlertKind  `json:"kind"`
	Reason    string            `json:"reason"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Channels  []string          `json:"channels,omitempty"`
	At        time.Time         `json:"at"`
}

// Title is a short human heading for chat-style channels.
func (a Alert) Title() string {
	name := a.Name
	if name == "" {
		name = string(a.MonitorID)
	}
	switch a.Kind {
	case domain.AlertFailure:
		return "🔴 " + name + " DOWN"
	case domain.AlertRecovery:
		return "🟢 " + name + " RECOVERED"
	case domain.AlertSSLExpiring:
		return "🟠 " + name + " certificate expiring"
	}
	return name
}

// Text renders the reason and metadata in a stable order.
func (a Alert) Text() string {
	var b strings.Builder
	b.WriteString(a.Reason)
	keys := make([]string, 0, len(a.Metadata))
	for k := range a.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %s", k, a.Metadata[k])
	}
	return b.String()
}

type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// Router delivers an alert to the channels it names, or to every channel
// when it names none. The log channel always receives it.
type Router struct {
	Channels map[string]Notifier
	Log      Notifier
}

func (r Router) Notify(ctx context.Context, a Alert) error {
	var errs error
	if r.Log != nil {
		errs = multierr.Append(errs, r.Log.Notify(ctx, a))
	}
	if len(a.Channels) == 0 {
		names := make([]string, 0, len(r.Channels))
		for name := range r.Channels {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			errs = multierr.Append(errs, r.Channels[name].Notify(ctx, a))
		}
		return errs
	}
	for _, name := range a.Channels {
		n, ok := r.Channels[strings.ToLower(name)]
		if !ok {
			if name != "log" {
				errs = multierr.Append(errs, fmt.Errorf("unknown notification channel %q", name))
			}
			continue
		}
		errs = multierr.Append(errs, n.Notify(ctx, a))
	}
	return errs
}

// Log writes alerts to the service log. It is the fallback when no external
// channel is configured.
type Log struct{ Logger *zap.Logger }

func (l Log) Notify(_ context.Context, a Alert) error {
	l.Logger.Info("alert",
		zap.String("monitor_id", string(a.MonitorID)),
		zap.String("kind", string(a.Kind)),
		zap.String("reason", a.Reason),
		zap.Any("metadata", a.Metadata),
	)
	return nil
}
