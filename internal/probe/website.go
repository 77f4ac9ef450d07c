package probe

import (
	"context"
	"strings"
	"time"

	"github.com/hamed0406/monitorcore/internal/domain"
)

// WebsiteChecker runs an HTTP check and, for https targets with SSL checking
// enabled, inspects the certificate when the smart frequency policy says it
// is due.
type WebsiteChecker struct {
	HTTP                 *HTTPChecker
	SSL                  *SSLChecker
	WarningDays          int
	DefaultIntervalHours int
	Now                  func() time.Time
}

func (w *WebsiteChecker) Check(ctx context.Context, req Request) Result {
	res := w.HTTP.Check(ctx, req)

	cfg := req.Config
	if !cfg.EnableSSLCheck || !strings.HasPrefix(strings.ToLower(req.Target), "https://") {
		return res
	}
	now := time.Now()
	if w.Now != nil {
		now = w.Now()
	}
	if !SSLCheckDue(cfg, w.WarningDays, w.DefaultIntervalHours, now) {
		return res
	}
	if ctx.Err() != nil {
		return res
	}

	sres := w.SSL.Check(ctx, req)
	if sres.Details.SSL == nil {
		// connection-level failure; leave the SSL timestamp alone so it is retried
		return res
	}
	res.Details.SSL = sres.Details.SSL
	res.SSLCheckedAt = &now
	if sres.Details.Warning != "" {
		res.Details.Warning = sres.Details.Warning
	}
	if res.IsUp && sres.Status != domain.ResultUp {
		res.Status = sres.Status
		res.IsUp = false
		res.Details.ErrorMessage = "ssl: " + sres.Details.ErrorMessage
	}
	return res
}
