// Package executor runs a single check under a hard deadline, a per-host
// connection cap and a size-capped response reader, and normalizes every
// outcome into a domain.ExecutionResult.
package executor

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/monitorcore/internal/domain"
	"github.com/hamed0406/monitorcore/internal/probe"
	"github.com/hamed0406/monitorcore/internal/validate"
)

// Timeouts are the per-protocol defaults used when a monitor does not set
// config.timeoutSeconds.
type Timeouts struct {
	HTTP time.Duration
	Ping time.Duration
	Port time.Duration
	// SSL only bounds the TLS dial of the certificate inspection a website
	// check runs. It is never a check deadline: website checks get the HTTP
	// budget and For never returns SSL.
	SSL  time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{HTTP: 30 * time.Second, Ping: 5 * time.Second, Port: 10 * time.Second, SSL: 10 * time.Second}
}

// For returns the deadline for kind, honoring a per-monitor override.
func (t Timeouts) For(kind domain.CheckKind, cfg domain.MonitorConfig) time.Duration {
	if cfg.TimeoutSeconds > 0 {
		return time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	def := DefaultTimeouts()
	pick := func(v, d time.Duration) time.Duration {
		if v > 0 {
			return v
		}
		return d
	}
	switch kind {
	case domain.KindPingHost:
		return pick(t.Ping, def.Ping)
	case domain.KindPortCheck:
		return pick(t.Port, def.Port)
	default:
		return pick(t.HTTP, def.HTTP)
	}
}

type Options struct {
	Validator       *validate.Validator
	Timeouts        Timeouts
	MaxConnsPerHost int
	MaxBodyBytes    int64
	SSLWarningDays  int
	SSLIntervalHrs  int
	Logger          *zap.Logger

	// Registry replaces the default checkers (tests).
	Registry probe.Registry
}

type Executor struct {
	registry  probe.Registry
	validator *validate.Validator
	timeouts  Timeouts
	hosts     *HostPool
	log       *zap.Logger
	now       func() time.Time
	grace     time.Duration
}

// New wires the default checker registry around one shared transport.
func New(o Options) *Executor {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Validator == nil {
		o.Validator = validate.New(false)
	}
	if o.MaxConnsPerHost < 1 {
		o.MaxConnsPerHost = 4
	}
	reg := o.Registry
	if reg == nil {
		reg = DefaultRegistry(o)
	}
	if missing := reg.Missing(); len(missing) > 0 {
		o.Logger.Warn("executor_missing_checkers", zap.Any("kinds", missing))
	}
	return &Executor{
		registry:  reg,
		validator: o.Validator,
		timeouts:  o.Timeouts,
		hosts:     NewHostPool(o.MaxConnsPerHost),
		log:       o.Logger,
		now:       time.Now,
		grace:     250 * time.Millisecond,
	}
}

// DefaultRegistry builds the production checker for every kind.
func DefaultRegistry(o Options) probe.Registry {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		MaxConnsPerHost:       o.MaxConnsPerHost,
		MaxIdleConnsPerHost:   o.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		DisableCompression:    true,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}
	client := &http.Client{
		Transport: tr,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return http.ErrUseLastResponse
			}
			// redirects must not walk into internal networks either
			if o.Validator != nil {
				return o.Validator.URL(req.URL.String())
			}
			return nil
		},
	}
	httpChk := probe.NewHTTPChecker(client, o.MaxBodyBytes, o.Logger)
	sslChk := probe.NewSSLChecker(o.SSLWarningDays)
	sslChk.DialTimeout = o.Timeouts.SSL
	return probe.Registry{
		domain.KindHTTPRequest: httpChk,
		domain.KindWebsite: &probe.WebsiteChecker{
			HTTP:                 httpChk,
			SSL:                  sslChk,
			WarningDays:          sslChk.WarningDays,
			DefaultIntervalHours: o.SSLIntervalHrs,
		},
		domain.KindPingHost:  probe.NewPingChecker(o.Timeouts.Ping),
		domain.KindPortCheck: probe.NewPortChecker(),
	}
}

// Execute validates and runs one check. It never panics and never returns
// without a result; failures are folded into the result's status.
func (e *Executor) Execute(ctx context.Context, id domain.MonitorID, kind domain.CheckKind, target string, cfg domain.MonitorConfig) domain.ExecutionResult {
	corr := uuid.NewString()
	out := domain.ExecutionResult{MonitorID: id, CheckedAt: e.now().UTC()}
	log := e.log.With(
		zap.String("monitor_id", string(id)),
		zap.String("type", string(kind)),
		zap.String("correlation_id", corr),
	)

	if err := e.validator.Monitor(kind, target, cfg); err != nil {
		log.Info("check_rejected", zap.Error(err))
		return e.fail(out, domain.ResultError, Classify(err), err.Error(), corr)
	}
	chk, err := e.registry.Lookup(kind)
	if err != nil {
		log.Error("check_no_checker", zap.Error(err))
		return e.fail(out, domain.ResultError, KindInternal, err.Error(), corr)
	}

	timeout := e.timeouts.For(kind, cfg)
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	key := PoolKey(kind, target, cfg)
	start := time.Now()
	release, err := e.hosts.Acquire(cctx, key)
	if err != nil {
		log.Warn("check_pool_wait_expired", zap.String("host", hostKey(key)), zap.Error(err))
		out.ResponseTimeMs = ms(time.Since(start))
		return e.fail(out, domain.ResultTimeout, KindTimeout,
			fmt.Sprintf("timed out waiting for a connection slot to %s", hostKey(key)), corr)
	}

	res := e.run(cctx, release, chk, probe.Request{Target: target, Config: cfg, Timeout: timeout}, start)
	if res.ResponseTime <= 0 {
		res.ResponseTime = time.Since(start)
	}

	// a check cut short by our own deadline is a timeout, never a down/error
	if !res.IsUp && res.Status != domain.ResultTimeout && errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		res.Status = domain.ResultTimeout
		res.Details.ErrorMessage = ""
	}
	if res.Status == domain.ResultTimeout && res.Details.ErrorMessage == "" {
		res.Details.ErrorMessage = fmt.Sprintf("check timed out after %s", timeout)
	}

	out.Status = res.Status
	out.IsUp = res.IsUp && res.Status == domain.ResultUp
	out.ResponseTimeMs = ms(res.ResponseTime)
	out.Details = res.Details
	out.SSLCheckedAt = res.SSLCheckedAt
	if out.IsUp {
		log.Debug("check_done", zap.Int64("response_ms", res.ResponseTime.Milliseconds()))
		return out
	}

	kindErr := kindOf(res)
	log.Info("check_failed",
		zap.String("status", string(res.Status)),
		zap.String("error_kind", string(kindErr)),
		zap.String("message", probe.SanitizeMessage(res.Details.ErrorMessage)),
		zap.String("cause", causeOf(res.Err)),
	)
	return e.fail(out, res.Status, kindErr, res.Details.ErrorMessage, corr)
}

// run executes the checker on its own goroutine so a checker that ignores
// its context cannot hold the caller past the deadline plus grace. The host
// slot is released only when the checker actually returns.
func (e *Executor) run(ctx context.Context, release func(), chk probe.Checker, req probe.Request, start time.Time) (res probe.Result) {
	done := make(chan probe.Result, 1)
	go func() {
		r := e.safeCheck(ctx, chk, req, start)
		release()
		done <- r
	}()

	select {
	case res = <-done:
		return res
	case <-ctx.Done():
	}
	t := time.NewTimer(e.grace)
	defer t.Stop()
	select {
	case res = <-done:
		return res
	case <-t.C:
		return probe.Result{
			Status:       domain.ResultTimeout,
			ResponseTime: time.Since(start),
			Err:          ctx.Err(),
		}
	}
}

func (e *Executor) safeCheck(ctx context.Context, chk probe.Checker, req probe.Request, start time.Time) (res probe.Result) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("checker_panic", zap.Any("panic", r), zap.Stack("stack"))
			res = probe.Result{
				Status:       domain.ResultError,
				ResponseTime: time.Since(start),
				Details:      domain.ResultDetails{ErrorMessage: "internal error while running check"},
				Err:          fmt.Errorf("%w: %v", ErrPanic, r),
			}
		}
	}()
	return chk.Check(ctx, req)
}

func (e *Executor) fail(out domain.ExecutionResult, status domain.ResultStatus, kind Kind, msg, corr string) domain.ExecutionResult {
	msg = probe.SanitizeMessage(msg)
	if msg == "" {
		msg = string(status)
	}
	out.Status = status
	out.IsUp = false
	out.Error = msg
	out.Details.ErrorMessage = msg
	out.Details.ErrorKind = string(kind)
	out.Details.CorrelationID = corr
	return out
}

// HostSlots reports the number of hosts currently holding or awaiting slots.
func (e *Executor) HostSlots() int { return e.hosts.Len() }

// causeOf renders err for logs with credentials stripped.
func causeOf(err error) string {
	if err == nil {
		return ""
	}
	return probe.SanitizeMessage(err.Error())
}

func ms(d time.Duration) *int64 {
	v := d.Milliseconds()
	if v < 0 {
		v = 0
	}
	return &v
}
