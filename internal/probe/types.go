package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/hamed0406/monitorcore/internal/domain"
)

// Request is one check invocation. The deadline travels on the context;
// Timeout repeats it for checkers that pass it to external tools.
type Request struct {
	Target  string
	Config  domain.MonitorConfig
	Timeout time.Duration
}

// Result holds the outcome of a single probe.
type Result struct {
	Status       domain.ResultStatus
	IsUp         bool
	ResponseTime time.Duration
	Details      domain.ResultDetails

	// Err is the underlying failure, kept for classification. It is never
	// shown to users as-is.
	Err error

	// SSLCheckedAt is set when a website check ran its SSL sub-check.
	SSLCheckedAt *time.Time
}

// Checker is implemented by every protocol check (HTTP, SSL, ping, port).
// Implementations must not panic and must honor ctx cancellation.
type Checker interface {
	Check(ctx context.Context, req Request) Result
}

// Registry maps each check kind to its checker.
type Registry map[domain.CheckKind]Checker

func (r Registry) Lookup(kind domain.CheckKind) (Checker, error) {
	c, ok := r[kind]
	if !ok || c == nil {
		return nil, fmt.Errorf("no checker registered for %q", kind)
	}
	return c, nil
}

// Missing lists the kinds that have no checker.
func (r Registry) Missing() []domain.CheckKind {
	var out []domain.CheckKind
	for _, k := range domain.Kinds {
		if _, ok := r[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

func up(d time.Duration, det domain.ResultDetails) Result {
	return Result{Status: domain.ResultUp, IsUp: true, ResponseTime: d, Details: det}
}

func failed(status domain.ResultStatus, d time.Duration, det domain.ResultDetails, msg string, err error) Result {
	det.ErrorMessage = msg
	return Result{Status: status, ResponseTime: d, Details: det, Err: err}
}
