package executor

import (
	"context"
	"errors"

	"github.com/hamed0406/monitorcore/internal/domain"
	"github.com/hamed0406/monitorcore/internal/probe"
	"github.com/hamed0406/monitorcore/internal/validate"
)

// Kind is the failure taxonomy attached to failed results.
type Kind string

const (
	KindValidation Kind = "validation"
	KindTimeout    Kind = "timeout"
	KindNetwork    Kind = "network"
	KindSecurity   Kind = "security"
	KindInternal   Kind = "internal"
)

// ErrPanic wraps a recovered checker panic.
var ErrPanic = errors.New("checker panicked")

// Classify maps an error to its failure kind.
func Classify(err error) Kind {
	var ve *validate.Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		if ve.Security {
			return KindSecurity
		}
		return KindValidation
	case errors.Is(err, ErrPanic):
		return KindInternal
	case probe.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindInternal
	}
	return KindNetwork
}

// kindOf picks a failure kind for a probe result whose Err may be nil (for
// example a 503 or a keyword mismatch).
func kindOf(res probe.Result) Kind {
	if res.Status == domain.ResultTimeout {
		return KindTimeout
	}
	if res.Err != nil {
		return Classify(res.Err)
	}
	return KindNetwork
}
