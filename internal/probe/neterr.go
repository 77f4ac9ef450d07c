package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"os"
	"strings"
	"syscall"

	"github.com/hamed0406/monitorcore/internal/domain"
)

// ClassifyNetError maps a dial/transport error to a result status and a
// short user-facing message. Definitive unreachability is "down"; ambiguous
// failures are "error".
func ClassifyNetError(err error) (domain.ResultStatus, string) {
	if err == nil {
		return domain.ResultUp, ""
	}
	if IsTimeout(err) {
		return domain.ResultTimeout, "timed out"
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return domain.ResultDown, "connection refused"
	case errors.Is(err, syscall.EHOSTUNREACH):
		return domain.ResultDown, "host unreachable"
	case errors.Is(err, syscall.ENETUNREACH):
		return domain.ResultDown, "network unreachable"
	case errors.Is(err, syscall.ECONNRESET):
		return domain.ResultDown, "connection reset by peer"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return domain.ResultDown, "host not found"
		}
		return domain.ResultError, "dns lookup failed"
	}

	var unknownAuth x509.UnknownAuthorityError
	if errors.As(err, &unknownAuth) {
		return domain.ResultDown, "certificate is self-signed or signed by an unknown authority"
	}
	var invalidCert x509.CertificateInvalidError
	if errors.As(err, &invalidCert) {
		if invalidCert.Reason == x509.Expired {
			return domain.ResultDown, "certificate has expired or is not yet valid"
		}
		return domain.ResultDown, "certificate is invalid"
	}
	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return domain.ResultDown, "certificate does not match host"
	}
	var verifyErr *tls.CertificateVerificationError
	if errors.As(err, &verifyErr) {
		return domain.ResultDown, "unable to verify certificate chain"
	}
	var recErr tls.RecordHeaderError
	if errors.As(err, &recErr) || strings.Contains(err.Error(), "handshake failure") {
		return domain.ResultError, "tls handshake failed"
	}
	return domain.ResultError, "request failed"
}

// IsTimeout reports deadline and i/o timeouts.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
