package probe

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/hamed0406/monitorcore/internal/domain"
)

const defaultSSLWarningDays = 30

type SSLChecker struct {
	WarningDays int
	DialTimeout time.Duration
	Now         func() time.Time
	// Roots overrides the system pool when verifying the chain (tests).
	Roots *x509.CertPool
}

func NewSSLChecker(warningDays int) *SSLChecker {
	if warningDays < 1 {
		warningDays = defaultSSLWarningDays
	}
	return &SSLChecker{WarningDays: warningDays, Now: time.Now}
}

// Check connects with verification disabled so that expired, self-signed
// and mismatched certificates can still be inspected.
func (c *SSLChecker) Check(ctx context.Context, req Request) Result {
	host, port, err := tlsAddress(req.Target)
	if err != nil {
		return failed(domain.ResultError, 0, domain.ResultDetails{}, err.Error(), err)
	}

	conf := &tls.Config{InsecureSkipVerify: true} //nolint:gosec // inspection only
	if net.ParseIP(host) == nil {
		conf.ServerName = host
	}
	d := &tls.Dialer{NetDialer: &net.Dialer{Timeout: c.DialTimeout}, Config: conf}

	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	elapsed := time.Since(start)
	if err != nil {
		status, msg := ClassifyNetError(err)
		return failed(status, elapsed, domain.ResultDetails{}, msg, err)
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return failed(domain.ResultError, elapsed, domain.ResultDetails{}, "server presented no certificate", nil)
	}

	warn := req.Config.SSLWarningDays
	if warn < 1 {
		warn = c.WarningDays
	}
	ssl := c.verify(state.PeerCertificates, host)
	res := EvaluateCertificate(state.PeerCertificates[0], c.now(), warn, ssl)
	res.ResponseTime = elapsed
	return res
}

func (c *SSLChecker) verify(chain []*x509.Certificate, host string) domain.SSLDetails {
	inter := x509.NewCertPool()
	for _, ic := range chain[1:] {
		inter.AddCert(ic)
	}
	opts := x509.VerifyOptions{DNSName: host, Intermediates: inter, Roots: c.Roots, CurrentTime: c.now()}
	var out domain.SSLDetails
	if _, err := chain[0].Verify(opts); err != nil {
		_, out.AuthorizationError = ClassifyNetError(err)
	} else {
		out.Authorized = true
	}
	return out
}

func (c *SSLChecker) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// EvaluateCertificate turns a leaf certificate into a result. An expired
// certificate is down, a not-yet-valid one is an error, and one inside the
// warning window stays up with a warning.
func EvaluateCertificate(cert *x509.Certificate, now time.Time, warningDays int, base domain.SSLDetails) Result {
	ssl := base
	ssl.Issuer = cert.Issuer.String()
	ssl.Subject = cert.Subject.String()
	ssl.ValidFrom = cert.NotBefore
	ssl.ValidTo = cert.NotAfter
	ssl.SerialNumber = strings.ToUpper(cert.SerialNumber.Text(16))
	ssl.Fingerprint = fingerprint(cert.Raw)
	ssl.DNSNames = cert.DNSNames
	ssl.DaysRemaining = DaysRemaining(cert.NotAfter, now)

	det := domain.ResultDetails{SSL: &ssl}
	switch {
	case now.Before(cert.NotBefore):
		ssl.Message = "certificate is not yet valid"
		return failed(domain.ResultError, 0, det, ssl.Message, nil)
	case !now.Before(cert.NotAfter):
		ssl.Message = fmt.Sprintf("certificate expired %d day(s) ago", -ssl.DaysRemaining)
		return failed(domain.ResultDown, 0, det, ssl.Message, nil)
	case ssl.DaysRemaining <= warningDays:
		ssl.Message = fmt.Sprintf("certificate expires in %d day(s)", ssl.DaysRemaining)
		det.Warning = ssl.Message
	}
	return up(0, det)
}

// DaysRemaining is the ceiling of the days left until notAfter.
func DaysRemaining(notAfter, now time.Time) int {
	return int(math.Ceil(notAfter.Sub(now).Hours() / 24))
}

// SSLCheckInterval picks how often a website's certificate is re-inspected:
// hourly inside the warning window, every 6h inside twice the window,
// otherwise the configured interval.
func SSLCheckInterval(daysRemaining *int, warningDays, defaultHours int) time.Duration {
	if warningDays < 1 {
		warningDays = defaultSSLWarningDays
	}
	if defaultHours < 1 {
		defaultHours = 24
	}
	if daysRemaining != nil {
		switch d := *daysRemaining; {
		case d <= warningDays:
			return time.Hour
		case d <= 2*warningDays:
			return 6 * time.Hour
		}
	}
	return time.Duration(defaultHours) * time.Hour
}

// SSLCheckDue reports whether the certificate should be inspected now.
func SSLCheckDue(cfg domain.MonitorConfig, warningDays, defaultHours int, now time.Time) bool {
	if cfg.SSLLastCheckedAt == nil {
		return true
	}
	if cfg.SSLWarningDays > 0 {
		warningDays = cfg.SSLWarningDays
	}
	if cfg.SSLCheckFrequencyHours > 0 {
		defaultHours = cfg.SSLCheckFrequencyHours
	}
	return now.Sub(*cfg.SSLLastCheckedAt) >= SSLCheckInterval(cfg.SSLDaysRemaining, warningDays, defaultHours)
}

func tlsAddress(target string) (string, string, error) {
	target = strings.TrimSpace(target)
	if strings.Contains(target, "://") {
		u, err := url.Parse(target)
		if err != nil || u.Hostname() == "" {
			return "", "", errors.New("invalid url")
		}
		port := u.Port()
		if port == "" {
			port = "443"
		}
		return u.Hostname(), port, nil
	}
	if h, p, err := net.SplitHostPort(target); err == nil {
		return h, p, nil
	}
	if target == "" {
		return "", "", errors.New("empty target")
	}
	return strings.Trim(target, "[]"), "443", nil
}

func fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}
