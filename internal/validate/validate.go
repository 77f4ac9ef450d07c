// Package validate rejects malformed or dangerous monitor targets before any
// network call is attempted.
package validate

import (
	"fmt"
	"net/netip"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/hamed0406/monitorcore/internal/domain"
)

// Error is a structured validation failure. Security errors cover SSRF-prone
// and injection-prone targets; everything else is a plain validation error.
type Error struct {
	Field    string
	Reason   string
	Security bool
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func invalid(field, format string, args ...any) *Error {
	return &Error{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func blocked(field, format string, args ...any) *Error {
	return &Error{Field: field, Reason: fmt.Sprintf(format, args...), Security: true}
}

const maxHostLen = 253

var (
	hostnameRE  = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*\.?$`)
	shellMetaRE = regexp.MustCompile("[;&|`$(){}\\[\\]<>\\\\'\"!*?~\\s]")
)

// internalNames are hostnames that resolve to the local host or private
// infrastructure regardless of DNS.
var internalNames = []string{"localhost", "metadata.google.internal", "metadata"}

var internalSuffixes = []string{".localhost", ".local", ".internal", ".localdomain", ".home.arpa"}

// extra ranges not covered by netip's IsPrivate/IsLoopback/IsLinkLocal helpers
var internalPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("64:ff9b::/96"),
}

type Validator struct {
	AllowInternal bool
}

func New(allowInternal bool) *Validator {
	return &Validator{AllowInternal: allowInternal}
}

// Monitor validates a monitor's target according to its kind.
func (v *Validator) Monitor(kind domain.CheckKind, target string, cfg domain.MonitorConfig) error {
	switch kind {
	case domain.KindHTTPRequest, domain.KindWebsite:
		return v.URL(target)
	case domain.KindPingHost:
		return v.Host(target)
	case domain.KindPortCheck:
		host, port, err := PortTarget(target, cfg)
		if err != nil {
			return err
		}
		return v.Port(host, port, cfg.Protocol)
	default:
		return invalid("type", "unsupported monitor type %q", kind)
	}
}

// URL accepts only http(s) URLs whose host is not internal.
func (v *Validator) URL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return invalid("target", "url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return invalid("target", "malformed url")
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return invalid("target", "scheme %q not allowed; use http or https", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return invalid("target", "url has no host")
	}
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err != nil || n < 1 || n > 65535 {
			return invalid("target", "invalid port %q", p)
		}
	}
	if err := v.hostGrammar(host); err != nil {
		return err
	}
	return v.internal(host)
}

// Host validates a bare host used by ping and port checks.
func (v *Validator) Host(host string) error {
	if len(host) < 1 || len(host) > maxHostLen {
		return invalid("target", "host must be 1-%d characters", maxHostLen)
	}
	if shellMetaRE.MatchString(host) {
		return blocked("target", "host contains forbidden characters")
	}
	if strings.HasPrefix(host, "-") {
		return blocked("target", "host must not start with '-'")
	}
	if err := v.hostGrammar(host); err != nil {
		return err
	}
	return v.internal(host)
}

// Port validates a port-check target.
func (v *Validator) Port(host string, port int, protocol string) error {
	if err := v.Host(host); err != nil {
		return err
	}
	if port < 1 || port > 65535 {
		return invalid("port", "port must be between 1 and 65535")
	}
	switch strings.ToLower(protocol) {
	case "", "tcp", "udp":
		return nil
	default:
		return invalid("protocol", "protocol must be tcp or udp")
	}
}

// PortTarget splits a port-check target. The port comes from cfg.Port when
// set, otherwise from a host:port target.
func PortTarget(target string, cfg domain.MonitorConfig) (string, int, error) {
	target = strings.TrimSpace(target)
	if cfg.Port != 0 {
		host := target
		if h, _, err := splitHostPort(target); err == nil {
			host = h
		}
		return strings.Trim(host, "[]"), cfg.Port, nil
	}
	host, p, err := splitHostPort(target)
	if err != nil {
		return "", 0, invalid("target", "port check target must be host:port or set config.port")
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, invalid("port", "invalid port %q", p)
	}
	return host, n, nil
}

func splitHostPort(s string) (string, string, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return "", "", fmt.Errorf("missing port")
	}
	host, port := s[:i], s[i+1:]
	if strings.HasPrefix(host, "[") {
		if !strings.HasSuffix(host, "]") {
			return "", "", fmt.Errorf("bad ipv6 literal")
		}
		host = host[1 : len(host)-1]
	} else if strings.Contains(host, ":") {
		// bare IPv6 without brackets has no port
		return "", "", fmt.Errorf("missing port")
	}
	return host, port, nil
}

func (v *Validator) hostGrammar(host string) error {
	h := strings.Trim(host, "[]")
	if _, err := netip.ParseAddr(h); err == nil {
		return nil
	}
	if len(h) > maxHostLen || !hostnameRE.MatchString(h) || allNumeric(h) {
		return invalid("target", "invalid hostname %q", host)
	}
	return nil
}

// allNumeric catches dotted-decimal strings that failed to parse as IPv4.
func allNumeric(h string) bool {
	for _, label := range strings.Split(strings.TrimSuffix(h, "."), ".") {
		if _, err := strconv.Atoi(label); err != nil {
			return false
		}
	}
	return true
}

func (v *Validator) internal(host string) error {
	if v.AllowInternal {
		return nil
	}
	if IsInternalHost(host) {
		return blocked("target", "internal or private addresses are not allowed")
	}
	return nil
}

// IsInternalHost reports whether host is a literal loopback, private,
// link-local or otherwise non-public address, or a well-known internal name.
// It does not resolve DNS.
func IsInternalHost(host string) bool {
	h := strings.ToLower(strings.TrimSuffix(strings.Trim(host, "[]"), "."))
	if addr, err := netip.ParseAddr(h); err == nil {
		return isInternalAddr(addr)
	}
	for _, n := range internalNames {
		if h == n {
			return true
		}
	}
	for _, s := range internalSuffixes {
		if strings.HasSuffix(h, s) {
			return true
		}
	}
	return false
}

func isInternalAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsInterfaceLocalMulticast() ||
		addr.IsUnspecified() || addr.IsMulticast() {
		return true
	}
	for _, p := range internalPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
