package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/monitorcore/internal/domain"
)

var internalTargets = []string{
	"127.0.0.1", "127.8.9.10", "10.0.0.5", "172.16.3.4", "172.31.255.255",
	"192.168.1.1", "169.254.169.254", "0.0.0.0", "100.64.1.1",
	"::1", "fe80::1", "fc00::1", "::ffff:127.0.0.1",
	"localhost", "api.localhost", "printer.local", "metadata.google.internal",
}

func TestIsInternalHost(t *testing.T) {
	for _, h := range internalTargets {
		assert.Truef(t, IsInternalHost(h), "%s should be internal", h)
	}
	for _, h := range []string{"8.8.8.8", "example.com", "2001:4860:4860::8888", "172.32.0.1"} {
		assert.Falsef(t, IsInternalHost(h), "%s should be public", h)
	}
}

func TestURL_BlocksInternalUnlessAllowed(t *testing.T) {
	strict := New(false)
	loose := New(true)
	for _, h := range internalTargets {
		u := "http://" + h + "/health"
		if h == "::1" || h == "fe80::1" || h == "fc00::1" || h == "::ffff:127.0.0.1" {
			u = "http://[" + h + "]/health"
		}
		err := strict.URL(u)
		require.Errorf(t, err, "%s should be rejected", u)
		var verr *Error
		require.True(t, errors.As(err, &verr))
		assert.Truef(t, verr.Security, "%s should be a security error", u)

		assert.NoErrorf(t, loose.URL(u), "%s should pass with override", u)
	}
}

func TestURL_SchemeAndShape(t *testing.T) {
	v := New(false)
	cases := []struct {
		in string
		ok bool
	}{
		{"https://example.com", true},
		{"http://EXAMPLE.com:8080/p?q=1", true},
		{"ftp://example.com", false},
		{"file:///etc/passwd", false},
		{"", false},
		{"https://", false},
		{"https://example.com:99999", false},
		{"https://exa mple.com", false},
		{"https://999.1.1.1", false},
	}
	for _, c := range cases {
		err := v.URL(c.in)
		if c.ok {
			assert.NoErrorf(t, err, "URL(%q)", c.in)
		} else {
			assert.Errorf(t, err, "URL(%q)", c.in)
		}
	}
}

func TestHost_RejectsInjection(t *testing.T) {
	v := New(false)
	for _, h := range []string{"example.com;rm -rf /", "a.com && id", "$(whoami).com", "`id`", "host|nc", "-c 100 example.com", "a b"} {
		err := v.Host(h)
		require.Errorf(t, err, "%q", h)
		var verr *Error
		require.True(t, errors.As(err, &verr))
		assert.Truef(t, verr.Security, "%q should be a security error", h)
	}
}

func TestHost_LengthAndGrammar(t *testing.T) {
	v := New(false)
	assert.Error(t, v.Host(""))
	long := make([]byte, 254)
	for i := range long {
		long[i] = 'a'
	}
	assert.Error(t, v.Host(string(long)))
	assert.Error(t, v.Host("bad_host.com"))
	assert.NoError(t, v.Host("example.com"))
	assert.NoError(t, v.Host("8.8.8.8"))
	assert.NoError(t, v.Host("2001:4860:4860::8888"))
}

func TestPort(t *testing.T) {
	v := New(false)
	assert.NoError(t, v.Port("example.com", 443, "tcp"))
	assert.NoError(t, v.Port("example.com", 53, "udp"))
	assert.Error(t, v.Port("example.com", 0, "tcp"))
	assert.Error(t, v.Port("example.com", 65536, "tcp"))
	assert.Error(t, v.Port("example.com", 22, "sctp"))
	assert.Error(t, v.Port("10.0.0.1", 22, "tcp"))
}

func TestMonitor_PortTargetForms(t *testing.T) {
	v := New(false)
	assert.NoError(t, v.Monitor(domain.KindPortCheck, "example.com:443", domain.MonitorConfig{}))
	assert.NoError(t, v.Monitor(domain.KindPortCheck, "example.com", domain.MonitorConfig{Port: 22, Protocol: "tcp"}))
	assert.NoError(t, v.Monitor(domain.KindPortCheck, "[2001:db8::1]:8443", domain.MonitorConfig{}))
	assert.Error(t, v.Monitor(domain.KindPortCheck, "example.com", domain.MonitorConfig{}))
	assert.Error(t, v.Monitor(domain.CheckKind("dns"), "example.com", domain.MonitorConfig{}))

	host, port, err := PortTarget("[2001:db8::1]:8443", domain.MonitorConfig{})
	require.NoError(t, err)
	assert.Equal(t, "2001:db8::1", host)
	assert.Equal(t, 8443, port)
}
