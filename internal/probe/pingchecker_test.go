package probe

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hamed0406/monitorcore/internal/domain"
)

type fakeRunner struct {
	out   string
	err   error
	block bool
	args  []string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.args = args
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []byte(f.out), f.err
}

const linuxPingOK = `PING example.com (93.184.216.34) 56(84) bytes of data.
64 bytes from 93.184.216.34: icmp_seq=1 ttl=56 time=11.4 ms

--- example.com ping statistics ---
1 packets transmitted, 1 received, 0% packet loss, time 0ms`

func TestPingChecker_ParsesRTT(t *testing.T) {
	r := &fakeRunner{out: linuxPingOK}
	p := &PingChecker{Runner: r, GOOS: "linux", Timeout: 5 * time.Second}

	res := p.Check(context.Background(), Request{Target: "example.com"})
	assert.True(t, res.IsUp)
	assert.Equal(t, 11.4, res.Details.Ping.RTTMs)
	assert.Equal(t, 11400*time.Microsecond, res.ResponseTime)
	assert.Equal(t, []string{"-c", "1", "-W", "5", "example.com"}, r.args)
}

func TestPingChecker_TimeoutReportsTimeout(t *testing.T) {
	p := &PingChecker{Runner: &fakeRunner{block: true}, GOOS: "linux", Timeout: 80 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	res := p.Check(ctx, Request{Target: "unreachable.example", Timeout: 80 * time.Millisecond})
	assert.Equal(t, domain.ResultTimeout, res.Status)
	assert.False(t, res.IsUp)
	assert.GreaterOrEqual(t, res.ResponseTime, 70*time.Millisecond)
}

func TestPingChecker_NonZeroExitIsDown(t *testing.T) {
	exitErr := &exec.ExitError{}
	p := &PingChecker{Runner: &fakeRunner{err: exitErr}, GOOS: "linux", Timeout: 5 * time.Second}

	res := p.Check(context.Background(), Request{Target: "example.com"})
	assert.Equal(t, domain.ResultDown, res.Status)
	assert.Equal(t, "host unreachable", res.Details.ErrorMessage)
}

func TestPingChecker_MissingBinaryIsError(t *testing.T) {
	p := &PingChecker{Runner: &fakeRunner{err: errors.New("exec: \"ping\": executable file not found")}, GOOS: "linux", Timeout: 5 * time.Second}

	res := p.Check(context.Background(), Request{Target: "example.com"})
	assert.Equal(t, domain.ResultError, res.Status)
}

func TestPingChecker_UnparseableOutputIsDown(t *testing.T) {
	p := &PingChecker{Runner: &fakeRunner{out: "Request timed out."}, GOOS: "windows", Timeout: 5 * time.Second}

	res := p.Check(context.Background(), Request{Target: "example.com"})
	assert.Equal(t, domain.ResultDown, res.Status)
}

func TestPingArgs(t *testing.T) {
	assert.Equal(t, []string{"-n", "1", "-w", "1500", "h"}, PingArgs("windows", "h", 1500*time.Millisecond))
	assert.Equal(t, []string{"-c", "1", "-t", "2", "h"}, PingArgs("darwin", "h", 1500*time.Millisecond))
	assert.Equal(t, []string{"-c", "1", "-W", "1", "h"}, PingArgs("linux", "h", 200*time.Millisecond))
}

func TestParseRTT(t *testing.T) {
	v, ok := ParseRTT("Reply from 1.1.1.1: bytes=32 time<1ms TTL=57")
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)

	v, ok = ParseRTT("Reply from 8.8.8.8: bytes=32 time=14ms TTL=117")
	assert.True(t, ok)
	assert.Equal(t, 14.0, v)

	_, ok = ParseRTT("100% packet loss")
	assert.False(t, ok)
}
