package probe

import (
	"context"
	"errors"
	"math"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"time"

	"github.com/hamed0406/monitorcore/internal/domain"
)

const defaultPingTimeout = 5 * time.Second

var rttRE = regexp.MustCompile(`time[=<]\s*([0-9]+(?:\.[0-9]+)?)\s*ms`)

// Runner executes an external command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner interrupts the process when ctx ends and kills it if it has
// not exited after Grace.
type ExecRunner struct {
	Grace time.Duration
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = r.Grace
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = time.Second
	}
	return cmd.Output()
}

// PingChecker sends one ICMP echo through the platform ping utility. The
// host must already be validated; it is passed as a single argv entry and
// never through a shell.
type PingChecker struct {
	Runner  Runner
	GOOS    string
	Timeout time.Duration
}

func NewPingChecker(timeout time.Duration) *PingChecker {
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	return &PingChecker{Runner: ExecRunner{Grace: time.Second}, GOOS: runtime.GOOS, Timeout: timeout}
}

func (p *PingChecker) Check(ctx context.Context, req Request) Result {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = p.Timeout
	}
	det := domain.ResultDetails{Ping: &domain.PingDetails{Host: req.Target}}

	start := time.Now()
	out, err := p.Runner.Run(ctx, "ping", PingArgs(p.GOOS, req.Target, timeout)...)
	elapsed := time.Since(start)

	if err != nil {
		// ping's own -W/-w fires at about the same moment as our deadline
		if ctx.Err() != nil || elapsed >= timeout*9/10 {
			return failed(domain.ResultTimeout, elapsed, det, "ping timed out", err)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return failed(domain.ResultDown, elapsed, det, "host unreachable", err)
		}
		return failed(domain.ResultError, elapsed, det, "ping could not be executed", err)
	}

	rtt, ok := ParseRTT(string(out))
	if !ok {
		return failed(domain.ResultDown, elapsed, det, "could not parse ping output", nil)
	}
	det.Ping.RTTMs = rtt
	// report the round trip, not process start-up
	return up(time.Duration(rtt*float64(time.Millisecond)), det)
}

// PingArgs builds single-packet arguments with the OS-specific timeout flag.
func PingArgs(goos, host string, timeout time.Duration) []string {
	secs := int(math.Ceil(timeout.Seconds()))
	if secs < 1 {
		secs = 1
	}
	switch goos {
	case "windows":
		return []string{"-n", "1", "-w", strconv.FormatInt(timeout.Milliseconds(), 10), host}
	case "darwin", "freebsd", "netbsd", "openbsd":
		return []string{"-c", "1", "-t", strconv.Itoa(secs), host}
	default:
		return []string{"-c", "1", "-W", strconv.Itoa(secs), host}
	}
}

// ParseRTT extracts the round-trip time in milliseconds from ping output.
func ParseRTT(out string) (float64, bool) {
	m := rttRE.FindStringSubmatch(out)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
