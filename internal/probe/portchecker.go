package probe

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hamed0406/monitorcore/internal/domain"
	"github.com/hamed0406/monitorcore/internal/validate"
)

const defaultUDPWait = 2 * time.Second

// UDPUnreliableNote is attached to every UDP "up" result: without an ICMP
// error the port is only presumed open.
const UDPUnreliableNote = "no ICMP port-unreachable received; UDP reachability is not a reliable liveness signal"

type PortChecker struct {
	Dialer  *net.Dialer
	UDPWait time.Duration
	Probe   []byte
}

func NewPortChecker() *PortChecker {
	return &PortChecker{Dialer: &net.Dialer{}, UDPWait: defaultUDPWait, Probe: []byte("\x00")}
}

func (p *PortChecker) Check(ctx context.Context, req Request) Result {
	host, port, err := validate.PortTarget(req.Target, req.Config)
	if err != nil {
		return failed(domain.ResultError, 0, domain.ResultDetails{}, err.Error(), err)
	}
	proto := strings.ToLower(req.Config.Protocol)
	if proto == "" {
		proto = "tcp"
	}
	det := domain.ResultDetails{Port: &domain.PortDetails{Host: host, Port: port, Protocol: proto}}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	if proto == "udp" {
		return p.checkUDP(ctx, addr, det)
	}
	return p.checkTCP(ctx, addr, det)
}

func (p *PortChecker) checkTCP(ctx context.Context, addr string, det domain.ResultDetails) Result {
	start := time.Now()
	conn, err := p.dialer().DialContext(ctx, "tcp", addr)
	elapsed := time.Since(start)
	if err != nil {
		status, msg := ClassifyNetError(err)
		if errors.Is(err, syscall.ECONNREFUSED) {
			msg = "connection refused: port closed"
		}
		return failed(status, elapsed, det, msg, err)
	}
	_ = conn.Close()
	det.Port.Note = "port open"
	return up(elapsed, det)
}

func (p *PortChecker) checkUDP(ctx context.Context, addr string, det domain.ResultDetails) Result {
	start := time.Now()
	conn, err := p.dialer().DialContext(ctx, "udp", addr)
	if err != nil {
		status, msg := ClassifyNetError(err)
		return failed(status, time.Since(start), det, msg, err)
	}
	defer conn.Close()

	wait := p.UDPWait
	if wait <= 0 {
		wait = defaultUDPWait
	}
	deadline := time.Now().Add(wait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write(p.Probe); err != nil {
		status, msg := ClassifyNetError(err)
		return failed(status, time.Since(start), det, msg, err)
	}

	buf := make([]byte, 512)
	_, err = conn.Read(buf)
	elapsed := time.Since(start)
	switch {
	case err == nil:
		det.Port.Note = "response received"
		return up(elapsed, det)
	case errors.Is(err, syscall.ECONNREFUSED):
		return failed(domain.ResultDown, elapsed, det, "connection refused: port closed (ICMP port unreachable)", err)
	case IsTimeout(err):
		if ctx.Err() != nil {
			return failed(domain.ResultTimeout, elapsed, det, "timed out", err)
		}
		det.Port.Note = UDPUnreliableNote
		return up(elapsed, det)
	default:
		status, msg := ClassifyNetError(err)
		return failed(status, elapsed, det, msg, err)
	}
}

func (p *PortChecker) dialer() *net.Dialer {
	if p.Dialer != nil {
		return p.Dialer
	}
	return &net.Dialer{}
}
