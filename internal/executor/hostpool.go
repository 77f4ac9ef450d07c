package executor

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/hamed0406/monitorcore/internal/domain"
	"github.com/hamed0406/monitorcore/internal/validate"
)

// HostPool caps concurrent checks per (scheme, host, port) key so that a
// burst of monitors against one target cannot open unbounded sockets.
type HostPool struct {
	limit int64

	mu   sync.Mutex
	keys map[string]*hostSlot
}

type hostSlot struct {
	sem  *semaphore.Weighted
	refs int
}

func NewHostPool(perHost int) *HostPool {
	if perHost < 1 {
		perHost = 1
	}
	return &HostPool{limit: int64(perHost), keys: make(map[string]*hostSlot)}
}

// Acquire blocks until a slot for key is free or ctx ends. The returned
// release func must be called exactly once.
func (p *HostPool) Acquire(ctx context.Context, key string) (func(), error) {
	p.mu.Lock()
	s, ok := p.keys[key]
	if !ok {
		s = &hostSlot{sem: semaphore.NewWeighted(p.limit)}
		p.keys[key] = s
	}
	s.refs++
	p.mu.Unlock()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		p.drop(key, s)
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			s.sem.Release(1)
			p.drop(key, s)
		})
	}, nil
}

func (p *HostPool) drop(key string, s *hostSlot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(p.keys, key)
	}
}

// Len is the number of keys with holders or waiters.
func (p *HostPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// PoolKey derives the pooling key for a check.
func PoolKey(kind domain.CheckKind, target string, cfg domain.MonitorConfig) string {
	switch kind {
	case domain.KindHTTPRequest, domain.KindWebsite:
		u, err := url.Parse(target)
		if err != nil || u.Hostname() == "" {
			return "http|" + target
		}
		port := u.Port()
		if port == "" {
			port = "80"
			if strings.EqualFold(u.Scheme, "https") {
				port = "443"
			}
		}
		return strings.ToLower(u.Scheme) + "|" + strings.ToLower(u.Hostname()) + "|" + port
	case domain.KindPortCheck:
		host, port, err := validate.PortTarget(target, cfg)
		if err != nil {
			return "port|" + target
		}
		proto := strings.ToLower(cfg.Protocol)
		if proto == "" {
			proto = "tcp"
		}
		return proto + "|" + strings.ToLower(host) + "|" + strconv.Itoa(port)
	default:
		return "icmp|" + strings.ToLower(strings.Trim(target, "[]")) + "|0"
	}
}

// hostKey is used for log fields where the full key is too noisy.
func hostKey(key string) string {
	parts := strings.SplitN(key, "|", 3)
	if len(parts) != 3 {
		return key
	}
	return net.JoinHostPort(parts[1], parts[2])
}
