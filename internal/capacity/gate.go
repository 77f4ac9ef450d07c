// Package capacity bounds the number of running and queued check executions
// across the whole process.
package capacity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var (
	ErrCapacityExceeded = errors.New("capacity exceeded: too many running and queued checks")
	// ErrCapacityUnknown is returned when the counts cannot be read. The gate
	// fails closed.
	ErrCapacityUnknown = errors.New("capacity unknown")
)

// Counter reports current load.
type Counter interface {
	Counts(ctx context.Context) (running, queued int, err error)
}

// Snapshot is the load and limits at one moment.
type Snapshot struct {
	Running         int `json:"running"`
	Queued          int `json:"queued"`
	RunningCapacity int `json:"running_capacity"`
	QueuedCapacity  int `json:"queued_capacity"`
}

type Gate struct {
	counter     Counter
	maxRunning  int
	maxQueued   int
	readTimeout time.Duration
	log         *zap.Logger
}

func NewGate(c Counter, maxRunning, maxQueued int, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{counter: c, maxRunning: maxRunning, maxQueued: maxQueued, readTimeout: 2 * time.Second, log: log}
}

// Admit decides whether one more execution may start or queue.
func (g *Gate) Admit(ctx context.Context) error {
	s, err := g.Snapshot(ctx)
	if err != nil {
		g.log.Warn("capacity_unknown", zap.Error(err))
		return err
	}
	if s.Running < s.RunningCapacity {
		return nil
	}
	if s.Queued >= s.QueuedCapacity {
		g.log.Info("capacity_exceeded", zap.Int("running", s.Running), zap.Int("queued", s.Queued))
		return ErrCapacityExceeded
	}
	return nil
}

// Snapshot reads the current counts.
func (g *Gate) Snapshot(ctx context.Context) (Snapshot, error) {
	s := Snapshot{RunningCapacity: g.maxRunning, QueuedCapacity: g.maxQueued}
	if g.counter == nil {
		return s, fmt.Errorf("%w: no counter configured", ErrCapacityUnknown)
	}
	cctx, cancel := context.WithTimeout(ctx, g.readTimeout)
	defer cancel()
	r, q, err := g.counter.Counts(cctx)
	if err != nil {
		return s, fmt.Errorf("%w: %v", ErrCapacityUnknown, err)
	}
	s.Running, s.Queued = r, q
	return s, nil
}
