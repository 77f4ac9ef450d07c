package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const sendTimeout = 15 * time.Second

// Dispatcher decouples alert decisions from delivery. Emit never blocks;
// Run drains the buffer and calls the notifier.
type Dispatcher struct {
	out  chan Alert
	n    Notifier
	log  *zap.Logger
	once sync.Once
	done chan struct{}
}

func NewDispatcher(n Notifier, buffer int, log *zap.Logger) *Dispatcher {
	if buffer < 1 {
		buffer = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{out: make(chan Alert, buffer), n: n, log: log, done: make(chan struct{})}
}

// Emit queues a for delivery and reports false when the buffer is full.
func (d *Dispatcher) Emit(a Alert) bool {
	if a.At.IsZero() {
		a.At = time.Now().UTC()
	}
	select {
	case d.out <- a:
		return true
	default:
		d.log.Warn("alert_dropped_buffer_full",
			zap.String("monitor_id", string(a.MonitorID)),
			zap.String("kind", string(a.Kind)),
		)
		return false
	}
}

// Run delivers queued alerts until ctx ends, then flushes what is already
// buffered.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.once.Do(func() { close(d.done) })
	for {
		select {
		case a := <-d.out:
			d.send(a)
		case <-ctx.Done():
			d.flush()
			return
		}
	}
}

// Done is closed when Run returns.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

func (d *Dispatcher) flush() {
	for {
		select {
		case a := <-d.out:
			d.send(a)
		default:
			return
		}
	}
}

// send is bounded by sendTimeout only, so alerts queued before shutdown
// still go out.
func (d *Dispatcher) send(a Alert) {
	if d.n == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := d.n.Notify(sctx, a); err != nil {
		d.log.Warn("alert_send_failed",
			zap.String("monitor_id", string(a.MonitorID)),
			zap.String("kind", string(a.Kind)),
			zap.Error(err),
		)
		return
	}
	d.log.Info("alert_sent",
		zap.String("monitor_id", string(a.MonitorID)),
		zap.String("kind", string(a.Kind)),
	)
}
