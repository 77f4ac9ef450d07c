package jobs

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrDuplicate means a task with the same key is already queued or running.
	ErrDuplicate = errors.New("task already pending")
	ErrQueueFull = errors.New("task queue full")
	ErrStopped   = errors.New("pool stopped")
)

// Task is one unit of work. Tasks sharing a Key never run concurrently and
// never queue twice.
type Task struct {
	Key string
	Run func(ctx context.Context)
}

// Pool runs tasks on a fixed set of workers fed by a bounded queue.
type Pool struct {
	tasks  chan Task
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[string]struct{}
	running int
	queued  int
	stopped bool

	stopOnce sync.Once
}

func NewPool(workers, queueSize int, log *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:   make(chan Task, queueSize),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]struct{}),
	}
	p.startWorkers(workers)
	return p
}

func (p *Pool) startWorkers(n int) {
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer p.wg.Done()
			for t := range p.tasks {
				p.exec(t)
			}
		}()
	}
}

func (p *Pool) exec(t Task) {
	p.mu.Lock()
	p.queued--
	p.running++
	p.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("pool_task_panic", zap.String("key", t.Key), zap.Any("panic", r))
		}
		p.mu.Lock()
		p.running--
		delete(p.pending, t.Key)
		p.mu.Unlock()
	}()
	t.Run(p.ctx)
}

// Submit enqueues t without blocking.
func (p *Pool) Submit(t Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	if _, dup := p.pending[t.Key]; dup {
		return ErrDuplicate
	}
	select {
	case p.tasks <- t:
		p.pending[t.Key] = struct{}{}
		p.queued++
		return nil
	default:
		return ErrQueueFull
	}
}

// Do submits fn and waits for it to finish or for ctx to end. A task whose
// caller gave up while it was still queued is dropped without running; one
// that was already picked up sees ctx cancelled.
func (p *Pool) Do(ctx context.Context, key string, fn func(ctx context.Context)) error {
	done := make(chan struct{})
	err := p.Submit(Task{Key: key, Run: func(pctx context.Context) {
		defer close(done)
		if ctx.Err() != nil {
			p.log.Debug("pool_task_abandoned", zap.String("key", key))
			return
		}
		// the caller's deadline bounds the work as well as the pool's lifetime
		rctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(pctx, cancel)
		defer stop()
		fn(rctx)
	}})
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the running and queued task counts.
func (p *Pool) Stats() (running, queued int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running, p.queued
}

// Counts satisfies capacity.Counter. The pool is in-process so it never fails.
func (p *Pool) Counts(ctx context.Context) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	r, q := p.Stats()
	return r, q, nil
}

// Stop refuses new tasks, lets queued ones drain and waits for workers. If
// ctx ends first, running tasks are cancelled.
func (p *Pool) Stop(ctx context.Context) {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		close(p.tasks)
		p.mu.Unlock()

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			p.log.Warn("pool_stop_forced")
			p.cancel()
			<-done
		}
		p.cancel()
	})
}
