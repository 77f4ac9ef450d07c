package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/multierr"

	"github.com/hamed0406/monitorcore/internal/domain"
)

type recorder struct {
	mu  sync.Mutex
	got []Alert
	err error
}

func (r *recorder) Notify(_ context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, a)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, 8, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)

	d.Emit(Alert{MonitorID: "m1", Kind: domain.AlertFailure})
	d.Emit(Alert{MonitorID: "m1", Kind: domain.AlertRecovery})

	deadline := time.Now().Add(time.Second)
	for rec.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-d.Done()

	if rec.count() != 2 {
		t.Fatalf("want 2 alerts, got %d", rec.count())
	}
	if rec.got[0].Kind != domain.AlertFailure || rec.got[1].Kind != domain.AlertRecovery {
		t.Fatalf("unexpected order: %+v", rec.got)
	}
	if rec.got[0].At.IsZero() {
		t.Fatal("emit should stamp the alert time")
	}
}

func TestDispatcher_EmitNeverBlocks(t *testing.T) {
	d := NewDispatcher(&recorder{}, 1, nil)
	if !d.Emit(Alert{MonitorID: "a"}) {
		t.Fatal("first emit should fit")
	}
	if d.Emit(Alert{MonitorID: "b"}) {
		t.Fatal("second emit should be dropped while nobody drains")
	}
}

func TestDispatcher_FlushesOnShutdown(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, 4, nil)
	d.Emit(Alert{MonitorID: "a"})
	d.Emit(Alert{MonitorID: "b"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)
	if rec.count() != 2 {
		t.Fatalf("buffered alerts should be flushed, got %d", rec.count())
	}
}

func TestRouter_CombinesErrors(t *testing.T) {
	ok := &recorder{}
	bad1 := &recorder{err: errors.New("smtp down")}
	bad2 := &recorder{err: errors.New("slack 500")}
	r := Router{Channels: map[string]Notifier{"email": bad1, "webhook": ok, "slack": bad2}}
	err := r.Notify(context.Background(), Alert{MonitorID: "m1"})
	if len(multierr.Errors(err)) != 2 {
		t.Fatalf("want 2 combined errors, got %v", err)
	}
	if ok.count() != 1 {
		t.Fatal("healthy notifier should still receive the alert")
	}
}

func TestRouter_HonoursNamedChannels(t *testing.T) {
	slack, hook, logged := &recorder{}, &recorder{}, &recorder{}
	r := Router{Channels: map[string]Notifier{"slack": slack, "webhook": hook}, Log: logged}

	err := r.Notify(context.Background(), Alert{MonitorID: "m1", Channels: []string{"Slack", "log"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slack.count() != 1 || hook.count() != 0 || logged.count() != 1 {
		t.Fatalf("slack=%d webhook=%d log=%d", slack.count(), hook.count(), logged.count())
	}

	err = r.Notify(context.Background(), Alert{MonitorID: "m1", Channels: []string{"pager"}})
	if err == nil || !strings.Contains(err.Error(), "pager") {
		t.Fatalf("unknown channel should be reported, got %v", err)
	}
}
