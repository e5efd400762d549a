package watcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_CoalescesPerKey(t *testing.T) {
	var (
		mu    sync.Mutex
		calls = map[string]int{}
	)
	d := NewDebouncer(20*time.Millisecond, func(_ context.Context, key string, _ func() bool) {
		mu.Lock()
		calls[key]++
		mu.Unlock()
	})
	defer d.Stop()

	for i := 0; i < 3; i++ {
		d.Trigger("a")
		time.Sleep(2 * time.Millisecond)
	}
	d.Trigger("b")

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls["a"] != 1 || calls["b"] != 1 {
		t.Errorf("calls = %v, want one per key", calls)
	}
	if d.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", d.Pending())
	}
}

func TestDebouncer_CurrentTurnsFalseWhenSuperseded(t *testing.T) {
	var stale atomic.Bool
	started := make(chan struct{}, 2)
	var runs atomic.Int32

	d := NewDebouncer(5*time.Millisecond, func(ctx context.Context, key string, current func() bool) {
		if runs.Add(1) > 1 {
			return
		}
		started <- struct{}{}
		time.Sleep(30 * time.Millisecond)
		stale.Store(!current())
	})
	defer d.Stop()

	d.Trigger("a")
	<-started
	d.Trigger("a")
	time.Sleep(80 * time.Millisecond)

	if !stale.Load() {
		t.Error("current() should report false after a newer trigger")
	}
	if runs.Load() != 2 {
		t.Errorf("runs = %d, want 2", runs.Load())
	}
}

func TestDebouncer_StopAbandonsPending(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func(context.Context, string, func() bool) {
		calls.Add(1)
	})

	d.Trigger("a")
	d.Stop()
	d.Trigger("b")
	time.Sleep(60 * time.Millisecond)

	if calls.Load() != 0 {
		t.Errorf("calls = %d, want 0 after Stop", calls.Load())
	}
}

func TestDebouncer_RestartAfterStop(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(5*time.Millisecond, func(context.Context, string, func() bool) {
		calls.Add(1)
	})
	defer d.Stop()

	d.Stop()
	d.Restart()
	d.Trigger("a")
	time.Sleep(50 * time.Millisecond)

	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 after Restart", calls.Load())
	}

	d.Restart()
	d.Trigger("a")
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 when Restart is called while running", calls.Load())
	}
}
