package watcher

import (
	"context"
	"time"

	"github.com/brianly1003/notepadtt/internal/sync"
)

// DebounceFunc runs once the delay for key has passed without a newer
// trigger. current reports whether the run is still the latest for its key;
// long-running work checks it before publishing.
type DebounceFunc func(ctx context.Context, key string, current func() bool)

// Debouncer coalesces bursts of triggers per key. Each trigger stamps the key
// with a fresh token from a process-wide counter; a pending run only proceeds
// while its token is still the key's token.
type Debouncer struct {
	delay    time.Duration
	callback DebounceFunc

	wg sync.WaitGroup

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	seq    uint64
	tokens map[string]uint64
}

// NewDebouncer creates a new debouncer with the given delay and callback.
func NewDebouncer(delay time.Duration, callback DebounceFunc) *Debouncer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Debouncer{
		delay:    delay,
		callback: callback,
		ctx:      ctx,
		cancel:   cancel,
		tokens:   make(map[string]uint64),
	}
}

// Trigger (re)starts the delay for key. Triggers after Stop are dropped
// until Restart.
func (d *Debouncer) Trigger(key string) {
	d.mu.Lock()
	ctx := d.ctx
	if ctx.Err() != nil {
		d.mu.Unlock()
		return
	}
	d.seq++
	token := d.seq
	d.tokens[key] = token
	d.wg.Add(1)
	d.mu.Unlock()

	go d.wait(ctx, key, token)
}

func (d *Debouncer) wait(ctx context.Context, key string, token uint64) {
	defer d.wg.Done()

	if !sleep(ctx, d.delay) {
		return
	}
	current := func() bool {
		return ctx.Err() == nil && d.token(key) == token
	}
	if !current() {
		return
	}

	d.callback(ctx, key, current)

	d.mu.Lock()
	if d.tokens[key] == token {
		delete(d.tokens, key)
	}
	d.mu.Unlock()
}

func (d *Debouncer) token(key string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tokens[key]
}

// Pending returns the number of keys with a run that has not completed.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tokens)
}

// Stop abandons pending runs and waits for running callbacks to return.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()

	cancel()
	d.wg.Wait()

	d.mu.Lock()
	d.tokens = make(map[string]uint64)
	d.mu.Unlock()
}

// Restart lets a stopped debouncer accept triggers again. It does nothing
// while the debouncer is running.
func (d *Debouncer) Restart() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx.Err() == nil {
		return
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
}

// sleep waits for dur and reports false if ctx ended first.
func sleep(ctx context.Context, dur time.Duration) bool {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
