// Package watcher turns filesystem events in the data directory into tab
// snapshot updates and content pushes.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/brianly1003/notepadtt/internal/domain"
	"github.com/brianly1003/notepadtt/internal/domain/events"
	"github.com/brianly1003/notepadtt/internal/domain/ports"
	"github.com/brianly1003/notepadtt/internal/metadata"
	"github.com/brianly1003/notepadtt/internal/storage"
	"github.com/brianly1003/notepadtt/internal/sync"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// TabState is the part of the tab snapshot owner the watcher drives.
type TabState interface {
	GetSnapshot() (*domain.Info, error)
	IdentifierFor(filename string) (string, bool)
	WasCreatedRecently(filename string) bool
	NotifyExternalCreate(filename string) bool
	NotifyExternalDelete(filename string) bool
	NotifyExternalRename(oldName, newName string) (bool, string)
}

// WriteMarks reports writes made by the content service.
type WriteMarks interface {
	WasWrittenRecently(filename string) bool
}

// Subscribers lists the connections interested in a tab's content.
type Subscribers interface {
	List(fileID string) []string
}

// Options tunes event handling. Zero values take the defaults below.
type Options struct {
	Debounce        time.Duration
	MaxReadAttempts int
	RetryBase       time.Duration
	RetryStep       time.Duration
	RenameWindow    time.Duration
}

const (
	DefaultDebounce        = 20 * time.Millisecond
	DefaultMaxReadAttempts = 5
	DefaultRetryBase       = 50 * time.Millisecond
	DefaultRetryStep       = 150 * time.Millisecond
	DefaultRenameWindow    = time.Second
)

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.MaxReadAttempts <= 0 {
		o.MaxReadAttempts = DefaultMaxReadAttempts
	}
	if o.RetryBase <= 0 {
		o.RetryBase = DefaultRetryBase
	}
	if o.RetryStep < 0 {
		o.RetryStep = 0
	} else if o.RetryStep == 0 {
		o.RetryStep = DefaultRetryStep
	}
	if o.RenameWindow <= 0 {
		o.RenameWindow = DefaultRenameWindow
	}
	return o
}

// pendingRename is the old half of a rename waiting for its CREATE.
type pendingRename struct {
	oldName   string
	timestamp time.Time
}

// Watcher implements the FileWatcher port for the data directory.
type Watcher struct {
	dir     *storage.Dir
	state   TabState
	written WriteMarks
	subs    Subscribers
	hub     ports.EventHub
	opts    Options

	// read is replaced in tests to simulate transient failures
	read func(name string) (string, error)

	mu      sync.RWMutex
	watcher *fsnotify.Watcher
	running bool
	cancel  context.CancelFunc

	debouncer *Debouncer

	pendingMu sync.Mutex
	pending   *pendingRename
}

var _ ports.FileWatcher = (*Watcher)(nil)

// New creates a watcher for dir.
func New(dir *storage.Dir, state TabState, written WriteMarks, subs Subscribers, hub ports.EventHub, opts Options) *Watcher {
	w := &Watcher{
		dir:     dir,
		state:   state,
		written: written,
		subs:    subs,
		hub:     hub,
		opts:    opts.withDefaults(),
		read:    dir.Read,
	}
	w.debouncer = NewDebouncer(w.opts.Debounce, w.deliverContent)
	return w
}

// Start begins watching the data directory.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}

	if err := w.dir.Ensure(); err != nil {
		w.mu.Unlock()
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(w.dir.Root()); err != nil {
		_ = watcher.Close()
		w.mu.Unlock()
		return fmt.Errorf("watch %s: %w", w.dir.Root(), err)
	}
	w.watcher = watcher
	w.debouncer.Restart()

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.mu.Unlock()

	go w.eventLoop(watchCtx, watcher)

	// A rename out of the directory produces RENAME without a following CREATE.
	go w.pendingRenameCleanup(watchCtx)

	log.Info().
		Str("path", w.dir.Root()).
		Dur("debounce", w.opts.Debounce).
		Msg("file watcher started")

	return nil
}

// Stop terminates file watching and abandons pending content reads.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	if w.cancel != nil {
		w.cancel()
	}
	watcher := w.watcher
	w.watcher = nil
	w.mu.Unlock()

	w.debouncer.Stop()

	if watcher != nil {
		err := watcher.Close()
		log.Info().Msg("file watcher stopped")
		return err
	}
	return nil
}

// IsRunning returns true if the watcher is active.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *Watcher) eventLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) pendingRenameCleanup(ctx context.Context) {
	ticker := time.NewTicker(w.opts.RenameWindow / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processStalePendingRename()
		}
	}
}

// processStalePendingRename treats an unpaired rename older than the window as a deletion.
func (w *Watcher) processStalePendingRename() {
	w.pendingMu.Lock()
	pending := w.pending
	if pending == nil || time.Since(pending.timestamp) <= w.opts.RenameWindow {
		w.pendingMu.Unlock()
		return
	}
	w.pending = nil
	w.pendingMu.Unlock()

	log.Debug().Str("filename", pending.oldName).Msg("stale pending rename treated as deletion")
	w.handleDeleted(pending.oldName)
}

// takePendingRename returns the old name of a rename that is still fresh.
func (w *Watcher) takePendingRename() (string, bool) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	pending := w.pending
	w.pending = nil
	if pending == nil || time.Since(pending.timestamp) > w.opts.RenameWindow {
		return "", false
	}
	return pending.oldName, true
}

// handleEvent classifies a raw fsnotify event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(filepath.Dir(event.Name)) != filepath.Clean(w.dir.Root()) {
		return
	}
	name := filepath.Base(event.Name)

	switch {
	case event.Has(fsnotify.Create):
		if oldName, ok := w.takePendingRename(); ok {
			w.handleRenamed(oldName, name)
			return
		}
		w.handleCreated(name)

	case event.Has(fsnotify.Write):
		w.handleChanged(name)

	case event.Has(fsnotify.Remove):
		w.handleDeleted(name)

	case event.Has(fsnotify.Rename):
		w.pendingMu.Lock()
		previous := w.pending
		w.pending = &pendingRename{oldName: name, timestamp: time.Now()}
		w.pendingMu.Unlock()

		if previous != nil {
			w.handleDeleted(previous.oldName)
		}
		log.Debug().Str("filename", name).Msg("tracking pending rename")

	default:
		// chmod
	}
}

func (w *Watcher) handleChanged(name string) {
	if name == metadata.FileName {
		return
	}
	if w.written.WasWrittenRecently(name) || w.state.WasCreatedRecently(name) {
		log.Trace().Str("filename", name).Msg("ignoring own write")
		return
	}
	if _, ok := w.state.IdentifierFor(name); !ok {
		return
	}
	w.debouncer.Trigger(name)
}

func (w *Watcher) handleCreated(name string) {
	if !w.dir.Filter().AllowsName(name) || w.dir.IsDir(name) {
		return
	}
	if w.state.NotifyExternalCreate(name) {
		w.publishInfo()
	}
}

func (w *Watcher) handleDeleted(name string) {
	if name == metadata.FileName {
		return
	}
	if w.state.NotifyExternalDelete(name) {
		w.publishInfo()
	}
}

func (w *Watcher) handleRenamed(oldName, newName string) {
	if newName == metadata.FileName || oldName == metadata.FileName || w.dir.IsDir(newName) {
		return
	}

	broadcast, replaced := w.state.NotifyExternalRename(oldName, newName)
	if broadcast {
		w.publishInfo()
	}
	if replaced != "" {
		w.debouncer.Trigger(newName)
	}
}

func (w *Watcher) publishInfo() {
	info, err := w.state.GetSnapshot()
	if err != nil {
		log.Error().Err(err).Msg("failed to read snapshot for broadcast")
		return
	}
	w.hub.Publish(events.NewInfoEvent(info))
}

// deliverContent reads a changed file and pushes it to the tab's
// subscribers, retrying transient read failures with a growing backoff.
func (w *Watcher) deliverContent(ctx context.Context, name string, current func() bool) {
	for attempt := 0; attempt < w.opts.MaxReadAttempts; attempt++ {
		fileID, ok := w.state.IdentifierFor(name)
		if !ok {
			return
		}
		if len(w.subs.List(fileID)) == 0 {
			return
		}

		text, err := w.read(name)
		if err == nil {
			targets := w.subs.List(fileID)
			if len(targets) == 0 || !current() {
				return
			}
			w.hub.PublishTo(targets, events.NewTabContentEvent(domain.TabContent{FileID: fileID, Text: text}))
			log.Debug().
				Str("filename", name).
				Str("file_id", fileID).
				Int("subscribers", len(targets)).
				Msg("pushed external content change")
			return
		}
		if errors.Is(err, fs.ErrNotExist) {
			return
		}

		if attempt == w.opts.MaxReadAttempts-1 {
			break
		}
		backoff := w.opts.RetryBase + time.Duration(attempt)*w.opts.RetryStep
		log.Debug().
			Err(err).
			Str("filename", name).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("content read failed, retrying")

		if !sleep(ctx, backoff) || !current() {
			return
		}
	}

	log.Error().
		Err(domain.ErrTransientIO).
		Str("filename", name).
		Int("attempts", w.opts.MaxReadAttempts).
		Msg("giving up on changed file")
}
