// Package marker remembers the files this process wrote recently so that the
// filesystem events caused by those writes can be told apart from external edits.
package marker

import (
	"time"

	"github.com/brianly1003/notepadtt/internal/sync"
)

// DefaultWindow is how long a write stays attributable to this process.
const DefaultWindow = time.Second

const pruneThreshold = 64

// Tracker records recent writes per filename.
type Tracker struct {
	mu     sync.Mutex
	window time.Duration
	marks  map[string]time.Time
	now    func() time.Time
}

// NewTracker creates a tracker. A non-positive window uses DefaultWindow.
func NewTracker(window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{
		window: window,
		marks:  make(map[string]time.Time),
		now:    time.Now,
	}
}

// Window returns the attribution window.
func (t *Tracker) Window() time.Duration {
	return t.window
}

// Mark records a write to filename at the current time.
func (t *Tracker) Mark(filename string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.marks[filename] = now

	if len(t.marks) > pruneThreshold {
		for name, at := range t.marks {
			if now.Sub(at) > t.window {
				delete(t.marks, name)
			}
		}
	}
}

// Recent reports whether filename was marked within the window.
func (t *Tracker) Recent(filename string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	at, ok := t.marks[filename]
	if !ok {
		return false
	}
	if t.now().Sub(at) > t.window {
		delete(t.marks, filename)
		return false
	}
	return true
}
