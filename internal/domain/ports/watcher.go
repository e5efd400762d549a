package ports

import "context"

// FileWatcher defines the contract for data directory monitoring.
type FileWatcher interface {
	// Start begins watching the data directory.
	Start(ctx context.Context) error

	// Stop terminates file watching and abandons in-flight debounce timers.
	Stop() error

	// IsRunning returns true if the watcher is active.
	IsRunning() bool
}
