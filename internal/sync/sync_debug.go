//go:build deadlock

// Package sync provides mutex types that can be swapped for deadlock detection.
// In debug mode (build with -tags deadlock), this uses go-deadlock for detection.
package sync

import (
	"os"
	"sync"
	"time"

	"github.com/sasha-s/go-deadlock"
)

// Mutex is a mutual exclusion lock with deadlock detection.
type Mutex = deadlock.Mutex

// RWMutex is a reader/writer mutual exclusion lock with deadlock detection.
type RWMutex = deadlock.RWMutex

// WaitGroup is the standard sync.WaitGroup.
type WaitGroup = sync.WaitGroup

func init() {
	// Info State holds its lock across file renames and deletes, which can
	// legitimately take a while on network mounts.
	deadlock.Opts.DeadlockTimeout = 10 * time.Second

	if os.Getenv("NOTEPADTT_NO_DEADLOCK_DETECT") != "" {
		deadlock.Opts.Disable = true
		return
	}

	deadlock.Opts.PrintAllCurrentGoroutines = true
	deadlock.Opts.LogBuf = os.Stderr

	println("[DEADLOCK DETECTION ENABLED] Using go-deadlock for mutex operations")
}
