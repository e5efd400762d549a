//go:build !deadlock

// Package sync provides mutex types that can be swapped for deadlock detection.
// The default build aliases the standard library; build with -tags deadlock to
// route every lock in the tab state, subscription registry and hub through go-deadlock.
package sync

import "sync"

// Mutex is the standard sync.Mutex.
type Mutex = sync.Mutex

// RWMutex is the standard sync.RWMutex.
type RWMutex = sync.RWMutex

// WaitGroup is the standard sync.WaitGroup.
type WaitGroup = sync.WaitGroup
