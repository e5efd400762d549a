// Package subscription tracks which connections want content pushes for which tabs.
package subscription

import (
	"sort"

	"github.com/brianly1003/notepadtt/internal/sync"
)

// Registry is a many-to-many index between tab identifiers and connection ids.
type Registry struct {
	mu     sync.RWMutex
	byTab  map[string]map[string]struct{}
	byConn map[string]map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byTab:  make(map[string]map[string]struct{}),
		byConn: make(map[string]map[string]struct{}),
	}
}

// Add subscribes connID to fileID. Adding twice has no further effect.
func (r *Registry) Add(fileID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	link(r.byTab, fileID, connID)
	link(r.byConn, connID, fileID)
}

// Remove unsubscribes connID from fileID.
func (r *Registry) Remove(fileID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	unlink(r.byTab, fileID, connID)
	unlink(r.byConn, connID, fileID)
}

// RemoveAll drops every subscription held by connID and returns how many there were.
func (r *Registry) RemoveAll(connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	tabs := r.byConn[connID]
	for fileID := range tabs {
		unlink(r.byTab, fileID, connID)
	}
	delete(r.byConn, connID)
	return len(tabs)
}

// List returns the connections subscribed to fileID, sorted.
func (r *Registry) List(fileID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byTab[fileID]
	if len(conns) == 0 {
		return nil
	}
	ids := make([]string, 0, len(conns))
	for id := range conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of tabs with at least one subscriber.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byTab)
}

func link(m map[string]map[string]struct{}, key, val string) {
	set, ok := m[key]
	if !ok {
		set = make(map[string]struct{})
		m[key] = set
	}
	set[val] = struct{}{}
}

func unlink(m map[string]map[string]struct{}, key, val string) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, val)
	if len(set) == 0 {
		delete(m, key)
	}
}
