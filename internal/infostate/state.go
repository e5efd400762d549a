// Package infostate owns the authoritative tab snapshot: the ordered tab list,
// the active tab and the change token that gates client updates.
//
// All reads and mutations go through one lock. Client updates perform their
// disk operations while holding it, so watcher hooks always observe either the
// state before an update or the state after it.
package infostate

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/brianly1003/notepadtt/internal/domain"
	"github.com/brianly1003/notepadtt/internal/marker"
	"github.com/brianly1003/notepadtt/internal/metadata"
	"github.com/brianly1003/notepadtt/internal/storage"
	"github.com/brianly1003/notepadtt/internal/sync"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// DefaultTabName is the tab created when the data directory is empty.
const DefaultTabName = "new 1"

var defaultNamePattern = regexp.MustCompile(`^new \d+$`)

// IsDefaultName reports whether name looks like a tab the UI created itself.
func IsDefaultName(name string) bool {
	return defaultNamePattern.MatchString(name)
}

// State is the single source of truth for tab metadata.
type State struct {
	mu      sync.Mutex
	dir     *storage.Dir
	store   *metadata.Store
	created *marker.Tracker
	newID   func() string

	// nil until the first snapshot has been built
	info *domain.Info
}

// New creates a State. created records the files a client update creates,
// renames or removes so the watcher can ignore the events they cause.
func New(dir *storage.Dir, store *metadata.Store, created *marker.Tracker) *State {
	if created == nil {
		created = marker.NewTracker(marker.DefaultWindow)
	}
	return &State{
		dir:     dir,
		store:   store,
		created: created,
		newID:   uuid.NewString,
	}
}

// Loaded reports whether the snapshot has been built.
func (s *State) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info != nil
}

// GetSnapshot returns a copy of the current snapshot, building it from disk
// on first use.
func (s *State) GetSnapshot() (*domain.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(); err != nil {
		return nil, err
	}
	return s.info.Clone(), nil
}

// ApplyClientUpdate makes the data directory match next and installs it as
// the current snapshot. next must carry the current change token.
//
// When the disk operations succeed but the metadata file cannot be written,
// the new snapshot is still installed and returned together with the error.
func (s *State) ApplyClientUpdate(next *domain.Info) (*domain.Info, error) {
	if next == nil {
		return nil, fmt.Errorf("%w: missing snapshot", domain.ErrInvalidSnapshot)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(); err != nil {
		return nil, err
	}
	cur := s.info

	if next.ChangeToken != cur.ChangeToken {
		return nil, fmt.Errorf("%w: have %s, got %q", domain.ErrConflict, cur.ChangeToken, next.ChangeToken)
	}

	work := next.Clone()
	if work.TabInfos == nil {
		work.TabInfos = []domain.TabInfo{}
	}
	plan, err := s.planLocked(cur, work)
	if err != nil {
		return nil, err
	}

	if err := s.executeLocked(plan); err != nil {
		log.Error().Err(err).Msg("client update failed midway, reconciling from disk")
		if _, rerr := s.reconcileLocked(); rerr != nil {
			log.Error().Err(rerr).Msg("reconcile after failed update")
		}
		return nil, err
	}

	promoteActive(work)
	work.ChangeToken = s.newID()
	s.info = work

	if err := s.persistLocked(); err != nil {
		return work.Clone(), err
	}

	log.Debug().
		Int("tabs", len(work.TabInfos)).
		Int("removed", len(plan.removals)).
		Int("renamed", len(plan.renames)).
		Int("created", len(plan.creates)).
		Msg("applied client update")
	return work.Clone(), nil
}

// ReconcileFromDisk updates the snapshot to match the data directory: new
// files are appended as protected tabs and tabs whose file vanished are
// dropped. It reports whether anything changed. Before the snapshot has been
// built it does nothing.
func (s *State) ReconcileFromDisk() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info == nil {
		return false, nil
	}
	return s.reconcileLocked()
}

// FilenameFor resolves a tab identifier to its filename.
func (s *State) FilenameFor(fileID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info == nil {
		return "", false
	}
	idx := s.info.FindByID(fileID)
	if idx < 0 {
		return "", false
	}
	return s.info.TabInfos[idx].Filename, true
}

// WithTabFile resolves fileID and calls fn with its filename while holding
// the state lock, so no client update can rename or remove the file while fn
// runs. Unknown identifiers yield ErrNotFoundIdentifier.
func (s *State) WithTabFile(fileID string, fn func(filename string) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info == nil {
		return fmt.Errorf("%w: %s", domain.ErrNotFoundIdentifier, fileID)
	}
	idx := s.info.FindByID(fileID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotFoundIdentifier, fileID)
	}
	return fn(s.info.TabInfos[idx].Filename)
}

// IdentifierFor resolves a filename to its tab identifier.
func (s *State) IdentifierFor(filename string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info == nil {
		return "", false
	}
	idx := s.info.FindByFilename(filename)
	if idx < 0 {
		return "", false
	}
	return s.info.TabInfos[idx].FileID, true
}

// WasCreatedRecently reports whether a client update touched filename inside
// the attribution window.
func (s *State) WasCreatedRecently(filename string) bool {
	return s.created.Recent(filename)
}

func (s *State) ensureLoadedLocked() error {
	if s.info != nil {
		return nil
	}

	info, err := s.bootLocked()
	if err != nil {
		return err
	}
	s.info = info
	return nil
}

// bootLocked merges the metadata file with the directory listing. The
// metadata file is rewritten when missing or out of date, which also proves
// the directory is writable.
func (s *State) bootLocked() (*domain.Info, error) {
	names, err := s.dir.List()
	if err != nil {
		return nil, err
	}
	entries, raw, exists, err := s.store.Load()
	if err != nil {
		return nil, err
	}

	onDisk := lo.SliceToMap(names, func(n string) (string, bool) { return n, true })
	info := &domain.Info{TabInfos: make([]domain.TabInfo, 0, len(names))}
	active := ""

	for _, e := range entries {
		if !onDisk[e.Filename] {
			log.Debug().Str("filename", e.Filename).Msg("dropping tab whose file is gone")
			continue
		}
		tab := domain.TabInfo{Filename: e.Filename, FileID: s.newID(), IsProtected: e.Protected}
		info.TabInfos = append(info.TabInfos, tab)
		if e.Active && active == "" {
			active = tab.FileID
		}
	}
	for _, name := range names {
		if info.FindByFilename(name) >= 0 {
			continue
		}
		info.TabInfos = append(info.TabInfos, domain.TabInfo{Filename: name, FileID: s.newID(), IsProtected: true})
	}

	if len(info.TabInfos) == 0 {
		s.created.Mark(DefaultTabName)
		if err := s.dir.Write(DefaultTabName, domain.BlankText); err != nil {
			return nil, err
		}
		info.TabInfos = append(info.TabInfos, domain.TabInfo{Filename: DefaultTabName, FileID: s.newID()})
	}

	if active == "" {
		active = info.TabInfos[0].FileID
	}
	info.SetActive(active)
	info.ChangeToken = s.newID()

	formatted := metadata.Format(entriesOf(info))
	if !exists || !bytes.Equal(raw, formatted) {
		if err := s.store.Save(entriesOf(info)); err != nil {
			return nil, err
		}
	}

	log.Info().
		Int("tabs", len(info.TabInfos)).
		Str("data_dir", s.dir.Root()).
		Msg("tab snapshot loaded")
	return info, nil
}

func (s *State) reconcileLocked() (bool, error) {
	names, err := s.dir.List()
	if err != nil {
		return false, err
	}

	info := s.info.Clone()
	onDisk := lo.SliceToMap(names, func(n string) (string, bool) { return n, true })

	kept := lo.Filter(info.TabInfos, func(t domain.TabInfo, _ int) bool { return onDisk[t.Filename] })
	changed := len(kept) != len(info.TabInfos)
	info.TabInfos = kept

	for _, name := range names {
		if info.FindByFilename(name) < 0 {
			info.TabInfos = append(info.TabInfos, domain.TabInfo{Filename: name, FileID: s.newID(), IsProtected: true})
			changed = true
		}
	}

	if !changed {
		return false, nil
	}

	promoteActive(info)
	info.ChangeToken = s.newID()
	s.info = info
	return true, s.persistLocked()
}

func (s *State) persistLocked() error {
	if err := s.store.Save(entriesOf(s.info)); err != nil {
		return fmt.Errorf("persist tab metadata: %w", err)
	}
	return nil
}

// commitLocked issues a new token and persists after a watcher hook changed
// the snapshot. A failed write is logged; the in-memory state stays authoritative.
func (s *State) commitLocked() {
	promoteActive(s.info)
	s.info.ChangeToken = s.newID()
	if err := s.persistLocked(); err != nil {
		log.Warn().Err(err).Msg("failed to persist tab metadata")
	}
}

// promoteActive points a dangling active identifier at the last tab, or
// clears it when there are no tabs.
func promoteActive(info *domain.Info) {
	if info.ActiveFileID != nil && info.FindByID(*info.ActiveFileID) >= 0 {
		return
	}
	if len(info.TabInfos) == 0 {
		info.SetActive("")
		return
	}
	info.SetActive(info.TabInfos[len(info.TabInfos)-1].FileID)
}

func entriesOf(info *domain.Info) []metadata.Entry {
	active := info.Active()
	return lo.Map(info.TabInfos, func(t domain.TabInfo, _ int) metadata.Entry {
		return metadata.Entry{
			Filename:  t.Filename,
			Active:    active != "" && t.FileID == active,
			Protected: t.IsProtected,
		}
	})
}
