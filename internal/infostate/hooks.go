package infostate

import (
	"github.com/brianly1003/notepadtt/internal/domain"
	"github.com/brianly1003/notepadtt/internal/metadata"
	"github.com/rs/zerolog/log"
)

// The Notify hooks translate filesystem events into snapshot changes. Each
// returns true when clients need a fresh snapshot. Events for files this
// process created, renamed or removed for a client, and events arriving
// before the snapshot has been built, are ignored.

// NotifyExternalCreate adds a tab for a file created outside the application.
func (s *State) NotifyExternalCreate(filename string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info == nil || s.created.Recent(filename) {
		return false
	}
	if s.info.FindByFilename(filename) >= 0 || !s.dir.Tracks(filename) {
		return false
	}

	s.info.TabInfos = append(s.info.TabInfos, domain.TabInfo{
		Filename:    filename,
		FileID:      s.newID(),
		IsProtected: true,
	})
	s.commitLocked()

	log.Info().Str("filename", filename).Msg("external file added as tab")
	return true
}

// NotifyExternalDelete drops the tab of a file deleted outside the application.
func (s *State) NotifyExternalDelete(filename string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info == nil || s.created.Recent(filename) {
		return false
	}
	idx := s.info.FindByFilename(filename)
	if idx < 0 {
		return false
	}
	if s.dir.Exists(filename) {
		// recreated before the event was handled
		return false
	}

	s.removeTabLocked(idx)
	s.commitLocked()

	log.Info().Str("filename", filename).Msg("tab removed after external delete")
	return true
}

// NotifyExternalRename follows a file renamed outside the application.
// When the new name already belonged to a tab, that tab keeps its identifier,
// the old-name tab is removed, and the surviving identifier is returned as
// replaced so its subscribers can be sent the new content.
func (s *State) NotifyExternalRename(oldName, newName string) (broadcast bool, replaced string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info == nil || oldName == newName || s.created.Recent(newName) {
		return false, ""
	}

	oldIdx := s.info.FindByFilename(oldName)
	newIdx := s.info.FindByFilename(newName)

	switch {
	case oldIdx < 0 && newIdx >= 0:
		// e.g. an editor saving through a temp file
		return false, s.info.TabInfos[newIdx].FileID

	case oldIdx < 0:
		if !s.trackable(newName) {
			return false, ""
		}
		s.info.TabInfos = append(s.info.TabInfos, domain.TabInfo{
			Filename:    newName,
			FileID:      s.newID(),
			IsProtected: true,
		})
		log.Info().Str("filename", newName).Msg("renamed file added as tab")

	case newIdx >= 0:
		replaced = s.info.TabInfos[newIdx].FileID
		s.removeTabLocked(oldIdx)
		log.Info().Str("old", oldName).Str("filename", newName).Msg("tab replaced by rename")

	case !s.trackable(newName):
		s.removeTabLocked(oldIdx)
		log.Info().Str("old", oldName).Str("filename", newName).Msg("tab renamed out of tracking")

	default:
		s.info.TabInfos[oldIdx].Filename = newName
		log.Info().Str("old", oldName).Str("filename", newName).Msg("tab renamed externally")
	}

	s.commitLocked()
	return true, replaced
}

func (s *State) trackable(name string) bool {
	return metadata.ValidateFilename(name) == nil && s.dir.Tracks(name)
}

func (s *State) removeTabLocked(idx int) {
	tabs := s.info.TabInfos
	s.info.TabInfos = append(tabs[:idx:idx], tabs[idx+1:]...)
}
