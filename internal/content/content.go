// Package content loads and saves the text body of tabs.
package content

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/brianly1003/notepadtt/internal/domain"
	"github.com/brianly1003/notepadtt/internal/marker"
	"github.com/brianly1003/notepadtt/internal/storage"
	"github.com/rs/zerolog/log"
)

// DefaultMaxBytes is the largest text accepted by Save unless configured otherwise.
const DefaultMaxBytes = 200 * 1024

// Resolver maps tab identifiers to filenames. WithTabFile keeps the mapping
// fixed while fn runs.
type Resolver interface {
	FilenameFor(fileID string) (string, bool)
	WithTabFile(fileID string, fn func(filename string) error) error
}

// Service reads and writes tab files by identifier.
type Service struct {
	resolver Resolver
	dir      *storage.Dir
	written  *marker.Tracker
	maxBytes int
}

// New creates a content service. A non-positive maxBytes uses DefaultMaxBytes.
func New(resolver Resolver, dir *storage.Dir, written *marker.Tracker, maxBytes int) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if written == nil {
		written = marker.NewTracker(marker.DefaultWindow)
	}
	return &Service{
		resolver: resolver,
		dir:      dir,
		written:  written,
		maxBytes: maxBytes,
	}
}

// MaxBytes returns the size limit enforced by Save.
func (s *Service) MaxBytes() int {
	return s.maxBytes
}

// Load returns the text of a tab. Unknown identifiers and tabs without a
// backing file yield the blank placeholder body.
func (s *Service) Load(fileID string) (*domain.TabContent, error) {
	filename, ok := s.resolver.FilenameFor(fileID)
	if !ok {
		return &domain.TabContent{FileID: fileID, Text: domain.BlankText}, nil
	}

	text, err := s.dir.Read(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &domain.TabContent{FileID: fileID, Text: domain.BlankText}, nil
		}
		return nil, err
	}
	return &domain.TabContent{FileID: fileID, Text: text}, nil
}

// Save writes text to the tab's file and records the write so the watcher
// does not echo it back.
func (s *Service) Save(fileID, text string) error {
	if len(text) > s.maxBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", domain.ErrContentTooLarge, len(text), s.maxBytes)
	}

	return s.resolver.WithTabFile(fileID, func(filename string) error {
		s.written.Mark(filename)
		if err := s.dir.Write(filename, text); err != nil {
			return err
		}

		log.Debug().Str("file_id", fileID).Str("filename", filename).Int("bytes", len(text)).Msg("tab content saved")
		return nil
	})
}

// WasWrittenRecently reports whether Save wrote filename inside the marker window.
func (s *Service) WasWrittenRecently(filename string) bool {
	return s.written.Recent(filename)
}
