// Package metadata reads and writes the durable tab record kept next to the
// tab files: one line per tab in display order, each line a run of \X flag
// tags followed by the filename.
package metadata

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/brianly1003/notepadtt/internal/domain"
	"github.com/rs/zerolog/log"
)

// FileName is the reserved name of the metadata file inside the data directory.
const FileName = ".notepadtt_metadata.txt"

const (
	flagActive    = 'A'
	flagProtected = 'P'
)

// Entry is one line of the metadata file.
type Entry struct {
	Filename  string
	Active    bool
	Protected bool
}

// Parse decodes metadata file content. Lines that do not carry a usable
// filename are skipped, as are repeated filenames after their first line.
func Parse(data []byte) []Entry {
	var entries []Entry
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 4096), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		entry := Entry{}
		for len(line) > 1 && line[0] == '\\' {
			switch line[1] {
			case flagActive:
				entry.Active = true
			case flagProtected:
				entry.Protected = true
			}
			line = line[2:]
		}
		entry.Filename = line

		if err := ValidateFilename(entry.Filename); err != nil {
			log.Warn().Err(err).Msg("skipping metadata line")
			continue
		}
		if seen[entry.Filename] {
			log.Warn().Str("filename", entry.Filename).Msg("skipping duplicate metadata line")
			continue
		}
		seen[entry.Filename] = true
		entries = append(entries, entry)
	}

	return entries
}

// Format encodes entries in file order. Flags are written as \A\P<name>.
func Format(entries []Entry) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		if e.Active {
			buf.WriteString(`\A`)
		}
		if e.Protected {
			buf.WriteString(`\P`)
		}
		buf.WriteString(e.Filename)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// ValidateFilename rejects names that cannot be stored as a tab file.
func ValidateFilename(name string) error {
	reason := ""
	switch {
	case name == "":
		reason = "empty"
	case name == FileName:
		reason = "reserved for tab metadata"
	case name == "." || name == "..":
		reason = "not a file name"
	case strings.HasPrefix(name, `\`):
		reason = `starts with \`
	case strings.ContainsAny(name, `/\`):
		reason = "contains a path separator"
	case strings.IndexFunc(name, unicode.IsControl) >= 0:
		reason = "contains a control character"
	}
	if reason != "" {
		return &domain.FilenameError{Filename: name, Reason: reason}
	}
	return nil
}

// Store persists entries to the metadata file of one data directory.
type Store struct {
	dir string
}

// NewStore creates a store for the data directory dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the absolute path of the metadata file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, FileName)
}

// Load reads the metadata file. A missing file is not an error; exists
// reports whether it was found. raw is the file content as read.
func (s *Store) Load() (entries []Entry, raw []byte, exists bool, err error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, false, nil
		}
		return nil, nil, false, domain.NewStorageError("read metadata", FileName, err)
	}
	return Parse(data), data, true, nil
}

// Save rewrites the metadata file.
func (s *Store) Save(entries []Entry) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return wrapWriteError("create data directory", "", err)
	}
	if err := os.WriteFile(s.Path(), Format(entries), 0o644); err != nil {
		return wrapWriteError("write metadata", FileName, err)
	}
	return nil
}

func wrapWriteError(op, filename string, err error) error {
	serr := domain.NewStorageError(op, filename, err)
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %w", domain.ErrPermissionDenied, serr)
	}
	return serr
}
