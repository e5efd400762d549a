// Package storage manages the flat data directory that holds one text file per tab.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/brianly1003/notepadtt/internal/domain"
	"github.com/brianly1003/notepadtt/internal/metadata"
	"github.com/rs/zerolog/log"
)

// Filter decides which filenames in the data directory are tracked as tabs.
type Filter struct {
	// Include patterns (filepath.Match syntax). Empty means every name.
	Include []string
	// Exclude patterns are applied after Include.
	Exclude []string
	// MaxFileSize in bytes. Zero disables the check.
	MaxFileSize int64
}

// AllowsName reports whether name passes the include/exclude patterns.
func (f Filter) AllowsName(name string) bool {
	if name == metadata.FileName {
		return false
	}
	if len(f.Include) > 0 && !matchAny(f.Include, name) {
		return false
	}
	return !matchAny(f.Exclude, name)
}

// AllowsSize reports whether a file of size bytes may be tracked.
func (f Filter) AllowsSize(size int64) bool {
	return f.MaxFileSize <= 0 || size <= f.MaxFileSize
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := filepath.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

// Dir is the data directory.
type Dir struct {
	root   string
	filter Filter
}

// New creates a Dir rooted at root.
func New(root string, filter Filter) *Dir {
	return &Dir{root: root, filter: filter}
}

// Root returns the directory path.
func (d *Dir) Root() string {
	return d.root
}

// Filter returns the tracking filter.
func (d *Dir) Filter() Filter {
	return d.filter
}

// Path returns the absolute path of a tab file.
func (d *Dir) Path(name string) string {
	return filepath.Join(d.root, name)
}

// Ensure creates the data directory if it does not exist.
func (d *Dir) Ensure() error {
	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return writeError("create data directory", "", err)
	}
	return nil
}

// List returns the tracked files in name order. Directories and the
// metadata file are never returned. A missing directory yields no files.
func (d *Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, domain.NewStorageError("list", "", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if d.Tracks(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Tracks reports whether name is an existing regular file that passes the filter.
func (d *Dir) Tracks(name string) bool {
	if !d.filter.AllowsName(name) {
		return false
	}
	info, err := os.Stat(d.Path(name))
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if !d.filter.AllowsSize(info.Size()) {
		log.Debug().Str("filename", name).Int64("size", info.Size()).Msg("file exceeds tracking size limit")
		return false
	}
	return true
}

// Exists reports whether a regular file with that name exists.
func (d *Dir) Exists(name string) bool {
	info, err := os.Stat(d.Path(name))
	return err == nil && info.Mode().IsRegular()
}

// IsDir reports whether name refers to a directory.
func (d *Dir) IsDir(name string) bool {
	info, err := os.Stat(d.Path(name))
	return err == nil && info.IsDir()
}

// Read returns the text of a tab file. Errors wrap fs.ErrNotExist when
// the file is missing.
func (d *Dir) Read(name string) (string, error) {
	data, err := os.ReadFile(d.Path(name))
	if err != nil {
		return "", domain.NewStorageError("read", name, err)
	}
	return string(data), nil
}

// Write replaces the text of a tab file, creating it when needed.
func (d *Dir) Write(name, text string) error {
	if err := d.Ensure(); err != nil {
		return err
	}
	if err := os.WriteFile(d.Path(name), []byte(text), 0o644); err != nil {
		return writeError("write", name, err)
	}
	return nil
}

// Remove deletes a tab file. A missing file is not an error.
func (d *Dir) Remove(name string) error {
	if err := os.Remove(d.Path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return writeError("remove", name, err)
	}
	return nil
}

// Rename moves a tab file to a new name. A missing source is not an error.
func (d *Dir) Rename(oldName, newName string) error {
	if !d.Exists(oldName) {
		return nil
	}
	if err := os.Rename(d.Path(oldName), d.Path(newName)); err != nil {
		return writeError("rename", oldName, fmt.Errorf("to %q: %w", newName, err))
	}
	return nil
}

func writeError(op, name string, err error) error {
	serr := domain.NewStorageError(op, name, err)
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %w", domain.ErrPermissionDenied, serr)
	}
	return serr
}
