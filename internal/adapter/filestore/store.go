// Package filestore reads published artifacts from the output directory.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/couchcryptid/aladin-mirror/internal/domain"
)

var (
	// ErrNotReady means the latest alias does not resolve to a published artifact yet.
	ErrNotReady = errors.New("file not ready yet")
	// ErrNotFound means the name is not a published artifact.
	ErrNotFound = errors.New("file not found")
)

// Entry is a published artifact on disk.
type Entry struct {
	Name      string           `json:"name"`
	Path      string           `json:"-"`
	Timestamp domain.Timestamp `json:"timestamp"`
	Size      int64            `json:"size"`
	ModTime   time.Time        `json:"modified"`
}

// Store resolves artifact names inside one output directory. It never
// writes.
type Store struct {
	dir    string
	naming domain.ArtifactNaming
}

// NewStore creates a Store over dir.
func NewStore(dir string, naming domain.ArtifactNaming) *Store {
	return &Store{dir: dir, naming: naming}
}

// AliasName returns the file name of the latest alias.
func (s *Store) AliasName() string { return s.naming.Alias() }

// Latest resolves the alias once and returns the stamped artifact it points
// at. Callers should read from Entry.Path so a concurrent repoint does not
// affect them.
func (s *Store) Latest() (Entry, error) {
	target, err := os.Readlink(filepath.Join(s.dir, s.naming.Alias()))
	if err != nil {
		return Entry{}, ErrNotReady
	}
	e, err := s.Lookup(filepath.Base(target))
	if err != nil {
		return Entry{}, ErrNotReady
	}
	return e, nil
}

// Lookup returns the stamped artifact called name.
func (s *Store) Lookup(name string) (Entry, error) {
	ts, ok := s.naming.ParseStamped(name)
	if !ok || filepath.Base(name) != name {
		return Entry{}, ErrNotFound
	}
	path := filepath.Join(s.dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return Entry{}, ErrNotFound
	}
	return Entry{Name: name, Path: path, Timestamp: ts, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// List returns every stamped artifact, most recent run first.
func (s *Store) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read output dir: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		e, err := s.Lookup(de.Name())
		if err != nil {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}

// CheckReadiness reports an error until an artifact has been published.
func (s *Store) CheckReadiness(_ context.Context) error {
	_, err := s.Latest()
	return err
}
