package install

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/engine"
)

// Store persists installation statuses as a single JSON record set keyed by
// engine kind. Every update rewrites the whole file through a temp file.
//
// There is no file locking; concurrent writers from separate processes are
// a known limitation. Within one process the mutex is sufficient.
type Store struct {
	path     string
	mu       sync.RWMutex
	statuses map[engine.Kind]Status
}

// storeFile is the on-disk shape of the cache.
type storeFile struct {
	Version  string                 `json:"version"`
	Statuses map[engine.Kind]Status `json:"statuses"`
}

// NewStore creates a store backed by the file at path, loading any existing
// cache. A missing file yields an empty store.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:     path,
		statuses: make(map[engine.Kind]Status),
	}
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("failed to load installation cache from %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to decode cache file: %w", err)
	}
	if file.Statuses != nil {
		s.statuses = file.Statuses
	}
	return nil
}

// save rewrites the cache file wholesale. Callers must hold the write lock.
func (s *Store) save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.MarshalIndent(storeFile{Version: "1.0", Statuses: s.statuses}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}

	// Write to a temp file then rename for an atomic replace
	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp cache file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}

// Get returns the status for a kind and whether one is recorded.
func (s *Store) Get(kind engine.Kind) (Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[kind]
	return st, ok
}

// Put records a status and persists the full record set.
func (s *Store) Put(kind engine.Kind, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[kind] = status
	return s.save()
}

// Delete evicts a kind's status and persists the full record set. Deleting
// an absent kind is a no-op.
func (s *Store) Delete(kind engine.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.statuses[kind]; !ok {
		return nil
	}
	delete(s.statuses, kind)
	return s.save()
}

// All returns a copy of every recorded status.
func (s *Store) All() map[engine.Kind]Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[engine.Kind]Status, len(s.statuses))
	for k, v := range s.statuses {
		out[k] = v
	}
	return out
}
