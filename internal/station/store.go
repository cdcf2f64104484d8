package station

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// storeData is the on-disk representation: a flat list of stations, no
// legacy format to migrate from.
type storeData struct {
	Version  int        `json:"version"`
	Stations []*Station `json:"stations"`
}

const currentStoreVersion = 1

// Store persists the catalog's stations to a single JSON file, writing
// atomically via a temp file plus rename.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a Store backed by path, creating its parent directory if
// necessary.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory %q: %w", dir, err)
	}
	return &Store{path: path}, nil
}

// Path returns the file path used by this store.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether the store file is already on disk.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Save serialises stations to JSON and writes it to disk atomically.
func (s *Store) Save(stations []*Station) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := storeData{Version: currentStoreVersion, Stations: stations}
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stations: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "stations-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(jsonBytes); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file to %q: %w", s.path, err)
	}

	slog.Debug("station catalog saved to disk", "path", s.path, "count", len(stations))
	return nil
}

// Load reads the persisted station list from disk. A missing file is not an
// error; it returns an empty slice so a fresh deployment starts clean.
func (s *Store) Load() ([]*Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read station store %q: %w", s.path, err)
	}

	var data storeData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse station store %q: %w", s.path, err)
	}
	return data.Stations, nil
}
