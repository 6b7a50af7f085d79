// Package persist writes state snapshots as JSON files, one per logical
// collection, using the write-temp-then-rename pattern so a crash mid-write
// never corrupts the previous snapshot.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Store reads and writes snapshot files under one directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Save atomically writes a collection snapshot. The temporary file lands in
// the same directory so the rename stays on one filesystem.
func (s *Store) Save(collection string, v interface{}) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s snapshot: %w", collection, err)
	}

	final := filepath.Join(s.dir, collection+".json")
	tmp, err := os.CreateTemp(s.dir, collection+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s snapshot: %w", collection, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s snapshot: %w", collection, err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to publish %s snapshot: %w", collection, err)
	}
	return nil
}

// Load reads a collection snapshot into out. A missing file is not an error;
// the boolean reports whether anything was loaded.
func (s *Store) Load(collection string, out interface{}) (bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, collection+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s snapshot: %w", collection, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to parse %s snapshot: %w", collection, err)
	}
	return true, nil
}

// LoadOrWarn is the startup variant: parse failures are logged and treated as
// absent so a corrupt snapshot never blocks startup.
func (s *Store) LoadOrWarn(collection string, out interface{}) bool {
	ok, err := s.Load(collection, out)
	if err != nil {
		log.Warn().Err(err).Str("collection", collection).Msg("snapshot unusable, starting fresh")
		return false
	}
	return ok
}
