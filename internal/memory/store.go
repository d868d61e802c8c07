package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"codeberg.org/snonux/backtrans/internal/provider"
)

// ErrPersistence wraps every failure of a Store. Memory treats these as
// warnings: the in-memory state stays authoritative.
var ErrPersistence = errors.New("translation memory persistence failed")

// Config is the persisted configuration of a Memory
type Config struct {
	MaxSize   int     `json:"max_size"`
	Threshold float64 `json:"threshold"`
}

// Snapshot is everything a Store persists. Cache is ordered oldest first.
type Snapshot struct {
	Config  Config  `json:"config"`
	Cache   []Entry `json:"cache"`
	Metrics Metrics `json:"metrics"`
}

// Store loads and saves snapshots of a Memory. Load returns an error
// satisfying errors.Is(err, fs.ErrNotExist) when nothing was saved yet.
type Store interface {
	Load() (*Snapshot, error)
	Save(*Snapshot) error
}

// FileStore persists snapshots as one JSON document
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore writing to path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the JSON file location
func (s *FileStore) Path() string {
	return s.path
}

type fileDocument struct {
	Config  Config            `json:"config"`
	Cache   []json.RawMessage `json:"cache"`
	Metrics Metrics           `json:"metrics"`
}

// Load reads the JSON document. Individual cache entries that do not decode
// are skipped so one bad record does not discard the whole memory.
func (s *FileStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: reading %s: %w", ErrPersistence, s.path, err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", ErrPersistence, s.path, err)
	}

	snap := &Snapshot{Config: doc.Config, Metrics: doc.Metrics}
	for _, raw := range doc.Cache {
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			continue
		}
		e.ProviderID = provider.Normalize(string(e.ProviderID))
		snap.Cache = append(snap.Cache, e)
	}
	return snap, nil
}

// Save writes the snapshot to a temporary file next to the target and
// renames it into place.
func (s *FileStore) Save(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding: %w", ErrPersistence, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: creating %s: %w", ErrPersistence, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: writing %s: %w", ErrPersistence, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: renaming to %s: %w", ErrPersistence, s.path, err)
	}
	return nil
}
