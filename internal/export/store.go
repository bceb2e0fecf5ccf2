package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for unknown export IDs.
	ErrNotFound = errors.New("export: not found")
	// ErrInvalidID is returned for IDs that are not UUIDs.
	ErrInvalidID = errors.New("export: invalid id")
)

// Meta describes one stored export.
type Meta struct {
	ID        string    `json:"id"`
	Format    Format    `json:"format"`
	SizeBytes int       `json:"size_bytes"`
	Points    int       `json:"points"`
	Threshold float64   `json:"threshold"`
	Channel   int       `json:"channel"`
	CreatedAt time.Time `json:"created_at"`
}

// Store keeps export files with a JSON metadata sidecar per export.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates a Store and ensures the directory exists.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export store: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w %q", ErrInvalidID, id)
	}
	return nil
}

// Save assigns a new ID when meta.ID is empty, then writes the file and sidecar.
func (s *Store) Save(meta Meta, data []byte) (Meta, error) {
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if err := validateID(meta.ID); err != nil {
		return Meta{}, err
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	meta.SizeBytes = len(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	filePath := s.filePath(meta.ID, meta.Format)
	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return Meta{}, fmt.Errorf("export store: write file: %w", err)
	}
	sidecar, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		_ = os.Remove(filePath)
		return Meta{}, fmt.Errorf("export store: marshal meta: %w", err)
	}
	if err := os.WriteFile(s.metaPath(meta.ID), sidecar, 0o644); err != nil {
		_ = os.Remove(filePath)
		return Meta{}, fmt.Errorf("export store: write meta: %w", err)
	}
	return meta, nil
}

// Get reads export metadata by ID.
func (s *Store) Get(id string) (Meta, error) {
	if err := validateID(id); err != nil {
		return Meta{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readMeta(id)
}

func (s *Store) readMeta(id string) (Meta, error) {
	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Meta{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Meta{}, fmt.Errorf("export store: read meta: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return Meta{}, fmt.Errorf("export store: unmarshal meta: %w", err)
	}
	return meta, nil
}

// List returns all exports, newest first.
func (s *Store) List() ([]Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, "*.meta.json"))
	if err != nil {
		return nil, fmt.Errorf("export store: glob: %w", err)
	}
	metas := make([]Meta, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Debug("export store: skip unreadable meta", "path", path, "error", err)
			continue
		}
		var meta Meta
		if err := json.Unmarshal(data, &meta); err != nil {
			slog.Debug("export store: skip invalid meta", "path", path, "error", err)
			continue
		}
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})
	return metas, nil
}

// Read returns the stored bytes and metadata.
func (s *Store) Read(id string) ([]byte, Meta, error) {
	if err := validateID(id); err != nil {
		return nil, Meta{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, err := s.readMeta(id)
	if err != nil {
		return nil, Meta{}, err
	}
	data, err := os.ReadFile(s.filePath(id, meta.Format))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Meta{}, fmt.Errorf("%w: %s file missing", ErrNotFound, id)
		}
		return nil, Meta{}, fmt.Errorf("export store: read file: %w", err)
	}
	return data, meta, nil
}

// Delete removes the export file and its sidecar.
func (s *Store) Delete(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.readMeta(id)
	if err != nil {
		return err
	}
	if err := os.Remove(s.filePath(id, meta.Format)); err != nil && !os.IsNotExist(err) {
		slog.Debug("export file cleanup failed", "id", id, "error", err)
	}
	if err := os.Remove(s.metaPath(id)); err != nil {
		return fmt.Errorf("export store: remove meta: %w", err)
	}
	return nil
}

func (s *Store) filePath(id string, f Format) string {
	return filepath.Join(s.dir, id+"."+string(f))
}

func (s *Store) metaPath(id string) string {
	return filepath.Join(s.dir, id+".meta.json")
}
