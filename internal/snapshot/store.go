// Package snapshot keeps the exports that were sent for analysis, grouped by
// canvas and ordered by export sequence.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	idRe     = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	canvasRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	formats  = map[string]bool{"png": true, "jpeg": true}
)

// ErrNotFound is returned when a snapshot id is not in the store.
var ErrNotFound = errors.New("snapshot not found")

// SnapshotMeta describes a stored canvas export.
type SnapshotMeta struct {
	ID         string    `json:"id"`
	CanvasID   string    `json:"canvas_id"`
	Seq        uint64    `json:"seq"`
	Format     string    `json:"format"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	SizeBytes  int       `json:"size_bytes"`
	ShapeCount int       `json:"shape_count"`
	CreatedAt  time.Time `json:"created_at"`
	Notes      string    `json:"notes,omitempty"`
}

// base is the file name without extension: <seq>-<id>, so a canvas
// directory lists in export order.
func (m SnapshotMeta) base() string {
	return fmt.Sprintf("%010d-%s", m.Seq, m.ID)
}

func (m SnapshotMeta) validate() error {
	if !idRe.MatchString(m.ID) {
		return fmt.Errorf("invalid snapshot id: %q", m.ID)
	}
	if !canvasRe.MatchString(m.CanvasID) {
		return fmt.Errorf("invalid canvas id: %q", m.CanvasID)
	}
	if !formats[m.Format] {
		return fmt.Errorf("unsupported snapshot format: %q", m.Format)
	}
	return nil
}

// Store writes each snapshot as <dir>/<canvas_id>/<seq>-<id>.<format> with a
// .json sidecar and keeps an in-memory index by id.
type Store struct {
	dir   string
	mu    sync.RWMutex
	index map[string]SnapshotMeta
}

// NewStore creates the directory if needed and indexes existing sidecars.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot store: mkdir %s: %w", dir, err)
	}
	s := &Store{dir: dir, index: make(map[string]SnapshotMeta)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*", "*.json"))
	if err != nil {
		return fmt.Errorf("snapshot store: glob: %w", err)
	}
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Debug("snapshot meta read failed", "path", path, "error", err)
			continue
		}
		var meta SnapshotMeta
		if err := json.Unmarshal(data, &meta); err != nil || meta.validate() != nil {
			slog.Debug("snapshot meta skipped", "path", path, "error", err)
			continue
		}
		s.index[meta.ID] = meta
	}
	return nil
}

func (s *Store) paths(m SnapshotMeta) (img, meta string) {
	stem := filepath.Join(s.dir, m.CanvasID, m.base())
	return stem + "." + m.Format, stem + ".json"
}

// Save writes the image and its sidecar.
func (s *Store) Save(meta SnapshotMeta, imageData []byte) error {
	if err := meta.validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot store: marshal meta: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Join(s.dir, meta.CanvasID), 0o755); err != nil {
		return fmt.Errorf("snapshot store: mkdir canvas: %w", err)
	}
	imgPath, jsonPath := s.paths(meta)
	if err := os.WriteFile(imgPath, imageData, 0o644); err != nil {
		return fmt.Errorf("snapshot store: write image: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		_ = os.Remove(imgPath)
		return fmt.Errorf("snapshot store: write meta: %w", err)
	}
	s.index[meta.ID] = meta
	return nil
}

func (s *Store) Get(id string) (SnapshotMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.index[id]
	if !ok {
		return SnapshotMeta{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return meta, nil
}

// ForCanvas returns the snapshots of one canvas, highest sequence first.
func (s *Store) ForCanvas(canvasID string) []SnapshotMeta {
	canvasID = strings.TrimSpace(canvasID)
	s.mu.RLock()
	var out []SnapshotMeta
	for _, m := range s.index {
		if m.CanvasID == canvasID {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
	return out
}

// ReadImage returns the stored bytes and their format.
func (s *Store) ReadImage(id string) ([]byte, string, error) {
	meta, err := s.Get(id)
	if err != nil {
		return nil, "", err
	}
	imgPath, _ := s.paths(meta)
	data, err := os.ReadFile(imgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("%w: image %s", ErrNotFound, id)
		}
		return nil, "", fmt.Errorf("snapshot store: read image: %w", err)
	}
	return data, meta.Format, nil
}

// Delete removes a snapshot and, once empty, its canvas directory.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, ok := s.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	imgPath, jsonPath := s.paths(meta)
	if err := os.Remove(imgPath); err != nil {
		slog.Debug("snapshot image cleanup failed", "id", id, "path", imgPath, "error", err)
	}
	if err := os.Remove(jsonPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("snapshot store: remove meta: %w", err)
	}
	delete(s.index, id)
	// Only succeeds when the canvas has no snapshots left.
	_ = os.Remove(filepath.Dir(jsonPath))
	return nil
}
