package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgnsrekt/chartmark/internal/analysis"
)

// MaxEntries bounds the analysis history.
const MaxEntries = 20

// Entry is one analysed export.
type Entry struct {
	ID         string           `json:"id"`
	CanvasID   string           `json:"canvas_id"`
	SnapshotID string           `json:"snapshot_id"`
	Timestamp  time.Time        `json:"timestamp"`
	Verdict    analysis.Verdict `json:"verdict"`
}

// State is the persisted record, most recent entry first.
type State struct {
	Entries []Entry `json:"entries"`
}

// StateStore loads and saves the whole history state.
type StateStore interface {
	LoadState(ctx context.Context) (State, error)
	SaveState(ctx context.Context, st State) error
}

// FileStateStore keeps State as a JSON file, replaced atomically on save.
type FileStateStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStateStore(path string) (*FileStateStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history store: mkdir %s: %w", filepath.Dir(path), err)
	}
	return &FileStateStore{path: path}, nil
}

// LoadState returns an empty state when the file is missing. A corrupt file
// is moved aside to <path>.corrupt-<unix> and the history restarts empty.
func (f *FileStateStore) LoadState(ctx context.Context) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("history store: read: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", f.path, time.Now().UnixNano())
		if renameErr := os.Rename(f.path, aside); renameErr != nil {
			return State{}, fmt.Errorf("history store: corrupt state %s not moved aside: %w", f.path, renameErr)
		}
		slog.Warn("history state unreadable, moved aside", "path", f.path, "moved_to", aside, "error", err)
		return State{}, nil
	}
	return st, nil
}

func (f *FileStateStore) SaveState(ctx context.Context, st State) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("history store: marshal: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".history-*.json")
	if err != nil {
		return fmt.Errorf("history store: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("history store: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("history store: close: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("history store: rename: %w", err)
	}
	return nil
}
