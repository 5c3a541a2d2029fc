package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgnsrekt/chartmark/internal/analysis"
	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown entry ids.
var ErrNotFound = errors.New("history entry not found")

// SnapshotRemover deletes the stored image of a pruned entry.
type SnapshotRemover interface {
	Delete(id string) error
}

// Recorder maintains the bounded, most-recent-first history.
type Recorder struct {
	store StateStore
	snaps SnapshotRemover
	limit int
	mu    sync.Mutex
}

// NewRecorder returns a recorder keeping at most limit entries. A limit
// outside 1..MaxEntries is replaced by MaxEntries.
func NewRecorder(store StateStore, snaps SnapshotRemover, limit int) *Recorder {
	if limit <= 0 || limit > MaxEntries {
		limit = MaxEntries
	}
	return &Recorder{store: store, snaps: snaps, limit: limit}
}

// Record prepends an entry and prunes the oldest beyond the limit.
func (r *Recorder) Record(ctx context.Context, canvasID, snapshotID string, v analysis.Verdict) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, err := r.store.LoadState(ctx)
	if err != nil {
		return Entry{}, err
	}

	e := Entry{
		ID:         uuid.NewString(),
		CanvasID:   canvasID,
		SnapshotID: snapshotID,
		Timestamp:  time.Now().UTC(),
		Verdict:    v,
	}
	entries := append([]Entry{e}, st.Entries...)
	var pruned []Entry
	if len(entries) > r.limit {
		pruned = entries[r.limit:]
		entries = entries[:r.limit]
	}

	if err := r.store.SaveState(ctx, State{Entries: entries}); err != nil {
		return Entry{}, err
	}
	for _, p := range pruned {
		r.removeSnapshot(p)
	}
	return e, nil
}

// List returns entries most recent first.
func (r *Recorder) List(ctx context.Context) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, err := r.store.LoadState(ctx)
	if err != nil {
		return nil, err
	}
	return st.Entries, nil
}

func (r *Recorder) Get(ctx context.Context, id string) (Entry, error) {
	entries, err := r.List(ctx)
	if err != nil {
		return Entry{}, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Delete removes one entry and its snapshot.
func (r *Recorder) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, err := r.store.LoadState(ctx)
	if err != nil {
		return err
	}
	for i, e := range st.Entries {
		if e.ID != id {
			continue
		}
		st.Entries = append(st.Entries[:i], st.Entries[i+1:]...)
		if err := r.store.SaveState(ctx, st); err != nil {
			return err
		}
		r.removeSnapshot(e)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (r *Recorder) removeSnapshot(e Entry) {
	if r.snaps == nil || e.SnapshotID == "" {
		return
	}
	if err := r.snaps.Delete(e.SnapshotID); err != nil {
		slog.Debug("history snapshot cleanup failed", "entry_id", e.ID, "snapshot_id", e.SnapshotID, "error", err)
	}
}
