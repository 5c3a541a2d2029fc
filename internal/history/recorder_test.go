package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgnsrekt/chartmark/internal/analysis"
)

type fakeRemover struct {
	deleted []string
}

func (f *fakeRemover) Delete(id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func newTestRecorder(t *testing.T, limit int) (*Recorder, *fakeRemover, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "history.json")
	store, err := NewFileStateStore(path)
	if err != nil {
		t.Fatalf("NewFileStateStore() error = %v", err)
	}
	rm := &fakeRemover{}
	return NewRecorder(store, rm, limit), rm, path
}

func verdict(conf float64) analysis.Verdict {
	return analysis.Verdict{Signal: analysis.SignalBuy, Entry: "1", TP: "2", SL: "0.5", Reasoning: "r", Confidence: conf}
}

func TestRecordPrependsAndBounds(t *testing.T) {
	ctx := context.Background()
	r, rm, _ := newTestRecorder(t, 0)

	for i := 0; i < MaxEntries+3; i++ {
		if _, err := r.Record(ctx, "canvas", fmt.Sprintf("snap-%02d", i), verdict(float64(i))); err != nil {
			t.Fatalf("Record(%d) error = %v", i, err)
		}
	}

	entries, err := r.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != MaxEntries {
		t.Fatalf("len(entries) = %d; want %d", len(entries), MaxEntries)
	}
	if got, want := entries[0].SnapshotID, fmt.Sprintf("snap-%02d", MaxEntries+2); got != want {
		t.Fatalf("entries[0].SnapshotID = %q; want %q", got, want)
	}
	if got := entries[MaxEntries-1].SnapshotID; got != "snap-03" {
		t.Fatalf("oldest kept = %q; want snap-03", got)
	}
	if want := []string{"snap-00", "snap-01", "snap-02"}; fmt.Sprint(rm.deleted) != fmt.Sprint(want) {
		t.Fatalf("pruned snapshots = %v; want %v", rm.deleted, want)
	}
}

func TestRecordPersistsAcrossRecorders(t *testing.T) {
	ctx := context.Background()
	r, _, path := newTestRecorder(t, 5)
	e, err := r.Record(ctx, "c1", "s1", verdict(70))
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	store, err := NewFileStateStore(path)
	if err != nil {
		t.Fatalf("NewFileStateStore() error = %v", err)
	}
	got, err := NewRecorder(store, nil, 5).Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Verdict.Confidence != 70 || got.CanvasID != "c1" {
		t.Fatalf("Get() = %+v", got)
	}
}

func TestDeleteEntry(t *testing.T) {
	ctx := context.Background()
	r, rm, _ := newTestRecorder(t, 5)
	e, err := r.Record(ctx, "c1", "s1", verdict(10))
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := r.Delete(ctx, e.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(rm.deleted) != 1 || rm.deleted[0] != "s1" {
		t.Fatalf("deleted snapshots = %v; want [s1]", rm.deleted)
	}
	if err := r.Delete(ctx, e.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete() twice error = %v; want ErrNotFound", err)
	}
	if _, err := r.Get(ctx, e.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after Delete() error = %v; want ErrNotFound", err)
	}
}

func TestLoadStateCorruptFileMovedAside(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("os.WriteFile() failed: %v", err)
	}
	store, err := NewFileStateStore(path)
	if err != nil {
		t.Fatalf("NewFileStateStore() error = %v", err)
	}
	st, err := store.LoadState(context.Background())
	if err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}
	if len(st.Entries) != 0 {
		t.Fatalf("LoadState() entries = %d; want 0", len(st.Entries))
	}

	matches, err := filepath.Glob(path + ".corrupt-*")
	if err != nil || len(matches) != 1 {
		t.Fatalf("corrupt copies = %v, %v; want exactly one", matches, err)
	}
	kept, err := os.ReadFile(matches[0])
	if err != nil || string(kept) != "{not json" {
		t.Fatalf("corrupt copy = %q, %v; want original bytes", kept, err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("Stat(history.json) error = %v; want not exist", err)
	}

	// A later save must not touch the moved copy.
	if err := store.SaveState(context.Background(), State{Entries: []Entry{{ID: "e1"}}}); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}
	if kept, _ := os.ReadFile(matches[0]); string(kept) != "{not json" {
		t.Fatalf("corrupt copy changed to %q", kept)
	}
}
