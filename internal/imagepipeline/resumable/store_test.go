package resumable

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/imagepipeline/internal/imagepipeline/model"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	testStoreRoundTrip(t, NewMemoryStore())
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "resumable.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer func() { _ = store.Close() }()

	testStoreRoundTrip(t, store)
}

func testStoreRoundTrip(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	const url = "https://example.com/a.jpg"

	if _, ok, err := store.Get(ctx, url); err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	state := model.ResumableState{
		Validator:       `"etag-123"`,
		Accumulated:     []byte{1, 2, 3, 4},
		ServerConfirmed: true,
		UpdatedAt:       time.Now().UTC().Truncate(time.Second),
	}
	if err := store.Put(ctx, url, state); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := store.Get(ctx, url)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got.Validator != state.Validator {
		t.Errorf("Validator = %q, want %q", got.Validator, state.Validator)
	}
	if string(got.Accumulated) != string(state.Accumulated) {
		t.Errorf("Accumulated = %v, want %v", got.Accumulated, state.Accumulated)
	}
	if got.ServerConfirmed != state.ServerConfirmed {
		t.Errorf("ServerConfirmed = %v, want %v", got.ServerConfirmed, state.ServerConfirmed)
	}

	overwrite := state
	overwrite.Validator = `"etag-456"`
	if err := store.Put(ctx, url, overwrite); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, _, _ = store.Get(ctx, url)
	if got.Validator != overwrite.Validator {
		t.Errorf("expected overwrite, Validator = %q, want %q", got.Validator, overwrite.Validator)
	}

	if err := store.Delete(ctx, url); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, url); ok {
		t.Error("expected miss after delete")
	}
}
