package testsupport

import (
	"context"
	"encoding/json"
	"testing"

	"medcast/internal/config"
	"medcast/internal/run"
	"medcast/internal/runstore"
)

// MustOpenStore opens a runstore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *runstore.Store {
	t.Helper()

	store, err := runstore.Open(cfg)
	if err != nil {
		t.Fatalf("runstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRun creates and persists a processing run for tests.
func NewRun(t testing.TB, store *runstore.Store, ownerID string, docs ...string) *run.Run {
	t.Helper()

	if len(docs) == 0 {
		docs = []string{"doc-1"}
	}
	r := run.New(ownerID, "Test Run", json.RawMessage(`{"length":"short"}`), docs)
	if err := store.Create(context.Background(), r); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return r
}
