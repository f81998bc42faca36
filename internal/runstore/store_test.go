package runstore_test

import (
	"context"
	"encoding/json"
	"testing"

	"medcast/internal/run"
	"medcast/internal/testsupport"
)

func TestCreateAndGetRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	created := testsupport.NewRun(t, store, "owner-1", "doc-a", "doc-b", "doc-c")

	fetched, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil {
		t.Fatal("expected run to be found")
	}
	if fetched.OwnerID != "owner-1" || fetched.Status != run.StatusProcessing {
		t.Fatalf("unexpected run: %+v", fetched)
	}
	if len(fetched.DocumentRefs) != 3 || fetched.DocumentRefs[2] != "doc-c" {
		t.Fatalf("unexpected document refs: %v", fetched.DocumentRefs)
	}
	if fetched.QueuePosition != nil || fetched.ErrorMessage != "" {
		t.Fatalf("new run must have no position or error: %+v", fetched)
	}
	if fetched.HasRetrievalIndex() {
		t.Fatal("new run must not carry an index reference")
	}
}

func TestGetMissingRunReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	fetched, err := store.GetByID(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched != nil {
		t.Fatalf("expected nil for missing run, got %+v", fetched)
	}
}

func TestUpdatePersistsArtifactsAndIndex(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	r := testsupport.NewRun(t, store, "owner-1")
	r.SetRetrievalIndex("idx-9", r.CreatedAt.AddDate(0, 0, 7))
	if err := r.CompleteStage(run.StageDocumentOverview, json.RawMessage(`{"summary":"s"}`)); err != nil {
		t.Fatalf("CompleteStage: %v", err)
	}
	if err := store.Update(ctx, r); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.RetrievalIndexID != "idx-9" || fetched.RetrievalIndexExpiry == nil {
		t.Fatalf("index reference not persisted: %+v", fetched)
	}
	done := fetched.Artifacts.Completed()
	if len(done) != 1 || done[0] != run.StageDocumentOverview {
		t.Fatalf("unexpected artifacts: %v", done)
	}
	if string(fetched.Artifacts.Overview) != `{"summary":"s"}` {
		t.Fatalf("artifact payload mangled: %s", fetched.Artifacts.Overview)
	}
}

func TestUpdateRejectsInvariantViolation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	r := testsupport.NewRun(t, store, "owner-1")
	r.Status = run.StatusFailed // no error message set
	if err := store.Update(context.Background(), r); err == nil {
		t.Fatal("expected invariant violation to be rejected before persistence")
	}
}

func TestListFiltersByStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.NewRun(t, store, "owner-1")
	b := testsupport.NewRun(t, store, "owner-2")
	if err := b.Fail("document-overview stage failed"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if err := store.Update(ctx, b); err != nil {
		t.Fatalf("Update: %v", err)
	}

	failed, err := store.List(ctx, run.StatusFailed)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != b.ID {
		t.Fatalf("unexpected failed runs: %v", failed)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(all))
	}

	mine, err := store.ListByOwner(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ListByOwner failed: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != a.ID {
		t.Fatalf("unexpected owner runs: %v", mine)
	}
}

func TestStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewRun(t, store, "owner-1")
	r := testsupport.NewRun(t, store, "owner-1")
	if err := r.Fail("stage failed"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if err := store.Update(ctx, r); err != nil {
		t.Fatalf("Update: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[run.StatusProcessing] != 1 || stats[run.StatusFailed] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

func TestFailStuckProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	r := testsupport.NewRun(t, store, "owner-1")
	count, err := store.FailStuckProcessing(ctx, "daemon stopped")
	if err != nil {
		t.Fatalf("FailStuckProcessing failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 run failed, got %d", count)
	}

	fetched, err := store.GetByID(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != run.StatusFailed || fetched.ErrorMessage != "daemon stopped" {
		t.Fatalf("unexpected state: %+v", fetched)
	}
	if err := fetched.CheckInvariants(); err != nil {
		t.Fatalf("invariants violated after recovery: %v", err)
	}
}
