package daemon_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"medcast/internal/config"
	"medcast/internal/daemon"
	"medcast/internal/logging"
	"medcast/internal/pipeline"
	"medcast/internal/renderqueue"
	"medcast/internal/run"
	"medcast/internal/runstore"
	"medcast/internal/services/stages"
	"medcast/internal/testsupport"
)

func buildDaemon(t *testing.T, cfg *config.Config, store *runstore.Store) *daemon.Daemon {
	t.Helper()
	queue, err := renderqueue.New(store.Handle(), time.Minute, time.Minute)
	if err != nil {
		t.Fatalf("renderqueue.New: %v", err)
	}
	orch := pipeline.NewOrchestrator(cfg, store, stages.NewClient(cfg.Stages.BaseURL), nil, queue, nil, logging.NewNop())
	d, err := daemon.New(cfg, store, queue, orch, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func TestStartRejectsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	queue, err := renderqueue.New(store.Handle(), time.Minute, time.Minute)
	if err != nil {
		t.Fatalf("renderqueue.New: %v", err)
	}
	orch := pipeline.NewOrchestrator(cfg, store, stages.NewClient(cfg.Stages.BaseURL), nil, queue, nil, logging.NewNop())

	first, err := daemon.New(cfg, store, queue, orch, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	t.Cleanup(first.Stop)

	second, err := daemon.New(cfg, store, queue, orch, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected second instance to be rejected")
	}
}

func TestStartRecoversInterruptedRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	stuck := testsupport.NewRun(t, store, "owner-1", "doc-a")

	d := buildDaemon(t, cfg, store)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	recovered, err := store.GetByID(context.Background(), stuck.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if recovered.Status != run.StatusFailed {
		t.Fatalf("expected interrupted run to be failed, got %s", recovered.Status)
	}
	if !strings.Contains(recovered.ErrorMessage, "interrupted") {
		t.Fatalf("expected interruption message, got %q", recovered.ErrorMessage)
	}
}
