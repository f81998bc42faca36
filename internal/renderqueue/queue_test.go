package renderqueue_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"medcast/internal/renderqueue"
	"medcast/internal/testsupport"
)

func newQueue(t *testing.T) *renderqueue.Queue {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	queue, err := renderqueue.New(store.Handle(), time.Minute, 4*time.Minute)
	if err != nil {
		t.Fatalf("renderqueue.New: %v", err)
	}
	return queue
}

func TestEnqueueAssignsSequentialPositions(t *testing.T) {
	queue := newQueue(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		pos, err := queue.Enqueue(ctx, fmt.Sprintf("run-%d", i))
		if err != nil {
			t.Fatalf("Enqueue run-%d: %v", i, err)
		}
		if pos != i {
			t.Fatalf("run-%d: expected position %d, got %d", i, i, pos)
		}
	}

	depth, err := queue.Depth(ctx)
	if err != nil {
		t.Fatalf("Depth: %v", err)
	}
	if depth != 3 {
		t.Fatalf("expected depth 3, got %d", depth)
	}
}

func TestEnqueueRejectsDuplicateRun(t *testing.T) {
	queue := newQueue(t)
	ctx := context.Background()

	if _, err := queue.Enqueue(ctx, "run-1"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := queue.Enqueue(ctx, "run-1"); err == nil {
		t.Fatal("expected duplicate enqueue to fail")
	}
	if _, err := queue.Enqueue(ctx, ""); err == nil {
		t.Fatal("expected empty run id to fail")
	}
}

func TestConcurrentEnqueuesYieldUniqueConsecutivePositions(t *testing.T) {
	queue := newQueue(t)
	ctx := context.Background()

	const workers = 16
	positions := make([]int, workers)
	errs := make([]error, workers)

	var start sync.WaitGroup
	var done sync.WaitGroup
	start.Add(1)
	for i := 0; i < workers; i++ {
		done.Add(1)
		go func(i int) {
			defer done.Done()
			start.Wait()
			positions[i], errs[i] = queue.Enqueue(ctx, fmt.Sprintf("run-%d", i))
		}(i)
	}
	start.Done()
	done.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
	}
	sort.Ints(positions)
	for i, pos := range positions {
		if pos != i+1 {
			t.Fatalf("expected positions {1..%d} with no gaps or duplicates, got %v", workers, positions)
		}
	}
}

func TestPositionsCountDoneEntriesOut(t *testing.T) {
	queue := newQueue(t)
	ctx := context.Background()

	if _, err := queue.Enqueue(ctx, "run-1"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := queue.MarkProcessing(ctx, "run-1"); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}

	// An in-progress entry still occupies a slot.
	pos, err := queue.Enqueue(ctx, "run-2")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if pos != 2 {
		t.Fatalf("expected position 2 behind processing entry, got %d", pos)
	}

	if err := queue.MarkDone(ctx, "run-1"); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}

	// A done entry no longer counts toward new positions.
	pos, err = queue.Enqueue(ctx, "run-3")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if pos != 2 {
		t.Fatalf("expected position 2 after drain, got %d", pos)
	}
}

func TestWorkerTransitions(t *testing.T) {
	queue := newQueue(t)
	ctx := context.Background()

	if _, err := queue.Enqueue(ctx, "run-1"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := queue.Enqueue(ctx, "run-2"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	next, err := queue.NextWaiting(ctx)
	if err != nil {
		t.Fatalf("NextWaiting: %v", err)
	}
	if next == nil || next.RunID != "run-1" {
		t.Fatalf("expected run-1 first, got %+v", next)
	}

	if err := queue.MarkDone(ctx, "run-1"); err == nil {
		t.Fatal("expected done transition to require processing state")
	}
	if err := queue.MarkProcessing(ctx, "run-1"); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if err := queue.MarkDone(ctx, "run-1"); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}

	entry, err := queue.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry == nil || entry.Status != renderqueue.EntryDone {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	waiting, err := queue.Entries(ctx, renderqueue.EntryWaiting)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(waiting) != 1 || waiting[0].RunID != "run-2" {
		t.Fatalf("unexpected waiting entries: %v", waiting)
	}
}

func TestEstimateWait(t *testing.T) {
	queue := newQueue(t)

	if got := queue.EstimateWait(1); got != 4*time.Minute {
		t.Fatalf("position 1: expected 4m, got %v", got)
	}
	if got := queue.EstimateWait(3); got != 12*time.Minute {
		t.Fatalf("position 3: expected 12m, got %v", got)
	}
	// Baseline floors the estimate for degenerate positions.
	if got := queue.EstimateWait(0); got != 4*time.Minute {
		t.Fatalf("position 0: expected clamp to position 1, got %v", got)
	}
}
