package run_test

import (
	"encoding/json"
	"testing"

	"medcast/internal/run"
)

func newProcessingRun(t *testing.T) *run.Run {
	t.Helper()
	r := run.New("owner-1", "Cardiology Update", json.RawMessage(`{"tone":"clinical"}`), []string{"doc-a", "doc-b"})
	if r.Status != run.StatusProcessing {
		t.Fatalf("expected initial status processing, got %s", r.Status)
	}
	if r.ID == "" {
		t.Fatal("expected generated run id")
	}
	return r
}

func completeAll(t *testing.T, r *run.Run) {
	t.Helper()
	for _, stage := range run.Stages() {
		if err := r.CompleteStage(stage, json.RawMessage(`{"ok":true}`)); err != nil {
			t.Fatalf("CompleteStage(%s): %v", stage, err)
		}
	}
}

func TestStagesCompleteInOrder(t *testing.T) {
	r := newProcessingRun(t)

	stage, ok := r.NextStage()
	if !ok || stage != run.StageDocumentOverview {
		t.Fatalf("expected first stage document-overview, got %s ok=%v", stage, ok)
	}

	completeAll(t, r)

	if r.Status != run.StatusScriptReady {
		t.Fatalf("expected script_ready after final stage, got %s", r.Status)
	}
	done := r.Artifacts.Completed()
	if len(done) != 4 {
		t.Fatalf("expected 4 artifacts, got %d", len(done))
	}
	for i, stage := range run.Stages() {
		if done[i] != stage {
			t.Fatalf("artifact %d: expected %s, got %s", i, stage, done[i])
		}
	}
	if err := r.CheckInvariants(); err != nil {
		t.Fatalf("invariants violated: %v", err)
	}
}

func TestCompleteStageRejectsOutOfOrder(t *testing.T) {
	r := newProcessingRun(t)
	if err := r.CompleteStage(run.StageOutlineGeneration, json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error completing stage 3 before stage 1")
	}
	if len(r.Artifacts.Completed()) != 0 {
		t.Fatal("rejected transition must not store an artifact")
	}
}

func TestCompleteStageRejectsEmptyArtifact(t *testing.T) {
	r := newProcessingRun(t)
	if err := r.CompleteStage(run.StageDocumentOverview, nil); err == nil {
		t.Fatal("expected error for empty artifact")
	}
}

func TestFailIsTerminal(t *testing.T) {
	r := newProcessingRun(t)
	if err := r.CompleteStage(run.StageDocumentOverview, json.RawMessage(`{"s":1}`)); err != nil {
		t.Fatalf("CompleteStage: %v", err)
	}
	if err := r.Fail("content-mapping stage failed: http 500"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if r.Status != run.StatusFailed || r.ErrorMessage == "" {
		t.Fatalf("unexpected failed state: %s %q", r.Status, r.ErrorMessage)
	}
	if err := r.CheckInvariants(); err != nil {
		t.Fatalf("invariants violated: %v", err)
	}

	if err := r.CompleteStage(run.StageContentMapping, json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected terminal run to reject stage completion")
	}
	if err := r.Fail("again"); err == nil {
		t.Fatal("expected terminal run to reject second failure")
	}
	if err := r.AssignQueuePosition(1); err == nil {
		t.Fatal("failed run must never receive a queue position")
	}
	if _, ok := r.NextStage(); ok {
		t.Fatal("terminal run must not report a next stage")
	}
}

func TestScriptReadyRejectsFurtherTransitions(t *testing.T) {
	r := newProcessingRun(t)
	completeAll(t, r)
	if err := r.Fail("late failure"); err == nil {
		t.Fatal("expected script_ready run to reject Fail")
	}
}

func TestAssignQueuePositionOnce(t *testing.T) {
	r := newProcessingRun(t)

	if err := r.AssignQueuePosition(1); err == nil {
		t.Fatal("expected error assigning position while processing")
	}

	completeAll(t, r)

	if err := r.AssignQueuePosition(0); err == nil {
		t.Fatal("expected error for position < 1")
	}
	if err := r.AssignQueuePosition(3); err != nil {
		t.Fatalf("AssignQueuePosition: %v", err)
	}
	if r.QueuePosition == nil || *r.QueuePosition != 3 {
		t.Fatalf("unexpected queue position: %v", r.QueuePosition)
	}
	if err := r.AssignQueuePosition(4); err == nil {
		t.Fatal("expected error on second assignment")
	}
	if err := r.CheckInvariants(); err != nil {
		t.Fatalf("invariants violated: %v", err)
	}
}

func TestCheckInvariantsCatchesCorruptRecords(t *testing.T) {
	r := newProcessingRun(t)
	r.Artifacts.Outline = json.RawMessage(`{"skip":true}`)
	if err := r.CheckInvariants(); err == nil {
		t.Fatal("expected prefix violation to be reported")
	}

	r = newProcessingRun(t)
	r.ErrorMessage = "orphan message"
	if err := r.CheckInvariants(); err == nil {
		t.Fatal("expected error-message invariant violation")
	}

	r = newProcessingRun(t)
	pos := 1
	r.QueuePosition = &pos
	if err := r.CheckInvariants(); err == nil {
		t.Fatal("expected queue-position invariant violation")
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := run.ParseStatus(" Script_Ready "); !ok || status != run.StatusScriptReady {
		t.Fatalf("unexpected parse result: %s %v", status, ok)
	}
	if _, ok := run.ParseStatus("rendering"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
}

func TestStageOutputFields(t *testing.T) {
	expected := map[run.Stage]string{
		run.StageDocumentOverview:   "overview",
		run.StageContentMapping:     "contentMap",
		run.StageOutlineGeneration:  "outline",
		run.StageScriptFinalization: "finalizedScript",
	}
	for stage, field := range expected {
		if got := stage.OutputField(); got != field {
			t.Fatalf("stage %s: expected field %q, got %q", stage, field, got)
		}
	}
}

func TestSetRetrievalIndex(t *testing.T) {
	r := newProcessingRun(t)
	if r.HasRetrievalIndex() {
		t.Fatal("new run must not carry an index")
	}
	r.SetRetrievalIndex("idx-1", r.CreatedAt.AddDate(0, 0, 7))
	if !r.HasRetrievalIndex() || r.RetrievalIndexExpiry == nil {
		t.Fatal("expected index reference and expiry")
	}
	r.SetRetrievalIndex("", r.CreatedAt)
	if r.HasRetrievalIndex() || r.RetrievalIndexExpiry != nil {
		t.Fatal("clearing the index must clear the expiry")
	}
}
