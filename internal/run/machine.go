package run

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NextStage returns the stage the pipeline should execute next. ok is false
// when every stage has completed or the run is no longer processing.
func (r *Run) NextStage() (Stage, bool) {
	if r.Status != StatusProcessing {
		return "", false
	}
	for _, stage := range stageOrder {
		if len(r.Artifacts.Get(stage)) == 0 {
			return stage, true
		}
	}
	return "", false
}

// CompleteStage appends a stage artifact. Stages must complete in pipeline
// order; completing the final stage transitions the run to script_ready.
func (r *Run) CompleteStage(stage Stage, artifact json.RawMessage) error {
	if r.Status != StatusProcessing {
		return fmt.Errorf("run %s: cannot complete stage %s in status %s", r.ID, stage, r.Status)
	}
	if _, ok := stage.Index(); !ok {
		return fmt.Errorf("run %s: unknown stage %q", r.ID, stage)
	}
	if len(artifact) == 0 {
		return fmt.Errorf("run %s: stage %s produced an empty artifact", r.ID, stage)
	}
	next, ok := r.NextStage()
	if !ok || next != stage {
		return fmt.Errorf("run %s: stage %s completed out of order (expected %s)", r.ID, stage, next)
	}

	r.Artifacts.set(stage, artifact)
	if stage == StageScriptFinalization {
		r.Status = StatusScriptReady
	}
	return nil
}

// Fail moves a processing run to the terminal failed state. Terminal runs
// reject further transitions; retrying a failed run means creating a new one.
func (r *Run) Fail(message string) error {
	if r.Status != StatusProcessing {
		return fmt.Errorf("run %s: cannot fail in status %s", r.ID, r.Status)
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = "run failed"
	}
	r.Status = StatusFailed
	r.ErrorMessage = message
	return nil
}

// AssignQueuePosition records the render queue position. Positions are only
// assigned to script_ready runs, exactly once.
func (r *Run) AssignQueuePosition(position int) error {
	if r.Status != StatusScriptReady {
		return fmt.Errorf("run %s: cannot assign queue position in status %s", r.ID, r.Status)
	}
	if r.QueuePosition != nil {
		return fmt.Errorf("run %s: queue position already assigned", r.ID)
	}
	if position < 1 {
		return fmt.Errorf("run %s: queue position %d out of range", r.ID, position)
	}
	r.QueuePosition = &position
	return nil
}

// CheckInvariants verifies the record-level invariants that hold in every
// reachable state.
func (r *Run) CheckInvariants() error {
	if _, ok := statusSet[r.Status]; !ok {
		return fmt.Errorf("run %s: unknown status %q", r.ID, r.Status)
	}
	if !r.Artifacts.IsOrderedPrefix() {
		return fmt.Errorf("run %s: stage artifacts are not an ordered prefix", r.ID)
	}
	if (r.Status == StatusFailed) != (r.ErrorMessage != "") {
		return fmt.Errorf("run %s: failed status and error message must agree", r.ID)
	}
	if r.QueuePosition != nil && r.Status != StatusScriptReady {
		return fmt.Errorf("run %s: queue position set in status %s", r.ID, r.Status)
	}
	if r.Status == StatusScriptReady && len(r.Artifacts.FinalizedScript) == 0 {
		return fmt.Errorf("run %s: script_ready without finalized script", r.ID)
	}
	return nil
}
