package api

import (
	"time"

	"medcast/internal/renderqueue"
	"medcast/internal/run"
)

// FromRun converts a run record to its API representation.
func FromRun(r *run.Run) Run {
	if r == nil {
		return Run{}
	}

	completed := r.Artifacts.Completed()
	stageNames := make([]string, 0, len(completed))
	for _, stage := range completed {
		stageNames = append(stageNames, string(stage))
	}

	dto := Run{
		ID:              r.ID,
		OwnerID:         r.OwnerID,
		Title:           r.Title,
		Status:          string(r.Status),
		DocumentRefs:    append([]string(nil), r.DocumentRefs...),
		Parameters:      r.Parameters,
		CompletedStages: stageNames,
		ErrorMessage:    r.ErrorMessage,
	}
	if r.Status == run.StatusScriptReady {
		dto.FinalizedScript = r.Artifacts.Get(run.StageScriptFinalization)
	}
	if r.QueuePosition != nil {
		position := *r.QueuePosition
		dto.QueuePosition = &position
	}
	if r.RetrievalIndexID != "" {
		dto.RetrievalIndexID = r.RetrievalIndexID
		if r.RetrievalIndexExpiry != nil {
			dto.RetrievalIndexExpiresAt = r.RetrievalIndexExpiry.UTC().Format(dateTimeFormat)
		}
	}
	if !r.CreatedAt.IsZero() {
		dto.CreatedAt = r.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !r.UpdatedAt.IsZero() {
		dto.UpdatedAt = r.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromRuns converts a slice of run records, skipping nil entries.
func FromRuns(runs []*run.Run) []Run {
	dtos := make([]Run, 0, len(runs))
	for _, r := range runs {
		if r == nil {
			continue
		}
		dtos = append(dtos, FromRun(r))
	}
	return dtos
}

// FromQueueEntry converts a render queue entry to its API representation.
func FromQueueEntry(entry *renderqueue.Entry, wait time.Duration) QueueEntry {
	if entry == nil {
		return QueueEntry{}
	}
	dto := QueueEntry{
		RunID:    entry.RunID,
		Position: entry.Position,
		Status:   string(entry.Status),
	}
	if wait > 0 {
		dto.EstimatedWaitSeconds = int(wait / time.Second)
	}
	if !entry.CreatedAt.IsZero() {
		dto.CreatedAt = entry.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !entry.UpdatedAt.IsZero() {
		dto.UpdatedAt = entry.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// MergeRunStats flattens status counts into string keys, filling zeroes
// for statuses with no rows so consumers always see the full set.
func MergeRunStats(stats map[run.Status]int) map[string]int {
	merged := make(map[string]int, len(run.AllStatuses()))
	for _, status := range run.AllStatuses() {
		merged[string(status)] = 0
	}
	for status, count := range stats {
		merged[string(status)] = count
	}
	return merged
}
