package run

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle of a generation run.
type Status string

const (
	StatusProcessing  Status = "processing"
	StatusScriptReady Status = "script_ready"
	StatusFailed      Status = "failed"
)

var allStatuses = []Status{
	StatusProcessing,
	StatusScriptReady,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status ends the orchestration phase.
func (s Status) IsTerminal() bool {
	return s == StatusScriptReady || s == StatusFailed
}

// Stage identifies one of the four ordered content-generation stages.
type Stage string

const (
	StageDocumentOverview   Stage = "document-overview"
	StageContentMapping     Stage = "content-mapping"
	StageOutlineGeneration  Stage = "outline-generation"
	StageScriptFinalization Stage = "script-finalization"
)

var stageOrder = []Stage{
	StageDocumentOverview,
	StageContentMapping,
	StageOutlineGeneration,
	StageScriptFinalization,
}

// Stages returns the fixed pipeline order.
func Stages() []Stage {
	cp := make([]Stage, len(stageOrder))
	copy(cp, stageOrder)
	return cp
}

// Index returns the zero-based position of the stage in the pipeline.
func (s Stage) Index() (int, bool) {
	for i, stage := range stageOrder {
		if stage == s {
			return i, true
		}
	}
	return 0, false
}

// OutputField is the JSON field name under which the stage service returns
// its artifact.
func (s Stage) OutputField() string {
	switch s {
	case StageDocumentOverview:
		return "overview"
	case StageContentMapping:
		return "contentMap"
	case StageOutlineGeneration:
		return "outline"
	case StageScriptFinalization:
		return "finalizedScript"
	default:
		return ""
	}
}

// Artifacts holds the accumulated stage outputs in pipeline order. Outputs
// are opaque to the orchestrator and forwarded verbatim to later stages.
type Artifacts struct {
	Overview        json.RawMessage `json:"overview,omitempty"`
	ContentMap      json.RawMessage `json:"contentMap,omitempty"`
	Outline         json.RawMessage `json:"outline,omitempty"`
	FinalizedScript json.RawMessage `json:"finalizedScript,omitempty"`
}

// Get returns the stored artifact for a stage, or nil.
func (a Artifacts) Get(stage Stage) json.RawMessage {
	switch stage {
	case StageDocumentOverview:
		return a.Overview
	case StageContentMapping:
		return a.ContentMap
	case StageOutlineGeneration:
		return a.Outline
	case StageScriptFinalization:
		return a.FinalizedScript
	default:
		return nil
	}
}

func (a *Artifacts) set(stage Stage, artifact json.RawMessage) {
	switch stage {
	case StageDocumentOverview:
		a.Overview = artifact
	case StageContentMapping:
		a.ContentMap = artifact
	case StageOutlineGeneration:
		a.Outline = artifact
	case StageScriptFinalization:
		a.FinalizedScript = artifact
	}
}

// Completed returns the stages with stored artifacts, in pipeline order.
func (a Artifacts) Completed() []Stage {
	var done []Stage
	for _, stage := range stageOrder {
		if len(a.Get(stage)) > 0 {
			done = append(done, stage)
		}
	}
	return done
}

// IsOrderedPrefix reports whether the stored artifacts form a strict prefix
// of the pipeline order. A later artifact without all earlier ones violates
// the run record contract.
func (a Artifacts) IsOrderedPrefix() bool {
	seenGap := false
	for _, stage := range stageOrder {
		if len(a.Get(stage)) == 0 {
			seenGap = true
			continue
		}
		if seenGap {
			return false
		}
	}
	return true
}

// Run is the persisted record of one generation run.
type Run struct {
	ID                   string
	OwnerID              string
	Title                string
	Parameters           json.RawMessage
	DocumentRefs         []string
	Status               Status
	RetrievalIndexID     string
	RetrievalIndexExpiry *time.Time
	Artifacts            Artifacts
	ErrorMessage         string
	QueuePosition        *int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// New creates a run record in the initial processing state.
func New(ownerID, title string, parameters json.RawMessage, documentRefs []string) *Run {
	now := time.Now().UTC()
	refs := make([]string, len(documentRefs))
	copy(refs, documentRefs)
	return &Run{
		ID:           uuid.NewString(),
		OwnerID:      strings.TrimSpace(ownerID),
		Title:        strings.TrimSpace(title),
		Parameters:   parameters,
		DocumentRefs: refs,
		Status:       StatusProcessing,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// SetRetrievalIndex records the ephemeral index reference and its expiry.
func (r *Run) SetRetrievalIndex(indexID string, expiry time.Time) {
	r.RetrievalIndexID = strings.TrimSpace(indexID)
	if r.RetrievalIndexID == "" {
		r.RetrievalIndexExpiry = nil
		return
	}
	utc := expiry.UTC()
	r.RetrievalIndexExpiry = &utc
}

// HasRetrievalIndex reports whether the run carries an index reference. A
// run without one proceeds unaugmented; that is a supported state, not an
// error.
func (r *Run) HasRetrievalIndex() bool {
	return r.RetrievalIndexID != ""
}
