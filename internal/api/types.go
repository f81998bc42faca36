package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Run describes a run record in a transport-friendly format.
type Run struct {
	ID                      string          `json:"id"`
	OwnerID                 string          `json:"ownerId"`
	Title                   string          `json:"title,omitempty"`
	Status                  string          `json:"status"`
	DocumentRefs            []string        `json:"documentRefs,omitempty"`
	Parameters              json.RawMessage `json:"parameters,omitempty"`
	RetrievalIndexID        string          `json:"retrievalIndexId,omitempty"`
	RetrievalIndexExpiresAt string          `json:"retrievalIndexExpiresAt,omitempty"`
	CompletedStages         []string        `json:"completedStages"`
	FinalizedScript         json.RawMessage `json:"finalizedScript,omitempty"`
	ErrorMessage            string          `json:"errorMessage,omitempty"`
	QueuePosition           *int            `json:"queuePosition,omitempty"`
	EstimatedWaitSeconds    int             `json:"estimatedWaitSeconds,omitempty"`
	CreatedAt               string          `json:"createdAt,omitempty"`
	UpdatedAt               string          `json:"updatedAt,omitempty"`
}

// QueueEntry describes a render queue entry for API consumers.
type QueueEntry struct {
	RunID                string `json:"runId"`
	Position             int    `json:"position"`
	Status               string `json:"status"`
	EstimatedWaitSeconds int    `json:"estimatedWaitSeconds,omitempty"`
	CreatedAt            string `json:"createdAt,omitempty"`
	UpdatedAt            string `json:"updatedAt,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running    bool           `json:"running"`
	PID        int            `json:"pid"`
	RunDBPath  string         `json:"runDbPath"`
	LockPath   string         `json:"lockPath,omitempty"`
	RunStats   map[string]int `json:"runStats"`
	QueueDepth int            `json:"queueDepth"`
}
