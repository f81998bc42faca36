package api

import (
	"context"
	"time"

	"medcast/internal/renderqueue"
	"medcast/internal/run"
)

// RunReader abstracts run persistence interactions needed for API queries.
type RunReader interface {
	List(ctx context.Context, statuses ...run.Status) ([]*run.Run, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*run.Run, error)
	GetByID(ctx context.Context, id string) (*run.Run, error)
	Stats(ctx context.Context) (map[run.Status]int, error)
}

// WaitEstimator predicts queue wait from a position. The render queue
// satisfies this directly.
type WaitEstimator interface {
	EstimateWait(position int) time.Duration
}

// RunService exposes read-only run operations returning API DTOs.
type RunService struct {
	store RunReader
	waits WaitEstimator
}

// NewRunService constructs a RunService around the provided reader. The
// estimator is optional; without it DTOs omit wait estimates.
func NewRunService(store RunReader, waits WaitEstimator) *RunService {
	if store == nil {
		return nil
	}
	return &RunService{store: store, waits: waits}
}

// List returns runs filtered by status.
func (s *RunService) List(ctx context.Context, statuses ...run.Status) ([]Run, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	runs, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return s.decorate(FromRuns(runs)), nil
}

// ListByOwner returns every run belonging to a single owner.
func (s *RunService) ListByOwner(ctx context.Context, ownerID string) ([]Run, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	runs, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.decorate(FromRuns(runs)), nil
}

// Describe fetches a single run. A missing run yields nil without error.
func (s *RunService) Describe(ctx context.Context, id string) (*Run, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	r, err := s.store.GetByID(ctx, id)
	if err != nil || r == nil {
		return nil, err
	}
	dto := FromRun(r)
	s.decorateOne(&dto)
	return &dto, nil
}

// Stats returns run summary counts keyed by status string.
func (s *RunService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeRunStats(stats), nil
}

func (s *RunService) decorate(dtos []Run) []Run {
	for i := range dtos {
		s.decorateOne(&dtos[i])
	}
	return dtos
}

func (s *RunService) decorateOne(dto *Run) {
	if s.waits == nil || dto.QueuePosition == nil {
		return
	}
	if wait := s.waits.EstimateWait(*dto.QueuePosition); wait > 0 {
		dto.EstimatedWaitSeconds = int(wait / time.Second)
	}
}

// QueueService exposes read-only render queue operations returning API DTOs.
type QueueService struct {
	queue *renderqueue.Queue
}

// NewQueueService constructs a QueueService around the render queue.
func NewQueueService(queue *renderqueue.Queue) *QueueService {
	if queue == nil {
		return nil
	}
	return &QueueService{queue: queue}
}

// Entries returns the queue contents in position order.
func (s *QueueService) Entries(ctx context.Context, statuses ...renderqueue.EntryStatus) ([]QueueEntry, error) {
	if s == nil || s.queue == nil {
		return nil, nil
	}
	entries, err := s.queue.Entries(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	dtos := make([]QueueEntry, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		dtos = append(dtos, FromQueueEntry(entry, s.queue.EstimateWait(entry.Position)))
	}
	return dtos, nil
}

// Depth reports how many entries are waiting or processing.
func (s *QueueService) Depth(ctx context.Context) (int, error) {
	if s == nil || s.queue == nil {
		return 0, nil
	}
	return s.queue.Depth(ctx)
}
