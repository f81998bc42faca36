package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"medcast/internal/config"
	"medcast/internal/logging"
	"medcast/internal/notifications"
	"medcast/internal/run"
	"medcast/internal/runstore"
	"medcast/internal/services"
	"medcast/internal/services/indexprovider"
	"medcast/internal/services/stages"
)

// StageInvoker executes a single generation stage against its backing service.
type StageInvoker interface {
	Invoke(ctx context.Context, stage run.Stage, req stages.Request) (json.RawMessage, error)
}

// IndexManager provisions ephemeral retrieval indexes for document grounding.
type IndexManager interface {
	Enabled() bool
	CreateIndex(ctx context.Context, name string) (string, error)
	AttachFiles(ctx context.Context, indexID string, fileRefs []string) error
}

// Enqueuer places completed runs onto the render queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, runID string) (int, error)
}

// SubmitRequest carries the caller-supplied inputs for a new run.
type SubmitRequest struct {
	OwnerID      string
	Title        string
	Parameters   json.RawMessage
	DocumentRefs []string
}

// Orchestrator drives runs from submission through stage execution to the
// render queue. Stage failures mark the run failed and stop processing;
// retrieval index failures degrade gracefully and never block a run.
type Orchestrator struct {
	cfg      *config.Config
	store    *runstore.Store
	stages   StageInvoker
	index    IndexManager
	queue    Enqueuer
	notifier notifications.Service
	logger   *slog.Logger
}

// NewOrchestrator wires an orchestrator from its collaborators. The index
// manager may be nil when no retrieval provider is configured.
func NewOrchestrator(
	cfg *config.Config,
	store *runstore.Store,
	invoker StageInvoker,
	index IndexManager,
	queue Enqueuer,
	notifier notifications.Service,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		stages:   invoker,
		index:    index,
		queue:    queue,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Submit validates the request and persists a new run in the processing
// state. Validation happens before any persistence; a rejected request
// leaves no trace in the store.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*run.Run, error) {
	owner := strings.TrimSpace(req.OwnerID)
	if owner == "" {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "submit", "owner id is required", nil)
	}
	refs := make([]string, 0, len(req.DocumentRefs))
	for _, ref := range req.DocumentRefs {
		if trimmed := strings.TrimSpace(ref); trimmed != "" {
			refs = append(refs, trimmed)
		}
	}
	if len(refs) == 0 {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "submit", "at least one document reference is required", nil)
	}

	r := run.New(owner, req.Title, req.Parameters, refs)
	if err := o.store.Create(ctx, r); err != nil {
		return nil, services.Wrap(services.ErrTransient, "pipeline", "submit", "persist run", err)
	}

	o.logger.InfoContext(ctx, "run accepted",
		logging.String(logging.FieldEventType, "run_accepted"),
		logging.String(logging.FieldRunID, r.ID),
		logging.String(logging.FieldOwnerID, r.OwnerID),
		logging.Int("document_count", len(refs)),
	)
	return r, nil
}

// Execute drives a processing run to a terminal state. It returns the
// stage error when a stage fails; the run is already persisted as failed
// by then. A nil return means the run reached script_ready, whether or
// not the render enqueue succeeded.
func (o *Orchestrator) Execute(ctx context.Context, r *run.Run) error {
	if r.Status != run.StatusProcessing {
		return services.Wrap(services.ErrValidation, "pipeline", "execute",
			fmt.Sprintf("run %s is %s, not processing", r.ID, r.Status), nil)
	}

	ctx = services.WithRunID(ctx, r.ID)
	ctx = services.WithOwnerID(ctx, r.OwnerID)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, o.logger)

	o.prepareIndex(ctx, logger, r)

	for {
		stage, ok := r.NextStage()
		if !ok {
			break
		}
		if err := o.executeStage(ctx, logger, r, stage); err != nil {
			return err
		}
	}

	o.enqueueRender(ctx, logger, r)

	position := 0
	if r.QueuePosition != nil {
		position = *r.QueuePosition
	}
	if err := o.notifier.NotifyRunReady(ctx, r.ID, r.Title, position); err != nil {
		logger.DebugContext(ctx, "run ready notification failed", logging.Error(err))
	}
	return nil
}

// prepareIndex provisions the retrieval index best-effort. Any provider
// failure leaves the run without an index and the pipeline continues
// unaugmented.
func (o *Orchestrator) prepareIndex(ctx context.Context, logger *slog.Logger, r *run.Run) {
	if o.index == nil || !o.index.Enabled() {
		return
	}

	indexID, err := o.index.CreateIndex(ctx, "run-"+r.ID)
	if err != nil {
		logger.WarnContext(ctx, "retrieval index unavailable, continuing without grounding",
			logging.String(logging.FieldEventType, "index_degraded"),
			logging.Error(err),
		)
		return
	}
	if err := o.index.AttachFiles(ctx, indexID, r.DocumentRefs); err != nil {
		logger.WarnContext(ctx, "document attachment failed, continuing without grounding",
			logging.String(logging.FieldEventType, "index_degraded"),
			logging.String("index_id", indexID),
			logging.Error(err),
		)
		return
	}

	r.SetRetrievalIndex(indexID, indexprovider.Expiry(time.Now(), o.cfg.IndexProvider.RetentionDays))
	if err := o.store.Update(ctx, r); err != nil {
		logger.WarnContext(ctx, "failed to persist retrieval index reference", logging.Error(err))
		return
	}
	logger.InfoContext(ctx, "retrieval index ready",
		logging.String(logging.FieldEventType, "index_ready"),
		logging.String("index_id", indexID),
		logging.Int("document_count", len(r.DocumentRefs)),
	)
}

func (o *Orchestrator) executeStage(ctx context.Context, logger *slog.Logger, r *run.Run, stage run.Stage) error {
	stageCtx := services.WithStage(ctx, string(stage))
	stageLogger := logging.WithContext(stageCtx, o.logger)

	stageLogger.InfoContext(stageCtx, "stage started",
		logging.String(logging.FieldEventType, "stage_start"),
	)
	started := time.Now()

	output, err := o.stages.Invoke(stageCtx, stage, stages.Request{
		OwnerID:          r.OwnerID,
		RunID:            r.ID,
		RetrievalIndexID: r.RetrievalIndexID,
		Parameters:       r.Parameters,
		Artifacts:        r.Artifacts,
	})
	if err != nil {
		return o.failRun(stageCtx, stageLogger, r, stage, err)
	}

	if err := r.CompleteStage(stage, output); err != nil {
		return o.failRun(stageCtx, stageLogger, r, stage, err)
	}
	if err := o.store.Update(stageCtx, r); err != nil {
		return o.failRun(stageCtx, stageLogger, r, stage, services.Wrap(services.ErrTransient, "pipeline", "execute", "persist stage artifact", err))
	}

	stageLogger.InfoContext(stageCtx, "stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(r.Status)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// failRun transitions the run to failed and persists it. The original
// stage error is returned so callers see the root cause.
func (o *Orchestrator) failRun(ctx context.Context, logger *slog.Logger, r *run.Run, stage run.Stage, stageErr error) error {
	details := services.Details(stageErr)
	message := strings.TrimSpace(details.Message)
	if message == "" {
		message = strings.TrimSpace(stageErr.Error())
	}
	message = fmt.Sprintf("%s: %s", stage, message)

	if err := r.Fail(message); err != nil {
		logger.ErrorContext(ctx, "failed to mark run failed", logging.Error(err))
	}
	if err := o.store.Update(ctx, r); err != nil {
		logger.ErrorContext(ctx, "failed to persist run failure", logging.Error(err))
	}

	logger.ErrorContext(ctx, "stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("error_message", message),
		logging.Error(stageErr),
	)

	if err := o.notifier.NotifyRunFailed(ctx, r.ID, r.Title, message); err != nil {
		logger.DebugContext(ctx, "run failure notification failed", logging.Error(err))
	}
	return stageErr
}

// enqueueRender places a script_ready run on the render queue with
// bounded retries. Enqueue failure never demotes the run; it stays
// script_ready without a queue position and can be re-enqueued later.
func (o *Orchestrator) enqueueRender(ctx context.Context, logger *slog.Logger, r *run.Run) {
	attempts := o.cfg.Pipeline.EnqueueRetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := time.Duration(o.cfg.Pipeline.EnqueueRetryBackoffMS) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		position, err := o.queue.Enqueue(ctx, r.ID)
		if err == nil {
			if err := r.AssignQueuePosition(position); err != nil {
				logger.ErrorContext(ctx, "failed to record queue position", logging.Error(err))
				return
			}
			if err := o.store.Update(ctx, r); err != nil {
				logger.ErrorContext(ctx, "failed to persist queue position", logging.Error(err))
				return
			}
			logger.InfoContext(ctx, "run enqueued for rendering",
				logging.String(logging.FieldEventType, "render_enqueued"),
				logging.Int("queue_position", position),
			)
			return
		}
		lastErr = err
		if attempt < attempts && backoff > 0 {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = attempts
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}

	logger.WarnContext(ctx, "render enqueue failed, run remains script_ready without a position",
		logging.String(logging.FieldEventType, "enqueue_degraded"),
		logging.Error(lastErr),
	)
}
