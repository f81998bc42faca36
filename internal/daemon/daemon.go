package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"medcast/internal/api"
	"medcast/internal/config"
	"medcast/internal/logging"
	"medcast/internal/pipeline"
	"medcast/internal/ratelimit"
	"medcast/internal/renderqueue"
	"medcast/internal/run"
	"medcast/internal/runstore"
	"medcast/internal/services"
)

// Daemon coordinates run processing and enforces single-instance execution.
type Daemon struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *runstore.Store
	queue        *renderqueue.Queue
	orchestrator *pipeline.Orchestrator
	limiter      ratelimit.Limiter

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	sem     chan struct{}

	api *apiServer
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *runstore.Store, queue *renderqueue.Queue, orch *pipeline.Orchestrator, limiter ratelimit.Limiter, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || queue == nil || orch == nil {
		return nil, errors.New("daemon requires config, store, queue, and orchestrator")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if limiter == nil {
		limiter = ratelimit.NewNoop()
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "medcastd.lock")
	d := &Daemon{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		queue:        queue,
		orchestrator: orch,
		limiter:      limiter,
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
	}

	server, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = server
	return d, nil
}

// Start acquires the daemon lock, recovers interrupted runs, and begins
// serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another medcast daemon instance is already running")
	}

	recovered, err := d.store.FailStuckProcessing(ctx, "interrupted by daemon restart")
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("recover interrupted runs: %w", err)
	}
	if recovered > 0 {
		d.logger.Warn("marked interrupted runs as failed", logging.Int64("count", recovered))
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	workers := d.cfg.Pipeline.MaxConcurrentRuns
	if workers < 1 {
		workers = 1
	}
	d.sem = make(chan struct{}, workers)

	if d.api != nil {
		if err := d.api.start(d.ctx); err != nil {
			_ = d.lock.Unlock()
			d.cancel()
			d.ctx = nil
			d.cancel = nil
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("medcast daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("max_concurrent_runs", workers),
	)
	return nil
}

// Stop drains in-flight runs, stops the API server, and releases the lock.
// Runs still executing after the configured shutdown timeout are abandoned
// to be recovered as failed on the next start.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.api != nil {
		d.api.stop()
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}

	timeout := time.Duration(d.cfg.Pipeline.ShutdownTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		d.logger.Warn("shutdown timeout elapsed with runs still in flight")
	}

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("medcast daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the daemon has been started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddr returns the bound API address, empty until Start succeeds.
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// SubmitRun validates and persists a new run, then executes it on a
// background worker. The returned run reflects the accepted state; callers
// poll for progress.
func (d *Daemon) SubmitRun(ctx context.Context, req pipeline.SubmitRequest) (*run.Run, error) {
	if !d.running.Load() {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "submit", "daemon is not running", nil)
	}
	if !d.limiter.Allow(req.OwnerID) {
		return nil, services.Wrap(services.ErrRateLimited, "daemon", "submit", "submission rate limit exceeded", nil)
	}

	r, err := d.orchestrator.Submit(ctx, req)
	if err != nil {
		return nil, err
	}

	execCtx := d.ctx
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		select {
		case d.sem <- struct{}{}:
			defer func() { <-d.sem }()
		case <-execCtx.Done():
			return
		}
		if err := d.orchestrator.Execute(execCtx, r); err != nil {
			d.logger.Error("run execution failed",
				logging.String(logging.FieldRunID, r.ID),
				logging.Error(err),
			)
		}
	}()
	return r, nil
}

// Status aggregates daemon runtime information.
func (d *Daemon) Status(ctx context.Context) (api.DaemonStatus, error) {
	if err := d.store.Health(ctx); err != nil {
		return api.DaemonStatus{}, err
	}
	stats, err := d.store.Stats(ctx)
	if err != nil {
		return api.DaemonStatus{}, err
	}
	depth, err := d.queue.Depth(ctx)
	if err != nil {
		return api.DaemonStatus{}, err
	}
	return api.DaemonStatus{
		Running:    d.running.Load(),
		PID:        os.Getpid(),
		RunDBPath:  d.store.Path(),
		LockPath:   d.lockPath,
		RunStats:   api.MergeRunStats(stats),
		QueueDepth: depth,
	}, nil
}
