package main

import (
	"log/slog"
	"time"

	"medcast/internal/config"
	"medcast/internal/pipeline"
	"medcast/internal/ratelimit"
	"medcast/internal/renderqueue"
	"medcast/internal/run"
	"medcast/internal/runstore"
	"medcast/internal/services/indexprovider"
	"medcast/internal/services/stages"
)

func buildOrchestrator(cfg *config.Config, store *runstore.Store, queue *renderqueue.Queue, logger *slog.Logger) *pipeline.Orchestrator {
	opts := []stages.Option{
		stages.WithTimeout(time.Duration(cfg.Stages.TimeoutSeconds) * time.Second),
		stages.WithRetryPolicy(retryPolicyFromConfig(cfg)),
	}
	for name, url := range cfg.Stages.Endpoints {
		if stage := run.Stage(name); stage.OutputField() != "" {
			opts = append(opts, stages.WithEndpoint(stage, url))
		}
	}
	invoker := stages.NewClient(cfg.Stages.BaseURL, opts...)

	var index pipeline.IndexManager
	if provider := indexprovider.NewClient(
		cfg.IndexProvider.BaseURL,
		cfg.IndexProvider.APIKey,
		indexprovider.WithTimeout(time.Duration(cfg.IndexProvider.TimeoutSeconds)*time.Second),
	); provider.Enabled() {
		index = provider
	}

	return pipeline.NewOrchestrator(cfg, store, invoker, index, queue, nil, logger)
}

func retryPolicyFromConfig(cfg *config.Config) stages.RetryPolicy {
	policy := stages.DefaultRetryPolicy()
	if cfg.Stages.RetryAttempts > 0 {
		policy.MaxAttempts = cfg.Stages.RetryAttempts
	}
	if cfg.Stages.RetryBackoffMS > 0 {
		policy.InitialBackoff = time.Duration(cfg.Stages.RetryBackoffMS) * time.Millisecond
	}
	if cfg.Stages.RetryMaxMS > 0 {
		policy.MaxBackoff = time.Duration(cfg.Stages.RetryMaxMS) * time.Millisecond
	}
	return policy
}

func buildLimiter(cfg *config.Config) ratelimit.Limiter {
	return ratelimit.NewOwnerLimiter(cfg.Limits.SubmissionsPerMinute, cfg.Limits.SubmissionBurst)
}
