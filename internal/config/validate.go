package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateStages(); err != nil {
		return err
	}
	if err := c.validateIndexProvider(); err != nil {
		return err
	}
	if err := c.validateRenderQueue(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateLimits(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.APIBind) == "" {
		return errors.New("paths.api_bind must be set")
	}
	return nil
}

func (c *Config) validateStages() error {
	if strings.TrimSpace(c.Stages.BaseURL) == "" && len(c.Stages.Endpoints) == 0 {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/medcast/config.toml"
		}
		return fmt.Errorf("stages.base_url is required. Edit %s (create with 'medcast config init')", defaultPath)
	}
	if c.Stages.TimeoutSeconds <= 0 {
		return errors.New("stages.timeout_seconds must be positive")
	}
	if c.Stages.RetryAttempts < 1 {
		return errors.New("stages.retry_attempts must be at least 1")
	}
	if c.Stages.RetryBackoffMS < 0 || c.Stages.RetryMaxMS < 0 {
		return errors.New("stages retry backoff values must not be negative")
	}
	return nil
}

func (c *Config) validateIndexProvider() error {
	// An unset base URL disables retrieval augmentation entirely, which is a
	// supported configuration.
	if c.IndexProvider.RetentionDays < 1 {
		return errors.New("index_provider.retention_days must be at least 1")
	}
	if c.IndexProvider.TimeoutSeconds <= 0 {
		return errors.New("index_provider.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateRenderQueue() error {
	if c.RenderQueue.BaselineWaitSeconds < 0 {
		return errors.New("render_queue.baseline_wait_seconds must not be negative")
	}
	if c.RenderQueue.PerJobSeconds <= 0 {
		return errors.New("render_queue.per_job_seconds must be positive")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.MaxConcurrentRuns < 1 {
		return errors.New("pipeline.max_concurrent_runs must be at least 1")
	}
	if c.Pipeline.EnqueueRetryAttempts < 1 {
		return errors.New("pipeline.enqueue_retry_attempts must be at least 1")
	}
	return nil
}

func (c *Config) validateLimits() error {
	if c.Limits.SubmissionsPerMinute < 0 {
		return errors.New("limits.submissions_per_minute must not be negative")
	}
	if c.Limits.SubmissionsPerMinute > 0 && c.Limits.SubmissionBurst < 1 {
		return errors.New("limits.submission_burst must be at least 1 when rate limiting is enabled")
	}
	return nil
}
