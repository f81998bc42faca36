package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Stages contains connection settings for the four content-generation stage
// services.
type Stages struct {
	BaseURL        string            `toml:"base_url"`
	Endpoints      map[string]string `toml:"endpoints"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
	RetryAttempts  int               `toml:"retry_attempts"`
	RetryBackoffMS int               `toml:"retry_backoff_ms"`
	RetryMaxMS     int               `toml:"retry_max_ms"`
}

// IndexProvider contains connection settings for the ephemeral retrieval
// index provider.
type IndexProvider struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	RetentionDays  int    `toml:"retention_days"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// RenderQueue contains tuning for queue wait estimation.
type RenderQueue struct {
	BaselineWaitSeconds int `toml:"baseline_wait_seconds"`
	PerJobSeconds       int `toml:"per_job_seconds"`
}

// Pipeline contains orchestration limits.
type Pipeline struct {
	MaxConcurrentRuns      int `toml:"max_concurrent_runs"`
	EnqueueRetryAttempts   int `toml:"enqueue_retry_attempts"`
	EnqueueRetryBackoffMS  int `toml:"enqueue_retry_backoff_ms"`
	ShutdownTimeoutSeconds int `toml:"shutdown_timeout_seconds"`
}

// Limits contains per-owner submission rate limiting.
type Limits struct {
	SubmissionsPerMinute float64 `toml:"submissions_per_minute"`
	SubmissionBurst      int     `toml:"submission_burst"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	RunReady       bool   `toml:"run_ready"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for medcast.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Stages        Stages        `toml:"stages"`
	IndexProvider IndexProvider `toml:"index_provider"`
	RenderQueue   RenderQueue   `toml:"render_queue"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Limits        Limits        `toml:"limits"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/medcast/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	expanded, err := expandPath(c.Paths.DataDir)
	if err != nil {
		return fmt.Errorf("expand data_dir: %w", err)
	}
	c.Paths.DataDir = expanded

	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	expanded, err = expandPath(c.Paths.LogDir)
	if err != nil {
		return fmt.Errorf("expand log_dir: %w", err)
	}
	c.Paths.LogDir = expanded

	c.Stages.BaseURL = strings.TrimRight(strings.TrimSpace(c.Stages.BaseURL), "/")
	c.IndexProvider.BaseURL = strings.TrimRight(strings.TrimSpace(c.IndexProvider.BaseURL), "/")
	return nil
}

// EnsureDirectories creates the directories the service writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// WriteSample writes the embedded sample configuration to the provided path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		trimmed = filepath.Join(home, trimmed[2:])
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("absolute path for %s: %w", trimmed, err)
	}
	return abs, nil
}
