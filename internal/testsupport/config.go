package testsupport

import (
	"path/filepath"
	"testing"

	"medcast/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Stages.BaseURL = "http://stages.invalid"
	cfg.IndexProvider.BaseURL = "http://indexes.invalid"

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}

// WithStageBaseURL points the stage client at the provided URL.
func WithStageBaseURL(url string) ConfigOption {
	return func(c *config.Config) {
		c.Stages.BaseURL = url
	}
}

// WithIndexBaseURL points the index provider client at the provided URL.
func WithIndexBaseURL(url string) ConfigOption {
	return func(c *config.Config) {
		c.IndexProvider.BaseURL = url
	}
}
