package main

import (
	"testing"
	"time"

	"medcast/internal/config"
)

func TestRetryPolicyFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Stages.RetryAttempts = 5
	cfg.Stages.RetryBackoffMS = 100
	cfg.Stages.RetryMaxMS = 2000

	policy := retryPolicyFromConfig(&cfg)
	if policy.MaxAttempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", policy.MaxAttempts)
	}
	if policy.InitialBackoff != 100*time.Millisecond {
		t.Fatalf("unexpected initial backoff %s", policy.InitialBackoff)
	}
	if policy.MaxBackoff != 2*time.Second {
		t.Fatalf("unexpected max backoff %s", policy.MaxBackoff)
	}
}

func TestRetryPolicyFromConfigDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.Stages.RetryAttempts = 0
	cfg.Stages.RetryBackoffMS = 0
	cfg.Stages.RetryMaxMS = 0

	policy := retryPolicyFromConfig(&cfg)
	if policy.MaxAttempts < 1 {
		t.Fatalf("expected at least one attempt, got %d", policy.MaxAttempts)
	}
	if policy.InitialBackoff <= 0 || policy.MaxBackoff < policy.InitialBackoff {
		t.Fatalf("unexpected backoff window %s..%s", policy.InitialBackoff, policy.MaxBackoff)
	}
}
