package ratelimit_test

import (
	"testing"

	"medcast/internal/ratelimit"
)

func TestOwnerLimiterEnforcesBurst(t *testing.T) {
	limiter := ratelimit.NewOwnerLimiter(1, 2)

	if !limiter.Allow("owner-1") || !limiter.Allow("owner-1") {
		t.Fatal("expected burst of 2 to be admitted")
	}
	if limiter.Allow("owner-1") {
		t.Fatal("expected third immediate submission to be rejected")
	}
}

func TestOwnerLimiterIsolatesOwners(t *testing.T) {
	limiter := ratelimit.NewOwnerLimiter(1, 1)

	if !limiter.Allow("owner-1") {
		t.Fatal("expected first submission admitted")
	}
	if limiter.Allow("owner-1") {
		t.Fatal("expected owner-1 to be limited")
	}
	if !limiter.Allow("owner-2") {
		t.Fatal("expected owner-2 to have its own budget")
	}
}

func TestZeroRateDisablesLimiting(t *testing.T) {
	limiter := ratelimit.NewOwnerLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if !limiter.Allow("owner-1") {
			t.Fatal("disabled limiter must admit everything")
		}
	}
}
