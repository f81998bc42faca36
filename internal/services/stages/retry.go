package stages

import (
	"net/http"
	"time"
)

// RetryPolicy controls how Invoke handles transient stage failures. The zero
// value performs a single attempt with no retry.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Retryable decides whether an attempt that failed with the given HTTP
	// status is worth repeating. Transport-level failures are reported with
	// status 0.
	Retryable func(status int) bool
}

// DefaultRetryPolicy retries rate-limit and bad-gateway style failures with
// doubling backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
		Retryable:      RetryableStatus,
	}
}

// RetryableStatus reports whether an HTTP status is considered transient.
// Status 0 marks a transport failure, which is always worth one more try.
func RetryableStatus(status int) bool {
	switch status {
	case 0,
		http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable:
		return true
	default:
		return false
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) shouldRetry(status int) bool {
	if p.Retryable == nil {
		return false
	}
	return p.Retryable(status)
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.InitialBackoff <= 0 {
		return 0
	}
	delay := p.InitialBackoff
	for i := 0; i < attempt; i++ {
		delay *= 2
		if p.MaxBackoff > 0 && delay >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		return p.MaxBackoff
	}
	return delay
}
