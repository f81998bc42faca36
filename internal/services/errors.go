package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrAuthorization   = errors.New("authorization error")
	ErrConfiguration   = errors.New("configuration error")
	ErrNotFound        = errors.New("not found")
	ErrExternalService = errors.New("external service error")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrTransient       = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorDetails carries the classified view of a service error used for
// logging and run failure messages.
type ErrorDetails struct {
	Kind    string
	Message string
	Cause   error
}

// Details classifies an error against the sentinel markers and extracts a
// human-readable message suitable for persisting on a failed run.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Message: strings.TrimSpace(err.Error()), Cause: err}
	switch {
	case errors.Is(err, ErrValidation):
		details.Kind = "validation"
	case errors.Is(err, ErrAuthorization):
		details.Kind = "authorization"
	case errors.Is(err, ErrConfiguration):
		details.Kind = "configuration"
	case errors.Is(err, ErrNotFound):
		details.Kind = "not_found"
	case errors.Is(err, ErrExternalService):
		details.Kind = "external_service"
	case errors.Is(err, ErrRateLimited):
		details.Kind = "rate_limited"
	case errors.Is(err, ErrTransient):
		details.Kind = "transient"
	default:
		details.Kind = "unknown"
	}
	return details
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
