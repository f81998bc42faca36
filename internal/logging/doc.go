// Package logging builds the slog loggers used across medcast and provides
// context helpers so run and stage identifiers ride along on every record
// emitted inside a pipeline execution.
package logging
