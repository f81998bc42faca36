// Package notifications delivers push notifications for run lifecycle
// events through ntfy. When no topic is configured a noop implementation
// is returned so callers never need nil checks.
package notifications
