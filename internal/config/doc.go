// Package config loads and validates medcast configuration from TOML.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Stages: content-generation stage endpoints, timeout, and retry policy
//   - IndexProvider: retrieval index provider connection and retention
//   - RenderQueue: wait-time estimation tuning
//   - Pipeline: concurrent run and enqueue-retry limits
//   - Limits: per-owner submission rate limiting
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
package config
