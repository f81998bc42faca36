// Package services defines the shared error taxonomy for external service
// integrations. Sentinel markers classify failures so the pipeline can decide
// whether an error aborts a run, degrades it, or is worth retrying, without
// inspecting provider-specific error types.
package services
