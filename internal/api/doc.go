// Package api defines transport-friendly DTOs for runs and render queue
// entries plus read-only service facades over the persistence layer. The
// HTTP server and the CLI both consume these types so wire payloads stay
// consistent across surfaces.
package api
