// Package daemon hosts the long-running medcast process: it enforces
// single-instance execution, accepts run submissions over HTTP, bounds
// concurrent pipeline execution, and drains in-flight runs on shutdown.
package daemon
