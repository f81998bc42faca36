// Package pipeline coordinates the content generation lifecycle for a
// run: retrieval index preparation, ordered stage execution, terminal
// status transitions, and hand-off to the render queue.
package pipeline
