// Package run defines the persisted run record for one end-to-end script
// generation, the fixed stage order, and the pure state machine that governs
// status transitions. All transition logic lives here so it can be tested
// without touching the network or the database.
package run
