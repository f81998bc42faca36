// Package runstore persists run records in SQLite. The store owns the
// database handle for the service; the render queue shares the same database
// through Handle so position assignment and run updates land in one file
// protected by WAL.
package runstore
