// Package queue persists pipeline jobs and batches in SQLite and exposes
// helpers for driving their lifecycle.
//
// The Store manages database connections, schema initialization, count
// queries, heartbeat tracking, stuck-job recovery, and the status transitions
// that make up the job state machine. Jobs capture submission config,
// accumulated pipeline state, progress, and cancellation flags so the runner
// and scheduler can coordinate without additional shared state.
//
// The database is treated as the system of record for jobs in flight and a
// short-term archive for finished ones; housekeeping prunes terminal rows on
// a retention schedule. Schema changes bump the version in schema.go; users
// delete the database to adopt the new schema.
//
// Treat this package as the single source of truth for job semantics; when
// you add new statuses or fields, update schema.sql and bump schemaVersion.
package queue
