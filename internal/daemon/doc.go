// Package daemon wires the pipeline together: queue store, GPU gate, stage
// registry with the real engines, scheduler, batch coordinator, housekeeping,
// and the HTTP API. It enforces single-instance execution through a lock file
// and owns orderly startup and shutdown.
package daemon
