// Package batch groups jobs submitted together and keeps their aggregate
// status in sync.
//
// A batch is created atomically with all of its member jobs; the total count
// never changes afterwards. The coordinator observes member terminal
// transitions (wired through the scheduler) and recomputes the aggregate:
// processing while any member can still run, then completed, partial, or
// failed depending on the terminal mix. Batch cancel and retry fan out to
// members using each job's own semantics.
package batch
