// Package stage defines the pipeline stage contract and the registry that
// maps stage names to their handlers.
//
// Stage handlers are opaque units of work: they receive the job with its
// accumulated pipeline state, report sub-progress through a callback, and
// return the artifacts they produced. The registry records which stages are
// GPU-bound so the runner knows when to consult the admission gate. Sequence
// computes the ordered stage list for a job at submission time; the list is
// fixed for the lifetime of the job.
package stage
