// Package runner drives a single job through its configured stage sequence.
//
// The runner is the only writer of a job's status and pipeline state while
// the job executes. It checks the cancellation flag at every stage boundary,
// holds the GPU admission gate for GPU-bound stages, publishes progress
// events around each stage, and persists the terminal transition before
// retiring the job's event stream. Stage failures never escape the run loop;
// they become a Failed transition carrying the stage error's own message.
package runner
