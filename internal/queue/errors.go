package queue

import "errors"

// ErrNotFound indicates the requested job or batch does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition indicates an operation that the job or batch state
// machine forbids, such as retrying a completed job or deleting a running one.
var ErrInvalidTransition = errors.New("invalid transition")
