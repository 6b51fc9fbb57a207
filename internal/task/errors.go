package task

import "errors"

var (
	// ErrValidation marks malformed input rejected before any write.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks an unknown learner or task.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a lost compare-and-set race. Callers retry from a
	// fresh read.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable marks an unreachable collaborator. The operation had no
	// effect and may be retried.
	ErrUnavailable = errors.New("collaborator unavailable")
	// ErrNoChange is returned by a mutation that leaves the record as it is.
	ErrNoChange = errors.New("no change")
)
