package app

import "errors"

// Sentinel errors for the application's failure taxonomy. Callers test
// them with errors.Is; the wrapped text carries the offending path and,
// where one exists, the thread and cycle context.
var (
	// ErrConfiguration marks a malformed tree, a missing field, or an
	// unknown class, surfaced from Configure. Broker planner rule
	// violations surface later, from Prepare or Transition, as
	// ErrTransition. The process never enters Running after an
	// ErrConfiguration.
	ErrConfiguration = errors.New("configuration error")

	// ErrTransition marks a failed state prepare or a commit that timed
	// out; the scheduler remains in the previous state.
	ErrTransition = errors.New("transition error")
)
