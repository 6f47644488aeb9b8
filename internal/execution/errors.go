package execution

import "errors"

// User-visible warnings. None of them leave the machine in a corrupted state.
var (
	// ErrEmptyWorkflow is returned by pre-checks before a start is attempted.
	ErrEmptyWorkflow = errors.New("workflow is empty")

	// ErrNoSequence means no execution order could be derived; the run does not start.
	ErrNoSequence = errors.New("cannot determine execution sequence")
)

// Errors for operations that do not apply in the current state.
var (
	ErrRunActive        = errors.New("a run is already active")
	ErrNotRunning       = errors.New("no run is active")
	ErrNotAwaitingInput = errors.New("current step is not awaiting input")
	ErrStalePrompt      = errors.New("prompt is no longer open")
	ErrNotReviewing     = errors.New("current step has no results under review")
)
