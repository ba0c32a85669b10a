// internal/flow/errors.go
package flow

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition marks a step sequence the state machine does not allow.
var ErrIllegalTransition = errors.New("illegal workflow transition")

// TransitionError reports a step issued from a state that cannot lead to its
// target. It is a fault in the step sequence, not in the application.
type TransitionError struct {
	From State
	To   State
	Step StepKind
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("step %q cannot move the workflow from %s to %s", e.Step, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// StepError wraps the failure of a required step with its position in the sequence.
type StepError struct {
	Index int
	Kind  StepKind
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index+1, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
