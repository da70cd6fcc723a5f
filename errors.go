package statechart

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel error kinds from spec §7. Definition-time and misuse errors are
// fatal (returned/panicked at the point of misuse). Guard failures and
// assign failures are returned to the caller of Send, leaving the
// interpreter at its last committed State. Failures of other actions are
// returned by Start and Execute; during Send they are written to the
// interpreter's Logger and are not returned, and the step's State stays
// committed.
var (
	ErrInvalidMachineDefinition = errors.New("statechart: invalid machine definition")
	ErrInterpreterNotStarted    = errors.New("statechart: interpreter not started")

	// ErrInvalidStateValue, ErrGuardEvaluation, and ErrActionExecution are
	// the sentinels behind InvalidStateValueError, GuardEvaluationError,
	// and ActionExecutionError respectively: each struct's Unwrap makes it
	// match its sentinel via errors.Is, alongside any underlying cause.
	ErrInvalidStateValue = errors.New("statechart: invalid state value")
	ErrGuardEvaluation   = errors.New("statechart: guard evaluation failed")
	ErrActionExecution   = errors.New("statechart: action execution failed")
)

// InvalidStateValueError reports a StateValue referencing an unknown state
// key, per spec §7.
type InvalidStateValueError struct {
	Key string
}

func (e *InvalidStateValueError) Error() string {
	return fmt.Sprintf("statechart: invalid state value: unknown state %q", e.Key)
}

func (e *InvalidStateValueError) Unwrap() error { return ErrInvalidStateValue }

// GuardEvaluationError wraps a panic or error recovered while evaluating a
// transition's guard. Cause unwraps to the original error via
// github.com/pkg/errors, preserving the stack captured at the panic site;
// it also unwraps to ErrGuardEvaluation so callers can match on the kind
// of failure without caring about the specific guard.
type GuardEvaluationError struct {
	StateID string
	Event   Event
	cause   error
}

func (e *GuardEvaluationError) Error() string {
	return fmt.Sprintf("statechart: guard evaluation failed for state %q on event %q: %v", e.StateID, e.Event.Type, e.cause)
}

func (e *GuardEvaluationError) Unwrap() []error { return []error{ErrGuardEvaluation, e.cause} }
func (e *GuardEvaluationError) Cause() error    { return errors.Cause(e.cause) }

// ActionExecutionError wraps a panic or error recovered while executing an
// action; it also unwraps to ErrActionExecution.
type ActionExecutionError struct {
	StateID    string
	ActionName string
	Event      Event
	cause      error
}

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("statechart: action %q failed for state %q on event %q: %v", e.ActionName, e.StateID, e.Event.Type, e.cause)
}

func (e *ActionExecutionError) Unwrap() []error { return []error{ErrActionExecution, e.cause} }
func (e *ActionExecutionError) Cause() error    { return errors.Cause(e.cause) }

// recoverAsError turns a recovered panic value into an error, preserving a
// stack trace via github.com/pkg/errors when the panic value isn't already
// an error.
func recoverAsError(r any) error {
	if err, ok := r.(error); ok {
		return errors.WithStack(err)
	}
	return errors.Errorf("panic: %v", r)
}
