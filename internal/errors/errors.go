package errors

import (
	stderrors "errors"
	"fmt"
)

// Process exit codes, one per terminal error kind.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitValidation  = 2
	ExitAborted     = 3
	ExitStepFailure = 4
)

type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("operation %q failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func E(op string, err error) error {
	return &Error{Op: op, Err: err}
}

// ValidationError reports the first preflight condition that was not met.
type ValidationError struct {
	Check  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("preflight check %q failed: %s", e.Check, e.Reason)
}

// ErrUserAborted is returned when the operator declines the confirmation prompt.
var ErrUserAborted = stderrors.New("installation aborted by user")

// StepFailure reports the provisioning step that stopped the pipeline.
// Index is the 1-based position of the step.
type StepFailure struct {
	Index int
	Label string
	Err   error
}

func (e *StepFailure) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.Index, e.Label, e.Err)
}

func (e *StepFailure) Unwrap() error {
	return e.Err
}

// ExitCode maps an error returned by a command to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ve *ValidationError
	if stderrors.As(err, &ve) {
		return ExitValidation
	}
	if stderrors.Is(err, ErrUserAborted) {
		return ExitAborted
	}
	var sf *StepFailure
	if stderrors.As(err, &sf) {
		return ExitStepFailure
	}
	return ExitFailure
}
