package harness

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-harness/exitcodes"
)

// RuntimeError is an operational failure of the harness itself: bad flags,
// a missing or invalid manifest, an unwritable output file. It implements
// cli.ExitCoder with exit code 2.
type RuntimeError struct {
	Err error
}

func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func (e *RuntimeError) ExitCode() int {
	return exitcodes.RuntimeErr
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return errors.As(err, &runtimeErr)
}

// TestFailureError ends a run in which a test failed or timed out. It
// implements cli.ExitCoder with exit code 1.
type TestFailureError struct {
	Tally string // final counts of the run
}

func NewTestFailureError(tally string) *TestFailureError {
	return &TestFailureError{Tally: tally}
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: %s", e.Tally)
}

func (e *TestFailureError) ExitCode() int {
	return exitcodes.TestFailure
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return errors.As(err, &testErr)
}
