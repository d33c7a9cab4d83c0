package host

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

// ErrInterrupted is returned when script execution was stopped from outside,
// for example by a test timeout. The interrupt cause is wrapped alongside.
var ErrInterrupted = errors.New("script interrupted")

// ExitRequest is returned when the test asked the host to exit, either through
// process.exit(code) / harness.exit(code) or by signalling harness.finish().
type ExitRequest struct {
	Code int
}

func (e *ExitRequest) Error() string {
	return fmt.Sprintf("exit requested with code %d", e.Code)
}

// ExitCodeError is the failure value of a test that finished with a non-zero
// exit code.
type ExitCodeError struct {
	Code int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("exited with code %d", e.Code)
}

// ExitResult converts an exit code into the result value used for
// classification: zero means no error.
func ExitResult(code int) error {
	if code == 0 {
		return nil
	}
	return &ExitCodeError{Code: code}
}

// RejectionError is a promise rejection that no handler observed by the time
// the interpreter finished its pending jobs.
type RejectionError struct {
	Reason goja.Value
}

func (e *RejectionError) Error() string {
	if e.Reason == nil || goja.IsUndefined(e.Reason) {
		return "unhandled promise rejection"
	}
	return fmt.Sprintf("unhandled promise rejection: %s", e.Reason.String())
}
