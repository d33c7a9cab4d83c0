package runner

import (
	"context"
	"fmt"
)

// UncaughtError is returned by the execution step of a test declared
// `uncaught`: the error escaped the test on purpose and is handed to the
// caller undiminished. Resume delivers it to the host's uncaught-exception
// path and continues the test.
type UncaughtError struct {
	Test   string
	Err    error
	resume func(context.Context) error
}

func (e *UncaughtError) Error() string {
	return fmt.Sprintf("uncaught error in %s: %v", e.Test, e.Err)
}

func (e *UncaughtError) Unwrap() error {
	return e.Err
}

// Resume continues the test after the error surfaced. It may return another
// UncaughtError when asynchronous work of the test throws again.
func (e *UncaughtError) Resume(ctx context.Context) error {
	if e.resume == nil {
		return nil
	}
	return e.resume(ctx)
}
