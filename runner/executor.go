package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ethereum-optimism/infra/op-harness/coverage"
	"github.com/ethereum-optimism/infra/op-harness/host"
	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/ethereum/go-ethereum/log"
)

// engine executes one test and classifies it through the ledger. A returned
// error is either an *UncaughtError or aborts the run.
type engine interface {
	Execute(ctx context.Context, a *attempt) error
}

var _ engine = (*scriptEngine)(nil)

// scriptEngine runs tests in a fresh embedded interpreter each
type scriptEngine struct {
	log      log.Logger
	ledger   *Ledger
	platform string
	stdout   io.Writer // test console output, nil to keep it in the log only
	coverage *coverage.Collector
}

// Execute runs the test source and drives it until it is classified
func (e *scriptEngine) Execute(ctx context.Context, a *attempt) (err error) {
	path := filepath.Join(a.dir, a.test.Name)
	src, err := os.ReadFile(path)
	if err != nil {
		e.ledger.Report(a, types.TestStatusFail, "", fmt.Errorf("failed to read test source: %w", err))
		return nil
	}

	out := io.Writer(a.output)
	if e.stdout != nil {
		out = io.MultiWriter(a.output, e.stdout)
	}
	h, err := host.New(host.Config{
		Name:     a.test.Name,
		Platform: e.platform,
		Log:      e.log,
		Stdout:   out,
	})
	if err != nil {
		return fmt.Errorf("failed to create host: %w", err)
	}
	defer e.collectCoverage(h)
	defer func() {
		if p := recover(); p != nil {
			e.log.Error("Test panicked", "test", a.test.Name, "panic", p)
			e.ledger.Report(a, types.TestStatusFail, "", fmt.Errorf("panic: %v", p))
			err = nil
		}
	}()

	if err := e.route(ctx, h, a, h.Run(ctx, string(src))); err != nil {
		return err
	}
	return e.awaitCompletion(ctx, h, a)
}

// awaitCompletion runs the host task loop until the test is classified. With
// no scheduled or micro-scheduled work left it runs the finish sequence.
func (e *scriptEngine) awaitCompletion(ctx context.Context, h *host.Host, a *attempt) error {
	for !a.test.Finished() {
		scheduled, micro := h.Pending()
		if scheduled == 0 && micro == 0 {
			if err := e.finish(ctx, h, a, h.ExitCode()); err != nil {
				return err
			}
			continue
		}
		if err := e.route(ctx, h, a, h.Turn(ctx)); err != nil {
			return err
		}
	}
	return nil
}

// route dispatches the outcome of evaluating test code
func (e *scriptEngine) route(ctx context.Context, h *host.Host, a *attempt, err error) error {
	if err == nil || a.test.Finished() {
		return nil
	}

	var exit *host.ExitRequest
	if errors.As(err, &exit) {
		return e.finish(ctx, h, a, exit.Code)
	}
	if done, abort := e.preempted(ctx, a, err); done {
		return abort
	}
	if a.test.Uncaught {
		return &UncaughtError{
			Test: a.test.Name,
			Err:  err,
			resume: func(ctx context.Context) error {
				return e.dispatchUncaught(ctx, h, a, err)
			},
		}
	}
	e.ledger.Classify(a, err)
	return nil
}

// finish simulates process exit with code and classifies the test by the
// final exit code, or by the error of a throwing exit listener.
func (e *scriptEngine) finish(ctx context.Context, h *host.Host, a *attempt, code int) error {
	code, err := h.EmitExit(ctx, code)
	if a.test.Finished() {
		return nil
	}
	if err != nil {
		if done, abort := e.preempted(ctx, a, err); done {
			return abort
		}
		e.ledger.Classify(a, err)
		return nil
	}
	e.ledger.Classify(a, host.ExitResult(code))
	return nil
}

// dispatchUncaught is the host side of an uncaught error: registered
// uncaughtException listeners get it and the test continues, otherwise the
// script exits with code 1.
func (e *scriptEngine) dispatchUncaught(ctx context.Context, h *host.Host, a *attempt, cause error) error {
	if a.test.Finished() {
		return nil
	}
	handled, err := h.DispatchUncaught(ctx, cause)
	if !handled {
		e.log.Debug("Uncaught error without handler", "test", a.test.Name, "err", cause)
		return e.finish(ctx, h, a, uncaughtExitCode)
	}
	if err != nil {
		var exit *host.ExitRequest
		if errors.As(err, &exit) {
			return e.finish(ctx, h, a, exit.Code)
		}
		if done, abort := e.preempted(ctx, a, err); done {
			return abort
		}
		e.log.Debug("Uncaught exception handler threw", "test", a.test.Name, "err", err)
		return e.finish(ctx, h, a, uncaughtHandlerExitCode)
	}
	return e.awaitCompletion(ctx, h, a)
}

// preempted handles errors caused by the end of the test context: the
// deadline classifies the test, any other cancellation aborts the run.
func (e *scriptEngine) preempted(ctx context.Context, a *attempt, err error) (bool, error) {
	if timedOut(ctx, err) {
		e.ledger.Report(a, types.TestStatusTimeout, "", ErrTestTimeout)
		return true, nil
	}
	if ctx.Err() != nil {
		return true, context.Cause(ctx)
	}
	return false, nil
}

func (e *scriptEngine) collectCoverage(h *host.Host) {
	if e.coverage == nil {
		return
	}
	if data, ok := h.Coverage(); ok {
		e.coverage.Add(data)
	}
}
