// Package host embeds the JavaScript runtime that executes test sources.
//
// A Host wraps one goja interpreter plus the task loop that backs the Node
// style scheduling globals (setTimeout, setImmediate, process.nextTick, ...).
// Each test gets a fresh Host. The runner drives it: Run evaluates the test
// source, Turn runs one iteration of the task loop, EmitExit simulates process
// exit and DispatchUncaught delivers an error to the uncaught-exception path.
//
// The interpreter is not goroutine safe. Only Interrupt may be called from
// another goroutine.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/ethereum/go-ethereum/log"
)

// CoverageGlobal is the global that instrumented sources fill with coverage data
const CoverageGlobal = "__coverage__"

const (
	eventExit     = "exit"
	eventUncaught = "uncaughtException"
)

// Config configures a Host
type Config struct {
	Name     string    // test name, used as script name and harness.name
	Platform string    // OS identifier exposed as process.platform
	Log      log.Logger
	Stdout   io.Writer // receives console output when set
}

// Host is the execution context of a single test
type Host struct {
	cfg  Config
	vm   *goja.Runtime
	loop *Loop

	exitListeners     []goja.Callable
	uncaughtListeners []goja.Callable
	rejections        []*goja.Promise // rejected promises without a handler, oldest first

	exit        *ExitRequest // exit requested by the script, not yet reported
	interrupted bool         // an exit interrupt was raised on the interpreter
	exited      bool         // exit listeners have run
	exitCode    int
}

// New creates a host with all runner globals installed
func New(cfg Config) (*Host, error) {
	if cfg.Name == "" {
		return nil, errors.New("test name is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	h := &Host{
		cfg:  cfg,
		vm:   goja.New(),
		loop: NewLoop(),
	}
	h.vm.SetPromiseRejectionTracker(h.trackRejection)
	if err := h.installGlobals(); err != nil {
		return nil, fmt.Errorf("failed to install globals: %w", err)
	}
	return h, nil
}

// Run evaluates the test source in the top-level scope. It returns nil when
// the source completed without throwing and without asking to exit, an
// *ExitRequest when it asked to exit, an error wrapping ErrInterrupted when
// stopped from outside, or the thrown *goja.Exception.
func (h *Host) Run(ctx context.Context, src string) error {
	stop := h.interruptOnDone(ctx)
	defer stop()

	_, err := h.vm.RunScript(h.cfg.Name, src)
	return h.outcome(err)
}

// Turn runs one iteration of the task loop. Errors follow the same shapes as
// Run; a done ctx returns its cause.
func (h *Host) Turn(ctx context.Context) error {
	stop := h.interruptOnDone(ctx)
	defer stop()

	return h.loop.Turn(ctx, func(t *task) error {
		_, err := t.fn(goja.Undefined(), t.args...)
		return h.outcome(err)
	})
}

// Pending reports outstanding scheduled and micro-scheduled callbacks
func (h *Host) Pending() (scheduled int, micro int) {
	return h.loop.Pending()
}

// Interrupt stops the running script as soon as possible. Safe to call from
// any goroutine.
func (h *Host) Interrupt(cause error) {
	h.vm.Interrupt(cause)
}

// EmitExit simulates process exit: every exit listener is called once with
// the exit code. A listener calling process.exit(n) replaces the code and
// stops the remaining listeners. A listener error is returned as is. Calling
// EmitExit again returns the code of the first call.
func (h *Host) EmitExit(ctx context.Context, code int) (int, error) {
	if h.exited {
		return h.exitCode, nil
	}
	h.exited = true
	h.exitCode = code

	stop := h.interruptOnDone(ctx)
	defer stop()

	for _, listener := range h.exitListeners {
		_, err := listener(goja.Undefined(), h.vm.ToValue(h.exitCode))
		err = h.outcome(err)
		var exit *ExitRequest
		if errors.As(err, &exit) {
			h.exitCode = exit.Code
			return h.exitCode, nil
		}
		if err != nil {
			return h.exitCode, err
		}
	}
	return h.exitCode, nil
}

// DispatchUncaught hands an error that escaped the test to the
// uncaughtException listeners. It reports whether any listener was
// registered; listener failures are returned.
func (h *Host) DispatchUncaught(ctx context.Context, cause error) (bool, error) {
	if len(h.uncaughtListeners) == 0 {
		return false, nil
	}

	stop := h.interruptOnDone(ctx)
	defer stop()

	value := h.errorValue(cause)
	for _, listener := range h.uncaughtListeners {
		if _, err := listener(goja.Undefined(), value); err != nil {
			return true, h.outcome(err)
		}
	}
	return true, h.outcomePending()
}

// Coverage returns the coverage object the test left in the global scope
func (h *Host) Coverage() (map[string]interface{}, bool) {
	v := h.vm.Get(CoverageGlobal)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, false
	}
	data, ok := v.Export().(map[string]interface{})
	return data, ok
}

// outcome turns an interpreter error into the host error shapes and reports
// an exit that was requested without raising an error.
func (h *Host) outcome(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if req, ok := interrupted.Value().(*ExitRequest); ok {
			h.interrupted = false
			h.exit = nil
			return req
		}
		if cause, ok := interrupted.Value().(error); ok {
			return fmt.Errorf("%w: %w", ErrInterrupted, cause)
		}
		return fmt.Errorf("%w: %v", ErrInterrupted, interrupted.Value())
	}
	if err != nil {
		return err
	}
	return h.outcomePending()
}

// outcomePending reports a requested exit, or else the oldest promise
// rejection still unhandled once the interpreter drained its jobs.
func (h *Host) outcomePending() error {
	if h.exit == nil {
		return h.unhandledRejection()
	}
	if h.interrupted {
		// The script returned before the interpreter observed the interrupt.
		h.vm.ClearInterrupt()
		h.interrupted = false
	}
	req := h.exit
	h.exit = nil
	return req
}

func (h *Host) trackRejection(p *goja.Promise, op goja.PromiseRejectionOperation) {
	switch op {
	case goja.PromiseRejectionReject:
		h.rejections = append(h.rejections, p)
	case goja.PromiseRejectionHandle:
		for i, rejected := range h.rejections {
			if rejected == p {
				h.rejections = append(h.rejections[:i], h.rejections[i+1:]...)
				break
			}
		}
	}
}

func (h *Host) unhandledRejection() error {
	if len(h.rejections) == 0 {
		return nil
	}
	p := h.rejections[0]
	h.rejections = h.rejections[1:]
	return &RejectionError{Reason: p.Result()}
}

func (h *Host) interruptOnDone(ctx context.Context) func() bool {
	return context.AfterFunc(ctx, func() {
		h.vm.Interrupt(context.Cause(ctx))
	})
}

func (h *Host) errorValue(err error) goja.Value {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.Value()
	}
	var rejection *RejectionError
	if errors.As(err, &rejection) && rejection.Reason != nil {
		return rejection.Reason
	}
	return h.vm.NewGoError(err)
}

func (h *Host) requestExit(code int, interrupt bool) {
	h.exit = &ExitRequest{Code: code}
	if interrupt {
		h.interrupted = true
		h.vm.Interrupt(h.exit)
	}
}

func (h *Host) print(args []goja.Value) {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = arg.String()
	}
	line := strings.Join(parts, " ")
	h.cfg.Log.Debug("Test output", "test", h.cfg.Name, "line", line)
	if h.cfg.Stdout != nil {
		fmt.Fprintln(h.cfg.Stdout, line)
	}
}

func delayArg(v goja.Value) time.Duration {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0
	}
	ms := v.ToFloat()
	if ms != ms || ms < 0 { // NaN or negative
		return 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}

func exitCodeArg(v goja.Value) int {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0
	}
	return int(v.ToInteger())
}
