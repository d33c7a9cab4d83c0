package host

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHost(t *testing.T) *Host {
	t.Helper()
	h, err := New(Config{
		Name:     "test.js",
		Platform: "linux",
		Log:      log.NewLogger(log.DiscardHandler()),
	})
	require.NoError(t, err)
	return h
}

// drain runs the task loop until no work is left
func drain(t *testing.T, h *Host) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for !idle(h.loop) {
		require.NoError(t, h.Turn(ctx))
	}
}

func exported(h *Host, name string) interface{} {
	return h.vm.Get(name).Export()
}

func TestNewRequiresName(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestRunCompletes(t *testing.T) {
	h := newTestHost(t)
	require.NoError(t, h.Run(context.Background(), `var x = 1 + 1;`))
	assert.Equal(t, int64(2), exported(h, "x"))
}

func TestRunThrows(t *testing.T) {
	h := newTestHost(t)
	err := h.Run(context.Background(), `throw new Error("boom");`)
	require.Error(t, err)

	var ex *goja.Exception
	require.ErrorAs(t, err, &ex)
	assert.Contains(t, err.Error(), "boom")
}

func TestHarnessGlobals(t *testing.T) {
	h := newTestHost(t)
	require.NoError(t, h.Run(context.Background(), `
		var name = harness.name;
		var platform = harness.platform;
		var pplatform = process.platform;
	`))
	assert.Equal(t, "test.js", exported(h, "name"))
	assert.Equal(t, "linux", exported(h, "platform"))
	assert.Equal(t, "linux", exported(h, "pplatform"))
}

func TestHarnessFinish(t *testing.T) {
	h := newTestHost(t)
	err := h.Run(context.Background(), `harness.finish(); var after = true;`)

	var exit *ExitRequest
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 0, exit.Code)
	// finish only marks the request, the script keeps running
	assert.Equal(t, true, exported(h, "after"))
}

func TestProcessExitStopsScript(t *testing.T) {
	h := newTestHost(t)
	err := h.Run(context.Background(), `
		var after = false;
		process.exit(3);
		after = true;
	`)

	var exit *ExitRequest
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 3, exit.Code)
	assert.Equal(t, false, exported(h, "after"))

	// the interrupt does not leak into the next evaluation
	require.NoError(t, h.Run(context.Background(), `after = true;`))
	assert.Equal(t, true, exported(h, "after"))
}

func TestHarnessExit(t *testing.T) {
	h := newTestHost(t)
	err := h.Run(context.Background(), `harness.exit(7);`)

	var exit *ExitRequest
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 7, exit.Code)
}

func TestRunInterruptedByContext(t *testing.T) {
	h := newTestHost(t)
	cause := errors.New("deadline")
	ctx, cancel := context.WithCancelCause(context.Background())
	time.AfterFunc(50*time.Millisecond, func() { cancel(cause) })

	err := h.Run(ctx, `for (;;) {}`)
	require.ErrorIs(t, err, ErrInterrupted)
	require.ErrorIs(t, err, cause)
}

func TestInterruptFromOutside(t *testing.T) {
	h := newTestHost(t)
	cause := errors.New("stop")
	time.AfterFunc(50*time.Millisecond, func() { h.Interrupt(cause) })

	err := h.Run(context.Background(), `for (;;) {}`)
	require.ErrorIs(t, err, ErrInterrupted)
	require.ErrorIs(t, err, cause)
}

func TestSchedulingOrder(t *testing.T) {
	h := newTestHost(t)
	require.NoError(t, h.Run(context.Background(), `
		var order = [];
		setTimeout(function () { order.push("timeout"); }, 0);
		setImmediate(function () { order.push("immediate"); });
		process.nextTick(function () { order.push("tick"); });
		Promise.resolve().then(function () { order.push("promise"); });
	`))
	drain(t, h)
	assert.Equal(t, []interface{}{"promise", "tick", "immediate", "timeout"}, exported(h, "order"))
}

func TestTimerArguments(t *testing.T) {
	h := newTestHost(t)
	require.NoError(t, h.Run(context.Background(), `
		var got;
		setTimeout(function (a, b) { got = a + b; }, 1, 2, 3);
	`))
	drain(t, h)
	assert.Equal(t, int64(5), exported(h, "got"))
}

func TestClearTimers(t *testing.T) {
	h := newTestHost(t)
	require.NoError(t, h.Run(context.Background(), `
		var fired = false;
		clearTimeout(setTimeout(function () { fired = true; }, 1));
		clearImmediate(setImmediate(function () { fired = true; }));
		clearTimeout(undefined);
		clearInterval(null);
	`))
	scheduled, micro := h.Pending()
	assert.Zero(t, scheduled)
	assert.Zero(t, micro)
	drain(t, h)
	assert.Equal(t, false, exported(h, "fired"))
}

func TestInterval(t *testing.T) {
	h := newTestHost(t)
	require.NoError(t, h.Run(context.Background(), `
		var runs = 0;
		var id = setInterval(function () {
			if (++runs === 3) clearInterval(id);
		}, 1);
	`))
	drain(t, h)
	assert.Equal(t, int64(3), exported(h, "runs"))
}

func TestCallbackMustBeFunction(t *testing.T) {
	h := newTestHost(t)
	err := h.Run(context.Background(), `setTimeout("nope", 1);`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TypeError")
}

func TestAsyncThrow(t *testing.T) {
	h := newTestHost(t)
	require.NoError(t, h.Run(context.Background(), `
		setTimeout(function () { throw new Error("late"); }, 1);
	`))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	for err == nil && !idle(h.loop) {
		err = h.Turn(ctx)
	}
	require.Error(t, err)
	assert.Contains(t, err.Error(), "late")
}

func TestTurnExitFromCallback(t *testing.T) {
	h := newTestHost(t)
	require.NoError(t, h.Run(context.Background(), `
		setImmediate(function () { process.exit(4); });
	`))
	err := h.Turn(context.Background())

	var exit *ExitRequest
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 4, exit.Code)
}

func TestTurnWaitsForContext(t *testing.T) {
	h := newTestHost(t)
	require.NoError(t, h.Run(context.Background(), `setTimeout(function () {}, 60000);`))

	cause := errors.New("timed out")
	ctx, cancel := context.WithCancelCause(context.Background())
	time.AfterFunc(20*time.Millisecond, func() { cancel(cause) })

	err := h.Turn(ctx)
	require.ErrorIs(t, err, cause)
}

func TestEmitExit(t *testing.T) {
	h := newTestHost(t)
	require.NoError(t, h.Run(context.Background(), `
		var seen = [];
		process.on("exit", function (code) { seen.push(code); })
			.on("exit", function (code) { seen.push(code + 1); });
	`))

	code, err := h.EmitExit(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, []interface{}{int64(0), int64(1)}, exported(h, "seen"))

	// listeners run once
	code, err = h.EmitExit(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Len(t, exported(h, "seen"), 2)
}

func TestEmitExitListenerExits(t *testing.T) {
	h := newTestHost(t)
	require.NoError(t, h.Run(context.Background(), `
		var second = false;
		process.on("exit", function () { process.exit(5); });
		process.on("exit", function () { second = true; });
	`))

	code, err := h.EmitExit(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, code)
	assert.Equal(t, false, exported(h, "second"))
}

func TestEmitExitListenerThrows(t *testing.T) {
	h := newTestHost(t)
	require.NoError(t, h.Run(context.Background(), `
		process.on("exit", function () { throw new Error("listener"); });
	`))

	_, err := h.EmitExit(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listener")
}

func TestDispatchUncaught(t *testing.T) {
	t.Run("no listener", func(t *testing.T) {
		h := newTestHost(t)
		handled, err := h.DispatchUncaught(context.Background(), errors.New("boom"))
		require.NoError(t, err)
		assert.False(t, handled)
	})

	t.Run("listener receives thrown value", func(t *testing.T) {
		h := newTestHost(t)
		runErr := h.Run(context.Background(), `
			var got;
			process.on("uncaughtException", function (e) { got = e.message; });
			throw new Error("boom");
		`)
		require.Error(t, runErr)

		handled, err := h.DispatchUncaught(context.Background(), runErr)
		require.NoError(t, err)
		assert.True(t, handled)
		assert.Equal(t, "boom", exported(h, "got"))
	})

	t.Run("listener throws", func(t *testing.T) {
		h := newTestHost(t)
		require.NoError(t, h.Run(context.Background(), `
			process.on("uncaughtException", function () { throw new Error("again"); });
		`))
		handled, err := h.DispatchUncaught(context.Background(), errors.New("boom"))
		assert.True(t, handled)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "again")
	})

	t.Run("listener finishes", func(t *testing.T) {
		h := newTestHost(t)
		require.NoError(t, h.Run(context.Background(), `
			process.on("uncaughtException", function () { harness.finish(); });
		`))
		handled, err := h.DispatchUncaught(context.Background(), errors.New("boom"))
		assert.True(t, handled)

		var exit *ExitRequest
		require.ErrorAs(t, err, &exit)
		assert.Equal(t, 0, exit.Code)
	})
}

func TestConsoleOutput(t *testing.T) {
	var out bytes.Buffer
	h, err := New(Config{
		Name:   "console.js",
		Log:    log.NewLogger(log.DiscardHandler()),
		Stdout: &out,
	})
	require.NoError(t, err)

	require.NoError(t, h.Run(context.Background(), `
		console.log("hello", 1, true);
		console.error("oops");
	`))
	assert.Equal(t, "hello 1 true\noops\n", out.String())
}

func TestCoverage(t *testing.T) {
	h := newTestHost(t)
	_, ok := h.Coverage()
	assert.False(t, ok)

	require.NoError(t, h.Run(context.Background(), `
		var __coverage__ = { "a.js": { s: { "0": 1 } } };
	`))
	data, ok := h.Coverage()
	require.True(t, ok)
	assert.Contains(t, data, "a.js")
}

func TestExitCode(t *testing.T) {
	h := newTestHost(t)
	assert.Equal(t, 0, h.ExitCode())
	require.NoError(t, h.Run(context.Background(), `process.exitCode = 2;`))
	assert.Equal(t, 2, h.ExitCode())
}

func TestExitResult(t *testing.T) {
	require.NoError(t, ExitResult(0))

	err := ExitResult(3)
	var codeErr *ExitCodeError
	require.ErrorAs(t, err, &codeErr)
	assert.Equal(t, 3, codeErr.Code)
	assert.Equal(t, "exited with code 3", err.Error())
}

func TestRunUnhandledRejection(t *testing.T) {
	h := newTestHost(t)
	err := h.Run(context.Background(), `Promise.reject(new Error("boom"));`)
	require.Error(t, err)

	var rejection *RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Contains(t, err.Error(), "boom")

	// reported once
	assert.Empty(t, h.rejections)
}

func TestRunHandledRejection(t *testing.T) {
	h := newTestHost(t)
	require.NoError(t, h.Run(context.Background(), `
		var caught;
		Promise.reject(new Error("boom")).catch(function (e) { caught = e.message; });
		var p = Promise.reject(new Error("later"));
		p.then(null, function () {});
	`))
	assert.Equal(t, "boom", exported(h, "caught"))
}

func TestAsyncFunctionThrowsAfterAwait(t *testing.T) {
	h := newTestHost(t)
	require.NoError(t, h.Run(context.Background(), `
		(async function () {
			await new Promise(function (resolve) { setTimeout(resolve, 1); });
			throw new Error("async boom");
		})();
	`))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var err error
	for err == nil && !idle(h.loop) {
		err = h.Turn(ctx)
	}
	var rejection *RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Contains(t, err.Error(), "async boom")
}

func TestDispatchUncaughtRejectionReason(t *testing.T) {
	h := newTestHost(t)
	require.NoError(t, h.Run(context.Background(), `
		var seen;
		process.on("uncaughtException", function (e) { seen = e.message; });
	`))
	err := h.Run(context.Background(), `Promise.reject(new Error("why"));`)
	require.Error(t, err)

	handled, err := h.DispatchUncaught(context.Background(), err)
	require.True(t, handled)
	require.NoError(t, err)
	assert.Equal(t, "why", exported(h, "seen"))
}
