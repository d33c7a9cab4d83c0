package host

import (
	"os"
	"strings"

	"github.com/dop251/goja"
)

func (h *Host) installGlobals() error {
	vm := h.vm

	console := vm.NewObject()
	for _, name := range []string{"log", "info", "debug", "warn", "error"} {
		if err := console.Set(name, func(call goja.FunctionCall) goja.Value {
			h.print(call.Arguments)
			return goja.Undefined()
		}); err != nil {
			return err
		}
	}

	process, err := h.newProcess()
	if err != nil {
		return err
	}
	harness, err := h.newHarness()
	if err != nil {
		return err
	}

	globals := map[string]interface{}{
		"console":        console,
		"process":        process,
		"harness":        harness,
		"setTimeout":     h.setTimer(false),
		"setInterval":    h.setTimer(true),
		"setImmediate":   h.setImmediate,
		"clearTimeout":   h.clear,
		"clearInterval":  h.clear,
		"clearImmediate": h.clear,
	}
	for name, value := range globals {
		if err := vm.Set(name, value); err != nil {
			return err
		}
	}
	return nil
}

// newProcess builds the subset of the Node process object tests rely on
func (h *Host) newProcess() (*goja.Object, error) {
	process := h.vm.NewObject()
	props := map[string]interface{}{
		"platform": h.cfg.Platform,
		"argv":     []string{"op-harness", h.cfg.Name},
		"env":      environ(),
		"exitCode": goja.Undefined(),
		"exit": func(call goja.FunctionCall) goja.Value {
			h.requestExit(exitCodeArg(call.Argument(0)), true)
			return goja.Undefined()
		},
		"nextTick": func(call goja.FunctionCall) goja.Value {
			fn := h.callback(call.Argument(0))
			h.loop.NextTick(fn, restArgs(call, 1))
			return goja.Undefined()
		},
	}
	for name, value := range props {
		if err := process.Set(name, value); err != nil {
			return nil, err
		}
	}

	// on returns the process object to allow chaining, as in Node.
	if err := process.Set("on", func(call goja.FunctionCall) goja.Value {
		event := call.Argument(0).String()
		fn := h.callback(call.Argument(1))
		switch event {
		case eventExit:
			h.exitListeners = append(h.exitListeners, fn)
		case eventUncaught:
			h.uncaughtListeners = append(h.uncaughtListeners, fn)
		default:
			h.cfg.Log.Debug("Ignoring listener for unsupported process event", "test", h.cfg.Name, "event", event)
		}
		return process
	}); err != nil {
		return nil, err
	}
	return process, nil
}

// newHarness builds the explicit runner context object: tests call finish()
// to signal completion or exit(code) to stop with an exit code.
func (h *Host) newHarness() (*goja.Object, error) {
	harness := h.vm.NewObject()
	props := map[string]interface{}{
		"name":     h.cfg.Name,
		"platform": h.cfg.Platform,
		"finish": func(goja.FunctionCall) goja.Value {
			h.requestExit(0, false)
			return goja.Undefined()
		},
		"exit": func(call goja.FunctionCall) goja.Value {
			h.requestExit(exitCodeArg(call.Argument(0)), true)
			return goja.Undefined()
		},
	}
	for name, value := range props {
		if err := harness.Set(name, value); err != nil {
			return nil, err
		}
	}
	return harness, nil
}

func (h *Host) setTimer(interval bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn := h.callback(call.Argument(0))
		id := h.loop.SetTimeout(fn, delayArg(call.Argument(1)), interval, restArgs(call, 2))
		return h.vm.ToValue(id)
	}
}

func (h *Host) setImmediate(call goja.FunctionCall) goja.Value {
	fn := h.callback(call.Argument(0))
	return h.vm.ToValue(h.loop.SetImmediate(fn, restArgs(call, 1)))
}

func (h *Host) clear(call goja.FunctionCall) goja.Value {
	id := call.Argument(0)
	if goja.IsUndefined(id) || goja.IsNull(id) {
		return goja.Undefined()
	}
	h.loop.Clear(id.ToInteger())
	return goja.Undefined()
}

// callback asserts v is callable, throwing a TypeError into the script otherwise
func (h *Host) callback(v goja.Value) goja.Callable {
	fn, ok := goja.AssertFunction(v)
	if !ok {
		panic(h.vm.NewTypeError("callback must be a function"))
	}
	return fn
}

func restArgs(call goja.FunctionCall, from int) []goja.Value {
	if len(call.Arguments) <= from {
		return nil
	}
	args := make([]goja.Value, len(call.Arguments)-from)
	copy(args, call.Arguments[from:])
	return args
}

// ExitCode returns process.exitCode as set by the test, zero when unset
func (h *Host) ExitCode() int {
	process := h.vm.Get("process")
	if process == nil || goja.IsUndefined(process) || goja.IsNull(process) {
		return 0
	}
	return exitCodeArg(process.ToObject(h.vm).Get("exitCode"))
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}
