// Package harness wires the manifest, runner, reporter and metrics service
// into the op-harness application lifecycle.
package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/ethereum-optimism/infra/op-harness/exitcodes"
	"github.com/ethereum-optimism/infra/op-harness/logging"
	"github.com/ethereum-optimism/infra/op-harness/manifest"
	"github.com/ethereum-optimism/infra/op-harness/runner"
	"github.com/ethereum-optimism/infra/op-harness/service"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// Harness runs the manifest once and reports the outcome.
// It implements cliapp.Lifecycle.
type Harness struct {
	config    *Config
	version   string
	manifest  *types.Manifest
	reporter  *logging.Reporter
	runner    *runner.Runner
	service   *service.Service
	formatter ResultFormatter
	result    *runner.RunResult

	metricsReporter MetricsReporter

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New loads the manifest and prepares the run. Every error is a
// configuration problem of the run.
func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*Harness, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Log == nil {
		return nil, errors.New("logger is required")
	}
	if shutdownCallback == nil {
		shutdownCallback = func(error) {}
	}

	config.Log.Debug("Creating harness with config",
		"root", config.Root,
		"manifest", config.ManifestFile,
		"version", version,
		"platform", config.Platform,
		"runtime", config.Runtime,
		"defaultTimeout", config.DefaultTimeout)

	m, err := manifest.Load(manifest.Config{
		Log:  config.Log,
		Root: config.Root,
		File: config.ManifestFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	reporter, err := logging.NewReporter(logging.Config{
		Log:        config.Log,
		Out:        config.Out,
		Quiet:      config.Quiet,
		OutputFile: config.OutputFile,
		NoColor:    config.NoColor,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create reporter: %w", err)
	}

	testRunner, err := runner.NewTestRunner(runner.Config{
		Log:            config.Log,
		Root:           config.Root,
		Manifest:       m,
		Sink:           reporter,
		Platform:       config.Platform,
		StartFrom:      config.StartFrom,
		SkipModules:    config.SkipModules,
		DefaultTimeout: config.DefaultTimeout,
		Runtime:        config.Runtime,
		CmdPrefix:      config.CmdPrefix,
		ShowOutput:     config.ShowOutput,
		SkipExpected:   config.SkipExpected,
		Stdout:         config.Out,
		Coverage:       config.Coverage,
	})
	if err != nil {
		_ = reporter.Close()
		return nil, fmt.Errorf("failed to create test runner: %w", err)
	}
	config.Log.Info("harness.New: loaded manifest and created test runner", "sets", len(m.Sets), "tests", m.TotalTests())

	h := &Harness{
		config:           config,
		version:          version,
		manifest:         m,
		reporter:         reporter,
		runner:           testRunner,
		formatter:        NewConsoleResultFormatter(config.Log, config.Out),
		metricsReporter:  NewDefaultMetricsReporter(),
		shutdownCallback: shutdownCallback,
	}
	if config.Metrics.Enabled {
		h.service = service.New(service.Config{
			Log:  config.Log,
			Host: config.Metrics.ListenAddr,
			Port: config.Metrics.ListenPort,
		})
	}
	return h, nil
}

// Start runs every test once and returns a TestFailureError when any test
// failed or timed out.
func (h *Harness) Start(ctx context.Context) error {
	defer func() {
		if r := recover(); r != nil {
			h.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()
	h.running.Store(true)

	if h.service != nil {
		if err := h.service.Start(ctx); err != nil {
			return NewRuntimeError(fmt.Errorf("failed to start metrics service: %w", err))
		}
	}

	if err := h.runTests(ctx); err != nil {
		h.config.Log.Error("Runtime error running tests", "error", err)
		return err
	}

	if !h.result.Succeeded() {
		h.config.Log.Warn("Test run completed with failures", "run_id", h.result.RunID, "tally", h.result.Tally)
		return NewTestFailureError(h.result.Tally.String())
	}

	h.config.Log.Info("Tests completed, exiting")
	go func() {
		h.shutdownCallback(nil)
	}()
	return nil
}

// runTests runs the manifest, reports metrics and prints the results table
func (h *Harness) runTests(ctx context.Context) error {
	result, err := h.runner.Run(ctx)
	if closeErr := h.reporter.Close(); closeErr != nil {
		h.config.Log.Warn("Failed to close output file", "err", closeErr)
	}
	if err != nil {
		return NewRuntimeError(err)
	}
	h.result = result
	h.metricsReporter.ReportResults(result.RunID, result)

	if err := h.formatter.FormatResults(result); err != nil {
		h.config.Log.Error("Failed to format results", "err", err)
	}
	h.config.Log.Info("Test run completed", "run_id", result.RunID, "tally", result.Tally, "duration", result.Duration)
	return nil
}

// Stop releases the output file and the metrics service.
func (h *Harness) Stop(ctx context.Context) error {
	h.config.Log.Info("Stopping op-harness")
	if !h.running.Swap(false) {
		h.config.Log.Debug("Harness already stopped, nothing to do")
		return nil
	}

	var result error
	if err := h.reporter.Close(); err != nil {
		result = errors.Join(result, fmt.Errorf("failed to close reporter: %w", err))
	}
	if h.service != nil {
		if err := h.service.Shutdown(ctx); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to stop metrics service: %w", err))
		}
	}
	h.config.Log.Info("op-harness stopped")
	return result
}

// Stopped implements the cliapp.Lifecycle interface.
func (h *Harness) Stopped() bool {
	return !h.running.Load()
}

// Result returns the outcome of the last run, nil before Start.
func (h *Harness) Result() *runner.RunResult {
	return h.result
}
