package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/coverage"
	"github.com/ethereum-optimism/infra/op-harness/exitcodes"
	"github.com/ethereum-optimism/infra/op-harness/logging"
	"github.com/ethereum-optimism/infra/op-harness/metrics"
	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RunResult captures the complete outcome of a run
type RunResult struct {
	RunID        string
	Sets         []*SetResult
	Tally        types.Tally
	Duration     time.Duration
	CoverageFile string // empty when no coverage was written
}

// Succeeded is true when no test failed or timed out
func (r *RunResult) Succeeded() bool {
	return r.Tally.Succeeded()
}

// ExitCode maps the result to the process exit code
func (r *RunResult) ExitCode() int {
	if r.Succeeded() {
		return exitcodes.Success
	}
	return exitcodes.TestFailure
}

// Config holds configuration for creating a new runner
type Config struct {
	Log            log.Logger
	Root           string          // test root, set directories are relative to it
	Manifest       *types.Manifest // tests to run
	Sink           logging.Sink    // receives report lines
	Platform       string          // OS identifier matched against skip tags
	StartFrom      string          // skip every test before this one
	SkipModules    []string        // skip tests whose name contains any of these
	DefaultTimeout time.Duration   // deadline of tests without one, 0 for none
	Runtime        string          // external runtime binary, empty runs tests in-process
	CmdPrefix      string          // prepended to the runtime command
	ShowOutput     bool            // print test output
	Stdout         io.Writer       // destination of test output, defaults to os.Stdout
	Coverage       bool            // write merged coverage after the run
	SkipExpected   bool            // do not compare output with expected files
}

// Runner runs the tests of a manifest sequentially
type Runner struct {
	cfg        Config
	log        log.Logger
	tracer     trace.Tracer
	supervisor *Supervisor
	workDir    string // working context of the set being run
}

// NewTestRunner creates a new test runner instance
func NewTestRunner(cfg Config) (*Runner, error) {
	if cfg.Root == "" {
		return nil, errors.New("test root is required")
	}
	if cfg.Manifest == nil {
		return nil, errors.New("manifest is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("report sink is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}

	cfg.Log.Debug("NewTestRunner()", "root", cfg.Root, "platform", cfg.Platform, "startFrom", cfg.StartFrom,
		"skipModules", cfg.SkipModules, "runtime", cfg.Runtime, "defaultTimeout", cfg.DefaultTimeout)

	return &Runner{
		cfg:        cfg,
		log:        cfg.Log,
		tracer:     otel.Tracer("test runner"),
		supervisor: &Supervisor{},
		workDir:    cfg.Root,
	}, nil
}

// run is the state of one Run call
type run struct {
	id       string
	ledger   *Ledger
	skip     *SkipEvaluator
	engine   engine
	coverage *coverage.Collector
}

func (r *Runner) newRun() *run {
	id := uuid.New().String()
	ledger := newLedger(r.log.New("run_id", id), r.cfg.Sink, r.supervisor, id)
	ledger.skipExpected = r.cfg.SkipExpected

	var stdout io.Writer
	if r.cfg.ShowOutput {
		stdout = r.cfg.Stdout
	}

	rn := &run{
		id:     id,
		ledger: ledger,
		skip:   NewSkipEvaluator(r.cfg.Platform, r.cfg.StartFrom, r.cfg.SkipModules),
	}
	if r.cfg.Runtime != "" {
		rn.engine = newProcessEngine(r.log, ledger, r.cfg.Runtime, r.cfg.CmdPrefix, stdout)
		return rn
	}
	if r.cfg.Coverage {
		rn.coverage = coverage.NewCollector()
	}
	rn.engine = &scriptEngine{
		log:      r.log,
		ledger:   ledger,
		platform: r.cfg.Platform,
		stdout:   stdout,
		coverage: rn.coverage,
	}
	return rn
}

// Run executes every set in manifest order, then emits the summary and
// writes coverage. Only a cancelled ctx or an I/O failure after the tests
// returns an error; test failures are part of the result.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	rn := r.newRun()
	r.log.Info("Running all tests", "run_id", rn.id, "sets", len(r.cfg.Manifest.Sets), "tests", r.cfg.Manifest.TotalTests())

	ctx, span := r.tracer.Start(ctx, "run", trace.WithAttributes(attribute.String("run_id", rn.id)))
	defer span.End()

	for _, set := range r.cfg.Manifest.Sets {
		if err := r.runSet(ctx, rn, set); err != nil {
			return nil, fmt.Errorf("running set %s: %w", set.Name, err)
		}
	}
	r.workDir = r.cfg.Root
	rn.ledger.Summary()

	result := &RunResult{
		RunID:    rn.id,
		Sets:     rn.ledger.Sets(),
		Tally:    rn.ledger.Tally(),
		Duration: time.Since(start),
	}

	if rn.coverage != nil && !rn.coverage.Empty() {
		path, err := rn.coverage.Write(r.workDir)
		if err != nil {
			return nil, err
		}
		result.CoverageFile = path
		r.log.Info("Wrote coverage", "file", path)
	}
	return result, nil
}

func (r *Runner) runSet(ctx context.Context, rn *run, set *types.TestSet) error {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("set %s", set.Name))
	defer span.End()

	r.workDir = filepath.Join(r.cfg.Root, set.Name)
	rn.ledger.BeginSet(set.Name)

	for _, tc := range set.Tests {
		if err := r.runTest(ctx, rn, set.Name, tc); err != nil {
			return fmt.Errorf("running test %s: %w", tc.Name, err)
		}
	}
	return nil
}

// runTest takes one test from pending to skipped or classified
func (r *Runner) runTest(ctx context.Context, rn *run, set string, tc *types.TestCase) error {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("test %s", tc.Name))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}

	a := &attempt{
		set:    set,
		dir:    r.workDir,
		test:   tc,
		start:  time.Now(),
		output: newOutputTail(defaultOutputTailBytes),
	}
	if skip, reason := rn.skip.ShouldSkip(tc); skip {
		rn.ledger.Report(a, types.TestStatusSkip, reason, nil)
		return nil
	}

	timeout := tc.TimeoutDuration()
	if timeout == 0 {
		timeout = r.cfg.DefaultTimeout
	}
	testCtx, cancel := r.supervisor.Arm(ctx, timeout)
	defer cancel()

	err := rn.engine.Execute(testCtx, a)
	for {
		var uncaught *UncaughtError
		if !errors.As(err, &uncaught) {
			break
		}
		r.log.Info("Test raised an uncaught error", "test", tc.Name, "err", uncaught.Err)
		metrics.RecordUncaught(set)
		err = uncaught.Resume(testCtx)
	}
	if err != nil {
		return err
	}

	if !tc.Finished() {
		rn.ledger.Report(a, types.TestStatusFail, "", errors.New("test ended without classification"))
	}
	return nil
}
