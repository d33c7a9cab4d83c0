package runner

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/logging"
	"github.com/ethereum-optimism/infra/op-harness/metrics"
	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/ethereum/go-ethereum/log"
)

// errUnexpectedSuccess is the failure of an expected-fail test that succeeded
var errUnexpectedSuccess = errors.New("test was expected to fail but succeeded")

// errOutputMismatch fails a test whose output differs from its expected file
var errOutputMismatch = errors.New("output does not match expected output")

// attempt is the state of the test currently being run
type attempt struct {
	set    string
	dir    string // working context of the set
	test   *types.TestCase
	start  time.Time
	output *outputTail
}

// SetResult is the outcome of one test set
type SetResult struct {
	Name     string
	Tally    types.Tally
	Tests    []*types.TestResult
	Duration time.Duration
}

// Ledger classifies tests and keeps the tallies of a run
type Ledger struct {
	log        log.Logger
	sink       logging.Sink
	supervisor *Supervisor
	runID      string

	skipExpected bool // do not compare output with expected files

	tally   types.Tally
	sets    []*SetResult
	current *SetResult
}

func newLedger(lgr log.Logger, sink logging.Sink, supervisor *Supervisor, runID string) *Ledger {
	return &Ledger{
		log:        lgr,
		sink:       sink,
		supervisor: supervisor,
		runID:      runID,
	}
}

// BeginSet starts collecting results under a new set and emits its header
func (l *Ledger) BeginSet(name string) {
	l.endSet()
	l.current = &SetResult{Name: name}
	l.sets = append(l.sets, l.current)
	l.sink.Message("", logging.CategorySummary)
	l.sink.Message(fmt.Sprintf("[%s]", name), logging.CategorySummary)
}

func (l *Ledger) endSet() {
	if l.current == nil {
		return
	}
	for _, res := range l.current.Tests {
		l.current.Duration += res.Duration
	}
	l.current = nil
}

// Report is the single classification point of a test: it disarms the
// deadline, marks the test finished, counts it and emits its line. Reports
// for an already finished test are dropped.
func (l *Ledger) Report(a *attempt, status types.TestStatus, reason string, err error) {
	l.supervisor.Disarm()
	if !a.test.MarkFinished() {
		l.log.Warn("Ignoring report for finished test", "test", a.test.Name, "status", status, "err", err)
		return
	}

	l.tally.Add(status)
	res := &types.TestResult{
		Set:    a.set,
		Name:   a.test.Name,
		Status: status,
		Reason: reason,
		Error:  err,
	}
	if status != types.TestStatusSkip {
		res.Duration = time.Since(a.start)
	}
	if status == types.TestStatusFail || status == types.TestStatusTimeout {
		res.Stdout = a.output.snippet(outputSnippetBytes)
	}
	if l.current != nil {
		l.current.Tally.Add(status)
		l.current.Tests = append(l.current.Tests, res)
	}

	msg := fmt.Sprintf("%s: %s", status.Label(), a.test.Name)
	if status == types.TestStatusSkip && reason != "" {
		msg += fmt.Sprintf("   (Reason: %s)", reason)
	}
	l.sink.Message(msg, logging.Category(status))
	l.log.Debug("Test classified", "set", a.set, "test", a.test.Name, "status", status, "duration", res.Duration, "err", err)
	metrics.RecordTest(l.runID, a.set, status, res.Duration)
}

// Classify applies the pass/fail truth table: a test passes when it failed
// exactly if it was expected to fail, and its output matches the expected
// file if it declares one.
func (l *Ledger) Classify(a *attempt, err error) {
	if (err != nil) == a.test.ExpectedFail {
		if outErr := l.checkOutput(a); outErr != nil {
			l.Report(a, types.TestStatusFail, "", outErr)
			return
		}
		l.Report(a, types.TestStatusPass, "", nil)
		return
	}
	if err == nil {
		err = errUnexpectedSuccess
	}
	l.Report(a, types.TestStatusFail, "", err)
}

func (l *Ledger) checkOutput(a *attempt) error {
	if a.test.Expected == "" || l.skipExpected {
		return nil
	}
	want, err := os.ReadFile(filepath.Join(a.dir, a.test.Expected))
	if err != nil {
		return fmt.Errorf("failed to read expected output: %w", err)
	}
	var got []byte
	if a.output != nil {
		if a.output.Truncated() {
			return fmt.Errorf("%w: output exceeded %d bytes", errOutputMismatch, defaultOutputTailBytes)
		}
		got = a.output.Bytes()
	}
	if !bytes.Equal(got, want) {
		return errOutputMismatch
	}
	return nil
}

// Summary emits the final counts
func (l *Ledger) Summary() {
	l.endSet()
	l.sink.Message("", logging.CategorySummary)
	l.sink.Message("Finished with all tests", logging.CategorySummary)
	l.sink.Message(fmt.Sprintf("PASS:    %d", l.tally.Pass), logging.CategorySummary)
	l.sink.Message(fmt.Sprintf("FAIL:    %d", l.tally.Fail), logging.CategorySummary)
	l.sink.Message(fmt.Sprintf("TIMEOUT: %d", l.tally.Timeout), logging.CategorySummary)
	l.sink.Message(fmt.Sprintf("SKIP:    %d", l.tally.Skip), logging.CategorySummary)
}

// Tally returns the counts so far
func (l *Ledger) Tally() types.Tally {
	return l.tally
}

// Sets returns the per-set results in run order
func (l *Ledger) Sets() []*SetResult {
	return l.sets
}
