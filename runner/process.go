package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/ethereum-optimism/infra/op-harness/host"
	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum/go-ethereum/log"
)

var _ engine = (*processEngine)(nil)

// processEngine runs every test as a child process of an external runtime
// binary, in the directory of its set. The exit code is the test result.
type processEngine struct {
	log     log.Logger
	ledger  *Ledger
	runtime string
	prefix  []string
	stdout  io.Writer // receives the output of each test when set
}

func newProcessEngine(lgr log.Logger, ledger *Ledger, runtime, cmdPrefix string, stdout io.Writer) *processEngine {
	return &processEngine{
		log:     lgr,
		ledger:  ledger,
		runtime: runtime,
		prefix:  strings.Fields(cmdPrefix),
		stdout:  stdout,
	}
}

func (e *processEngine) command(ctx context.Context, a *attempt) *exec.Cmd {
	args := append([]string{}, e.prefix...)
	args = append(args, e.runtime, a.test.Name)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = a.dir
	cmd.Env = telemetry.InstrumentEnvironment(ctx, os.Environ())
	cmd.Stdout = a.output
	cmd.Stderr = a.output
	// a killed runtime may leave children holding the output pipe
	cmd.WaitDelay = processWaitDelay
	return cmd
}

func (e *processEngine) Execute(ctx context.Context, a *attempt) error {
	cmd := e.command(ctx, a)
	e.log.Debug("Running test process", "test", a.test.Name, "cmd", cmd.String(), "dir", cmd.Dir)

	runErr := cmd.Run()
	if e.stdout != nil {
		if _, err := e.stdout.Write(a.output.Bytes()); err != nil {
			e.log.Warn("Failed to print test output", "test", a.test.Name, "err", err)
		}
	}

	if timedOut(ctx, nil) {
		e.ledger.Report(a, types.TestStatusTimeout, "", ErrTestTimeout)
		return nil
	}
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		e.ledger.Classify(a, nil)
	case errors.As(runErr, &exitErr):
		e.ledger.Classify(a, host.ExitResult(exitErr.ExitCode()))
	default:
		e.ledger.Report(a, types.TestStatusFail, "", fmt.Errorf("failed to run test: %w", runErr))
	}
	return nil
}
