package harness

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-harness/flags"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/log"
)

// Config holds the application configuration
type Config struct {
	Root           string        // absolute test root
	ManifestFile   string        // manifest file, relative to Root unless absolute
	StartFrom      string        // skip every test before this one
	SkipModules    []string      // skip tests whose name contains one of these
	Quiet          bool          // keep pass and skip lines off the console
	OutputFile     string        // absolute path of the report mirror, empty for none
	Coverage       bool          // write merged coverage after the run
	DefaultTimeout time.Duration // deadline of tests that declare none, 0 for none
	Platform       string        // OS identifier matched against skip tags
	Runtime        string        // absolute path of an external runtime, empty runs tests in-process
	CmdPrefix      string        // prepended to the runtime command
	ShowOutput     bool          // print test output
	SkipExpected   bool          // do not compare output with expected files
	NoColor        bool
	Metrics        opmetrics.CLIConfig
	Out            io.Writer // console, defaults to os.Stdout
	Log            log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	root := ctx.String(flags.Root.Name)
	if root == "" {
		return nil, errors.New("test root is required")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for test root '%s': %w", root, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("invalid test root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("test root %s is not a directory", absRoot)
	}

	quiet, err := flags.ParseYesNo(ctx.String(flags.Quiet.Name))
	if err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", flags.Quiet.Name, err)
	}
	withCoverage, err := flags.ParseYesNo(ctx.String(flags.OutputCoverage.Name))
	if err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", flags.OutputCoverage.Name, err)
	}

	timeout := ctx.Duration(flags.Timeout.Name)
	if timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative, got %s", timeout)
	}

	outputFile := ctx.String(flags.OutputFile.Name)
	if outputFile != "" && !filepath.IsAbs(outputFile) {
		outputFile = filepath.Join(absRoot, outputFile)
	}

	runtimeBin := ctx.String(flags.Runtime.Name)
	if runtimeBin != "" {
		resolved, err := exec.LookPath(runtimeBin)
		if err != nil {
			return nil, fmt.Errorf("runtime %q not found: %w", runtimeBin, err)
		}
		if runtimeBin, err = filepath.Abs(resolved); err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for runtime '%s': %w", resolved, err)
		}
	}
	cmdPrefix := ctx.String(flags.CmdPrefix.Name)
	if cmdPrefix != "" && runtimeBin == "" {
		return nil, fmt.Errorf("--%s requires --%s", flags.CmdPrefix.Name, flags.Runtime.Name)
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	return &Config{
		Root:           absRoot,
		ManifestFile:   ctx.String(flags.Manifest.Name),
		StartFrom:      ctx.String(flags.StartFrom.Name),
		SkipModules:    flags.SplitList(ctx.String(flags.SkipModule.Name)),
		Quiet:          quiet,
		OutputFile:     outputFile,
		Coverage:       withCoverage,
		DefaultTimeout: timeout,
		Platform:       ctx.String(flags.Platform.Name),
		Runtime:        runtimeBin,
		CmdPrefix:      cmdPrefix,
		ShowOutput:     ctx.Bool(flags.ShowOutput.Name),
		SkipExpected:   ctx.Bool(flags.SkipExpected.Name),
		NoColor:        ctx.Bool(flags.NoColor.Name),
		Metrics:        metricsCfg,
		Log:            log,
	}, nil
}
