package flags

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "OP_HARNESS"

const (
	Yes = "yes"
	No  = "no"
)

// ParseYesNo parses the value of a yes/no flag
func ParseYesNo(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case Yes:
		return true, nil
	case No, "":
		return false, nil
	}
	return false, fmt.Errorf("value must be one of: %s, %s (got %q)", Yes, No, v)
}

func validateYesNo(_ *cli.Context, v string) error {
	_, err := ParseYesNo(v)
	return err
}

var (
	Root = &cli.StringFlag{
		Name:    "root",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ROOT"),
		Usage:   "Test root directory holding the manifest and the test set directories",
	}
	Manifest = &cli.StringFlag{
		Name:    "manifest",
		Value:   "testsets.json",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MANIFEST"),
		Usage:   "Manifest file, relative to the test root (JSON or YAML)",
	}
	StartFrom = &cli.StringFlag{
		Name:    "start-from",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "START_FROM"),
		Usage:   "Skip every test before the named one",
	}
	SkipModule = &cli.StringFlag{
		Name:    "skip-module",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SKIP_MODULE"),
		Usage:   "Comma separated module names; tests whose name contains one are skipped",
	}
	Quiet = &cli.StringFlag{
		Name:    "quiet",
		Value:   No,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "QUIET"),
		Usage:   "Only print failures, timeouts and the summary (yes/no)",
		Action:  validateYesNo,
	}
	OutputFile = &cli.StringFlag{
		Name:    "output-file",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "OUTPUT_FILE"),
		Usage:   "Mirror report lines into this file, relative to the test root",
	}
	OutputCoverage = &cli.StringFlag{
		Name:    "output-coverage",
		Value:   No,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "OUTPUT_COVERAGE"),
		Usage:   "Write collected JavaScript coverage to .coverage_output/js_coverage.data (yes/no)",
		Action:  validateYesNo,
	}
	Timeout = &cli.DurationFlag{
		Name:    "timeout",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TIMEOUT"),
		Usage:   "Deadline for tests that declare no timeout (e.g. '5m'). 0 disables it",
	}
	Platform = &cli.StringFlag{
		Name:    "platform",
		Value:   runtime.GOOS,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PLATFORM"),
		Usage:   "OS identifier matched against the skip tags of tests",
	}
	Runtime = &cli.StringFlag{
		Name:    "runtime",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUNTIME"),
		Usage:   "Run each test as a child process of this runtime binary instead of the embedded interpreter",
	}
	CmdPrefix = &cli.StringFlag{
		Name:    "cmd-prefix",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CMD_PREFIX"),
		Usage:   "Command prepended to the runtime invocation (e.g. 'valgrind --quiet')",
	}
	ShowOutput = &cli.BoolFlag{
		Name:    "show-output",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHOW_OUTPUT"),
		Usage:   "Print the output of the tests",
	}
	SkipExpected = &cli.BoolFlag{
		Name:    "skip-expected",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SKIP_EXPECTED"),
		Usage:   "Do not compare test output with the expected output files",
	}
	NoColor = &cli.BoolFlag{
		Name:    "no-color",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "NO_COLOR"),
		Usage:   "Disable coloured report lines",
	}
)

var requiredFlags = []cli.Flag{
	Root,
}

var optionalFlags = []cli.Flag{
	Manifest,
	StartFrom,
	SkipModule,
	Quiet,
	OutputFile,
	OutputCoverage,
	Timeout,
	Platform,
	Runtime,
	CmdPrefix,
	ShowOutput,
	SkipExpected,
	NoColor,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}

// SplitList splits a comma separated flag value, dropping blanks
func SplitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
