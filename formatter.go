package harness

import (
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-harness/runner"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// ResultFormatter is responsible for formatting and displaying run results.
type ResultFormatter interface {
	FormatResults(result *runner.RunResult) error
}

// ConsoleResultFormatter renders a run as a table.
type ConsoleResultFormatter struct {
	logger log.Logger
	out    io.Writer
}

// NewConsoleResultFormatter creates a formatter writing to out, os.Stdout when nil.
func NewConsoleResultFormatter(logger log.Logger, out io.Writer) *ConsoleResultFormatter {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleResultFormatter{
		logger: logger,
		out:    out,
	}
}

// FormatResults prints one row per test set followed by its tests.
func (f *ConsoleResultFormatter) FormatResults(result *runner.RunResult) error {
	if result == nil {
		return fmt.Errorf("no result to format")
	}
	f.logger.Debug("Printing results...", "run_id", result.RunID)

	t := table.NewWriter()
	t.SetOutputMirror(f.out)
	t.SetTitle(fmt.Sprintf("Test Results (%s)", formatDuration(result.Duration)))
	t.AppendHeader(table.Row{
		"Type", "ID", "Duration", "Tests", "Passed", "Failed", "Timeout", "Skipped", "Status", "Detail",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "ID", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Timeout", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Detail", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, set := range result.Sets {
		t.AppendRow(table.Row{
			"Set",
			set.Name,
			formatDuration(set.Duration),
			"-",
			set.Tally.Pass,
			set.Tally.Fail,
			set.Tally.Timeout,
			set.Tally.Skip,
			getResultString(tallyStatus(set.Tally)),
			"",
		})

		for i, test := range set.Tests {
			prefix := "├─"
			if i == len(set.Tests)-1 {
				prefix = "└─"
			}
			detail := shortError(test.Error)
			if test.Status == types.TestStatusSkip {
				detail = test.Reason
			}
			t.AppendRow(table.Row{
				"",
				fmt.Sprintf("%s %s", prefix, test.Name),
				formatDuration(test.Duration),
				"1",
				boolToInt(test.Status == types.TestStatusPass),
				boolToInt(test.Status == types.TestStatusFail),
				boolToInt(test.Status == types.TestStatusTimeout),
				boolToInt(test.Status == types.TestStatusSkip),
				getResultString(test.Status),
				detail,
			})
		}
		t.AppendSeparator()
	}

	status := tallyStatus(result.Tally)
	switch status {
	case types.TestStatusPass:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.TestStatusSkip:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(result.Duration),
		result.Tally.Total(),
		result.Tally.Pass,
		result.Tally.Fail,
		result.Tally.Timeout,
		result.Tally.Skip,
		getResultString(status),
		"",
	})

	t.Render()

	if result.CoverageFile != "" {
		fmt.Fprintf(f.out, "Coverage written to %s\n", result.CoverageFile)
	}
	return nil
}
