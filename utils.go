package harness

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// getResultString returns the table cell of a status
func getResultString(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "✓ pass"
	case types.TestStatusSkip:
		return "- skip"
	case types.TestStatusTimeout:
		return "⏱ timeout"
	default:
		return "✗ fail"
	}
}

// tallyStatus folds a tally into one status: any failure wins over a
// timeout, and a non-empty tally of skips only is a skip.
func tallyStatus(t types.Tally) types.TestStatus {
	switch {
	case t.Fail > 0:
		return types.TestStatusFail
	case t.Timeout > 0:
		return types.TestStatusTimeout
	case t.Total() > 0 && t.Skip == t.Total():
		return types.TestStatusSkip
	}
	return types.TestStatusPass
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// shortError keeps table cells on one readable line
func shortError(err error) string {
	if err == nil {
		return ""
	}
	msg, _, _ := strings.Cut(err.Error(), "\n")
	if len(msg) > 70 {
		return msg[:70] + "..."
	}
	return msg
}
