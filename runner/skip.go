package runner

import (
	"fmt"
	"strings"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

// SkipEvaluator decides whether a test is skipped. It holds the start-from
// cursor, which is cleared once the named test is reached, so a single
// evaluator serves exactly one run.
type SkipEvaluator struct {
	platform  string
	startFrom string
	modules   []string
}

// NewSkipEvaluator creates an evaluator. Empty module names are dropped.
func NewSkipEvaluator(platform, startFrom string, modules []string) *SkipEvaluator {
	var kept []string
	for _, m := range modules {
		if m = strings.TrimSpace(m); m != "" {
			kept = append(kept, m)
		}
	}
	return &SkipEvaluator{
		platform:  platform,
		startFrom: startFrom,
		modules:   kept,
	}
}

// ShouldSkip applies the skip rules in order and returns the skip reason.
// Matching the start-from cursor clears it.
func (s *SkipEvaluator) ShouldSkip(tc *types.TestCase) (bool, string) {
	if s.startFrom != "" {
		if s.startFrom != tc.Name {
			return true, skipReasonStartFrom
		}
		s.startFrom = ""
		return false, ""
	}

	for _, module := range s.modules {
		if strings.Contains(tc.Name, module) {
			return true, fmt.Sprintf("skip-module %s", module)
		}
	}

	// Substring matching: a tag list such as "linux,darwin" matches both.
	tag := string(tc.Skip)
	if tag != "" && (strings.Contains(tag, types.SkipAll) || (s.platform != "" && strings.Contains(tag, s.platform))) {
		if tc.Reason != "" {
			return true, tc.Reason
		}
		return true, fmt.Sprintf("skip %s", tag)
	}
	return false, ""
}
