package metrics

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name: "simple error",
			err:  errors.New("test error"),
		},
		{
			name: "error with special chars",
			err:  errors.New("test@error#123"),
		},
		{
			name: "error with multiple spaces",
			err:  errors.New("test   error"),
		},
	}

	validLabelRegex := regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errToLabel(tt.err)
			assert.Regexp(t, validLabelRegex, result)
		})
	}
}

func TestRecordErrorDetails(t *testing.T) {
	RecordErrorDetails("test", nil)
	RecordErrorDetails("test", errors.New("sample error"))
}

func gathered(t *testing.T) map[string]int {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	out := make(map[string]int)
	for _, mf := range families {
		out[mf.GetName()] = len(mf.GetMetric())
	}
	return out
}

func TestRecordTest(t *testing.T) {
	RecordTest("run1", "basic", types.TestStatusPass, time.Second)
	RecordTest("run1", "basic", types.TestStatusSkip, 0)
	RecordTest("run1", "basic", types.TestStatus("bogus"), 0)

	families := gathered(t)
	assert.Equal(t, 2, families["harness_tests_total"])
	assert.Equal(t, 1, families["harness_test_duration_seconds"])
}

func TestRecordRun(t *testing.T) {
	RecordRun("run2", types.Tally{Pass: 2, Fail: 1}, time.Minute)

	families := gathered(t)
	assert.GreaterOrEqual(t, families["harness_run_results"], 4)
	assert.GreaterOrEqual(t, families["harness_run_duration_seconds"], 1)
}

func TestRecordUncaught(t *testing.T) {
	RecordUncaught("run_fail")
	RecordUncaught("run_fail")

	assert.Equal(t, 1, gathered(t)["harness_uncaught_errors_total"])
}
