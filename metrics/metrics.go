package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "harness"
)

var (
	Debug                bool = true
	validResults              = []types.TestStatus{types.TestStatusPass, types.TestStatusFail, types.TestStatusSkip, types.TestStatusTimeout}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	testsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_total",
		Help:      "Count of classified tests",
	}, []string{
		"run_id",
		"set",
		"result",
	})

	testDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "test_duration_seconds",
		Help:      "Duration of executed tests",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{
		"set",
		"result",
	})

	uncaughtTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "uncaught_errors_total",
		Help:      "Count of uncaught errors raised by tests declared to raise them",
	}, []string{
		"set",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Tests per result of a run",
	}, []string{
		"run_id",
		"result",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of a run",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordTest counts one classified test. Skipped tests carry no duration.
func RecordTest(runID string, set string, result types.TestStatus, duration time.Duration) {
	if !isValidResult(result) {
		log.Error("RecordTest - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "tests_total",
			"run_id", runID,
			"set", set,
			"result", result)
	}
	testsTotal.WithLabelValues(runID, set, string(result)).Inc()
	if result != types.TestStatusSkip {
		testDuration.WithLabelValues(set, string(result)).Observe(duration.Seconds())
	}
}

// RecordUncaught counts an uncaught error handed back to the host
func RecordUncaught(set string) {
	uncaughtTotal.WithLabelValues(set).Inc()
}

// RecordRun sets the final tally of a run
func RecordRun(runID string, tally types.Tally, duration time.Duration) {
	runResults.WithLabelValues(runID, string(types.TestStatusPass)).Set(float64(tally.Pass))
	runResults.WithLabelValues(runID, string(types.TestStatusFail)).Set(float64(tally.Fail))
	runResults.WithLabelValues(runID, string(types.TestStatusSkip)).Set(float64(tally.Skip))
	runResults.WithLabelValues(runID, string(types.TestStatusTimeout)).Set(float64(tally.Timeout))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func isValidResult(result types.TestStatus) bool {
	return slices.Contains(validResults, result)
}
