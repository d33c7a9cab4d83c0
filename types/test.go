// Package types contains shared types used across the op-harness test driver
package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TestStatus represents the terminal classification of a test
type TestStatus string

const (
	TestStatusPass    TestStatus = "pass"
	TestStatusFail    TestStatus = "fail"
	TestStatusSkip    TestStatus = "skip"
	TestStatusTimeout TestStatus = "timeout"
)

// Label returns the upper-case form used in report lines, e.g. "PASS"
func (s TestStatus) Label() string {
	return strings.ToUpper(string(s))
}

// SkipAll is the skip tag that disables a test on every platform
const SkipAll = "all"

// SkipTag holds the skip condition of a test. The manifest may declare it as a
// single string ("all", "linux") or as a list of tags, which is joined with ",".
type SkipTag string

// UnmarshalJSON accepts either a string or an array of strings
func (s *SkipTag) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = SkipTag(single)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("skip must be a string or a list of strings: %w", err)
	}
	*s = SkipTag(strings.Join(list, ","))
	return nil
}

// UnmarshalYAML accepts either a scalar or a sequence of scalars
func (s *SkipTag) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*s = SkipTag(value.Value)
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return fmt.Errorf("skip must be a list of strings: %w", err)
		}
		*s = SkipTag(strings.Join(list, ","))
		return nil
	default:
		return fmt.Errorf("skip must be a string or a list of strings, line %d", value.Line)
	}
}

// TestCase is a single manifest entry
type TestCase struct {
	Name         string  `json:"name" yaml:"name"`
	Timeout      float64 `json:"timeout,omitempty" yaml:"timeout,omitempty"` // seconds, 0 means no deadline
	Skip         SkipTag `json:"skip,omitempty" yaml:"skip,omitempty"`
	Reason       string  `json:"reason,omitempty" yaml:"reason,omitempty"`
	ExpectedFail bool    `json:"expected-fail,omitempty" yaml:"expected-fail,omitempty"`
	Uncaught     bool    `json:"uncaught,omitempty" yaml:"uncaught,omitempty"`
	Expected     string  `json:"expected,omitempty" yaml:"expected,omitempty"` // file holding the exact expected output, relative to the set

	finished bool
}

// MaxTimeout is the largest declared timeout, in seconds, that is honoured;
// larger values are clamped to it.
const MaxTimeout = float64(math.MaxInt64 / int64(time.Second))

// TimeoutDuration converts the declared timeout into a time.Duration
func (tc *TestCase) TimeoutDuration() time.Duration {
	if tc.Timeout <= 0 || tc.Timeout != tc.Timeout {
		return 0
	}
	if tc.Timeout >= MaxTimeout {
		return time.Duration(MaxTimeout) * time.Second
	}
	return time.Duration(tc.Timeout * float64(time.Second))
}

// Finished reports whether the test has been classified
func (tc *TestCase) Finished() bool {
	return tc.finished
}

// MarkFinished flips finished from false to true. It returns false if the test
// was already classified, in which case nothing changes.
func (tc *TestCase) MarkFinished() bool {
	if tc.finished {
		return false
	}
	tc.finished = true
	return true
}

// TestSet is a named group of tests sharing a working directory
type TestSet struct {
	Name  string
	Tests []*TestCase
}

// Manifest is the ordered list of test sets of a run
type Manifest struct {
	Sets []*TestSet
}

// TotalTests returns the number of test entries across all sets
func (m *Manifest) TotalTests() int {
	total := 0
	for _, set := range m.Sets {
		total += len(set.Tests)
	}
	return total
}

// TestResult captures the outcome of a single test
type TestResult struct {
	Set      string
	Name     string
	Status   TestStatus
	Reason   string        // skip reason
	Error    error         // failure cause, nil for passes and skips
	Duration time.Duration // time from start of execution to classification
	Stdout   string        // captured output for failing tests
}

// Tally counts classified tests per status
type Tally struct {
	Pass    int
	Fail    int
	Skip    int
	Timeout int
}

// Add increments the counter of the given status
func (t *Tally) Add(status TestStatus) {
	switch status {
	case TestStatusPass:
		t.Pass++
	case TestStatusFail:
		t.Fail++
	case TestStatusSkip:
		t.Skip++
	case TestStatusTimeout:
		t.Timeout++
	}
}

// Total returns the number of classified tests
func (t Tally) Total() int {
	return t.Pass + t.Fail + t.Skip + t.Timeout
}

// Succeeded is true when nothing failed and nothing timed out
func (t Tally) Succeeded() bool {
	return t.Fail == 0 && t.Timeout == 0
}

func (t Tally) String() string {
	return fmt.Sprintf("pass=%d fail=%d skip=%d timeout=%d", t.Pass, t.Fail, t.Skip, t.Timeout)
}
