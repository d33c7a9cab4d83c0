package runner

import (
	"testing"

	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/stretchr/testify/assert"
)

func TestShouldSkip(t *testing.T) {
	tests := []struct {
		name    string
		modules []string
		test    types.TestCase
		skip    bool
		reason  string
	}{
		{
			name: "no rule",
			test: types.TestCase{Name: "test_a.js"},
		},
		{
			name:   "skip all",
			test:   types.TestCase{Name: "test_a.js", Skip: "all"},
			skip:   true,
			reason: "skip all",
		},
		{
			name:   "skip current platform with reason",
			test:   types.TestCase{Name: "test_a.js", Skip: "linux", Reason: "no fs"},
			skip:   true,
			reason: "no fs",
		},
		{
			name:   "platform in tag list",
			test:   types.TestCase{Name: "test_a.js", Skip: "nuttx,linux"},
			skip:   true,
			reason: "skip nuttx,linux",
		},
		{
			name: "other platform",
			test: types.TestCase{Name: "test_a.js", Skip: "nuttx"},
		},
		{
			name:   "lenient substring match",
			test:   types.TestCase{Name: "test_a.js", Skip: "linux-arm"},
			skip:   true,
			reason: "skip linux-arm",
		},
		{
			name:    "skip module",
			modules: []string{"https", "fs"},
			test:    types.TestCase{Name: "test_fs_read.js"},
			skip:    true,
			reason:  "skip-module fs",
		},
		{
			name:    "module takes precedence over tag",
			modules: []string{"net"},
			test:    types.TestCase{Name: "test_net.js", Skip: "all"},
			skip:    true,
			reason:  "skip-module net",
		},
		{
			name:    "blank modules ignored",
			modules: []string{"", " "},
			test:    types.TestCase{Name: "test_a.js"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSkipEvaluator("linux", "", tt.modules)
			skip, reason := s.ShouldSkip(&tt.test)
			assert.Equal(t, tt.skip, skip)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestShouldSkipStartFrom(t *testing.T) {
	s := NewSkipEvaluator("linux", "c.js", nil)
	names := []string{"a.js", "b.js", "c.js", "d.js", "c.js"}
	var skipped []bool
	for _, name := range names {
		skip, _ := s.ShouldSkip(&types.TestCase{Name: name})
		skipped = append(skipped, skip)
	}
	assert.Equal(t, []bool{true, true, false, false, false}, skipped)
	assert.Empty(t, s.startFrom)
}

func TestShouldSkipStartFromPrecedence(t *testing.T) {
	s := NewSkipEvaluator("linux", "b.js", []string{"a"})

	// not yet reached: skipped for start-from, whatever the other rules say
	skip, reason := s.ShouldSkip(&types.TestCase{Name: "x.js"})
	assert.True(t, skip)
	assert.Equal(t, skipReasonStartFrom, reason)

	// the cursor test itself is not subject to the other rules on this pass
	skip, _ = s.ShouldSkip(&types.TestCase{Name: "b.js", Skip: "all"})
	assert.False(t, skip)

	skip, reason = s.ShouldSkip(&types.TestCase{Name: "a.js"})
	assert.True(t, skip)
	assert.Equal(t, "skip-module a", reason)
}

func TestShouldSkipEmptyPlatform(t *testing.T) {
	s := NewSkipEvaluator("", "", nil)
	skip, _ := s.ShouldSkip(&types.TestCase{Name: "a.js", Skip: "nuttx"})
	assert.False(t, skip)
}
