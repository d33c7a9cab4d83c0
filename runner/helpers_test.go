package runner

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/logging"
	"github.com/ethereum-optimism/infra/op-harness/manifest"
	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
)

type message struct {
	text     string
	category logging.Category
}

// recordingSink keeps every reporter message
type recordingSink struct {
	mu       sync.Mutex
	messages []message
}

func (s *recordingSink) Message(msg string, category logging.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message{msg, category})
}

// lines returns the messages of the given categories
func (s *recordingSink) lines(categories ...logging.Category) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, m := range s.messages {
		for _, c := range categories {
			if m.category == c {
				out = append(out, m.text)
			}
		}
	}
	return out
}

func testLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

// writeTree creates a test root from relative path -> content
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return root
}

func newTestRunner(t *testing.T, root string, mod func(*Config)) (*Runner, *recordingSink) {
	t.Helper()
	m, err := manifest.Load(manifest.Config{Log: testLogger(), Root: root})
	require.NoError(t, err)

	sink := &recordingSink{}
	cfg := Config{
		Log:      testLogger(),
		Root:     root,
		Manifest: m,
		Sink:     sink,
		Platform: "linux",
	}
	if mod != nil {
		mod(&cfg)
	}
	r, err := NewTestRunner(cfg)
	require.NoError(t, err)
	return r, sink
}

// newAttempt prepares a single test in dir with a fresh ledger
func newAttempt(dir string, tc *types.TestCase) (*attempt, *Ledger, *recordingSink) {
	sink := &recordingSink{}
	ledger := newLedger(testLogger(), sink, &Supervisor{}, "test-run")
	ledger.BeginSet("set")
	a := &attempt{
		set:    "set",
		dir:    dir,
		test:   tc,
		start:  time.Now(),
		output: newOutputTail(0),
	}
	return a, ledger, sink
}

func onlyResult(t *testing.T, l *Ledger) *types.TestResult {
	t.Helper()
	sets := l.Sets()
	require.Len(t, sets, 1)
	require.Len(t, sets[0].Tests, 1)
	return sets[0].Tests[0]
}
