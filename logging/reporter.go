// Package logging prints the per-test status lines of a run to the console
// and mirrors them into an optional output file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"
	"github.com/fatih/color"
)

// Category classifies a reporter message
type Category string

const (
	CategoryPass    Category = "pass"
	CategoryFail    Category = "fail"
	CategorySkip    Category = "skip"
	CategoryTimeout Category = "timeout"
	CategorySummary Category = "summary"
)

// Sink accepts (message, category) pairs
type Sink interface {
	Message(msg string, category Category)
}

// Config configures a Reporter
type Config struct {
	Log        log.Logger
	Out        io.Writer // console, defaults to os.Stdout
	Quiet      bool      // only failures, timeouts and the summary reach the console
	OutputFile string    // mirror file, empty disables it
	NoColor    bool
}

// Reporter is the console and file sink of a run. It is safe for concurrent use.
type Reporter struct {
	cfg    Config
	mu     sync.Mutex
	file   *os.File
	colors map[Category]*color.Color
}

var _ Sink = (*Reporter)(nil)

// NewReporter creates a reporter, truncating the output file if one is configured
func NewReporter(cfg Config) (*Reporter, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}

	r := &Reporter{
		cfg: cfg,
		colors: map[Category]*color.Color{
			CategoryPass:    color.New(color.FgGreen, color.Bold),
			CategoryFail:    color.New(color.FgRed, color.Bold),
			CategoryTimeout: color.New(color.FgRed, color.Bold),
			CategorySkip:    color.New(color.FgYellow, color.Bold),
			CategorySummary: color.New(color.FgBlue, color.Bold),
		},
	}
	if cfg.NoColor {
		for _, c := range r.colors {
			c.DisableColor()
		}
	}

	if cfg.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputFile), 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
		f, err := os.Create(cfg.OutputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", cfg.OutputFile, err)
		}
		r.file = f
	}
	return r, nil
}

// Message prints msg in the colour of its category. In quiet mode pass and
// skip lines are kept out of the console but still reach the output file.
func (r *Reporter) Message(msg string, category Category) {
	r.mu.Lock()
	defer r.mu.Unlock()

	line := msg
	if c, ok := r.colors[category]; ok {
		line = c.Sprint(msg)
	}

	if !r.cfg.Quiet || keptWhenQuiet(category) {
		fmt.Fprintln(r.cfg.Out, line)
	}
	if r.file != nil {
		if _, err := fmt.Fprintln(r.file, stripansi.Strip(line)); err != nil {
			r.cfg.Log.Warn("Failed to write output file", "file", r.cfg.OutputFile, "err", err)
		}
	}
}

// Close flushes and closes the output file
func (r *Reporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func keptWhenQuiet(category Category) bool {
	switch category {
	case CategoryFail, CategoryTimeout, CategorySummary:
		return true
	}
	return false
}
