// Package coverage merges the istanbul style __coverage__ objects left behind
// by instrumented tests and writes the combined data after a run.
package coverage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	// OutputDir is created under the run root
	OutputDir = ".coverage_output"
	// OutputFile is the file name of the serialized coverage object
	OutputFile = "js_coverage.data"
)

// counters are the per-file hit counters of an istanbul file record; every
// other field describes the source and is kept from the first record seen.
var counters = map[string]bool{"s": true, "f": true, "b": true}

// Collector accumulates coverage across tests. It is safe for concurrent use.
type Collector struct {
	mu   sync.Mutex
	data map[string]interface{}
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{data: make(map[string]interface{})}
}

// Add merges the coverage object of one test: records for unseen files are
// copied, counters of known files are summed.
func (c *Collector) Add(cov map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for file, record := range cov {
		existing, ok := c.data[file].(map[string]interface{})
		incoming, isMap := record.(map[string]interface{})
		if !ok || !isMap {
			c.data[file] = record
			continue
		}
		for key, value := range incoming {
			if !counters[key] {
				if _, seen := existing[key]; !seen {
					existing[key] = value
				}
				continue
			}
			existing[key] = sum(existing[key], value)
		}
	}
}

// Empty is true when no test reported coverage
func (c *Collector) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data) == 0
}

// Data returns the merged coverage object
func (c *Collector) Data() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

// Path returns the coverage file location for a run root
func Path(root string) string {
	return filepath.Join(root, OutputDir, OutputFile)
}

// Write serializes the merged object as JSON to Path(root), creating the
// output directory if needed.
func (c *Collector) Write(root string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := Path(root)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create coverage directory: %w", err)
	}
	data, err := json.Marshal(c.data)
	if err != nil {
		return "", fmt.Errorf("failed to encode coverage: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write coverage file: %w", err)
	}
	return path, nil
}

// sum adds counter trees: numbers are added, arrays element-wise, objects
// key-wise. On a shape mismatch the incoming value wins.
func sum(a, b interface{}) interface{} {
	switch bv := b.(type) {
	case map[string]interface{}:
		av, ok := a.(map[string]interface{})
		if !ok {
			return bv
		}
		for k, v := range bv {
			if prev, seen := av[k]; seen {
				av[k] = sum(prev, v)
			} else {
				av[k] = v
			}
		}
		return av
	case []interface{}:
		av, ok := a.([]interface{})
		if !ok || len(av) != len(bv) {
			return bv
		}
		for i := range bv {
			av[i] = sum(av[i], bv[i])
		}
		return av
	}

	x, okA := number(a)
	y, okB := number(b)
	if !okA || !okB {
		return b
	}
	return x + y
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
