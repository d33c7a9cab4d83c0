package coverage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileRecord(s0 int64, branch []interface{}) map[string]interface{} {
	return map[string]interface{}{
		"path":         "lib/a.js",
		"statementMap": map[string]interface{}{"0": map[string]interface{}{"line": int64(3)}},
		"s":            map[string]interface{}{"0": s0},
		"f":            map[string]interface{}{},
		"b":            map[string]interface{}{"0": branch},
	}
}

func TestCollectorMerge(t *testing.T) {
	c := NewCollector()
	assert.True(t, c.Empty())

	c.Add(map[string]interface{}{"lib/a.js": fileRecord(1, []interface{}{int64(1), int64(0)})})
	c.Add(map[string]interface{}{
		"lib/a.js": fileRecord(2, []interface{}{int64(0), int64(4)}),
		"lib/b.js": map[string]interface{}{"s": map[string]interface{}{"0": int64(1)}},
	})
	require.False(t, c.Empty())

	data := c.Data()
	a := data["lib/a.js"].(map[string]interface{})
	assert.Equal(t, float64(3), a["s"].(map[string]interface{})["0"])
	assert.Equal(t, []interface{}{float64(1), float64(4)}, a["b"].(map[string]interface{})["0"])
	// source maps are not summed
	line := a["statementMap"].(map[string]interface{})["0"].(map[string]interface{})["line"]
	assert.Equal(t, int64(3), line)
	assert.Contains(t, data, "lib/b.js")
}

func TestCollectorShapeMismatch(t *testing.T) {
	c := NewCollector()
	c.Add(map[string]interface{}{"a.js": map[string]interface{}{"b": map[string]interface{}{"0": []interface{}{int64(1)}}}})
	c.Add(map[string]interface{}{"a.js": map[string]interface{}{"b": map[string]interface{}{"0": []interface{}{int64(1), int64(2)}}}})

	b := c.Data()["a.js"].(map[string]interface{})["b"].(map[string]interface{})
	assert.Equal(t, []interface{}{int64(1), int64(2)}, b["0"])
}

func TestCollectorWrite(t *testing.T) {
	root := t.TempDir()
	c := NewCollector()
	c.Add(map[string]interface{}{"a.js": map[string]interface{}{"s": map[string]interface{}{"0": int64(2)}}})

	path, err := c.Write(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ".coverage_output", "js_coverage.data"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]map[string]map[string]int
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, 2, decoded["a.js"]["s"]["0"])
}
