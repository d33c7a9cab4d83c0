// Package manifest loads the test set description of a run.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

// DefaultFile is the manifest file name looked up in the test root
const DefaultFile = "testsets.json"

var schemaLoader = gojsonschema.NewStringLoader(schema)

// Config contains manifest loading configuration
type Config struct {
	Log  log.Logger
	Root string // test root directory
	File string // manifest file name, relative to Root unless absolute
}

// Path returns the manifest location described by the config
func (c Config) Path() string {
	file := c.File
	if file == "" {
		file = DefaultFile
	}
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(c.Root, file)
}

// Load reads and validates the manifest. Any error is fatal for the run: a
// manifest is either loaded completely or not at all.
func Load(cfg Config) (*types.Manifest, error) {
	if cfg.Root == "" {
		return nil, errors.New("test root is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	path := cfg.Path()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m *types.Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		m, err = parseYAML(data)
	default:
		m, err = parseJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	if err := checkUniqueNames(m); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}

	cfg.Log.Debug("Manifest loaded", "path", path, "sets", len(m.Sets), "tests", m.TotalTests())
	return m, nil
}

// parseJSON validates the document against the schema, then walks the top
// level object in document order so that test sets run as declared.
func parseJSON(data []byte) (*types.Manifest, error) {
	if err := validate(gojsonschema.NewBytesLoader(data)); err != nil {
		return nil, err
	}

	m := &types.Manifest{}
	var decodeErr error
	gjson.ParseBytes(data).ForEach(func(key, value gjson.Result) bool {
		set := &types.TestSet{Name: key.String()}
		for i, entry := range value.Array() {
			tc := &types.TestCase{}
			if err := json.Unmarshal([]byte(entry.Raw), tc); err != nil {
				decodeErr = fmt.Errorf("test set %s, entry %d: %w", set.Name, i, err)
				return false
			}
			set.Tests = append(set.Tests, tc)
		}
		m.Sets = append(m.Sets, set)
		return true
	})
	if decodeErr != nil {
		return nil, decodeErr
	}
	return m, nil
}

// parseYAML accepts the same shape as the JSON manifest. Mapping nodes keep
// their key order, which is the execution order.
func parseYAML(data []byte) (*types.Manifest, error) {
	var generic map[string]interface{}
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	if generic == nil {
		generic = map[string]interface{}{}
	}
	if err := validate(gojsonschema.NewGoLoader(generic)); err != nil {
		return nil, err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	m := &types.Manifest{}
	if len(doc.Content) == 0 {
		return m, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("manifest must be a mapping of test sets, line %d", root.Line)
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		set := &types.TestSet{Name: root.Content[i].Value}
		var tests []*types.TestCase
		if err := root.Content[i+1].Decode(&tests); err != nil {
			return nil, fmt.Errorf("test set %s: %w", set.Name, err)
		}
		set.Tests = tests
		m.Sets = append(m.Sets, set)
	}
	return m, nil
}

func validate(document gojsonschema.JSONLoader) error {
	result, err := gojsonschema.Validate(schemaLoader, document)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("schema validation failed: %s", strings.Join(problems, "; "))
}

func checkUniqueNames(m *types.Manifest) error {
	sets := make(map[string]struct{}, len(m.Sets))
	for _, set := range m.Sets {
		if _, ok := sets[set.Name]; ok {
			return fmt.Errorf("test set %s is declared more than once", set.Name)
		}
		sets[set.Name] = struct{}{}
		seen := make(map[string]struct{}, len(set.Tests))
		for _, tc := range set.Tests {
			if _, ok := seen[tc.Name]; ok {
				return fmt.Errorf("test set %s lists %s more than once", set.Name, tc.Name)
			}
			seen[tc.Name] = struct{}{}
		}
	}
	return nil
}
