package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a change-set scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Type is the tag of the type the snapshot inflates into.
	Type string `yaml:"type"`

	// Schema holds inline CUE type declarations.
	Schema string `yaml:"schema,omitempty"`

	// SchemaDir is a directory of .cue declaration files.
	// Relative paths are resolved against the scenario file location.
	SchemaDir string `yaml:"schema_dir,omitempty"`

	// Snapshot is the persisted document in extended JSON.
	Snapshot string `yaml:"snapshot"`

	// Mutations are applied in order to the inflated instance.
	Mutations []Mutation `yaml:"mutations,omitempty"`

	// Expect is the change set the mutations must produce.
	Expect Expectation `yaml:"expect"`
}

// Mutation is a single edit to the inflated instance.
type Mutation struct {
	// Op is one of set, delete, mark, extra, drop_extra.
	Op string `yaml:"op"`

	// Field is the local field name (set, delete, mark).
	Field string `yaml:"field,omitempty"`

	// Key is the overflow key (extra, drop_extra).
	Key string `yaml:"key,omitempty"`

	// Value is a plain YAML value.
	Value any `yaml:"value,omitempty"`

	// JSON is an extended JSON value. Takes precedence over Value.
	JSON string `yaml:"json,omitempty"`
}

// Expectation is the expected outcome of a scenario.
type Expectation struct {
	// Dirty lists the expected dirty names. Nil skips the check.
	Dirty []string `yaml:"dirty,omitempty"`

	// Set is the expected $set document in extended JSON.
	Set string `yaml:"set,omitempty"`

	// Unset lists the expected unset keys.
	Unset []string `yaml:"unset"`

	// Empty expects no change at all.
	Empty bool `yaml:"empty,omitempty"`
}

// Mutation ops.
const (
	OpSet       = "set"
	OpDelete    = "delete"
	OpMark      = "mark"
	OpExtra     = "extra"
	OpDropExtra = "drop_extra"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if s.SchemaDir != "" && !filepath.IsAbs(s.SchemaDir) {
		s.SchemaDir = filepath.Join(filepath.Dir(path), s.SchemaDir)
	}
	if s.SchemaDir != "" {
		if _, err := os.Stat(s.SchemaDir); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: schema_dir not found: %s", s.SchemaDir)
		}
	}

	return s, nil
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Type == "" {
		return fmt.Errorf("type is required")
	}

	switch {
	case s.Schema == "" && s.SchemaDir == "":
		return fmt.Errorf("one of schema or schema_dir is required")
	case s.Schema != "" && s.SchemaDir != "":
		return fmt.Errorf("schema and schema_dir are mutually exclusive")
	}

	if s.Snapshot == "" {
		return fmt.Errorf("snapshot is required")
	}

	for i, m := range s.Mutations {
		if err := validateMutation(i, &m); err != nil {
			return err
		}
	}

	if s.Expect.Empty && (s.Expect.Set != "" || len(s.Expect.Unset) > 0) {
		return fmt.Errorf("expect: empty cannot be combined with set or unset")
	}

	return nil
}

// validateMutation validates a single mutation based on its op.
func validateMutation(index int, m *Mutation) error {
	switch m.Op {
	case "":
		return fmt.Errorf("mutations[%d]: op is required", index)
	case OpSet:
		if m.Field == "" {
			return fmt.Errorf("mutations[%d]: field is required for set", index)
		}
	case OpDelete, OpMark:
		if m.Field == "" {
			return fmt.Errorf("mutations[%d]: field is required for %s", index, m.Op)
		}
	case OpExtra:
		if m.Key == "" {
			return fmt.Errorf("mutations[%d]: key is required for extra", index)
		}
	case OpDropExtra:
		if m.Key == "" {
			return fmt.Errorf("mutations[%d]: key is required for drop_extra", index)
		}
	default:
		return fmt.Errorf("mutations[%d]: unknown op %q", index, m.Op)
	}
	return nil
}
