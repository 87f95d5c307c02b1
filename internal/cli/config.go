package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read when --config is not given and the file exists
// in the working directory.
const DefaultConfigFile = "docmap.yaml"

// DefaultConfigFiles lists the config files looked up in the working
// directory, in order.
var DefaultConfigFiles = []string{DefaultConfigFile, "docmap.toml"}

// Config holds defaults for command flags.
type Config struct {
	// DB is the SQLite database path used by put, get, delete and journal.
	DB string `yaml:"db" toml:"db"`

	// Schema is the directory of .cue type declarations.
	Schema string `yaml:"schema" toml:"schema"`

	// Key is the hex-encoded field encryption key.
	Key string `yaml:"key" toml:"key"`
}

// LoadConfig reads a config file. Files ending in .toml are TOML,
// everything else YAML. Unknown fields are rejected so typos surface
// immediately.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if filepath.Ext(path) == ".toml" {
		decoder := toml.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		return &cfg, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// findConfig returns the first default config file present in dir, or "".
func findConfig(dir string) string {
	for _, name := range DefaultConfigFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// pick returns the flag value when set, otherwise the config value.
func pick(flag, fromConfig string) string {
	if flag != "" {
		return flag
	}
	return fromConfig
}
