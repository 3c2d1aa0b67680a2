// Package config loads the YAML document describing a session's main
// and subordinate processes.
//
// Grounded on tff/tff.py's Session.add_subtty, which gives
// subordinates a data model (name, PTY, observer) but no file format
// of its own — this package gives that model a concrete YAML surface,
// parsed with gopkg.in/yaml.v3, the buildkite-agent reference repo's
// direct dependency for exactly this job.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTermEncoding is used when a config document omits termenc.
const DefaultTermEncoding = "UTF-8"

// DefaultEscTimeout is used when a config document omits escTimeout.
const DefaultEscTimeout = 500 * time.Millisecond

// Child describes one process to launch under a PTY: its terminal
// type, locale, and argv.
type Child struct {
	Name    string   `yaml:"name"`
	Term    string   `yaml:"term"`
	Lang    string   `yaml:"lang"`
	Command []string `yaml:"command"`
}

// Config is the root of the YAML document, matching spec.md's
// expanded §4.8 schema.
type Config struct {
	TermEncoding string        `yaml:"termenc"`
	EscTimeout   time.Duration `yaml:"escTimeout"`
	Buffering    bool          `yaml:"buffering"`
	Main         Child         `yaml:"main"`
	Subordinates []Child       `yaml:"subordinates"`
}

// rawConfig mirrors Config but with escTimeout as a string, since
// yaml.v3 does not natively unmarshal duration strings into
// time.Duration the way encoding/json with a custom type alias would.
type rawConfig struct {
	TermEncoding string  `yaml:"termenc"`
	EscTimeout   string  `yaml:"escTimeout"`
	Buffering    bool    `yaml:"buffering"`
	Main         Child   `yaml:"main"`
	Subordinates []Child `yaml:"subordinates"`
}

// Load reads and validates the YAML document at path, applying
// defaults for any omitted field.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML document already read into memory, applying
// the same defaults and validation as Load.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	cfg := &Config{
		TermEncoding: raw.TermEncoding,
		Buffering:    raw.Buffering,
		Main:         raw.Main,
		Subordinates: raw.Subordinates,
	}

	if cfg.TermEncoding == "" {
		cfg.TermEncoding = DefaultTermEncoding
	}

	if raw.EscTimeout == "" {
		cfg.EscTimeout = DefaultEscTimeout
	} else {
		d, err := time.ParseDuration(raw.EscTimeout)
		if err != nil {
			return nil, fmt.Errorf("config: escTimeout: %w", err)
		}
		cfg.EscTimeout = d
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Main.Command) == 0 {
		return fmt.Errorf("config: main.command is required")
	}
	for i, sub := range c.Subordinates {
		if sub.Name == "" {
			return fmt.Errorf("config: subordinates[%d].name is required", i)
		}
		if len(sub.Command) == 0 {
			return fmt.Errorf("config: subordinates[%d].command is required", i)
		}
	}
	return nil
}
