/*
Package config handles YAML configuration loading, validation, and
CLI flag merging for loggy.

Configuration is resolved in this order (highest priority first):
  1. CLI flags (explicitly passed)
  2. Config file values
  3. Built-in defaults
*/
package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for loggy.
type Config struct {
	// Listen is the forward-proxy (data-plane) address.
	Listen string `yaml:"listen"`
	// APIAddr is the control-plane HTTP API address.
	APIAddr string `yaml:"api_addr"`
	LogDir  string `yaml:"log_dir"`
	Verbose bool   `yaml:"verbose"`
	// DataDir holds ca-cert.pem, ca-key.pem, sources.db, and .proxy.pid.
	DataDir  string   `yaml:"data_dir"`
	CA       CA       `yaml:"ca"`
	EventBuf EventBuf `yaml:"event_buffer"`
	Timeouts Timeouts `yaml:"timeouts"`
}

// CA holds CA material paths, relative to DataDir.
type CA struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

// EventBuf holds the captured-event ring buffer's capacity.
type EventBuf struct {
	Capacity int `yaml:"capacity"`
}

// Timeouts holds proxy timeout configuration.
type Timeouts struct {
	Shutdown Duration `yaml:"shutdown"`
	Connect  Duration `yaml:"connect"`
	Idle     Duration `yaml:"idle"`
}

// Default returns a Config populated with built-in defaults.
func Default() Config {
	return Config{
		Listen:  ":18737",
		APIAddr: ":18738",
		LogDir:  "logs",
		Verbose: false,
		DataDir: ".",
		CA: CA{
			Cert: "ca-cert.pem",
			Key:  "ca-key.pem",
		},
		EventBuf: EventBuf{
			Capacity: 1000,
		},
		Timeouts: Timeouts{
			Shutdown: Duration{5 * time.Second},
			Connect:  Duration{10 * time.Second},
			Idle:     Duration{2 * time.Minute},
		},
	}
}

// Load reads a config file from disk and parses it. If path is empty,
// it searches for loggy.yml or loggy.yaml in the working directory.
// Returns the parsed config and the path that was loaded (empty if none found).
func Load(path string) (Config, string, error) {
	cfg := Default()

	if path == "" {
		path = discover()
		if path == "" {
			return cfg, "", nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, path, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, path, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, path, nil
}

// discover searches for a config file in the working directory.
func discover() string {
	for _, name := range []string{"loggy.yml", "loggy.yaml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// CLIOverrides holds values from CLI flags that should override config file values.
// A nil/zero value means the flag was not explicitly set.
type CLIOverrides struct {
	Listen  *string
	APIAddr *string
	LogDir  *string
	Verbose *bool
	DataDir *string
}

// Merge applies CLI flag overrides to a loaded config. Only explicitly-set
// flags override config file values.
func (c *Config) Merge(o CLIOverrides) {
	if o.Listen != nil {
		c.Listen = *o.Listen
	}
	if o.APIAddr != nil {
		c.APIAddr = *o.APIAddr
	}
	if o.LogDir != nil {
		c.LogDir = *o.LogDir
	}
	if o.Verbose != nil {
		c.Verbose = *o.Verbose
	}
	if o.DataDir != nil {
		c.DataDir = *o.DataDir
	}
}

// Validate checks the config for invalid values and returns an error
// describing all problems found.
func (c *Config) Validate() error {
	var errs []string

	if _, err := net.ResolveTCPAddr("tcp", c.Listen); err != nil {
		errs = append(errs, fmt.Sprintf("listen: invalid address %q: %v", c.Listen, err))
	}
	if _, err := net.ResolveTCPAddr("tcp", c.APIAddr); err != nil {
		errs = append(errs, fmt.Sprintf("api_addr: invalid address %q: %v", c.APIAddr, err))
	}
	if c.APIAddr == c.Listen {
		errs = append(errs, fmt.Sprintf("api_addr: conflicts with listen address %q", c.Listen))
	}

	if c.EventBuf.Capacity <= 0 {
		errs = append(errs, fmt.Sprintf("event_buffer.capacity: must be positive, got %d", c.EventBuf.Capacity))
	}

	if c.Timeouts.Shutdown.Duration <= 0 {
		errs = append(errs, fmt.Sprintf("timeouts.shutdown: must be positive, got %s", c.Timeouts.Shutdown))
	}
	if c.Timeouts.Connect.Duration <= 0 {
		errs = append(errs, fmt.Sprintf("timeouts.connect: must be positive, got %s", c.Timeouts.Connect))
	}
	if c.Timeouts.Idle.Duration <= 0 {
		errs = append(errs, fmt.Sprintf("timeouts.idle: must be positive, got %s", c.Timeouts.Idle))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	return nil
}

// Redacted returns a copy of the config; loggy's config currently holds
// no secrets, but the method is kept so callers don't special-case it
// if one is added later (CA passphrases, API auth tokens).
func (c *Config) Redacted() Config {
	r := *c
	return r
}

// Dump serializes the config to YAML.
func (c *Config) Dump() ([]byte, error) {
	return yaml.Marshal(c)
}
