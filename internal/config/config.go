// Package config loads the control plane's own startup configuration: where
// the source repository and worktrees directory live, the port range the
// registry allocates from, logging, and the API server's bind address.
//
// The YAML shape, the Load/parse split, and the explicit []error-accumulating
// Validate follow re-cinq-detergent's internal/config/config.go.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level control plane configuration file.
type Config struct {
	Repo     RepoConfig     `yaml:"repo"`
	Ports    PortsConfig    `yaml:"ports"`
	Log      LogConfig      `yaml:"log"`
	API      APIConfig      `yaml:"api"`
	Diagnose DiagnoseConfig `yaml:"diagnose,omitempty"`
}

// RepoConfig locates the source checkout W-Create branches worktrees from.
type RepoConfig struct {
	SourcePath    string `yaml:"source_path"`
	WorktreesBase string `yaml:"worktrees_base"`
}

// PortsConfig bounds the range the port registry allocates from (R's
// scanner skips ports outside this range).
type PortsConfig struct {
	RangeStart int    `yaml:"range_start"`
	RangeEnd   int    `yaml:"range_end"`
	StatePath  string `yaml:"state_path"`
}

// LogConfig mirrors internal/vtlog.Config's fields so a config file can set
// them directly.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// APIConfig is the control API's bind address and websocket settings.
type APIConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
	ShutdownGrace  Duration `yaml:"shutdown_grace,omitempty"`
}

// DiagnoseConfig controls which checks run automatically, if any, and how
// often.
type DiagnoseConfig struct {
	Interval Duration `yaml:"interval,omitempty"`
	Checks   []string `yaml:"checks,omitempty"`
}

// Duration wraps time.Duration for YAML unmarshaling from strings like
// "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses a config file, applying defaults to any field left
// unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Defaults returns a Config with every default applied and nothing else
// set, for callers (e.g. the CLI running outside a config file) that want
// the same defaults parse applies without needing a file on disk.
func Defaults() *Config {
	cfg, _ := parse(nil)
	return cfg
}

func parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	if cfg.Ports.RangeStart == 0 {
		cfg.Ports.RangeStart = 10000
	}
	if cfg.Ports.RangeEnd == 0 {
		cfg.Ports.RangeEnd = 20000
	}
	if cfg.Ports.StatePath == "" {
		cfg.Ports.StatePath = ".vibetrees/ports.json"
	}
	if cfg.Repo.WorktreesBase == "" {
		cfg.Repo.WorktreesBase = ".worktrees"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.API.Addr == "" {
		cfg.API.Addr = ":8080"
	}
	if cfg.API.ShutdownGrace == 0 {
		cfg.API.ShutdownGrace = Duration(10 * time.Second)
	}

	return &cfg, nil
}

// Validate checks required fields and returns every problem found rather
// than stopping at the first one, so a misconfigured file can be fixed in
// one pass.
func Validate(cfg *Config) []error {
	var errs []error

	if cfg.Repo.SourcePath == "" {
		errs = append(errs, fmt.Errorf("repo.source_path is required"))
	}
	if cfg.Ports.RangeStart >= cfg.Ports.RangeEnd {
		errs = append(errs, fmt.Errorf("ports.range_start (%d) must be less than ports.range_end (%d)", cfg.Ports.RangeStart, cfg.Ports.RangeEnd))
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Log.Level))
	}

	return errs
}
