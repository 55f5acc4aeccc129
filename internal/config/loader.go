package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"livereload/internal/artifact"
	"livereload/internal/common/fsutil"
)

// Config holds runtime parameters for the runner.
// Zero values mean "unspecified" and are replaced by WithDefaults.
type Config struct {
	// Library is a path to the artifact. When empty, LibDir and LibName are used.
	Library string `json:"library" yaml:"library" toml:"library"`
	LibDir  string `json:"lib_dir" yaml:"lib_dir" toml:"lib_dir"`
	LibName string `json:"lib_name" yaml:"lib_name" toml:"lib_name"`

	// Addr of the HTTP control surface; empty disables it.
	Addr string `json:"addr" yaml:"addr" toml:"addr"`

	TickMS      int `json:"tick_ms" yaml:"tick_ms" toml:"tick_ms"`
	ReloadEvery int `json:"reload_every" yaml:"reload_every" toml:"reload_every"`
	DebounceMS  int `json:"debounce_ms" yaml:"debounce_ms" toml:"debounce_ms"`
	// WatchBuffer bounds the watch channel; overflow is coalesced, not lost.
	WatchBuffer int `json:"watch_buffer" yaml:"watch_buffer" toml:"watch_buffer"`

	RetryUnloaded     bool `json:"retry_unloaded" yaml:"retry_unloaded" toml:"retry_unloaded"`
	FailOnReloadError bool `json:"fail_on_reload_error" yaml:"fail_on_reload_error" toml:"fail_on_reload_error"`

	LogLevel    string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat   string   `json:"log_format" yaml:"log_format" toml:"log_format"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Defaults used by WithDefaults.
const (
	DefaultTickMS      = 16
	DefaultReloadEvery = 1
	DefaultDebounceMS  = 1000
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "json"
)

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	path, err := fsutil.ExpandHome(path)
	if err != nil {
		return cfg, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// WithDefaults returns a copy with zero values filled in.
func (c Config) WithDefaults() Config {
	if c.TickMS <= 0 {
		c.TickMS = DefaultTickMS
	}
	if c.ReloadEvery <= 0 {
		c.ReloadEvery = DefaultReloadEvery
	}
	if c.DebounceMS <= 0 {
		c.DebounceMS = DefaultDebounceMS
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	return c
}

// Tick is TickMS as a duration.
func (c Config) Tick() time.Duration { return time.Duration(c.TickMS) * time.Millisecond }

// Debounce is DebounceMS as a duration.
func (c Config) Debounce() time.Duration { return time.Duration(c.DebounceMS) * time.Millisecond }

// ArtifactPath resolves the artifact from Library, or from LibDir and LibName.
func (c Config) ArtifactPath() (string, error) {
	if c.Library != "" {
		p, err := fsutil.ExpandHome(c.Library)
		if err != nil {
			return "", err
		}
		return filepath.Abs(p)
	}
	if c.LibName == "" {
		return "", fmt.Errorf("no artifact configured: set library, or lib_dir and lib_name")
	}
	dir := c.LibDir
	if dir == "" {
		dir = "."
	}
	dir, err := fsutil.ExpandHome(dir)
	if err != nil {
		return "", err
	}
	if !fsutil.PathExists(dir) {
		return "", fmt.Errorf("lib_dir %s does not exist", dir)
	}
	return artifact.Resolve(dir, c.LibName)
}

// Validate checks values WithDefaults cannot fix.
func (c Config) Validate() error {
	if c.WatchBuffer < 0 {
		return fmt.Errorf("watch_buffer %d: must not be negative", c.WatchBuffer)
	}
	switch c.LogFormat {
	case "", "json", "console":
	default:
		return fmt.Errorf("log_format %q: want json or console", c.LogFormat)
	}
	if c.Library != "" && (c.LibDir != "" || c.LibName != "") {
		return fmt.Errorf("library and lib_dir/lib_name are mutually exclusive")
	}
	return nil
}
