package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Default values applied when the config file is absent or partial.
const (
	DefaultTimeoutMs      = 30000
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultIdleTimeoutSec = 300
	DefaultMaxInstances   = 10
	DefaultLogLevel       = "info"
)

// Viewport is the browser viewport size in pixels.
type Viewport struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// ResourceLimits caps resource usage of one engine process.
type ResourceLimits struct {
	// MaxMemoryMB caps the engine's JS heap. Zero means no limit argument
	// is passed to the engine.
	MaxMemoryMB int `yaml:"max_memory_mb"`
}

// EngineOverrides are per-engine-kind launch option overrides. Nil pointer
// fields mean "inherit from defaults".
type EngineOverrides struct {
	Headless  *bool    `yaml:"headless,omitempty"`
	TimeoutMs *float64 `yaml:"timeout_ms,omitempty"`
	UserAgent *string  `yaml:"user_agent,omitempty"`
	ExtraArgs []string `yaml:"extra_args,omitempty"`
}

// Config holds everything the browser core consumes from the outside:
// install location, launch defaults, per-engine overrides, resource
// limits, and the pooled-acquisition switch.
type Config struct {
	// InstallDir is where engine binaries and the installation cache live.
	// Defaults to ~/.brooklyn/browsers.
	InstallDir string `yaml:"install_dir"`

	// Headless is the default launch mode.
	Headless bool `yaml:"headless"`

	// TimeoutMs is the default per-operation timeout in milliseconds.
	TimeoutMs float64 `yaml:"timeout_ms"`

	// Viewport is the default viewport applied to new contexts.
	Viewport Viewport `yaml:"viewport"`

	// UserAgent overrides the engine's default UA when non-empty.
	UserAgent string `yaml:"user_agent"`

	// ResourceLimits apply to every launched instance.
	ResourceLimits ResourceLimits `yaml:"resource_limits"`

	// EngineOverrides keys are engine kinds ("chromium", "firefox", "webkit").
	EngineOverrides map[string]EngineOverrides `yaml:"engine_overrides,omitempty"`

	// PooledMode enables the warm-pool acquisition strategy in the factory.
	PooledMode bool `yaml:"pooled_mode"`

	// MaxInstances caps concurrently live instances in the pool.
	MaxInstances int `yaml:"max_instances"`

	// IdleTimeoutSec is how long a pageless instance may sit unused before
	// the reaper closes it.
	IdleTimeoutSec int `yaml:"idle_timeout_sec"`

	// LogLevel is the minimum level written to the session log file:
	// debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns a config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Headless:       true,
		TimeoutMs:      DefaultTimeoutMs,
		Viewport:       Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight},
		MaxInstances:   DefaultMaxInstances,
		IdleTimeoutSec: DefaultIdleTimeoutSec,
		LogLevel:       DefaultLogLevel,
	}
}

// Load reads the config file at path, layering it over defaults. A missing
// file is not an error; the defaults are returned as-is. If path is empty,
// ~/.brooklyn/config.yaml is used.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(homeDir, ".brooklyn", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyFallbacks()
	return cfg, nil
}

// applyFallbacks restores defaults for fields the file zeroed out or omitted.
func (c *Config) applyFallbacks() {
	if c.TimeoutMs <= 0 {
		c.TimeoutMs = DefaultTimeoutMs
	}
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		c.Viewport = Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
	}
	if c.MaxInstances <= 0 {
		c.MaxInstances = DefaultMaxInstances
	}
	if c.IdleTimeoutSec <= 0 {
		c.IdleTimeoutSec = DefaultIdleTimeoutSec
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// OverridesFor returns the per-engine overrides for a kind, or an empty
// override set when none are configured.
func (c *Config) OverridesFor(kind string) EngineOverrides {
	if c.EngineOverrides == nil {
		return EngineOverrides{}
	}
	return c.EngineOverrides[kind]
}
