// Package config handles pagetint configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/jmylchreest/pagetint/internal/content"
	"github.com/jmylchreest/pagetint/internal/dynbg"
	"github.com/jmylchreest/pagetint/internal/store"
)

// Config is the root configuration structure for pagetint.
type Config struct {
	// Blend tunes the dynamic background applier.
	Blend BlendConfig `yaml:"blend" mapstructure:"blend"`

	// Store selects where rules and site configs are kept.
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// Log settings
	Log LogConfig `yaml:"log" mapstructure:"log"`
}

// BlendConfig contains the applier tunables.
type BlendConfig struct {
	BrightThreshold float64 `yaml:"bright_threshold" mapstructure:"bright_threshold"`
	MaxBlend        float64 `yaml:"max_blend" mapstructure:"max_blend"`
	MinContrast     float64 `yaml:"min_contrast" mapstructure:"min_contrast"`
	MinElementArea  float64 `yaml:"min_element_area" mapstructure:"min_element_area"`

	// BatchSize is the number of elements examined per scheduler turn.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
}

// StoreConfig contains settings store options.
type StoreConfig struct {
	// Dir holds the store files (default: $XDG_DATA_HOME/pagetint).
	Dir string `yaml:"dir" mapstructure:"dir"`

	// Backend is "file" or "sqlite".
	Backend string `yaml:"backend" mapstructure:"backend"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of trace, debug, info, warn, error, off.
	Level string `yaml:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	blend := content.DefaultBlendSettings()
	return &Config{
		Blend: BlendConfig{
			BrightThreshold: blend.BrightThreshold,
			MaxBlend:        blend.MaxBlend,
			MinContrast:     blend.MinContrast,
			MinElementArea:  blend.MinElementArea,
			BatchSize:       dynbg.DefaultBatchSize,
		},
		Store: StoreConfig{
			Dir:     defaultStoreDir(),
			Backend: store.BackendFile,
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

func defaultStoreDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "pagetint")
	}
	return filepath.Join("~", ".local", "share", "pagetint")
}

// Settings returns the blend tunables as applier settings.
func (b BlendConfig) Settings() dynbg.Settings {
	return dynbg.Settings{
		BrightThreshold: b.BrightThreshold,
		MaxBlend:        b.MaxBlend,
		MinContrast:     b.MinContrast,
		MinElementArea:  b.MinElementArea,
	}
}

// LogLevel returns the configured hclog level.
func (c *Config) LogLevel() hclog.Level {
	return hclog.LevelFromString(c.Log.Level)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Blend.Settings().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("blend: %w", err))
	}
	if c.Blend.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("blend.batch_size must be at least 1"))
	}

	if c.Store.Dir == "" {
		errs = append(errs, fmt.Errorf("store.dir is required"))
	}
	if !slices.Contains(store.Backends(), c.Store.Backend) {
		errs = append(errs, fmt.Errorf("store.backend must be one of %s", strings.Join(store.Backends(), ", ")))
	}

	if c.LogLevel() == hclog.NoLevel {
		errs = append(errs, fmt.Errorf("log.level %q is not a valid level", c.Log.Level))
	}

	return errors.Join(errs...)
}
