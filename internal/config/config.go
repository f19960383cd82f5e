package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const pathListSeparator = string(os.PathListSeparator)

// Config is TDP-lib's environment-derived configuration surface,
// spec.md §6.
type Config struct {
	// CollectionPaths is the ordered list of collection root
	// directories; later entries override earlier ones for a given
	// service (spec.md §4.2).
	CollectionPaths []string `validate:"required,min=1,dive,required"`

	// DatabaseDSN is the persistent store connection string, passed
	// straight through to store.Config.Path.
	DatabaseDSN string `validate:"required"`

	// VarsRoot is the root of the variables store.
	VarsRoot string `validate:"required"`

	// OverridePaths is the ordered list of override directories applied
	// on top of collection defaults (spec.md §4.3).
	OverridePaths []string

	// RollingInterval is the default rolling-restart wait, in seconds.
	// Nil means "no default rolling interval" (spec.md §4.6 factories
	// only roll when a caller explicitly supplies one, unless this
	// default is set).
	RollingInterval *int
}

// Environment variable names, spec.md §6.
const (
	EnvCollectionPath  = "TDP_COLLECTION_PATH"
	EnvDatabaseDSN     = "TDP_DATABASE_DSN"
	EnvVars            = "TDP_VARS"
	EnvOverrides       = "TDP_OVERRIDES"
	EnvRollingInterval = "TDP_ROLLING_INTERVAL"
)

// Load reads the environment-variable configuration surface and
// validates it. CollectionPaths and OverridePaths are split on the
// platform's path-list separator, matching PATH-style env var
// conventions (colon on Unix, semicolon on Windows).
func Load() (*Config, error) {
	cfg := &Config{
		CollectionPaths: splitPathList(os.Getenv(EnvCollectionPath)),
		DatabaseDSN:     os.Getenv(EnvDatabaseDSN),
		VarsRoot:        os.Getenv(EnvVars),
		OverridePaths:   splitPathList(os.Getenv(EnvOverrides)),
	}

	if raw := os.Getenv(EnvRollingInterval); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid integer %q: %w", EnvRollingInterval, raw, err)
		}
		cfg.RollingInterval = &seconds
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.RollingInterval != nil && *c.RollingInterval < 0 {
		return fmt.Errorf("%s must not be negative, got %d", EnvRollingInterval, *c.RollingInterval)
	}
	return nil
}

// RollingIntervalDuration returns the configured rolling interval as a
// time.Duration, or zero if unset.
func (c *Config) RollingIntervalDuration() time.Duration {
	if c.RollingInterval == nil {
		return 0
	}
	return time.Duration(*c.RollingInterval) * time.Second
}

func splitPathList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, pathListSeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
