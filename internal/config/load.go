package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions — silently ignoring a typo in a field mapping would quietly
// stop a property from syncing.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// ResolvePath returns the effective config file path from the override
// chain: the --config flag, then TASKBRIDGE_CONFIG, then the default.
func ResolvePath(path string, env EnvOverrides) string {
	if path != "" {
		return path
	}

	if env.ConfigPath != "" {
		return env.ConfigPath
	}

	return DefaultConfigPath
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment. It returns a fully resolved and
// validated Config ready for use.
func Resolve(path string, env EnvOverrides) (*Config, error) {
	cfgPath := ResolvePath(path, env)

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg, env)

	if err := ValidateResolved(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides copies environment values onto cfg. Tokens and secrets
// come only from the environment; paths and ids override the file when set.
func applyEnvOverrides(cfg *Config, env EnvOverrides) {
	cfg.Planner.Token = env.PlannerToken
	cfg.Tracker.Token = env.TrackerToken
	cfg.Webhook.TrackerSecret = env.TrackerWebhookSecret
	cfg.Webhook.PlannerSecret = env.PlannerWebhookSecret

	if env.PlannerDatabaseID != "" {
		cfg.Planner.DatabaseID = env.PlannerDatabaseID
	}

	if env.StateDBPath != "" {
		cfg.Sync.StateDBPath = env.StateDBPath
	}
}
