package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ConflictStrategies are the accepted values for sync.conflict_strategy.
var ConflictStrategies = []string{"planner_wins", "tracker_wins", "last_modified_wins", "merge"}

// trackerFields are the accepted targets in the mapping.fields table.
var trackerFields = map[string]bool{
	"content": true, "description": true, "priority": true,
	"project": true, "labels": true, "due": true,
}

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users see
// a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validateMapping(&cfg.Mapping)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

// ValidateResolved checks constraints that only hold after environment
// overrides have been applied: required identifiers and credentials.
func ValidateResolved(cfg *Config) error {
	var errs []error

	if err := Validate(cfg); err != nil {
		errs = append(errs, err)
	}

	if cfg.Planner.DatabaseID == "" {
		errs = append(errs, fmt.Errorf("planner.database_id: must be set (or %s)", EnvPlannerDatabaseID))
	}

	if cfg.Planner.Token == "" {
		errs = append(errs, fmt.Errorf("planner token: %s must be set", EnvPlannerToken))
	}

	if cfg.Tracker.Token == "" {
		errs = append(errs, fmt.Errorf("tracker token: %s must be set", EnvTrackerToken))
	}

	if cfg.Webhook.Enabled && cfg.Webhook.TrackerSecret == "" {
		errs = append(errs, fmt.Errorf("webhook secret: %s must be set when webhooks are enabled", EnvTrackerWebhookSecret))
	}

	return errors.Join(errs...)
}

func validateSync(s *SyncConfig) []error {
	var errs []error

	if s.StateDBPath == "" {
		errs = append(errs, errors.New("state_db_path: must not be empty"))
	}

	valid := false
	for _, strat := range ConflictStrategies {
		if s.ConflictStrategy == strat {
			valid = true
			break
		}
	}

	if !valid {
		errs = append(errs, fmt.Errorf("conflict_strategy: must be one of %s, got %q",
			strings.Join(ConflictStrategies, ", "), s.ConflictStrategy))
	}

	if s.SourceLabel == "" {
		errs = append(errs, errors.New("source_label: must not be empty"))
	}

	errs = append(errs, validateDuration("sweep_interval", s.SweepInterval, true)...)
	errs = append(errs, validateDuration("sweep_window", s.SweepWindow, false)...)
	errs = append(errs, validateDuration("stale_after", s.StaleAfter, false)...)

	return errs
}

func validateMapping(m *MappingConfig) []error {
	var errs []error

	hasContent := false

	for property, target := range m.Fields {
		if property == "" {
			errs = append(errs, errors.New("mapping.fields: empty planner property name"))
		}

		if !trackerFields[target] {
			errs = append(errs, fmt.Errorf("mapping.fields: %q maps to unknown tracker field %q", property, target))
		}

		if target == "content" {
			hasContent = true
		}
	}

	if len(m.Fields) > 0 && !hasContent {
		errs = append(errs, errors.New("mapping.fields: no property maps to content; the tracker requires a content line"))
	}

	if m.Completion.Property == "" {
		errs = append(errs, errors.New("mapping.completion.property: must not be empty"))
	}

	if m.Completion.DoneValue == "" {
		errs = append(errs, errors.New("mapping.completion.done_value: must not be empty"))
	}

	for _, f := range m.Description.Fields {
		if f.Name == "" {
			errs = append(errs, errors.New("mapping.description.fields: entry with empty name"))
		}

		if f.Format != "" && !strings.Contains(f.Format, "{value}") {
			errs = append(errs, fmt.Errorf("mapping.description.fields: format for %q has no {value} placeholder", f.Name))
		}
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	var level slog.Level
	if err := level.UnmarshalText([]byte(l.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("log_level: invalid level %q", l.LogLevel))
	}

	switch l.LogFormat {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format: must be auto, text, or json, got %q", l.LogFormat))
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, fmt.Errorf("max_size_mb: must be at least 1, got %d", l.MaxSizeMB))
	}

	return errs
}

// validateDuration checks a duration config string. zeroOK permits "0" as an
// explicit disable.
func validateDuration(key, value string, zeroOK bool) []error {
	if value == "" {
		return []error{fmt.Errorf("%s: must not be empty", key)}
	}

	if zeroOK && value == "0" {
		return nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q", key, value)}
	}

	if d <= 0 {
		return []error{fmt.Errorf("%s: must be positive, got %q", key, value)}
	}

	return nil
}

// Duration parses a validated duration config string. "0" yields zero.
// It must only be called after validation; a parse failure here is a bug.
func Duration(value string) time.Duration {
	if value == "" || value == "0" {
		return 0
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}

	return d
}
