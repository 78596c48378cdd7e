// Package config implements TOML configuration loading, environment
// overrides, and validation for taskbridge. The override chain is
// defaults -> config file -> environment. API tokens and webhook secrets are
// never read from the file; they come from the environment, optionally via a
// .env file. Configuration problems are fatal at startup.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Planner PlannerConfig `toml:"planner"`
	Tracker TrackerConfig `toml:"tracker"`
	Sync    SyncConfig    `toml:"sync"`
	Mapping MappingConfig `toml:"mapping"`
	Webhook WebhookConfig `toml:"webhook"`
	Logging LoggingConfig `toml:"logging"`
}

// PlannerConfig identifies the planner-side API and its tasks database.
type PlannerConfig struct {
	BaseURL    string `toml:"base_url"`
	DatabaseID string `toml:"database_id"`
	Token      string `toml:"-"` // from PLANNER_TOKEN
}

// TrackerConfig identifies the tracker-side API.
type TrackerConfig struct {
	BaseURL string `toml:"base_url"`
	Token   string `toml:"-"` // from TRACKER_TOKEN
}

// SyncConfig controls engine and orchestrator behavior.
type SyncConfig struct {
	// StateDBPath is the SQLite sync-state database location.
	StateDBPath string `toml:"state_db_path"`

	// ConflictStrategy is one of planner_wins, tracker_wins,
	// last_modified_wins, merge.
	ConflictStrategy string `toml:"conflict_strategy"`

	// SyncDeletions gates deletion propagation. When false, deletion events
	// are acknowledged and dropped without any collaborator write.
	SyncDeletions bool `toml:"sync_deletions"`

	// SourceLabel is attached to every tracker task the bridge creates.
	SourceLabel string `toml:"source_label"`

	// SweepInterval is how often the serve daemon runs the full sweep as a
	// fallback for missed webhook events. "0" disables the periodic sweep.
	SweepInterval string `toml:"sweep_interval"`

	// SweepWindow is how far back a sweep looks for changed planner pages.
	SweepWindow string `toml:"sweep_window"`

	// StaleAfter is the pairing age beyond which status output reports a
	// pair as stale.
	StaleAfter string `toml:"stale_after"`
}

// MappingConfig is the declarative field mapping between the two sides.
type MappingConfig struct {
	// Fields maps planner property names to tracker field names: content,
	// description, priority, project, labels, due.
	Fields map[string]string `toml:"fields"`

	Completion  CompletionConfig  `toml:"completion"`
	Parent      ParentConfig      `toml:"parent"`
	Description DescriptionConfig `toml:"description"`
}

// CompletionConfig names the planner status property that encodes done-ness.
type CompletionConfig struct {
	Property    string `toml:"property"`
	DoneValue   string `toml:"done_value"`
	ReopenValue string `toml:"reopen_value"`
}

// ParentConfig names the planner relation property linking a task to its
// parent, and controls parent counterpart creation during the sweep.
type ParentConfig struct {
	Property      string `toml:"property"`
	TitleProperty string `toml:"title_property"`
	CreateParent  bool   `toml:"create_parent"`
}

// DescriptionConfig controls synthesis of the tracker description from
// planner properties.
type DescriptionConfig struct {
	Enabled   bool                     `toml:"enabled"`
	Separator string                   `toml:"separator"`
	Fields    []DescriptionFieldConfig `toml:"fields"`
}

// DescriptionFieldConfig is one source property in the synthesized
// description. Format is applied with the extracted text substituted for
// "{value}"; a property yielding no text is skipped.
type DescriptionFieldConfig struct {
	Name   string `toml:"name"`
	Format string `toml:"format"`
}

// WebhookConfig controls the HTTP event receivers.
type WebhookConfig struct {
	Enabled       bool   `toml:"enabled"`
	ListenAddr    string `toml:"listen_addr"`
	TrackerSecret string `toml:"-"` // from TRACKER_WEBHOOK_SECRET
	PlannerSecret string `toml:"-"` // from PLANNER_WEBHOOK_SECRET
}

// LoggingConfig controls log output behavior: level, format, and rotation.
// Rotation applies only when File is set.
type LoggingConfig struct {
	LogLevel   string `toml:"log_level"`
	LogFormat  string `toml:"log_format"` // "auto", "text", or "json"
	LogFile    string `toml:"log_file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}
