package config

// Default values for configuration options. These are "layer 0" of the
// override chain and are chosen so that a minimal config file — planner
// database id plus a field mapping — is enough to run.
const (
	defaultPlannerBaseURL   = "https://api.planner.example/v1"
	defaultTrackerBaseURL   = "https://api.tracker.example/v2"
	defaultStateDBPath      = "taskbridge.db"
	defaultConflictStrategy = "planner_wins"
	defaultSourceLabel      = "from-planner"
	defaultSweepInterval    = "15m"
	defaultSweepWindow      = "24h"
	defaultStaleAfter       = "168h"
	defaultListenAddr       = ":8080"
	defaultLogLevel         = "info"
	defaultLogFormat        = "auto"
	defaultMaxSizeMB        = 10
	defaultMaxBackups       = 3
	defaultMaxAgeDays       = 30
	defaultDescSeparator    = "\n\n"
)

// DefaultConfig returns a Config populated with all default values.
// It is the starting point for TOML decoding, so unset fields retain
// defaults.
func DefaultConfig() *Config {
	return &Config{
		Planner: PlannerConfig{
			BaseURL: defaultPlannerBaseURL,
		},
		Tracker: TrackerConfig{
			BaseURL: defaultTrackerBaseURL,
		},
		Sync: SyncConfig{
			StateDBPath:      defaultStateDBPath,
			ConflictStrategy: defaultConflictStrategy,
			SyncDeletions:    false,
			SourceLabel:      defaultSourceLabel,
			SweepInterval:    defaultSweepInterval,
			SweepWindow:      defaultSweepWindow,
			StaleAfter:       defaultStaleAfter,
		},
		Mapping: MappingConfig{
			Completion: CompletionConfig{
				Property:    "Status",
				DoneValue:   "Done",
				ReopenValue: "In Progress",
			},
			Parent: ParentConfig{
				TitleProperty: "Name",
			},
			Description: DescriptionConfig{
				Separator: defaultDescSeparator,
			},
		},
		Webhook: WebhookConfig{
			ListenAddr: defaultListenAddr,
		},
		Logging: LoggingConfig{
			LogLevel:   defaultLogLevel,
			LogFormat:  defaultLogFormat,
			MaxSizeMB:  defaultMaxSizeMB,
			MaxBackups: defaultMaxBackups,
			MaxAgeDays: defaultMaxAgeDays,
		},
	}
}
