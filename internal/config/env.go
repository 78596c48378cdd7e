package config

import (
	"os"

	"github.com/joho/godotenv"
)

// DefaultConfigPath is where config is looked for when neither the --config
// flag nor TASKBRIDGE_CONFIG is set.
const DefaultConfigPath = "taskbridge.toml"

// Environment variable names. Tokens and secrets are environment-only so
// config files stay safe to commit.
const (
	EnvConfig               = "TASKBRIDGE_CONFIG"
	EnvStateDB              = "TASKBRIDGE_STATE_DB"
	EnvPlannerToken         = "PLANNER_TOKEN"
	EnvPlannerDatabaseID    = "PLANNER_DATABASE_ID"
	EnvTrackerToken         = "TRACKER_TOKEN"
	EnvTrackerWebhookSecret = "TRACKER_WEBHOOK_SECRET"
	EnvPlannerWebhookSecret = "PLANNER_WEBHOOK_SECRET"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath           string
	StateDBPath          string
	PlannerToken         string
	PlannerDatabaseID    string
	TrackerToken         string
	TrackerWebhookSecret string
	PlannerWebhookSecret string
}

// ReadEnvOverrides loads a .env file from the working directory when one
// exists, then reads environment variables and returns any overrides found.
// Real environment variables win over .env entries.
func ReadEnvOverrides() EnvOverrides {
	// godotenv never overwrites variables already set in the environment.
	_ = godotenv.Load()

	return EnvOverrides{
		ConfigPath:           os.Getenv(EnvConfig),
		StateDBPath:          os.Getenv(EnvStateDB),
		PlannerToken:         os.Getenv(EnvPlannerToken),
		PlannerDatabaseID:    os.Getenv(EnvPlannerDatabaseID),
		TrackerToken:         os.Getenv(EnvTrackerToken),
		TrackerWebhookSecret: os.Getenv(EnvTrackerWebhookSecret),
		PlannerWebhookSecret: os.Getenv(EnvPlannerWebhookSecret),
	}
}
