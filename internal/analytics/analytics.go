// Package analytics provides local SQLite-based usage analytics: which
// operations run, how long they take and how they fail.
package analytics

import "os"

// EnvEnabled overrides the analytics.enabled config value.
const EnvEnabled = "TASKMASTER_ANALYTICS_ENABLED"

// Event represents a single analytics event
type Event struct {
	ID         int64
	Timestamp  int64
	Operation  string
	Source     string // cli or tui
	Success    bool
	DurationMs int64
	ErrorKind  string
}

// OperationSummary aggregates the events of one operation.
type OperationSummary struct {
	Operation string `json:"operation"`
	Count     int64  `json:"count"`
	Failures  int64  `json:"failures"`
	AvgMs     int64  `json:"avg_ms"`
	LastError string `json:"last_error,omitempty"`
}

// IsEnabledFromEnv checks the TASKMASTER_ANALYTICS_ENABLED environment
// variable and returns the effective enabled state. Environment variable
// overrides the config value.
func IsEnabledFromEnv(configEnabled bool) bool {
	envVal := os.Getenv(EnvEnabled)
	if envVal == "" {
		return configEnabled
	}
	return envVal == "true" || envVal == "1"
}
