// Package config holds the agent's runtime configuration model and the
// validate → backup → apply → rollback pipeline that governs changes to it.
package config

import "time"

// LogLevel is the agent's configured logging verbosity, per §3.
type LogLevel string

const (
	LogLevelTrace       LogLevel = "Trace"
	LogLevelDebug       LogLevel = "Debug"
	LogLevelInformation LogLevel = "Information"
	LogLevelWarning     LogLevel = "Warning"
	LogLevelError       LogLevel = "Error"
	LogLevelCritical    LogLevel = "Critical"
)

// ForwarderConfig holds the settings the forwarder client needs to reach the
// remote collector.
type ForwarderConfig struct {
	APIBaseURL string `json:"apiBaseUrl" mapstructure:"api_base_url" validate:"required,url"`
	APIKey     string `json:"apiKey" mapstructure:"api_key" validate:"required"`
}

// SourceConfig describes one configured source runner, per §3. A source is
// usable only when its Type is recognized by the runtime registry and its
// Settings pass the type-specific validator.
type SourceConfig struct {
	Name                   string         `json:"name" mapstructure:"name" validate:"required"`
	Type                   string         `json:"type" mapstructure:"type" validate:"required"`
	Enabled                bool           `json:"enabled" mapstructure:"enabled"`
	CollectionIntervalSec  int            `json:"collectionIntervalSec" mapstructure:"collection_interval_sec" validate:"gte=0"`
	Settings               map[string]any `json:"settings" mapstructure:"settings"`
	IncludePatterns        []string       `json:"includePatterns" mapstructure:"include_patterns"`
	ExcludePatterns        []string       `json:"excludePatterns" mapstructure:"exclude_patterns"`
	SeverityFilter         string         `json:"severityFilter" mapstructure:"severity_filter"`
}

// AgentConfig is the validated settings document described in §3. JSON tags
// match the wire/on-disk camelCase encoding; mapstructure tags match the
// snake_case bootstrap/env-var layer the way the teacher's sectioned structs
// carry both.
type AgentConfig struct {
	AgentID      string `json:"agentId" mapstructure:"agent_id" validate:"required"`
	AgentVersion string `json:"agentVersion" mapstructure:"agent_version" validate:"required"`

	Forwarder ForwarderConfig `json:"forwarder" mapstructure:"forwarder" validate:"required"`

	BatchSize                int `json:"batchSize" mapstructure:"batch_size" validate:"gte=1,lte=10000"`
	FlushIntervalSec         int `json:"flushIntervalSec" mapstructure:"flush_interval_sec" validate:"gte=1,lte=3600"`
	MaxRetries               int `json:"maxRetries" mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelaySec            int `json:"retryDelaySec" mapstructure:"retry_delay_sec" validate:"gte=0"`
	MaxCachedEvents          int `json:"maxCachedEvents" mapstructure:"max_cached_events" validate:"gte=1,lte=1000000"`
	HealthCheckIntervalSec   int `json:"healthCheckIntervalSec" mapstructure:"health_check_interval_sec" validate:"gte=10,lte=3600"`
	ConfigRefreshIntervalSec int `json:"configRefreshIntervalSec" mapstructure:"config_refresh_interval_sec" validate:"gte=60,lte=86400"`

	EnableLocalAnalysis  bool `json:"enableLocalAnalysis" mapstructure:"enable_local_analysis"`
	EnableEventFiltering bool `json:"enableEventFiltering" mapstructure:"enable_event_filtering"`

	LogLevel LogLevel `json:"logLevel" mapstructure:"log_level" validate:"required,oneof=Trace Debug Information Warning Error Critical"`

	Sources []SourceConfig `json:"sources" mapstructure:"sources" validate:"dive"`
}

// RetentionWindow is the fixed eviction age used by queue maintenance (§4.6).
const RetentionWindow = 7 * 24 * time.Hour

// restartRequiredFields lists the top-level settings whose change requires a
// process restart per §4.8's Validate contract.
var restartRequiredFields = []string{
	"Forwarder.APIBaseURL",
	"Forwarder.APIKey",
	"HealthCheckIntervalSec",
	"ConfigRefreshIntervalSec",
}
