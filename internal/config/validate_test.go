package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	cfg := validConfig(100)
	result := Validate(cfg, nil)
	require.True(t, result.OK())
	assert.Empty(t, result.Warnings)
}

func TestValidate_RejectsOutOfBoundBatchSize(t *testing.T) {
	cfg := validConfig(0)
	result := Validate(cfg, nil)
	assert.False(t, result.OK())
}

func TestValidate_RejectsOutOfBoundMaxCachedEvents(t *testing.T) {
	cfg := validConfig(100)
	cfg.MaxCachedEvents = 0
	result := Validate(cfg, nil)
	assert.False(t, result.OK())
}

func TestValidate_WarnsOnUnknownSourceType(t *testing.T) {
	cfg := validConfig(100)
	cfg.Sources = []SourceConfig{{Name: "custom", Type: "CustomThing", Enabled: true}}
	result := Validate(cfg, nil)
	require.True(t, result.OK())
	require.Len(t, result.Warnings, 1)
}

func TestValidate_RejectsDuplicateSourceNames(t *testing.T) {
	cfg := validConfig(100)
	cfg.Sources = []SourceConfig{
		{Name: "dup", Type: "FileLog", Enabled: true},
		{Name: "dup", Type: "Syslog", Enabled: true},
	}
	result := Validate(cfg, nil)
	assert.False(t, result.OK())
}

func TestValidate_RestartRequiredOnlyForGatedFields(t *testing.T) {
	prev := validConfig(100)

	same := validConfig(500) // batch size change doesn't require restart
	result := Validate(same, &prev)
	assert.False(t, result.RestartRequired)

	changed := validConfig(100)
	changed.HealthCheckIntervalSec = 120
	result = Validate(changed, &prev)
	assert.True(t, result.RestartRequired)
}
