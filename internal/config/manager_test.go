package config

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig(batchSize int) AgentConfig {
	return AgentConfig{
		AgentID:      "agent-1",
		AgentVersion: "1.0.0",
		Forwarder: ForwarderConfig{
			APIBaseURL: "https://collector.example.com",
			APIKey:     "secret",
		},
		BatchSize:                batchSize,
		FlushIntervalSec:         30,
		MaxRetries:               3,
		RetryDelaySec:            5,
		MaxCachedEvents:          1000,
		HealthCheckIntervalSec:   60,
		ConfigRefreshIntervalSec: 300,
		LogLevel:                 LogLevelInformation,
	}
}

func newTestManager(t *testing.T) (*Manager, *Store) {
	t.Helper()
	dir := t.TempDir()
	store := NewStore(dir)
	cfg := validConfig(100)
	require.NoError(t, store.Write(cfg, document{}))
	loaded, doc, err := store.Load()
	require.NoError(t, err)
	return NewManager(loaded, doc, store, nil), store
}

func TestManager_Apply_UpdatesMemoryAndDisk(t *testing.T) {
	mgr, store := newTestManager(t)

	candidate := validConfig(500)
	update, err := mgr.Apply(context.Background(), candidate, SourcePush)
	require.NoError(t, err)
	require.False(t, update.RestartRequired)

	require.Equal(t, 500, mgr.Current().BatchSize)

	onDisk, _, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, 500, onDisk.BatchSize)
}

func TestManager_Apply_RestartRequiredOnForwarderChange(t *testing.T) {
	mgr, _ := newTestManager(t)

	candidate := validConfig(100)
	candidate.Forwarder.APIBaseURL = "https://new-collector.example.com"

	update, err := mgr.Apply(context.Background(), candidate, SourcePush)
	require.NoError(t, err)
	require.True(t, update.RestartRequired)
}

func TestManager_Apply_RejectsInvalidConfig(t *testing.T) {
	mgr, store := newTestManager(t)
	before := mgr.Current()

	candidate := validConfig(100)
	candidate.BatchSize = 0 // below the [1,10000] bound

	_, err := mgr.Apply(context.Background(), candidate, SourcePush)
	require.Error(t, err)

	require.Equal(t, before, mgr.Current(), "in-memory config must remain unchanged on validation failure")

	onDisk, _, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, before.BatchSize, onDisk.BatchSize)
}

func TestManager_Apply_BackupSlotTracksPriorApply(t *testing.T) {
	mgr, store := newTestManager(t)

	first := validConfig(100)
	_, err := mgr.Apply(context.Background(), first, SourcePush)
	require.NoError(t, err)

	second := validConfig(250)
	_, err = mgr.Apply(context.Background(), second, SourcePush)
	require.NoError(t, err)

	backupData, _, err := store.loadPath(filepath.Join(filepath.Dir(store.configPath), "agent-config.json.bak"))
	require.NoError(t, err)
	require.Equal(t, 100, backupData.BatchSize, "backup slot should hold the config from before the most recent apply")
}

func TestManager_Subscribe_ReceivesUpdates(t *testing.T) {
	mgr, _ := newTestManager(t)
	updates := mgr.Subscribe()

	candidate := validConfig(777)
	_, err := mgr.Apply(context.Background(), candidate, SourcePush)
	require.NoError(t, err)

	select {
	case u := <-updates:
		require.Equal(t, 777, u.New.BatchSize)
	default:
		t.Fatal("expected a ConfigUpdated notification")
	}
}
