package osevent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siemagent/agent/internal/config"
	"github.com/siemagent/agent/internal/event"
	"github.com/siemagent/agent/internal/health"
)

func TestRunner_InitializeOnUnsupportedHost_DisablesWithoutError(t *testing.T) {
	cfg := config.SourceConfig{Name: "hostlog", Type: "osevent", Enabled: true}
	out := make(chan event.Event, 1)
	reporter := health.NewReporter(t.TempDir())

	r, err := New(cfg, out, reporter, nil, nil)
	require.NoError(t, err)

	runner := r.(*Runner)
	require.NoError(t, runner.Initialize(context.Background()))
	assert.False(t, runner.supported)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	runner.Run(ctx)

	select {
	case e := <-out:
		t.Fatalf("unexpected event from unsupported runner: %+v", e)
	default:
	}
}

func TestRunner_EmitMapsRecordFields(t *testing.T) {
	cfg := config.SourceConfig{Name: "hostlog", Type: "osevent", Enabled: true}
	out := make(chan event.Event, 1)
	reporter := health.NewReporter(t.TempDir())

	r, err := New(cfg, out, reporter, nil, nil)
	require.NoError(t, err)
	runner := r.(*Runner)

	runner.emit(context.Background(), Record{
		NativeID: 4625,
		Provider: "Microsoft-Windows-Security-Auditing",
		Level:    1,
		Task:     12544,
		Keywords: 0x8010000000000000,
		Message:  "An account failed to log on.",
	})

	select {
	case e := <-out:
		assert.Equal(t, event.TypeOsEvent, e.EventType)
		assert.Equal(t, event.SeverityCritical, e.Severity)
		assert.Equal(t, 4625, e.CustomFields["nativeId"])
		assert.Equal(t, "Microsoft-Windows-Security-Auditing", e.CustomFields["provider"])
	case <-time.After(time.Second):
		t.Fatal("expected emitted event")
	}
}

func TestRunner_Stop_IsIdempotent(t *testing.T) {
	cfg := config.SourceConfig{Name: "hostlog", Type: "osevent", Enabled: true}
	out := make(chan event.Event, 1)
	reporter := health.NewReporter(t.TempDir())

	r, err := New(cfg, out, reporter, nil, nil)
	require.NoError(t, err)
	runner := r.(*Runner)

	runner.Stop()
	runner.Stop()
}
