package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporter_CountersAccumulate(t *testing.T) {
	r := NewReporter(t.TempDir())

	r.IncCollected()
	r.IncCollected()
	r.IncForwarded()
	r.IncForwardedBy(3)
	r.IncCached()
	r.IncFiltered()
	r.IncDroppedByRetry()
	r.IncDroppedByAge(2)
	r.IncDroppedByCapacity()

	snap := r.Build(context.Background(), SnapshotInputs{Connected: true})
	assert.Equal(t, int64(2), snap.Counters.Collected)
	assert.Equal(t, int64(4), snap.Counters.Forwarded)
	assert.Equal(t, int64(1), snap.Counters.Cached)
	assert.Equal(t, int64(1), snap.Counters.Filtered)
	assert.Equal(t, int64(1), snap.Counters.DroppedByRetry)
	assert.Equal(t, int64(2), snap.Counters.DroppedByAge)
	assert.Equal(t, int64(1), snap.Counters.DroppedByCapacity)
}

func TestReporter_Build_StatusErrorWhenRecentErrorsPresent(t *testing.T) {
	r := NewReporter(t.TempDir())
	r.RecordError("forward failed: timeout")

	snap := r.Build(context.Background(), SnapshotInputs{Connected: true})
	require.Len(t, snap.RecentErrors, 1)
	assert.Equal(t, StatusError, snap.Status)
}

func TestReporter_Build_StatusWarningWhenDisconnected(t *testing.T) {
	r := NewReporter(t.TempDir())

	snap := r.Build(context.Background(), SnapshotInputs{Connected: false})
	assert.Equal(t, StatusWarning, snap.Status)
}

func TestReporter_Build_StatusRunningWhenHealthy(t *testing.T) {
	r := NewReporter(t.TempDir())

	snap := r.Build(context.Background(), SnapshotInputs{Connected: true})
	assert.Equal(t, StatusRunning, snap.Status)
}

func TestReporter_Build_StatusWarningOnStaleConfigUpdate(t *testing.T) {
	r := NewReporter(t.TempDir())
	stale := time.Now().Add(-2 * time.Hour)

	snap := r.Build(context.Background(), SnapshotInputs{Connected: true, LastConfigUpdate: &stale})
	assert.Equal(t, StatusWarning, snap.Status)
}

func TestReporter_RecordError_RingBufferCapsAt50(t *testing.T) {
	r := NewReporter(t.TempDir())
	for i := 0; i < 60; i++ {
		r.RecordError("err")
	}
	snap := r.Build(context.Background(), SnapshotInputs{Connected: true})
	assert.Len(t, snap.RecentErrors, 50)
}
