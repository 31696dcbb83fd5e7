package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/siemagent/agent/internal/event"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), filepath.Join(dir, "queue.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleEvent() event.Event {
	return event.New("host-1", event.TypeFileLog, time.Now())
}

func TestStore_EnqueueAndPeek_FIFOOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e1 := sampleEvent()
	require.NoError(t, s.Enqueue(ctx, e1, 0, 10))
	time.Sleep(2 * time.Millisecond)
	e2 := sampleEvent()
	require.NoError(t, s.Enqueue(ctx, e2, 0, 10))

	batch, err := s.PeekBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.Equal(t, e1.ID, batch[0].ID())
	require.Equal(t, e2.ID, batch[1].ID())
}

func TestStore_Enqueue_FullReturnsErrFull(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Enqueue(ctx, sampleEvent(), 0, 1))
	err := s.Enqueue(ctx, sampleEvent(), 0, 1)
	var target ErrFull
	require.ErrorAs(t, err, &target)
}

func TestStore_Remove_IsIdempotentAndRaceFreeWithPeek(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := sampleEvent()
	require.NoError(t, s.Enqueue(ctx, e, 0, 10))

	require.NoError(t, s.Remove(ctx, []uuid.UUID{e.ID}))
	// Removing again must not error — idempotent per §4.2 invariant 3.
	require.NoError(t, s.Remove(ctx, []uuid.UUID{e.ID}))

	batch, err := s.PeekBatch(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, batch, "next peekBatch must contain none of the removed ids")
}

func TestStore_BumpRetry_IncrementsAndTimestamps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := sampleEvent()
	require.NoError(t, s.Enqueue(ctx, e, 0, 10))
	require.NoError(t, s.BumpRetry(ctx, []uuid.UUID{e.ID}))
	require.NoError(t, s.BumpRetry(ctx, []uuid.UUID{e.ID}))

	batch, err := s.PeekBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.Equal(t, 2, batch[0].RetryCount)
	require.NotNil(t, batch[0].LastRetryAt)
}

func TestStore_EvictExpired_RemovesOnlyOlderThanMaxAge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := sampleEvent()
	require.NoError(t, s.Enqueue(ctx, old, 0, 10))
	time.Sleep(5 * time.Millisecond)

	recent := sampleEvent()
	require.NoError(t, s.Enqueue(ctx, recent, 0, 10))

	n, err := s.EvictExpired(ctx, 3*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	batch, err := s.PeekBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.Equal(t, recent.ID, batch[0].ID())
}

func TestStore_Count_ReflectsEnqueueAndRemove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	e := sampleEvent()
	require.NoError(t, s.Enqueue(ctx, e, 0, 10))
	n, err = s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, s.Remove(ctx, []uuid.UUID{e.ID}))
	n, err = s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestStore_Clear_RemovesEverything(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Enqueue(ctx, sampleEvent(), 0, 10))
	}
	require.NoError(t, s.Clear(ctx))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.db")
	ctx := context.Background()

	s1, err := Open(ctx, path, nil)
	require.NoError(t, err)
	e := sampleEvent()
	require.NoError(t, s1.Enqueue(ctx, e, 0, 10))
	require.NoError(t, s1.Close())

	s2, err := Open(ctx, path, nil)
	require.NoError(t, err)
	defer s2.Close()

	batch, err := s2.PeekBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.Equal(t, e.ID, batch[0].ID())
}
