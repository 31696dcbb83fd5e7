package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupervisor_StartsDisconnected(t *testing.T) {
	s := New(nil)
	assert.Equal(t, Disconnected, s.State())
	assert.Nil(t, s.LastSuccessfulConnect())
}

func TestSupervisor_SuccessWhileDisconnected_TransitionsAndFiresUp(t *testing.T) {
	s := New(nil)
	var upFired, downFired int32
	s.OnConnectionUp(func() { atomic.AddInt32(&upFired, 1) })
	s.OnConnectionDown(func() { atomic.AddInt32(&downFired, 1) })

	s.ObserveSuccess()

	assert.Equal(t, Connected, s.State())
	assert.Equal(t, int32(1), atomic.LoadInt32(&upFired))
	assert.Equal(t, int32(0), atomic.LoadInt32(&downFired))
	require.NotNil(t, s.LastSuccessfulConnect())
}

func TestSupervisor_RepeatedSuccess_DoesNotRefireUp(t *testing.T) {
	s := New(nil)
	var upFired int32
	s.OnConnectionUp(func() { atomic.AddInt32(&upFired, 1) })

	s.ObserveSuccess()
	first := s.LastSuccessfulConnect()
	time.Sleep(time.Millisecond)
	s.ObserveSuccess()
	second := s.LastSuccessfulConnect()

	assert.Equal(t, int32(1), atomic.LoadInt32(&upFired))
	assert.True(t, second.After(*first) || second.Equal(*first))
}

func TestSupervisor_FailureWhileConnected_TransitionsAndFiresDown(t *testing.T) {
	s := New(nil)
	var downFired int32
	s.OnConnectionDown(func() { atomic.AddInt32(&downFired, 1) })

	s.ObserveSuccess()
	s.ObserveFailure()

	assert.Equal(t, Disconnected, s.State())
	assert.Equal(t, int32(1), atomic.LoadInt32(&downFired))
}

func TestSupervisor_RepeatedFailure_DoesNotRefireDown(t *testing.T) {
	s := New(nil)
	var downFired int32
	s.OnConnectionDown(func() { atomic.AddInt32(&downFired, 1) })

	s.ObserveFailure()
	s.ObserveFailure()

	assert.Equal(t, int32(0), atomic.LoadInt32(&downFired))
}

type stubProber struct {
	calls int32
	err   error
}

func (p *stubProber) Probe(ctx context.Context) error {
	atomic.AddInt32(&p.calls, 1)
	return p.err
}

func TestSupervisor_RunProber_InvokesOnInterval(t *testing.T) {
	s := New(nil)
	prober := &stubProber{err: errors.New("down")}

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()

	s.RunProber(ctx, prober, 10*time.Millisecond)

	assert.GreaterOrEqual(t, atomic.LoadInt32(&prober.calls), int32(2))
}
