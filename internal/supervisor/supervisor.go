// Package supervisor implements the connectivity supervisor of §4.5: a
// two-state machine (CONNECTED/DISCONNECTED) driven by the forwarder's
// observed call outcomes, adapted from the teacher's three-state
// CircuitBreaker (internal/infrastructure/publishing/circuit_breaker.go)
// collapsed to the two states the spec requires — there is no half-open
// probing state because the periodic prober already re-tests the link on
// its own timer regardless of current state.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// State is the coarse connectivity state of §4.5.
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "CONNECTED"
	}
	return "DISCONNECTED"
}

// Prober is the remote liveness check the supervisor drives on its
// periodic timer (the forwarder's Probe).
type Prober interface {
	Probe(ctx context.Context) error
}

// Supervisor tracks connectivity state and notifies subscribers of
// transitions. It satisfies forward.ConnectivityReporter via
// ObserveSuccess/ObserveFailure.
type Supervisor struct {
	mu                    sync.Mutex
	state                 State
	lastSuccessfulConnect *time.Time

	logger *slog.Logger

	subscribersMu sync.Mutex
	onUp          []func()
	onDown        []func()
}

// New builds a Supervisor. Initial state is DISCONNECTED per §4.5.
func New(logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{state: Disconnected, logger: logger}
}

// State returns the current connectivity state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastSuccessfulConnect returns the timestamp of the most recent success
// observation, or nil if none has occurred yet.
func (s *Supervisor) LastSuccessfulConnect() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSuccessfulConnect
}

// OnConnectionUp registers a callback fired whenever the supervisor
// transitions DISCONNECTED -> CONNECTED. Intended for the drainer to
// schedule an immediate drain.
func (s *Supervisor) OnConnectionUp(fn func()) {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()
	s.onUp = append(s.onUp, fn)
}

// OnConnectionDown registers a callback fired whenever the supervisor
// transitions CONNECTED -> DISCONNECTED.
func (s *Supervisor) OnConnectionDown(fn func()) {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()
	s.onDown = append(s.onDown, fn)
}

// ObserveSuccess records a successful call. Per §4.5, a success observed
// while already CONNECTED only refreshes lastSuccessfulConnect; a success
// observed while DISCONNECTED transitions to CONNECTED and fires
// ConnectionUp.
func (s *Supervisor) ObserveSuccess() {
	now := time.Now().UTC()

	s.mu.Lock()
	transitioned := s.state == Disconnected
	s.state = Connected
	s.lastSuccessfulConnect = &now
	s.mu.Unlock()

	if transitioned {
		s.logger.Info("connectivity restored", "state", Connected.String())
		s.fire(s.snapshotUp())
	}
}

// ObserveFailure records a failed call. Per §4.5, a failure observed while
// CONNECTED transitions to DISCONNECTED and fires ConnectionDown; a
// failure observed while already DISCONNECTED is a no-op signal-wise.
func (s *Supervisor) ObserveFailure() {
	s.mu.Lock()
	transitioned := s.state == Connected
	s.state = Disconnected
	s.mu.Unlock()

	if transitioned {
		s.logger.Warn("connectivity lost", "state", Disconnected.String())
		s.fire(s.snapshotDown())
	}
}

func (s *Supervisor) snapshotUp() []func() {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()
	return append([]func(){}, s.onUp...)
}

func (s *Supervisor) snapshotDown() []func() {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()
	return append([]func(){}, s.onDown...)
}

func (s *Supervisor) fire(callbacks []func()) {
	for _, cb := range callbacks {
		cb()
	}
}

// RunProber drives Probe() on the given interval until ctx is canceled,
// regardless of current state, so a silently dead link is detected even
// when no forwarder traffic is otherwise flowing (§4.5).
func (s *Supervisor) RunProber(ctx context.Context, prober Prober, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, interval)
			if err := prober.Probe(probeCtx); err != nil {
				s.logger.Debug("connectivity probe failed", "error", err)
			}
			cancel()
		}
	}
}
