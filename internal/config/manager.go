package config

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Source identifies where a configuration change originated.
type Source string

const (
	SourceLocal Source = "local"
	SourcePush  Source = "push"
	SourcePull  Source = "pull"
)

// Updated is published to subscribers whenever Apply succeeds.
type Updated struct {
	Previous        AgentConfig
	New             AgentConfig
	Timestamp       time.Time
	Source          Source
	RestartRequired bool
}

// Fetcher pulls the authoritative configuration from the remote collector.
// Implemented by the forwarder client; declared here to avoid a dependency
// cycle between config and forward.
type Fetcher interface {
	FetchConfig(ctx context.Context) (*AgentConfig, error)
}

// Manager holds the current AgentConfig in memory and drives the
// validate → backup → apply → rollback pipeline of §4.8.
type Manager struct {
	mu      sync.RWMutex
	current AgentConfig
	doc     document
	store   *Store
	logger  *slog.Logger

	subscribers   []chan Updated
	subscribersMu sync.Mutex
}

// NewManager constructs a Manager seeded with the initial configuration and
// the on-disk document it was loaded from.
func NewManager(initial AgentConfig, doc document, store *Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		current: initial,
		doc:     doc,
		store:   store,
		logger:  logger,
	}
}

// Current returns a snapshot of the in-memory configuration.
func (m *Manager) Current() AgentConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Subscribe registers a channel that receives every successful Apply. The
// channel is created here with a buffer of 4; Manager never blocks
// delivering to it: when the buffer is full the notification is dropped and
// a warning is logged.
func (m *Manager) Subscribe() <-chan Updated {
	ch := make(chan Updated, 4)
	m.subscribersMu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.subscribersMu.Unlock()
	return ch
}

func (m *Manager) publish(u Updated) {
	m.subscribersMu.Lock()
	defer m.subscribersMu.Unlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- u:
		default:
			m.logger.Warn("config subscriber channel full, dropping update notification")
		}
	}
}

// Validate runs Validate(c) against the currently-held configuration so
// callers (the admin surface's /validate endpoint) can preview a candidate
// without applying it.
func (m *Manager) Validate(candidate AgentConfig) ValidationResult {
	current := m.Current()
	return Validate(candidate, &current)
}

// Apply executes the 6-step pipeline of §4.8: validate, backup, atomic
// rewrite, swap in-memory config, publish ConfigUpdated, and roll back on
// any failure after the backup step.
func (m *Manager) Apply(ctx context.Context, candidate AgentConfig, source Source) (Updated, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := Validate(candidate, &m.current)
	if !result.OK() {
		return Updated{}, fmt.Errorf("config validation failed: %v", result.Errors)
	}

	previous := m.current

	if err := m.store.Backup(); err != nil {
		return Updated{}, fmt.Errorf("backup config: %w", err)
	}

	if err := m.store.Write(candidate, m.doc); err != nil {
		m.logger.Error("config apply failed after backup, attempting restore", "error", err)
		if _, _, restoreErr := m.store.Restore(); restoreErr != nil {
			m.logger.Error("config restore after failed apply also failed; in-memory config unchanged but durability is compromised", "restore_error", restoreErr)
			return Updated{}, fmt.Errorf("apply failed (%w) and restore failed (%v)", err, restoreErr)
		}
		return Updated{}, fmt.Errorf("apply config write: %w", err)
	}

	m.doc.Agent = candidate
	m.current = candidate

	update := Updated{
		Previous:        previous,
		New:             candidate,
		Timestamp:       time.Now().UTC(),
		Source:          source,
		RestartRequired: result.RestartRequired,
	}
	m.publish(update)
	m.logger.Info("configuration applied",
		"source", source,
		"restart_required", result.RestartRequired,
	)
	return update, nil
}

// Backup copies the current on-disk configuration to the backup slot
// on demand, independent of Apply's automatic backup-before-write.
func (m *Manager) Backup(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Backup()
}

// Restore reloads the backup file over the current config file and swaps
// the in-memory configuration to match, emitting a restoration event.
func (m *Manager) Restore(ctx context.Context) (Updated, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	previous := m.current
	restored, doc, err := m.store.Restore()
	if err != nil {
		return Updated{}, fmt.Errorf("restore config: %w", err)
	}
	m.doc = doc
	m.current = restored

	update := Updated{
		Previous:  previous,
		New:       restored,
		Timestamp: time.Now().UTC(),
		Source:    SourceLocal,
	}
	m.publish(update)
	m.logger.Warn("configuration restored from backup")
	return update, nil
}

// Refresh pulls the authoritative configuration from the remote collector
// and feeds it through Apply. Intended to be driven by a periodic ticker
// only while the connectivity supervisor reports CONNECTED.
func (m *Manager) Refresh(ctx context.Context, fetcher Fetcher) error {
	remote, err := fetcher.FetchConfig(ctx)
	if err != nil {
		return fmt.Errorf("fetch remote config: %w", err)
	}
	if remote == nil {
		return nil
	}
	_, err = m.Apply(ctx, *remote, SourcePull)
	return err
}
