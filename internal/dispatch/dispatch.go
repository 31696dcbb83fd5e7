// Package dispatch implements the dispatcher and drainer of §4.6: the glue
// between the shared event channel, the connectivity supervisor, the
// durable queue, and the forwarder client. Grounded in the teacher's
// publishing queue worker loop (internal/infrastructure/publishing/
// queue.go), adapted from job-priority dequeuing to the spec's simpler
// forward-or-enqueue decision.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/siemagent/agent/internal/config"
	"github.com/siemagent/agent/internal/event"
	"github.com/siemagent/agent/internal/health"
	"github.com/siemagent/agent/internal/metrics"
	"github.com/siemagent/agent/internal/queue"
)

// Forwarder is the subset of forward.Client the dispatcher and drainer use.
type Forwarder interface {
	ForwardOne(ctx context.Context, e event.Event) error
	ForwardBatch(ctx context.Context, events []event.Event) error
}

// ConfigSource supplies the settings the dispatcher/drainer need on every
// decision: batch size, retry bound, and capacity.
type ConfigSource interface {
	Current() config.AgentConfig
}

// Dispatcher consumes the shared event channel and either forwards
// immediately or enqueues for later delivery, per §4.6.
type Dispatcher struct {
	events    <-chan event.Event
	forwarder Forwarder
	connected func() bool
	store     *queue.Store
	cfg       ConfigSource
	health    *health.Reporter
	metrics   *metrics.Registry
	logger    *slog.Logger

	agentID      string
	agentVersion string
}

// NewDispatcher builds a Dispatcher. connected reports the supervisor's
// current connectivity so this package need not import supervisor directly.
func NewDispatcher(
	events <-chan event.Event,
	forwarder Forwarder,
	connected func() bool,
	store *queue.Store,
	cfg ConfigSource,
	reporter *health.Reporter,
	reg *metrics.Registry,
	agentID, agentVersion string,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		events:       events,
		forwarder:    forwarder,
		connected:    connected,
		store:        store,
		cfg:          cfg,
		health:       reporter,
		metrics:      reg,
		logger:       logger,
		agentID:      agentID,
		agentVersion: agentVersion,
	}
}

// Run consumes events until ctx is canceled or the channel closes.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-d.events:
			if !ok {
				return
			}
			d.dispatch(ctx, e)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, e event.Event) {
	e.AgentID = d.agentID
	e.AgentVersion = d.agentVersion

	if d.connected() {
		if err := d.forwarder.ForwardOne(ctx, e); err == nil {
			d.health.IncForwarded()
			if d.metrics != nil {
				d.metrics.Forwarded.Inc()
			}
			return
		}
	}

	d.enqueue(ctx, e)
}

// enqueue implements §4.6's capacity-eviction retry: on a full queue, evict
// the single oldest entry and retry once; if still full, drop the event
// and record droppedByCapacity.
func (d *Dispatcher) enqueue(ctx context.Context, e event.Event) {
	maxCached := d.cfg.Current().MaxCachedEvents

	err := d.store.Enqueue(ctx, e, e.RetryCount, maxCached)
	if err == nil {
		d.health.IncCached()
		if d.metrics != nil {
			d.metrics.Cached.Inc()
		}
		return
	}

	if _, full := err.(queue.ErrFull); !full {
		d.logger.Error("enqueue failed", "event_id", e.ID, "error", err)
		d.health.RecordError("enqueue failed: " + err.Error())
		d.health.IncDroppedByCapacity()
		if d.metrics != nil {
			d.metrics.DroppedByCapacity.Inc()
		}
		return
	}

	if evictErr := d.store.EvictOldest(ctx); evictErr != nil {
		d.logger.Error("evict oldest failed during capacity retry", "error", evictErr)
	}

	if err := d.store.Enqueue(ctx, e, e.RetryCount, maxCached); err != nil {
		d.logger.Error("queue full after eviction retry, dropping event", "event_id", e.ID)
		d.health.RecordError("queue full, dropped event " + e.ID.String())
		d.health.IncDroppedByCapacity()
		if d.metrics != nil {
			d.metrics.DroppedByCapacity.Inc()
		}
		return
	}
	d.health.IncCached()
	if d.metrics != nil {
		d.metrics.Cached.Inc()
	}
}

// BatchForwarder is the subset of forward.Client the drainer needs.
type BatchForwarder interface {
	ForwardBatch(ctx context.Context, events []event.Event) error
}

// Drainer periodically empties the durable queue into the forwarder, per
// §4.6. It owns exclusive "consume" access to the queue so peek-then-remove
// stays race-free with the dispatcher's enqueue path.
type Drainer struct {
	forwarder BatchForwarder
	connected func() bool
	store     *queue.Store
	cfg       ConfigSource
	health    *health.Reporter
	metrics   *metrics.Registry
	logger    *slog.Logger

	trigger chan struct{}
}

// NewDrainer builds a Drainer.
func NewDrainer(
	forwarder BatchForwarder,
	connected func() bool,
	store *queue.Store,
	cfg ConfigSource,
	reporter *health.Reporter,
	reg *metrics.Registry,
	logger *slog.Logger,
) *Drainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Drainer{
		forwarder: forwarder,
		connected: connected,
		store:     store,
		cfg:       cfg,
		health:    reporter,
		metrics:   reg,
		logger:    logger,
		trigger:   make(chan struct{}, 1),
	}
}

// Trigger requests an immediate drain, intended to be wired to the
// supervisor's ConnectionUp callback. Non-blocking: a pending trigger is
// coalesced if the drainer hasn't consumed the previous one yet.
func (d *Drainer) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// Run drains on the flushInterval timer and whenever Trigger is called,
// until ctx is canceled.
func (d *Drainer) Run(ctx context.Context, flushInterval time.Duration) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drainOnce(ctx)
		case <-d.trigger:
			d.drainOnce(ctx)
		}
	}
}

func (d *Drainer) drainOnce(ctx context.Context) {
	if !d.connected() {
		return
	}

	cfg := d.cfg.Current()
	entries, err := d.store.PeekBatch(ctx, cfg.BatchSize)
	if err != nil {
		d.logger.Error("peek batch failed", "error", err)
		return
	}
	if len(entries) == 0 {
		return
	}

	events := make([]event.Event, len(entries))
	ids := make([]uuid.UUID, len(entries))
	for i, entry := range entries {
		events[i] = entry.Event
		events[i].RetryCount = entry.RetryCount
		events[i].Cached = true
		ids[i] = entry.ID()
	}

	if err := d.forwarder.ForwardBatch(ctx, events); err != nil {
		d.handleFailure(ctx, entries, ids, cfg.MaxRetries)
		return
	}

	if err := d.store.Remove(ctx, ids); err != nil {
		d.logger.Error("remove drained batch failed", "error", err)
		return
	}
	d.health.IncForwardedBy(int64(len(ids)))
	if d.metrics != nil {
		d.metrics.Forwarded.Add(float64(len(ids)))
	}
}

func (d *Drainer) handleFailure(ctx context.Context, entries []queue.Entry, ids []uuid.UUID, maxRetries int) {
	if err := d.store.BumpRetry(ctx, ids); err != nil {
		d.logger.Error("bump retry failed", "error", err)
		return
	}

	var exceeded []uuid.UUID
	for _, entry := range entries {
		if entry.RetryCount+1 > maxRetries {
			exceeded = append(exceeded, entry.ID())
		}
	}
	if len(exceeded) == 0 {
		return
	}

	if err := d.store.Remove(ctx, exceeded); err != nil {
		d.logger.Error("remove retry-exceeded entries failed", "error", err)
		return
	}
	for range exceeded {
		d.health.IncDroppedByRetry()
	}
	if d.metrics != nil {
		d.metrics.DroppedByRetry.Add(float64(len(exceeded)))
	}
	d.logger.Warn("dropped entries exceeding retry bound", "count", len(exceeded))
}

// RunMaintenance evicts expired entries and warns on near-capacity, per
// §4.6's one-minute maintenance tick.
func RunMaintenance(ctx context.Context, store *queue.Store, cfg ConfigSource, reporter *health.Reporter, reg *metrics.Registry, logger *slog.Logger, retentionWindow time.Duration) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.EvictExpired(ctx, retentionWindow)
			if err != nil {
				logger.Error("evict expired queue entries failed", "error", err)
				continue
			}
			if n > 0 {
				reporter.IncDroppedByAge(int64(n))
				if reg != nil {
					reg.DroppedByAge.Add(float64(n))
				}
				logger.Info("evicted expired queue entries", "count", n)
			}

			count, err := store.Count(ctx)
			if err != nil {
				logger.Error("queue count failed", "error", err)
				continue
			}
			maxCached := cfg.Current().MaxCachedEvents
			if maxCached > 0 && float64(count) > 0.8*float64(maxCached) {
				msg := "queue nearing capacity"
				reporter.RecordWarning(msg)
				logger.Warn(msg, "count", count, "max_cached_events", maxCached)
			}
		}
	}
}
