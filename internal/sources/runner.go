// Package sources defines the common source runner contract of §4.3 and the
// filtering logic shared by every concrete runner (filelog, osevent,
// syslog). Grounded in the teacher's tagged-variant registries (e.g.
// internal/business/publishing's named target constructors) rather than a
// base-class hierarchy, per the closed-set redesign note in §9.
package sources

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/siemagent/agent/internal/config"
	"github.com/siemagent/agent/internal/event"
	"github.com/siemagent/agent/internal/health"
	"github.com/siemagent/agent/internal/metrics"
)

// Runner is the common contract every source variant implements, per §4.3.
type Runner interface {
	Name() string
	Type() string
	Enabled() bool
	Initialize(ctx context.Context) error
	Run(ctx context.Context)
	Stop()
}

// Constructor builds a Runner from its configuration, the shared output
// channel, and shared observability collaborators.
type Constructor func(cfg config.SourceConfig, out chan<- event.Event, reporter *health.Reporter, reg *metrics.Registry, logger *slog.Logger) (Runner, error)

// registry maps a SourceConfig.Type string to its constructor. Populated by
// each concrete runner package's init() so importing the package (even for
// its side effect) registers the type — mirroring the teacher's driver
// registration pattern for SQL/storage backends.
var (
	registryMu sync.Mutex
	registry   = map[string]Constructor{}
)

// Register adds a constructor for the given source type. Intended to be
// called from concrete runner packages' init() functions.
func Register(sourceType string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[sourceType] = ctor
}

// Build looks up the constructor for cfg.Type and builds a Runner. Per
// §4.3/§9, an unrecognized type is not a fatal error — the source is simply
// unusable and the caller should log a warning and skip it.
func Build(cfg config.SourceConfig, out chan<- event.Event, reporter *health.Reporter, reg *metrics.Registry, logger *slog.Logger) (Runner, error) {
	registryMu.Lock()
	ctor, ok := registry[cfg.Type]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unrecognized source type %q", cfg.Type)
	}
	return ctor(cfg, out, reporter, reg, logger)
}

// Filter applies severityFilter/includePatterns/excludePatterns, per §4.3.
// Returns true when the event should be dropped (filtered out).
func Filter(cfg config.SourceConfig, e event.Event) bool {
	if cfg.SeverityFilter != "" && !strings.EqualFold(string(e.Severity), cfg.SeverityFilter) {
		return true
	}

	if len(cfg.IncludePatterns) > 0 {
		haystack := e.Description + " " + e.RawPayload
		matched := false
		for _, p := range cfg.IncludePatterns {
			if p != "" && strings.Contains(haystack, p) {
				matched = true
				break
			}
		}
		if !matched {
			return true
		}
	}

	if len(cfg.ExcludePatterns) > 0 {
		haystack := e.Description + " " + e.RawPayload
		for _, p := range cfg.ExcludePatterns {
			if p != "" && strings.Contains(haystack, p) {
				return true
			}
		}
	}

	return false
}

// Emit applies filtering and either sends e onto out or records it as
// filtered, per §4.3's "applied by every runner before emit" contract.
// Non-blocking with respect to cancellation: a canceled ctx aborts the send.
func Emit(ctx context.Context, cfg config.SourceConfig, e event.Event, out chan<- event.Event, reporter *health.Reporter, reg *metrics.Registry) {
	if Filter(cfg, e) {
		reporter.IncFiltered()
		if reg != nil {
			reg.Filtered.Inc()
		}
		return
	}
	if reg != nil {
		reg.SourceEvents.WithLabelValues(cfg.Name, string(e.EventType)).Inc()
	}
	select {
	case out <- e:
	case <-ctx.Done():
	}
}
