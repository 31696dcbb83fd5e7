// Package osevent implements the OsEvent source runner of §4.3: an opt-in
// subscription to the host's native event log service. Per §9's Open
// Question resolution, this runner never backfills — it only emits records
// delivered after the subscription opens, mirroring filelog's
// seek-to-end-at-startup semantics. On a host without a native event log
// service, Initialize reports the source unsupported and the runner is
// disabled without error, per §4.3/§7 ("source init failure").
package osevent

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/siemagent/agent/internal/config"
	"github.com/siemagent/agent/internal/event"
	"github.com/siemagent/agent/internal/health"
	"github.com/siemagent/agent/internal/metrics"
	"github.com/siemagent/agent/internal/sources"
)

func init() {
	sources.Register("OsEvent", New)
}

// Record is one delivered native event log record.
type Record struct {
	NativeID int
	Provider string
	Level    int
	Task     int
	Keywords uint64
	Message  string
}

// Subscription abstracts the host-specific event log service. The only
// implementation in this package is unsupportedSubscription, which
// hostSubscription returns on every platform.
type Subscription interface {
	Supported() bool
	Open(logName, queryFilter string) (<-chan Record, error)
	Close()
}

// unsupportedSubscription is used on any host without a recognized native
// event log facility.
type unsupportedSubscription struct{}

func (unsupportedSubscription) Supported() bool { return false }
func (unsupportedSubscription) Open(string, string) (<-chan Record, error) {
	return nil, errUnsupported
}
func (unsupportedSubscription) Close() {}

var errUnsupported = &unsupportedError{}

type unsupportedError struct{}

func (*unsupportedError) Error() string { return "host event log service not supported on this platform" }

// hostSubscription selects the subscription implementation for the running
// platform. No platform is reported supported: Windows, the only host with
// the native event log this runner targets, also gets
// unsupportedSubscription, since no Windows Event Log binding is
// implemented.
func hostSubscription() Subscription {
	if runtime.GOOS == "windows" {
		return unsupportedSubscription{} // TODO: wire a real Windows Event Log subscription.
	}
	return unsupportedSubscription{}
}

// Runner subscribes to the host event log service, when supported.
type Runner struct {
	cfg      config.SourceConfig
	out      chan<- event.Event
	reporter *health.Reporter
	metrics  *metrics.Registry
	logger   *slog.Logger

	sub        Subscription
	records    <-chan Record
	supported  bool
	stopOnce   sync.Once
	stopCh     chan struct{}
}

// New builds an osevent Runner. Settings recognized: "logName" (string),
// "queryFilter" (string).
func New(cfg config.SourceConfig, out chan<- event.Event, reporter *health.Reporter, reg *metrics.Registry, logger *slog.Logger) (sources.Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:      cfg,
		out:      out,
		reporter: reporter,
		metrics:  reg,
		logger:   logger,
		sub:      hostSubscription(),
		stopCh:   make(chan struct{}),
	}, nil
}

func (r *Runner) Name() string  { return r.cfg.Name }
func (r *Runner) Type() string  { return "OsEvent" }
func (r *Runner) Enabled() bool { return r.cfg.Enabled }

// Initialize opens the subscription. When the host doesn't support a native
// event log service, this disables the runner without returning an error,
// per §4.3.
func (r *Runner) Initialize(ctx context.Context) error {
	if !r.sub.Supported() {
		r.logger.Warn("osevent: host event log service unsupported, source disabled", "source", r.cfg.Name)
		r.reporter.RecordWarning("osevent source disabled: unsupported on this host")
		r.supported = false
		return nil
	}

	logName, _ := r.cfg.Settings["logName"].(string)
	queryFilter, _ := r.cfg.Settings["queryFilter"].(string)

	records, err := r.sub.Open(logName, queryFilter)
	if err != nil {
		r.logger.Warn("osevent: failed to open subscription, source disabled", "error", err)
		r.reporter.RecordWarning("osevent subscription failed: " + err.Error())
		r.supported = false
		return nil
	}
	r.records = records
	r.supported = true
	return nil
}

// Run consumes delivered records until ctx is canceled. A no-op when the
// subscription is unsupported.
func (r *Runner) Run(ctx context.Context) {
	if !r.supported {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case rec, ok := <-r.records:
			if !ok {
				return
			}
			r.emit(ctx, rec)
		}
	}
}

// Stop idempotently closes the subscription.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.sub.Close()
	})
}

func (r *Runner) emit(ctx context.Context, rec Record) {
	e := event.New(r.cfg.Name, event.TypeOsEvent, time.Now())
	e.Description = event.ClampDescription(rec.Message)
	e.RawPayload = rec.Message
	e.Severity = event.NormalizeOsEventSeverity(rec.Level)
	e.CustomFields["nativeId"] = rec.NativeID
	e.CustomFields["provider"] = rec.Provider
	e.CustomFields["level"] = rec.Level
	e.CustomFields["task"] = rec.Task
	e.CustomFields["keywords"] = rec.Keywords

	r.reporter.IncCollected()
	if r.metrics != nil {
		r.metrics.Collected.Inc()
	}
	sources.Emit(ctx, r.cfg, e, r.out, r.reporter, r.metrics)
}
