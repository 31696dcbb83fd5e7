// Package agent is the composition root: it wires the durable queue, the
// forwarder client, the connectivity supervisor, the configuration manager,
// the dispatcher/drainer pair, the source runner registry, and the admin
// HTTP surface into a single running process, following the teacher's
// cmd/server/main.go startup/shutdown sequence (signal.Notify + a bounded
// context.WithTimeout shutdown), generalized from one hardcoded HTTP server
// into the agent's several concurrently-run components.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/siemagent/agent/internal/admin"
	"github.com/siemagent/agent/internal/config"
	"github.com/siemagent/agent/internal/dispatch"
	"github.com/siemagent/agent/internal/event"
	"github.com/siemagent/agent/internal/forward"
	"github.com/siemagent/agent/internal/health"
	"github.com/siemagent/agent/internal/metrics"
	"github.com/siemagent/agent/internal/queue"
	"github.com/siemagent/agent/internal/sources"
	"github.com/siemagent/agent/internal/supervisor"

	_ "github.com/siemagent/agent/internal/sources/filelog"
	_ "github.com/siemagent/agent/internal/sources/osevent"
	_ "github.com/siemagent/agent/internal/sources/syslog"
)

// shutdownBudget bounds how long Stop waits for every component to exit,
// per §5. The admin HTTP surface gets its own longer allowance to drain
// in-flight requests, matching the teacher's 30s server.Shutdown budget.
const (
	shutdownBudget      = 10 * time.Second
	adminShutdownBudget = 30 * time.Second
	eventChannelDepth   = 1000
)

// Agent owns every long-running component of the pipeline.
type Agent struct {
	logger *slog.Logger

	cfgManager *config.Manager
	store      *queue.Store
	fwdClient  *forward.Client
	supervis   *supervisor.Supervisor
	reporter   *health.Reporter
	metrics    *metrics.Registry
	admin      *admin.Server

	dispatcher *dispatch.Dispatcher
	drainer    *dispatch.Drainer

	configUpdates    <-chan config.Updated
	lastConfigUpdate atomic.Pointer[time.Time]

	events chan event.Event

	runnersMu sync.Mutex
	runners   []sources.Runner

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an Agent rooted at workingDir, bound to the admin listen
// address, with the given bootstrap-derived logger. It loads (or bootstraps)
// the on-disk AgentConfig and opens the durable queue before returning.
func New(ctx context.Context, workingDir, adminListen string, logger *slog.Logger) (*Agent, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(workingDir, 0o700); err != nil {
		return nil, fmt.Errorf("create working directory: %w", err)
	}

	store := config.NewStore(workingDir)
	initial, doc, err := store.Load()
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load agent configuration: %w", err)
		}
		initial = defaultAgentConfig()
		if writeErr := store.Write(initial, doc); writeErr != nil {
			return nil, fmt.Errorf("write initial agent configuration: %w", writeErr)
		}
		logger.Info("no configuration document found, wrote defaults", "path", filepath.Join(workingDir, "agent-config.json"))
	}

	cfgManager := config.NewManager(initial, doc, store, logger)

	queuePath := filepath.Join(workingDir, "queue.db")
	queueStore, err := queue.Open(ctx, queuePath, logger)
	if err != nil {
		return nil, fmt.Errorf("open durable queue: %w", err)
	}

	reg := metrics.NewRegistry()
	reporter := health.NewReporter(workingDir)
	sup := supervisor.New(logger)

	fwdClient := forward.New(initial.Forwarder, initial.AgentID, initial.AgentVersion, sup, logger)

	events := make(chan event.Event, eventChannelDepth)

	dispatcher := dispatch.NewDispatcher(events, fwdClient, connectedFunc(sup), queueStore, cfgManager, reporter, reg, initial.AgentID, initial.AgentVersion, logger)
	drainer := dispatch.NewDrainer(fwdClient, connectedFunc(sup), queueStore, cfgManager, reporter, reg, logger)
	sup.OnConnectionUp(drainer.Trigger)

	a := &Agent{
		logger:        logger,
		cfgManager:    cfgManager,
		store:         queueStore,
		fwdClient:     fwdClient,
		supervis:      sup,
		reporter:      reporter,
		metrics:       reg,
		dispatcher:    dispatcher,
		drainer:       drainer,
		configUpdates: cfgManager.Subscribe(),
		events:        events,
	}

	a.admin = admin.New(adminListen, initial.Forwarder.APIKey, &configManagerAdapter{cfgManager}, a, reg.Handler(), logger)

	return a, nil
}

func connectedFunc(sup *supervisor.Supervisor) func() bool {
	return func() bool { return sup.State() == supervisor.Connected }
}

// defaultAgentConfig seeds a new install with conservative defaults,
// requiring the operator to fill in Forwarder credentials via the admin
// surface or a manual config edit before the agent can reach a collector.
func defaultAgentConfig() config.AgentConfig {
	return config.AgentConfig{
		AgentID:                  "unconfigured-agent",
		AgentVersion:             "1.0.0",
		Forwarder:                config.ForwarderConfig{APIBaseURL: "https://collector.invalid", APIKey: "changeme"},
		BatchSize:                100,
		FlushIntervalSec:         10,
		MaxRetries:               5,
		RetryDelaySec:            5,
		MaxCachedEvents:          10000,
		HealthCheckIntervalSec:   60,
		ConfigRefreshIntervalSec: 300,
		EnableLocalAnalysis:      false,
		EnableEventFiltering:     true,
		LogLevel:                 config.LogLevelInformation,
		Sources:                  nil,
	}
}

// Run starts every component and blocks until ctx is canceled. It returns
// the first fatal startup error, if any; a canceled ctx during steady-state
// operation is not an error.
func (a *Agent) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	cfg := a.cfgManager.Current()
	if err := a.startSources(runCtx, cfg); err != nil {
		cancel()
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.dispatcher.Run(runCtx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.drainer.Run(runCtx, time.Duration(cfg.FlushIntervalSec)*time.Second)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		dispatch.RunMaintenance(runCtx, a.store, a.cfgManager, a.reporter, a.metrics, a.logger, config.RetentionWindow)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.supervis.RunProber(runCtx, a.fwdClient, time.Duration(cfg.HealthCheckIntervalSec)*time.Second)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.runHealthReporting(runCtx, time.Duration(cfg.HealthCheckIntervalSec)*time.Second)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.runConfigRefresh(runCtx, time.Duration(cfg.ConfigRefreshIntervalSec)*time.Second)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.watchConfigUpdates(runCtx)
	}()

	adminErrCh := make(chan error, 1)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info("admin surface starting")
		if err := a.admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			adminErrCh <- fmt.Errorf("admin surface failed: %w", err)
			return
		}
		adminErrCh <- nil
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-adminErrCh:
		cancel()
		return err
	}
}

// Stop gracefully shuts down every component within a bounded budget,
// mirroring the teacher's 30s server.Shutdown call under a
// context.WithTimeout, generalized across this agent's several components.
func (a *Agent) Stop() {
	if a.cancel != nil {
		a.cancel()
	}

	adminCtx, cancel := context.WithTimeout(context.Background(), adminShutdownBudget)
	defer cancel()
	if err := a.admin.Shutdown(adminCtx); err != nil {
		a.logger.Error("admin surface shutdown failed", "error", err)
	}

	a.runnersMu.Lock()
	for _, r := range a.runners {
		r.Stop()
	}
	a.runnersMu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownBudget):
		a.logger.Warn("shutdown budget exceeded, some components may not have exited cleanly")
	}

	a.fwdClient.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Error("close durable queue failed", "error", err)
	}
}

// startSources builds and starts every enabled, recognized source runner.
// A disabled source is skipped silently; an unrecognized source, or one whose
// Initialize fails, is skipped with a warning, per §4.3 — never a fatal
// startup error.
func (a *Agent) startSources(ctx context.Context, cfg config.AgentConfig) error {
	a.runnersMu.Lock()
	defer a.runnersMu.Unlock()

	for _, sc := range cfg.Sources {
		if !sc.Enabled {
			continue
		}
		runner, err := sources.Build(sc, a.events, a.reporter, a.metrics, a.logger)
		if err != nil {
			a.logger.Warn("skipping source with no registered constructor", "name", sc.Name, "type", sc.Type, "error", err)
			a.reporter.RecordWarning(fmt.Sprintf("source %s: %s", sc.Name, err))
			continue
		}
		if err := runner.Initialize(ctx); err != nil {
			a.logger.Warn("source initialize failed, skipping", "name", sc.Name, "type", sc.Type, "error", err)
			a.reporter.RecordWarning(fmt.Sprintf("source %s failed to initialize: %s", sc.Name, err))
			continue
		}

		a.runners = append(a.runners, runner)
		a.wg.Add(1)
		go func(r sources.Runner) {
			defer a.wg.Done()
			r.Run(ctx)
		}(runner)
		a.logger.Info("source runner started", "name", sc.Name, "type", sc.Type)
	}
	return nil
}

func (a *Agent) runHealthReporting(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := a.Snapshot(ctx)
			if a.supervis.State() != supervisor.Connected {
				continue
			}
			if err := a.fwdClient.SendHealth(ctx, snapshot); err != nil {
				a.logger.Debug("send health snapshot failed", "error", err)
			}
		}
	}
}

// watchConfigUpdates records the timestamp of every successfully applied
// configuration so the health snapshot's lastConfigUpdate (§3) reflects
// reality instead of staying permanently absent.
func (a *Agent) watchConfigUpdates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-a.configUpdates:
			if !ok {
				return
			}
			ts := update.Timestamp
			a.lastConfigUpdate.Store(&ts)
		}
	}
}

func (a *Agent) runConfigRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.supervis.State() != supervisor.Connected {
				continue
			}
			if err := a.cfgManager.Refresh(ctx, a.fwdClient); err != nil {
				a.logger.Debug("config refresh failed", "error", err)
			}
		}
	}
}

// Snapshot implements admin.HealthProvider.
func (a *Agent) Snapshot(ctx context.Context) health.Snapshot {
	return a.reporter.Build(ctx, health.SnapshotInputs{
		Connected:             a.supervis.State() == supervisor.Connected,
		LastSuccessfulConnect: a.supervis.LastSuccessfulConnect(),
		LastConfigUpdate:      a.lastConfigUpdate.Load(),
	})
}

// configManagerAdapter narrows config.Manager to admin.ConfigManager so the
// admin package never needs to import the wider Manager surface (Subscribe,
// Refresh) it doesn't use.
type configManagerAdapter struct {
	m *config.Manager
}

func (c *configManagerAdapter) Current() config.AgentConfig { return c.m.Current() }
func (c *configManagerAdapter) Validate(candidate config.AgentConfig) config.ValidationResult {
	return c.m.Validate(candidate)
}
func (c *configManagerAdapter) Apply(ctx context.Context, candidate config.AgentConfig, source config.Source) (config.Updated, error) {
	return c.m.Apply(ctx, candidate, source)
}
func (c *configManagerAdapter) Backup(ctx context.Context) error {
	return c.m.Backup(ctx)
}
func (c *configManagerAdapter) Restore(ctx context.Context) (config.Updated, error) {
	return c.m.Restore(ctx)
}
