// Package admin exposes the local administrative HTTP surface of §4.9: a
// small gorilla/mux router serving liveness and configuration management
// endpoints. The /api/configuration routes are guarded by the same
// bearer-token scheme the forwarder client uses outbound; /health and
// /metrics are served without authentication. Adapted from the teacher's
// internal/api/router.go and internal/api/middleware/auth.go, simplified
// from their dual ApiKey/JWT
// scheme to bearer-only, since the spec names only one inbound credential.
package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/siemagent/agent/internal/config"
	"github.com/siemagent/agent/internal/health"
)

// ConfigManager is the subset of config.Manager the admin surface drives.
type ConfigManager interface {
	Current() config.AgentConfig
	Validate(candidate config.AgentConfig) config.ValidationResult
	Apply(ctx context.Context, candidate config.AgentConfig, source config.Source) (config.Updated, error)
	Backup(ctx context.Context) error
	Restore(ctx context.Context) (config.Updated, error)
}

// HealthProvider supplies the current health snapshot for GET /health.
type HealthProvider interface {
	Snapshot(ctx context.Context) health.Snapshot
}

// Server is the admin HTTP surface.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New builds the admin Server bound to listenAddr, requiring bearerToken on
// every /api/configuration request; /health and /metrics do not check it.
// metricsHandler serves /metrics; pass nil to omit the route
// (e.g. in tests that don't need Prometheus exposition).
func New(listenAddr, bearerToken string, cfgMgr ConfigManager, healthProvider HealthProvider, metricsHandler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	router := mux.NewRouter()
	router.Use(requestLogger(logger))

	h := &handlers{cfgMgr: cfgMgr, health: healthProvider, logger: logger}

	router.HandleFunc("/health", h.getHealth).Methods(http.MethodGet)
	if metricsHandler != nil {
		router.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}

	authed := router.PathPrefix("/api/configuration").Subrouter()
	authed.Use(bearerAuth(bearerToken))
	authed.HandleFunc("/current", h.getCurrentConfig).Methods(http.MethodGet)
	authed.HandleFunc("/update", h.postUpdateConfig).Methods(http.MethodPost)
	authed.HandleFunc("/validate", h.postValidateConfig).Methods(http.MethodPost)
	authed.HandleFunc("/backup", h.postBackupConfig).Methods(http.MethodPost)
	authed.HandleFunc("/restore", h.postRestoreConfig).Methods(http.MethodPost)

	return &Server{
		httpServer: &http.Server{
			Addr:              listenAddr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// ListenAndServe blocks serving the admin surface. Per §5/§7, failure to
// bind the listener is one of the few fatal startup errors.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the admin surface within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("admin request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		})
	}
}

func bearerAuth(token string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) || strings.TrimPrefix(header, prefix) != token {
				writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
