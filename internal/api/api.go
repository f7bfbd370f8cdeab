// Package api provides the HTTP interface of alertd.
//
// # Endpoints
//
// Alert API:
//   - POST   /api/v1/alert - Receive (ingest) an alert
//   - GET    /api/v1/alert/{id} - Get alert by id or 8-char prefix
//   - DELETE /api/v1/alert/{id} - Delete alert
//   - PUT    /api/v1/alert/{id}/status - Set alert status
//   - PUT    /api/v1/alert/{id}/tag - Add tags
//   - PUT    /api/v1/alert/{id}/untag - Remove tags
//   - PUT    /api/v1/alert/{id}/attributes - Set/unset attributes
//   - GET    /api/v1/alerts - Search alerts
//   - GET    /api/v1/alerts/history - Flattened alert history
//   - GET    /api/v1/alerts/count - Severity/status counts
//   - GET    /api/v1/alerts/top10/count - Top groups by alert count
//   - GET    /api/v1/alerts/top10/flapping - Top groups by severity churn
//
// Lookup API:
//   - GET /api/v1/environments - Per-environment counts
//   - GET /api/v1/services - Per-service counts
//
// Blackout API:
//   - GET    /api/v1/blackouts - List blackouts
//   - POST   /api/v1/blackout - Create blackout
//   - GET    /api/v1/blackout/{id} - Get blackout
//   - DELETE /api/v1/blackout/{id} - Delete blackout
//
// Heartbeat API:
//   - POST   /api/v1/heartbeat - Receive heartbeat
//   - GET    /api/v1/heartbeats - List heartbeats
//   - GET    /api/v1/heartbeat/{id} - Get heartbeat
//   - DELETE /api/v1/heartbeat/{id} - Delete heartbeat
//
// Management:
//   - GET /api/v1/health - Process and database health
//   - GET /metrics - Prometheus scrape endpoint
//
// Multi-tenancy: when customer views are enabled, the resolved
// customer scope arrives in the X-Customer header (set by the
// authenticating proxy) and narrows every operation.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alertmon/alertd/internal/config"
	"github.com/alertmon/alertd/internal/engine"
	"github.com/alertmon/alertd/internal/metrics"
	"github.com/alertmon/alertd/internal/query"
	"github.com/alertmon/alertd/pkg/types"
)

// ResponseCache is the slice of the cache the server uses. Implemented
// by *cache.Cache.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	DeletePattern(ctx context.Context, pattern string) error
}

// Server is the HTTP API server.
type Server struct {
	engine    *engine.Engine
	cfg       *config.Config
	collector *metrics.Collector // may be nil
	cache     ResponseCache      // may be nil
	logger    *slog.Logger
	mux       *http.ServeMux
}

// NewServer creates the API server and registers its routes.
func NewServer(eng *engine.Engine, cfg *config.Config, logger *slog.Logger) *Server {
	s := &Server{
		engine: eng,
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// SetCollector installs the health collector.
func (s *Server) SetCollector(c *metrics.Collector) {
	s.collector = c
}

// SetCache installs the response cache.
func (s *Server) SetCache(c ResponseCache) {
	s.cache = c
}

// Mux returns the underlying ServeMux for registering additional
// routes such as the metrics scrape handler.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Customer")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.logger.Debug("request",
		"method", r.Method,
		"path", r.URL.Path,
		"duration", time.Since(start))
}

func (s *Server) registerRoutes() {
	// Alerts
	s.mux.HandleFunc("POST /api/v1/alert", s.handleReceiveAlert)
	s.mux.HandleFunc("GET /api/v1/alert/{id}", s.handleGetAlert)
	s.mux.HandleFunc("DELETE /api/v1/alert/{id}", s.handleDeleteAlert)
	s.mux.HandleFunc("PUT /api/v1/alert/{id}/status", s.handleSetStatus)
	s.mux.HandleFunc("PUT /api/v1/alert/{id}/tag", s.handleTagAlert)
	s.mux.HandleFunc("PUT /api/v1/alert/{id}/untag", s.handleUntagAlert)
	s.mux.HandleFunc("PUT /api/v1/alert/{id}/attributes", s.handleUpdateAttributes)
	s.mux.HandleFunc("GET /api/v1/alerts", s.handleSearchAlerts)
	s.mux.HandleFunc("GET /api/v1/alerts/history", s.handleAlertHistory)
	s.mux.HandleFunc("GET /api/v1/alerts/count", s.handleAlertCounts)
	s.mux.HandleFunc("GET /api/v1/alerts/top10/count", s.handleTopNCount)
	s.mux.HandleFunc("GET /api/v1/alerts/top10/flapping", s.handleTopNFlapping)

	// Lookups
	s.mux.HandleFunc("GET /api/v1/environments", s.handleEnvironments)
	s.mux.HandleFunc("GET /api/v1/services", s.handleServices)

	// Blackouts
	s.mux.HandleFunc("GET /api/v1/blackouts", s.handleListBlackouts)
	s.mux.HandleFunc("POST /api/v1/blackout", s.handleCreateBlackout)
	s.mux.HandleFunc("GET /api/v1/blackout/{id}", s.handleGetBlackout)
	s.mux.HandleFunc("DELETE /api/v1/blackout/{id}", s.handleDeleteBlackout)

	// Heartbeats
	s.mux.HandleFunc("POST /api/v1/heartbeat", s.handleReceiveHeartbeat)
	s.mux.HandleFunc("GET /api/v1/heartbeats", s.handleListHeartbeats)
	s.mux.HandleFunc("GET /api/v1/heartbeat/{id}", s.handleGetHeartbeat)
	s.mux.HandleFunc("DELETE /api/v1/heartbeat/{id}", s.handleDeleteHeartbeat)

	// Management
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
}

// customer returns the caller's resolved tenancy scope. Empty outside
// customer-views mode.
func (s *Server) customer(r *http.Request) string {
	if !s.cfg.CustomerViews {
		return ""
	}
	return r.Header.Get("X-Customer")
}

// buildQuery parses the request's filter parameters.
func (s *Server) buildQuery(r *http.Request) (*query.Query, error) {
	return query.Build(query.Params(r.URL.Query()), s.customer(r), s.cfg.PageSize)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.collector == nil {
		s.writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	health, err := s.collector.Health(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "health check failed: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, health)
}

func (s *Server) readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// writeEngineError maps domain errors onto HTTP statuses. Suppression
// is deliberately a success shape: the alert was accepted, just not
// persisted.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	var verr *types.ValidationError
	switch {
	case errors.As(err, &verr):
		s.writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, types.ErrSuppressed):
		s.writeJSON(w, http.StatusAccepted, map[string]string{
			"status":  "ok",
			"message": "alert suppressed by blackout period",
		})
	case errors.Is(err, types.ErrRateLimited):
		s.writeError(w, http.StatusTooManyRequests, "too many alerts, try again later")
	case errors.Is(err, types.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, types.ErrConflict):
		s.writeError(w, http.StatusConflict, "resource already exists")
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// aggregateKeyPatterns are the cached response families every alert
// write invalidates.
var aggregateKeyPatterns = []string{"counts:*", "top10:*", "environments:*", "services:*"}

// invalidateAggregates evicts cached aggregate responses after a write
// changes the underlying alert set. Eviction failures only shorten the
// staleness guarantee to the TTL, so they are logged and swallowed.
func (s *Server) invalidateAggregates(ctx context.Context) {
	if s.cache == nil {
		return
	}
	for _, pattern := range aggregateKeyPatterns {
		if err := s.cache.DeletePattern(ctx, pattern); err != nil {
			s.logger.Warn("failed to invalidate cached responses", "pattern", pattern, "error", err)
		}
	}
}

// cachedJSON serves the cached response for key if present, otherwise
// computes it with fn and caches it for ttl. Cache errors fall through
// to a direct computation.
func (s *Server) cachedJSON(w http.ResponseWriter, r *http.Request, key string, ttl time.Duration, fn func() (any, error)) {
	if s.cache != nil {
		if data, err := s.cache.Get(r.Context(), key); err == nil && data != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write(data)
			return
		}
	}

	v, err := fn()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(r.Context(), key, v, ttl); err != nil {
			s.logger.Warn("failed to cache response", "key", key, "error", err)
		}
	}
	s.writeJSON(w, http.StatusOK, v)
}
