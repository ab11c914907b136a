// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the router over HTTP: request processing, health,
// and statistics endpoints behind bearer auth, recovery, and request
// logging middleware.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/modmesh/internal/comm"
	"github.com/jeranaias/modmesh/internal/message"
	"github.com/jeranaias/modmesh/internal/routing"
)

// ============================================================================
// SERVER
// ============================================================================

const (
	// maxRequestBodySize caps inbound request bodies.
	maxRequestBodySize = 1 * 1024 * 1024

	// shutdownTimeout bounds graceful shutdown.
	shutdownTimeout = 10 * time.Second
)

// Server is the HTTP ingress in front of the router.
type Server struct {
	addr   string
	router *routing.Router
	mux    *http.ServeMux
	server *http.Server
	logger *zap.Logger

	manager *comm.Manager // optional, powers channel health in /health

	started time.Time
	mu      sync.RWMutex
}

// Options configures a Server.
type Options struct {
	// Addr is the listen address.
	Addr string
	// AuthToken guards all endpoints. Empty disables auth.
	AuthToken string
	// Manager, when set, contributes channel health to GET /health.
	Manager *comm.Manager
	// ReadTimeout / WriteTimeout bound request handling.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// New builds a Server around router.
func New(router *routing.Router, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Server{
		addr:    opts.Addr,
		router:  router,
		mux:     http.NewServeMux(),
		logger:  opts.Logger,
		manager: opts.Manager,
		started: time.Now(),
	}
	s.setupRoutes()

	wrap := Chain(
		RecoveryMiddleware(opts.Logger),
		LoggingMiddleware(opts.Logger),
		AuthMiddleware(opts.AuthToken),
	)
	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      wrap(s.mux),
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// ListenAndServe blocks serving requests until Shutdown or failure.
func (s *Server) ListenAndServe() error {
	s.logger.Info("ingress listening", zap.String("addr", s.addr))
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
	}
	return s.server.Shutdown(ctx)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /v1/process", s.handleProcess)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /stats", s.handleStats)
}

// ============================================================================
// HANDLERS
// ============================================================================

// processRequest is the POST /v1/process body.
type processRequest struct {
	UserID     string            `json:"user_id"`
	Text       string            `json:"text"`
	Context    map[string]string `json:"context,omitempty"`
	Parameters map[string]any    `json:"parameters,omitempty"`
	Priority   int               `json:"priority,omitempty"`
	TimeoutSec float64           `json:"timeout_seconds,omitempty"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
}

// handleProcess routes one request and returns the processing response.
// Routing failures still yield 200 with the error inside the response body;
// only malformed input yields 4xx.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var body processRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.Text == "" {
		writeJSONError(w, http.StatusBadRequest, "text must not be empty")
		return
	}

	req := message.NewProcessingRequest(body.UserID, body.Text)
	if len(body.Context) > 0 {
		req.Context = body.Context
	}
	req.Parameters = body.Parameters
	req.Metadata = body.Metadata
	if p := message.Priority(body.Priority); p.Valid() {
		req.Priority = p
	}
	if body.TimeoutSec > 0 {
		req.Timeout = time.Duration(body.TimeoutSec * float64(time.Second))
	}

	resp := s.router.Route(req)
	writeJSON(w, http.StatusOK, resp)
}

// healthResponse is the GET /health body.
type healthResponse struct {
	Status   string          `json:"status"`
	Uptime   string          `json:"uptime"`
	Channels map[string]bool `json:"channels,omitempty"`
}

// handleHealth reports process liveness plus per-channel transport health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	out := healthResponse{
		Status: "ok",
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}
	if s.manager != nil {
		out.Channels = s.manager.HealthCheckAll()
		for _, healthy := range out.Channels {
			if !healthy {
				out.Status = "degraded"
				break
			}
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// statsResponse is the GET /stats body.
type statsResponse struct {
	Uptime  string        `json:"uptime"`
	Modules []moduleStats `json:"modules"`
}

type moduleStats struct {
	ModuleType       string  `json:"module_type"`
	RequestCount     int64   `json:"request_count"`
	AvgConfidence    float64 `json:"avg_confidence"`
	AvgProcessingSec float64 `json:"avg_processing_seconds"`
}

// handleStats exposes per-module-type rolling statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snapshots := s.router.Stats()
	modules := make([]moduleStats, len(snapshots))
	for i, snap := range snapshots {
		modules[i] = moduleStats{
			ModuleType:       snap.ModuleType.String(),
			RequestCount:     snap.RequestCount,
			AvgConfidence:    snap.AvgConfidence,
			AvgProcessingSec: snap.AvgProcessingTime.Seconds(),
		}
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Modules: modules,
	})
}

// writeJSON writes a JSON response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error body.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
