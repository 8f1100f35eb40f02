/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package api provides the HTTP API for the mirror server: connection
// lifecycle, stream discovery, and runtime stats.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/carverauto/mirrord/pkg/logger"
	"github.com/carverauto/mirrord/pkg/models"
	"github.com/carverauto/mirrord/pkg/presence"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// SessionTracker is the connection-lifecycle capability the API exposes.
// Implemented by session.Tracker.
type SessionTracker interface {
	InitializeConnection(ctx context.Context, deviceID, deviceName string) error
	HandleClientConnection(ctx context.Context) error
	HandleClientDisconnection(ctx context.Context) error
	UpdateHeartbeat(ctx context.Context) error
	IsConnected() bool
	ConnectionStatus() models.ConnectionStatus
}

// StreamSource is the streaming capability the API exposes.
// Implemented by hls.Store.
type StreamSource interface {
	StreamURL() (string, error)
	Stats() models.StreamStats
	OutputDir() string
}

// Optimizer reports adaptive-control state. Implemented by qos.Controller.
type Optimizer interface {
	OptimizationStats() models.OptimizationStats
}

// APIServer serves the mirror HTTP API on a gorilla/mux router.
type APIServer struct {
	router     *mux.Router
	httpServer *http.Server

	tracker   SessionTracker
	store     StreamSource
	optimizer Optimizer
	directory presence.Directory
	logger    logger.Logger
}

// NewAPIServer creates a new API server instance with the given options.
func NewAPIServer(options ...func(server *APIServer)) *APIServer {
	s := &APIServer{
		router: mux.NewRouter(),
		logger: logger.NewTestLogger(),
	}

	for _, o := range options {
		o(s)
	}

	s.setupRoutes()

	return s
}

// WithTracker adds a session tracker to the API server.
func WithTracker(t SessionTracker) func(server *APIServer) {
	return func(server *APIServer) {
		server.tracker = t
	}
}

// WithStore adds a stream source to the API server.
func WithStore(st StreamSource) func(server *APIServer) {
	return func(server *APIServer) {
		server.store = st
	}
}

// WithOptimizer adds an optimizer to the API server.
func WithOptimizer(o Optimizer) func(server *APIServer) {
	return func(server *APIServer) {
		server.optimizer = o
	}
}

// WithDirectory adds a presence directory to the API server.
func WithDirectory(d presence.Directory) func(server *APIServer) {
	return func(server *APIServer) {
		server.directory = d
	}
}

// WithLogger sets the logger for the API server.
func WithLogger(log logger.Logger) func(server *APIServer) {
	return func(server *APIServer) {
		server.logger = log
	}
}

// setupRoutes configures the HTTP routes for the API server.
func (s *APIServer) setupRoutes() {
	s.router.Use(CommonMiddleware)
	s.router.Use(RequestLogging(s.logger))

	// OPTIONS is allowed everywhere so CORS preflights reach the
	// middleware instead of mux's 405 handler.
	s.router.HandleFunc("/health", s.getHealth).Methods(http.MethodGet, http.MethodOptions)

	s.router.HandleFunc("/connection/initialize", s.postInitialize).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/connection/connect", s.postConnect).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/connection/disconnect", s.postDisconnect).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/connection/heartbeat", s.postHeartbeat).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/connection/status", s.getConnectionStatus).Methods(http.MethodGet, http.MethodOptions)

	s.router.HandleFunc("/stream/url", s.getStreamURL).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/stream/stats", s.getStreamStats).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/optimization/stats", s.getOptimizationStats).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/devices/online", s.getOnlineDevices).Methods(http.MethodGet, http.MethodOptions)

	// Playlist and segments are plain files in the store's output
	// directory; serve them where the manifest URLs point.
	if s.store != nil {
		s.router.PathPrefix("/stream/").Handler(
			http.StripPrefix("/stream/", http.FileServer(http.Dir(s.store.OutputDir()))))
	}
}

// Router exposes the configured router, mainly for tests.
func (s *APIServer) Router() *mux.Router {
	return s.router
}

// Start begins serving HTTP requests on the specified address.
func (s *APIServer) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}

	s.logger.Info().Str("addr", addr).Msg("Starting API server")

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the API server.
func (s *APIServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *APIServer) getHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// writeJSON encodes a response as JSON with the given status code.
func (s *APIServer) writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Error encoding response")
	}
}

// writeSuccess is the uniform body for state-changing operations.
func (s *APIServer) writeSuccess(w http.ResponseWriter) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// writeError maps an operation failure to {"error": msg}.
func (s *APIServer) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}
