// Package ops exposes the operator HTTP listener: a health probe and a
// stats snapshot. It carries no reader-facing API.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"firefeed/pipeline/internal/pipeline"
	"firefeed/pipeline/internal/translate"
)

// Stats is the /stats response body.
type Stats struct {
	Pipeline *pipeline.Summary       `json:"pipeline"`
	Queue    *translate.QueueStats   `json:"queue,omitempty"`
	Models   *translate.ManagerStats `json:"models,omitempty"`
}

// Server serves the ops endpoints until shut down.
type Server struct {
	http        *http.Server
	coordinator *pipeline.Coordinator
	queue       *translate.Queue
	models      *translate.ModelManager
}

// NewServer builds the ops listener. queue and models may be nil when
// translation is disabled; their sections are omitted from /stats.
func NewServer(listenAddr string, logger zerolog.Logger, coordinator *pipeline.Coordinator, queue *translate.Queue, models *translate.ModelManager) *Server {
	logger = logger.With().Str("service", "ops").Logger()

	s := &Server{
		coordinator: coordinator,
		queue:       queue,
		models:      models,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthCheckHandler)
	mux.HandleFunc("GET /stats", s.statsHandler)

	// Middleware chain for logging and request tracking
	h := hlog.NewHandler(logger)(mux)
	h = hlog.MethodHandler("method")(h)
	h = hlog.URLHandler("url")(h)
	h = hlog.RemoteAddrHandler("remote_addr")(h)
	h = hlog.RequestIDHandler("req_id", "Request-Id")(h)
	h = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("HTTP Request")
	})(h)

	s.http = &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Start runs the listener in the background and returns a channel that
// receives at most one startup error.
func (s *Server) Start(logger zerolog.Logger) <-chan error {
	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("address", s.http.Addr).Msg("Ops server starting")
		err := s.http.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	return serverErr
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := Stats{
		Pipeline: s.coordinator.LastSummary(),
	}
	if s.queue != nil {
		qs := s.queue.Stats()
		stats.Queue = &qs
	}
	if s.models != nil {
		ms := s.models.Stats()
		stats.Models = &ms
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Error writing stats response")
	}
}

// healthCheckHandler responds to health check requests with a simple 200 OK.
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	log.Debug().Msg("Health check request received")

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Error().Err(err).Msg("Error writing health check response")
	}
}
