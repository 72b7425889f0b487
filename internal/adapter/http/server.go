// Package http exposes the pipeline as an HTTP service: a POST /geocode
// endpoint alongside health, readiness, and metrics routes.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/geocode-csv/internal/domain"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxGeocodeBodyBytes bounds a single /geocode request body, the way the
// spec asks every HTTP entry point to reject unreasonably large payloads
// outright rather than buffering them in full first.
const maxGeocodeBodyBytes = 16 * 1024

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Geocoder is the narrow slice of domain.Geocoder the HTTP adapter needs.
type Geocoder interface {
	ColumnNames() []string
	GeocodeAddresses(ctx context.Context, addrs []domain.Address) ([]*domain.Geocoded, error)
}

// Server exposes health, readiness, metrics, and geocode HTTP endpoints.
type Server struct {
	httpServer *http.Server
	geocoder   Geocoder
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and
// POST /geocode routes.
func NewServer(addr string, geocoder Geocoder, ready ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		geocoder: geocoder,
		logger:   logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /geocode", s.handleGeocode)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

type addressJSON struct {
	Street  string  `json:"street"`
	City    *string `json:"city,omitempty"`
	State   *string `json:"state,omitempty"`
	Zipcode *string `json:"zipcode,omitempty"`
}

type geocodeRequest struct {
	Addresses []addressJSON `json:"addresses"`
}

// geocodeResponse carries one result per input address: nil for "no
// match", or an object keyed by column name otherwise.
type geocodeResponse struct {
	Results []map[string]string `json:"results"`
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	correlationID := uuid.NewString()
	logger := s.logger.With("correlation_id", correlationID)

	if ct := r.Header.Get("Content-Type"); ct != "application/json" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Content-Type must be application/json"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxGeocodeBodyBytes)

	var req geocodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid request body: " + err.Error()})
		return
	}

	addrs := make([]domain.Address, len(req.Addresses))
	for i, a := range req.Addresses {
		addrs[i] = domain.Address{Street: a.Street, City: a.City, State: a.State, Zipcode: a.Zipcode}
	}

	results, err := s.geocoder.GeocodeAddresses(r.Context(), addrs)
	if err != nil {
		logger.Error("geocode request failed", "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		writeJSON(w, status, map[string]string{"message": err.Error()})
		return
	}

	columns := s.geocoder.ColumnNames()
	resp := geocodeResponse{Results: make([]map[string]string, len(results))}
	for i, g := range results {
		if g == nil {
			continue
		}
		row := make(map[string]string, len(columns))
		for j, name := range columns {
			if j < len(g.ColumnValues) {
				row[name] = g.ColumnValues[j]
			}
		}
		resp.Results[i] = row
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response, client already got its status code
}
