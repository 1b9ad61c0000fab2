// Package http exposes the analyzer over HTTP: a JSON analyze endpoint,
// health and Prometheus metrics, and a websocket event stream.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/adpulse/adpulse/internal/application"
	"github.com/adpulse/adpulse/internal/domain"
	"github.com/adpulse/adpulse/internal/infrastructure/csvsource"
)

// Server is the HTTP front end over the analysis pipeline.
type Server struct {
	router   *mux.Router
	server   *http.Server
	pipeline *application.Pipeline
	metrics  *MetricsRegistry
	hub      *Hub
	started  time.Time
}

// NewServer wires the pipeline behind the HTTP surface. The pipeline's sink
// and observer are connected to the server's hub and metrics registry.
func NewServer(listen string, pipeline *application.Pipeline) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		pipeline: pipeline,
		metrics:  NewMetricsRegistry(),
		hub:      NewHub(),
		started:  time.Now(),
	}
	pipeline.Sink = s.hub
	pipeline.Observer = s.metrics

	s.setupRoutes()
	s.server = &http.Server{
		Addr:         listen,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics/snapshot", s.metrics.SnapshotHandler()).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/analyze", s.handleAnalyze).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/events", s.hub.ServeWS).Methods(http.MethodGet)
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and disconnects event clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.server.Shutdown(ctx)
}

// Router exposes the handler tree, primarily for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// analyzeRequest is the analyze endpoint payload. Rows are required;
// hypotheses are optional extra candidates evaluated alongside the
// generated insights.
type analyzeRequest struct {
	Rows       []domain.Row        `json:"rows"`
	Hypotheses []domain.Hypothesis `json:"hypotheses,omitempty"`
	DatasetKey string              `json:"dataset_key,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// decodeAnalyzeRequest accepts either a JSON payload or a raw CSV upload
// (Content-Type text/csv). CSV uploads are fingerprinted so the baseline
// cache keys on the dataset schema.
func (s *Server) decodeAnalyzeRequest(w http.ResponseWriter, r *http.Request) (analyzeRequest, bool) {
	ct := r.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(ct); err == nil && mt == "text/csv" {
		rows, report, fp, err := csvsource.LoadWithFingerprint(r.Body)
		if errors.Is(err, csvsource.ErrNoRows) {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
			return analyzeRequest{}, false
		}
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid CSV payload: " + err.Error()})
			return analyzeRequest{}, false
		}
		log.Info().
			Int("rows", report.RowsRead).
			Int("bad_dates", report.BadDates).
			Int("bad_numbers", report.BadNumbers).
			Msg("CSV upload loaded")
		return analyzeRequest{Rows: rows, DatasetKey: fp.Hash}, true
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload: " + err.Error()})
		return analyzeRequest{}, false
	}
	return req, true
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeAnalyzeRequest(w, r)
	if !ok {
		return
	}

	s.metrics.ActiveRuns.Inc()
	defer s.metrics.ActiveRuns.Dec()

	result, err := s.pipeline.Run(r.Context(), req.Rows, application.RunOptions{
		DatasetKey:      req.DatasetKey,
		ExtraHypotheses: req.Hypotheses,
	})
	if errors.Is(err, application.ErrEmptyDataset) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Analyze run failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "analysis failed"})
		return
	}
	if result.Alert.Alerted {
		s.metrics.RecordAlert()
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"event_clients":  s.hub.ClientCount(),
		"timestamp":      time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()[:8]
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}
