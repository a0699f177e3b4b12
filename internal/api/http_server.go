package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"finqueue/internal/binding"
	"finqueue/internal/config"
	"finqueue/internal/database"
	"finqueue/internal/deadletter"
	"finqueue/internal/export"
	"finqueue/internal/metrics"
	"finqueue/internal/models"

	"github.com/rs/zerolog"
)

// HTTPServer exposes the queue to producers and the status view to UI.
type HTTPServer struct {
	cfg     config.APIConfig
	binding *binding.Binding
	dead    deadletter.Store
	server  *http.Server
	auth    *HTTPAuth
	log     zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, b *binding.Binding, dead deadletter.Store, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{cfg: cfg, binding: b, dead: dead}
	if logger != nil {
		srv.log = logger.With().Str("component", "http").Logger()
	}
	srv.auth = NewHTTPAuth(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/queue", srv.handleQueue)
	mux.HandleFunc("/api/v1/queue/export", srv.handleExport)
	mux.HandleFunc("/api/v1/queue/", srv.handleQueueEntry)
	mux.HandleFunc("/api/v1/status", srv.handleStatus)
	mux.HandleFunc("/api/v1/sync", srv.handleSync)
	mux.HandleFunc("/api/v1/deadletter", srv.handleDeadLetter)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	root := http.NewServeMux()
	root.Handle("/api/", handler)
	root.HandleFunc("/healthz", srv.handleHealthz)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the root handler, used directly in tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("/api/v1/queue")

	switch r.Method {
	case http.MethodGet:
		entries, err := s.binding.ListEntries(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to read queue")
			return
		}
		if entries == nil {
			entries = []models.QueueEntry{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": entries})

	case http.MethodPost:
		var body struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if body.Type == "" || len(body.Payload) == 0 {
			writeError(w, http.StatusBadRequest, "type and payload are required")
			return
		}

		entry, err := s.binding.Enqueue(r.Context(), body.Type, body.Payload)
		if err != nil {
			if errors.Is(err, database.ErrStorageUnavailable) {
				// The action was not captured; the producer must know.
				writeError(w, http.StatusInsufficientStorage, err.Error())
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, entry)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleQueueEntry(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("/api/v1/queue/{id}")

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/queue/")
	retry := false
	if strings.HasSuffix(rest, "/retry") {
		rest = strings.TrimSuffix(rest, "/retry")
		retry = true
	}

	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	switch {
	case retry && r.Method == http.MethodPost:
		if err := s.binding.Requeue(r.Context(), id); err != nil {
			if errors.Is(err, database.ErrEntryNotFound) {
				writeError(w, http.StatusNotFound, "entry not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"requeued": id})

	case !retry && r.Method == http.MethodDelete:
		if err := s.binding.Delete(r.Context(), id); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": id})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("/api/v1/status")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.binding.Snapshot())
}

func (s *HTTPServer) handleSync(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("/api/v1/sync")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := s.binding.SyncNow(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.binding.Snapshot())
}

func (s *HTTPServer) handleDeadLetter(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("/api/v1/deadletter")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.dead == nil {
		writeJSON(w, http.StatusOK, map[string]any{"entries": []models.QueueEntry{}})
		return
	}

	entries, err := s.dead.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read dead letters")
		return
	}
	if entries == nil {
		entries = []models.QueueEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("/api/v1/queue/export")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries, err := s.binding.ListEntries(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read queue")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="queue.xlsx"`)
	if err := export.Write(w, entries); err != nil {
		s.log.Error().Err(err).Msg("export failed")
	}
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("dur", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
