// Package api exposes the HTTP interface for the deal poster service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clicou/dealposter/internal/input"
	"github.com/clicou/dealposter/internal/ledger"
	"github.com/clicou/dealposter/internal/metrics"
	"github.com/clicou/dealposter/internal/pipeline"
)

// maxCSVBytes bounds uploaded link files.
const maxCSVBytes = 1 << 20

// Runner executes one pipeline run. Satisfied by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, links []string) (pipeline.Summary, error)
}

// Ledger is the read side of the processing ledger used by the API.
type Ledger interface {
	Entries() []ledger.Entry
}

// Server wires HTTP handlers to the pipeline and the ledger.
type Server struct {
	router    chi.Router
	runner    Runner
	ledger    Ledger
	csvPath   string
	imagesDir string
	logger    *zap.Logger

	running atomic.Bool
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner Runner, store Ledger, csvPath, imagesDir string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	s := &Server{
		runner:    runner,
		ledger:    store,
		csvPath:   csvPath,
		imagesDir: imagesDir,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/images/{name}", s.getImage)

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", s.listProducts)
		r.Post("/process", s.process)
		r.Get("/csv", s.getCSV)
		r.Post("/csv", s.putCSV)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listProducts(w http.ResponseWriter, _ *http.Request) {
	entries := s.ledger.Entries()
	if entries == nil {
		entries = []ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(entries),
		"products": entries,
	})
}

type processRequest struct {
	Links []string `json:"links"`
}

// process runs the pipeline over the posted links, or over the configured
// CSV file when the body is empty. Runs are serialized; a second request
// while one is in flight gets 409.
func (s *Server) process(w http.ResponseWriter, r *http.Request) {
	if !s.running.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	defer s.running.Store(false)

	var req processRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	links := req.Links
	if len(links) == 0 {
		var err error
		links, err = input.ReadLinks(s.csvPath)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}
	if len(links) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "no links to process")
		return
	}

	summary, err := s.runner.Run(r.Context(), links)
	if err != nil {
		s.logger.Error("pipeline run failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   err.Error(),
			"summary": summary,
		})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) getImage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		writeError(w, http.StatusBadRequest, "invalid image name")
		return
	}
	path := filepath.Join(s.imagesDir, name)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeFile(w, r, path)
}

func (s *Server) getCSV(w http.ResponseWriter, _ *http.Request) {
	raw, err := os.ReadFile(s.csvPath) // #nosec G304 -- path comes from config
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "links file not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	if _, err := w.Write(raw); err != nil {
		s.logger.Error("write csv response failed", zap.Error(err))
	}
}

// putCSV replaces the configured links file with the request body.
func (s *Server) putCSV(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxCSVBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body failed")
		return
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		writeError(w, http.StatusBadRequest, "empty body")
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.csvPath), 0o750); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := os.WriteFile(s.csvPath, raw, 0o640); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unknown"
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.status, time.Since(start))
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
