// Package server relays crawl batches over HTTP. A batch is posted as JSON and
// its task completions stream back as newline-delimited JSON, one line per
// task, in task order.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"galleryzip/pkg/config"
	"galleryzip/pkg/crawler"
	"galleryzip/pkg/logger"
)

// Runner runs a batch of tasks. *crawler.Crawler implements it.
type Runner interface {
	RunBatch(ctx context.Context, tasks []crawler.Task, onComplete func(crawler.Completion), opts ...crawler.BatchOption) []crawler.Completion
}

// BatchRequest is the body of POST /crawl
type BatchRequest struct {
	Tasks []crawler.Task `json:"tasks"`
}

// Server serves the crawl relay
type Server struct {
	runner Runner
	cfg    config.ServerConfig
	logger logger.Logger

	// one batch at a time; the browser is shared
	slot chan struct{}
}

// New creates a server
func New(runner Runner, cfg config.ServerConfig, log logger.Logger) *Server {
	return &Server{
		runner: runner,
		cfg:    cfg,
		logger: log,
		slot:   make(chan struct{}, 1),
	}
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Post("/crawl", s.handleCrawl)
	return r
}

// Run listens on cfg.Addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.LogComponentStart(s.logger, "server", map[string]interface{}{
		"addr":           ln.Addr().String(),
		"max_batch_size": s.cfg.MaxBatchSize,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		logger.LogComponentStop(s.logger, "server", "context cancelled")
		return nil
	})
	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	busy := len(s.slot) > 0
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "busy": busy})
}

func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := s.validate(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	select {
	case s.slot <- struct{}{}:
		defer func() { <-s.slot }()
	case <-r.Context().Done():
		return
	}

	batchID := uuid.NewString()
	log := s.logger.WithFields(map[string]interface{}{
		"batch_id":   batchID,
		"tasks":      len(req.Tasks),
		"request_id": middleware.GetReqID(r.Context()),
	})
	log.Info("Batch started")

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("X-Batch-ID", batchID)
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	comps := s.runner.RunBatch(r.Context(), req.Tasks, func(c crawler.Completion) {
		if err := enc.Encode(c); err != nil {
			log.WithError(err).Warn("Failed to stream completion")
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	})

	ok := 0
	for _, c := range comps {
		if c.Succeeded() || c.Status == crawler.StatusSkipped {
			ok++
		}
	}
	log.InfoWithFields("Batch finished", map[string]interface{}{
		"succeeded": ok,
		"failed":    len(comps) - ok,
	})
}

func (s *Server) validate(req BatchRequest) error {
	if len(req.Tasks) == 0 {
		return errors.New("at least one task is required")
	}
	if s.cfg.MaxBatchSize > 0 && len(req.Tasks) > s.cfg.MaxBatchSize {
		return fmt.Errorf("batch of %d tasks exceeds the limit of %d", len(req.Tasks), s.cfg.MaxBatchSize)
	}
	var errs []error
	for _, t := range req.Tasks {
		if err := t.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.DebugWithFields("HTTP request", map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"bytes":    ww.BytesWritten(),
			"duration": time.Since(start).String(),
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
