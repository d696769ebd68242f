// Package api exposes sync runs over HTTP so a scheduler or webhook can
// trigger them.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	coresync "collection-sync/internal/core/sync"
	"collection-sync/internal/infra/logx"
	"collection-sync/internal/source"
)

// RunOptions are the per-request switches of POST /runs.
type RunOptions struct {
	Full  bool `json:"full"`
	Reset bool `json:"reset"`
}

// Runner performs one sync run.
type Runner func(ctx context.Context, opts RunOptions) (*coresync.Report, error)

// LastRun is what GET /runs/last returns.
type LastRun struct {
	Report     *coresync.Report `json:"report,omitempty"`
	Error      string           `json:"error,omitempty"`
	FinishedAt time.Time        `json:"finishedAt"`
}

// Server serializes runs; a trigger while a run is active is rejected.
type Server struct {
	run     Runner
	running sync.Mutex

	mu   sync.RWMutex
	last *LastRun

	router chi.Router
}

func New(run Runner) *Server {
	s := &Server{run: run}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Get("/healthz", s.handleHealth)
	r.Post("/runs", s.handleRun)
	r.Get("/runs/last", s.handleLast)
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logx.Infow("api: listening", "addr", addr)
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logx.Infow("api: stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	running := !s.running.TryLock()
	if !running {
		s.running.Unlock()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "running": running})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var opts RunOptions
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if !s.running.TryLock() {
		writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	defer s.running.Unlock()

	rep, err := s.run(r.Context(), opts)
	last := &LastRun{Report: rep, FinishedAt: time.Now().UTC()}
	if err != nil {
		last.Error = err.Error()
	}
	s.mu.Lock()
	s.last = last
	s.mu.Unlock()

	if err != nil {
		logx.Errorw("api: run failed", "error", err.Error(), "request", middleware.GetReqID(r.Context()))
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleLast(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()
	if last == nil {
		writeError(w, http.StatusNotFound, "no run yet")
		return
	}
	writeJSON(w, http.StatusOK, last)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, source.ErrNeedsReauth):
		return http.StatusUnauthorized
	case errors.Is(err, coresync.ErrContextError), errors.Is(err, coresync.ErrNoSlugField):
		return http.StatusConflict
	case errors.Is(err, context.Canceled):
		return 499
	}
	var we *coresync.WriteError
	if errors.As(err, &we) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Warnw("api: encode response", "error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logx.Infow("api: request", "method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", time.Since(start), "request", middleware.GetReqID(r.Context()))
	})
}
