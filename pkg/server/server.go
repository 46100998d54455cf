// Package server exposes the node's status surface over HTTP: federation
// stats, peer and fragment snapshots, and prometheus metrics. It is a
// read-only view for external callers such as a dashboard; no federation
// state can be mutated through it.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"weave/pkg/federation"
)

// Server serves the stats surface for one federation node.
type Server struct {
	proto  *federation.Protocol
	logger *zap.Logger
	http   *http.Server
}

func New(addr string, proto *federation.Protocol, logger *zap.Logger) *Server {
	s := &Server{
		proto:  proto,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/peers", s.handlePeers)
	r.Get("/fragments", s.handleFragments)
	r.Handle("/metrics", promhttp.HandlerFor(proto.Metrics().Registry(), promhttp.HandlerOpts{}))

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe blocks until the context is cancelled or the listener
// fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.proto.Stats())
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.proto.Registry().List(nil))
}

// handleFragments serves the shareable fragments. Fragments never carry
// raw content, so this surface cannot leak it.
func (s *Server) handleFragments(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.proto.Store().ListShareable())
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}
