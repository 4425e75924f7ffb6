package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/headline-goat/variant-goat/internal/engine"
	"github.com/headline-goat/variant-goat/internal/store"
)

type Server struct {
	engine    *engine.Engine
	store     store.Store
	port      int
	log       *zap.Logger
	gatherer  prometheus.Gatherer
	router    *http.ServeMux
	startTime time.Time
}

// New wires the HTTP routes. gatherer may be nil, in which case /metrics is
// not served.
func New(e *engine.Engine, s store.Store, port int, log *zap.Logger, gatherer prometheus.Gatherer) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	srv := &Server{
		engine:    e,
		store:     s,
		port:      port,
		log:       log.Named("server"),
		gatherer:  gatherer,
		router:    http.NewServeMux(),
		startTime: time.Now(),
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/b", s.handleBeacon)
	s.router.HandleFunc("/api/decide", s.handleDecide)
	s.router.HandleFunc("/api/assignment", s.handleAssignment)
	s.router.HandleFunc("/api/results/", s.handleResults)

	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.Int("port", s.port))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("shutting down")
	return httpServer.Shutdown(shutdownCtx)
}

func (s *Server) Handler() http.Handler {
	return s.router
}
