package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Limits bounds the load a Server accepts
type Limits struct {
	RequestsPerSecond float64 // Zero disables rate limiting
	Burst             int
	MaxBodyBytes      int64
}

// DefaultLimits returns limits suited to a single-host deployment
func DefaultLimits() Limits {
	return Limits{RequestsPerSecond: 0, Burst: 20, MaxBodyBytes: 5 << 20}
}

// Server handles HTTP requests for extractions
type Server struct {
	service *Service
	metrics *Metrics
	limits  Limits
	mux     *http.ServeMux
	handler http.Handler
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, metrics *Metrics, limits Limits) *Server {
	return NewServerWithMux(service, metrics, limits, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, metrics *Metrics, limits Limits, mux *http.ServeMux) *Server {
	s := &Server{
		service: service,
		metrics: metrics,
		limits:  limits,
		mux:     mux,
	}
	s.registerRoutes()

	var limiter *rate.Limiter
	if limits.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(limits.RequestsPerSecond), max(limits.Burst, 1))
	}
	var h http.Handler = rateLimitMiddleware(limiter, mux)
	h = corsMiddleware(h)
	if metrics != nil {
		h = metrics.Middleware(h)
	}
	h = accessLogMiddleware(h)
	s.handler = requestIDMiddleware(h)
	return s
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/extract", s.handleExtract)
	s.mux.HandleFunc("GET /api/extractions/{id}", s.handleGetExtraction)
	s.mux.HandleFunc("DELETE /api/extractions/{id}", s.handleDeleteExtraction)
	s.mux.HandleFunc("GET /api/extractions", s.handleListExtractions)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// Start serves HTTP on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
