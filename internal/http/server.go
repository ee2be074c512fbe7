// Package http serves the tunefetch HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tunefetch/internal/core"
	"tunefetch/internal/flood"
	"tunefetch/internal/store"
	"tunefetch/pkg/audiolink"
	"tunefetch/pkg/text"
)

const serviceName = "tunefetch"

// Resolver turns a media identifier into an audio stream.
type Resolver interface {
	Resolve(ctx context.Context, id string, opts audiolink.Options) (*audiolink.Resolution, error)
	Defaults() audiolink.Options
}

// Searcher runs free-text video searches.
type Searcher interface {
	Search(ctx context.Context, query string) ([]audiolink.SearchResult, error)
	Available() bool
}

// Services are the backends behind the API. Only Resolver is required.
type Services struct {
	Resolver  Resolver
	Searcher  Searcher
	Cache     *store.SearchCache
	Floodgate *flood.Floodgate
}

type Server struct {
	config   *core.Config
	logger   *zap.Logger
	server   *http.Server
	metrics  *Metrics
	gatherer prometheus.Gatherer
	services Services
	parser   *text.Parser
	started  time.Time
	ready    atomic.Bool
}

// NewServer builds the API server. Metrics are registered on registry; a nil
// registry gets a private one.
func NewServer(config *core.Config, services Services, registry *prometheus.Registry, logger *zap.Logger) (*Server, error) {
	if services.Resolver == nil {
		return nil, errors.New("HTTP server needs a resolver")
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	metrics, err := newMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	s := &Server{
		config:   config,
		logger:   logger,
		metrics:  metrics,
		gatherer: registry,
		services: services,
		parser:   text.NewParser(),
		started:  time.Now(),
	}
	s.server = createHTTPServer(&config.Server, s.withMiddleware(s.setupRoutes()))

	return s, nil
}

func createHTTPServer(config *core.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           handler,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
	}
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.healthHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /readyz", s.readyHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.Handle("GET /audio", s.rateLimited("audio", s.audioHandler))
	mux.Handle("GET /search", s.rateLimited("search", s.searchHandler))
	mux.HandleFunc("/", s.homeHandler)

	return mux
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("HTTP server failed to listen on %s: %w", s.server.Addr, err)
	}

	s.logger.Info("Starting HTTP server",
		zap.String("addr", ln.Addr().String()))
	s.ready.Store(true)

	go func() {
		<-ctx.Done()
		s.ready.Store(false)
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

func (s *Server) GetMetrics() *Metrics {
	return s.metrics
}
