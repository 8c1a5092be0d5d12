// Package server exposes a rewards system over JSON-RPC 2.0 on HTTP and
// WebSocket, next to Prometheus metrics and a health probe.
package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Iwinswap/iwinswap-staking-rewards-go/pkg/events"
	"github.com/Iwinswap/iwinswap-staking-rewards-go/streams/jsonrpc"
)

const defaultBufferSize = 64

// Config holds the configuration for the server.
type Config struct {
	Distributor Distributor
	Oracle      Oracle
	Pools       Pools
	Tokens      Tokens
	Feed        *events.Feed

	// Gatherer backs GET /metrics. The endpoint is not mounted when nil.
	Gatherer prometheus.Gatherer
	// AllowedOrigins restricts WebSocket upgrades; empty allows any origin.
	AllowedOrigins []string
	// BufferSize is the per-subscriber event buffer.
	BufferSize int
	Logger     *slog.Logger
}

func (c *Config) validate() error {
	if c.Distributor == nil {
		return errors.New("config: Distributor is required")
	}
	if c.Oracle == nil {
		return errors.New("config: Oracle is required")
	}
	if c.Pools == nil {
		return errors.New("config: Pools is required")
	}
	if c.Tokens == nil {
		return errors.New("config: Tokens is required")
	}
	if c.Feed == nil {
		return errors.New("config: Feed is required")
	}
	return nil
}

// Server routes HTTP traffic to the JSON-RPC handlers.
type Server struct {
	rpc    *rpc.Server
	router *chi.Mux
	logger *slog.Logger
}

// New registers the rewards, registry and token namespaces and builds the
// router.
func New(cfg Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	rpcServer := rpc.NewServer()
	apis := map[string]any{
		jsonrpc.RewardsNamespace: &RewardsAPI{
			distributor: cfg.Distributor,
			oracle:      cfg.Oracle,
			feed:        cfg.Feed,
			bufferSize:  cfg.BufferSize,
			logger:      cfg.Logger,
		},
		jsonrpc.RegistryNamespace: &RegistryAPI{pools: cfg.Pools},
		jsonrpc.TokenNamespace:    &TokenAPI{tokens: cfg.Tokens},
	}
	for namespace, api := range apis {
		if err := rpcServer.RegisterName(namespace, api); err != nil {
			return nil, fmt.Errorf("server: register %s namespace: %w", namespace, err)
		}
	}

	s := &Server{
		rpc:    rpcServer,
		router: chi.NewRouter(),
		logger: cfg.Logger,
	}
	s.setupRoutes(cfg)
	return s, nil
}

func (s *Server) setupRoutes(cfg Config) {
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	s.router.Post("/", s.rpc.ServeHTTP)
	s.router.Handle("/ws", s.rpc.WebsocketHandler(cfg.AllowedOrigins))
	s.router.Get("/healthz", s.handleHealth)
	if cfg.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Stop closes all RPC codecs and subscriptions.
func (s *Server) Stop() {
	s.rpc.Stop()
	s.logger.Info("RPC server stopped")
}
