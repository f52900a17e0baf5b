package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/app"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/config"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/observability"
	agentrpc "github.com/shettysaish20/Hybrid-DM-MCP-App/internal/rpc/agent"
	toolrpc "github.com/shettysaish20/Hybrid-DM-MCP-App/internal/rpc/tools"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/version"
)

// Server hosts the daemon endpoints: health, metrics, the tool catalogue
// and the agent turn RPCs.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	runner  agentrpc.Runner
	metrics *observability.Metrics
	tools   toolrpc.SchemaHandler
	closer  func() error
}

// NewServer builds the agent from cfg and constructs a daemon instance.
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	metrics := observability.NewMetrics()
	a, err := app.Build(ctx, cfg, logger, metrics)
	if err != nil {
		return nil, err
	}
	s := newServer(cfg, logger, metrics, &agentrpc.AgentRunner{Turns: a, Logger: logger})
	s.tools = toolrpc.SchemaHandler{Catalogue: a.Tools, Descriptions: a.Servers}
	s.closer = a.Close
	return s, nil
}

func newServer(cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics, runner agentrpc.Runner) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{cfg: cfg, logger: logger, runner: runner, metrics: metrics}
}

// Handler returns the daemon's routes. The Connect transport is served
// over h2c; the NDJSON endpoint is mounted either way.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/metrics", s.metricsHandler)
	mux.Handle("/tools", s.tools)
	mux.Handle(agentrpc.TurnPath, agentrpc.NewHandler(s.runner, s.metrics))

	if s.transport() == "ndjson" {
		return mux
	}
	path, handler := agentrpc.NewConnectHandler(s.runner, s.metrics)
	mux.Handle(path, handler)
	return h2c.NewHandler(mux, &http2.Server{})
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (s *Server) Run(ctx context.Context) error {
	defer s.close()

	server := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting cortexr daemon", zap.String("addr", s.cfg.Server.Addr), zap.String("transport", s.transport()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down cortexr daemon")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) close() {
	if s.closer == nil {
		return
	}
	if err := s.closer(); err != nil {
		s.logger.Warn("release agent resources", zap.Error(err))
	}
}

func (s *Server) transport() string {
	t := strings.ToLower(strings.TrimSpace(s.cfg.Server.Transport))
	if t == "" {
		return "connect"
	}
	return t
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Status  string       `json:"status"`
		Build   version.Info `json:"build"`
		Servers []string     `json:"servers"`
	}{"ok", version.Current(), s.tools.ServerIDs()})
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Server.MetricsEnabled || s.metrics == nil {
		http.NotFound(w, r)
		return
	}

	promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
