// Package server assembles the process-wide HTTP surface: the device
// WebSocket endpoint backed by engine.Engine, plus health and readiness
// probes, wrapped in the ambient request-id/recover/access-log middleware
// stack.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/relaytone/xiaozhi-engine/pkg/gateway/config"
	"github.com/relaytone/xiaozhi-engine/pkg/gateway/engine"
	"github.com/relaytone/xiaozhi-engine/pkg/gateway/handlers"
	"github.com/relaytone/xiaozhi-engine/pkg/gateway/lifecycle"
	"github.com/relaytone/xiaozhi-engine/pkg/gateway/mw"
	providerconfig "github.com/relaytone/xiaozhi-engine/pkg/providers/config"
)

// Server owns the engine and the HTTP surface in front of it, and
// implements the drain/wait/cancel contract cmd/xiaozhi-server's graceful
// shutdown sequence drives.
type Server struct {
	cfg       config.Config
	logger    *slog.Logger
	mux       *http.ServeMux
	lifecycle *lifecycle.Lifecycle
	engine    *engine.Engine
}

// New builds the engine from cfg (a single static AgentConfig, wired
// through pkg/providers/config, with every DOMAIN STACK provider registered
// under engine.RegisterDefaultProviders) and its surrounding HTTP surface.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	configPort := providerconfig.New(cfg)
	intentLLM := engine.BuildIntentProvider(cfg)

	registerProviders, err := engine.RegisterDefaultProviders(cfg)
	if err != nil {
		return nil, fmt.Errorf("server: registering providers: %w", err)
	}

	eng, err := engine.New(cfg, configPort, intentLLM, registerProviders, logger)
	if err != nil {
		return nil, fmt.Errorf("server: building engine: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		lifecycle: &lifecycle.Lifecycle{},
		engine:    eng,
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Lifecycle: s.lifecycle, Sessions: s.engine})
	s.mux.Handle(s.cfg.WSPath, handlers.LiveHandler{
		Engine:    s.engine,
		Lifecycle: s.lifecycle,
		Logger:    s.logger,
	})
}

// Handler returns the fully wrapped HTTP surface for http.Server.Handler.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining flips the readiness probe unhealthy so a load balancer stops
// routing new device connections here, ahead of an in-progress shutdown.
func (s *Server) SetDraining() {
	s.lifecycle.SetDraining(true)
}

// WarnLiveSessionsDraining tells every connected device its session is
// about to be torn down, giving well-behaved clients a chance to reconnect
// elsewhere before the hard cutoff.
func (s *Server) WarnLiveSessionsDraining() {
	s.engine.WarnDraining()
}

// WaitLiveSessions blocks until every live session finishes on its own, or
// ctx is cancelled. It reports whether every session drained cleanly.
func (s *Server) WaitLiveSessions(ctx context.Context) bool {
	return s.engine.Wait(ctx) == nil
}

// CancelLiveSessions forcibly destroys any session still live after
// WaitLiveSessions's grace period expires.
func (s *Server) CancelLiveSessions() {
	s.engine.CancelAll()
}
