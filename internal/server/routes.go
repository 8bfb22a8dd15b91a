package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"go.uber.org/zap"

	"github.com/closetiq/closetiq/internal/observability"
	"github.com/closetiq/closetiq/internal/server/handlers"
)

func (s *Server) registerRoutes() {
	s.router.Get("/health", handlers.HealthHandler)
	s.router.Get("/health/live", handlers.LivenessHandler)
	s.router.Get("/health/ready", handlers.ReadinessHandler)
	s.router.Get("/health/startup", handlers.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)

	if s.opts.Gateway != nil {
		gw := &handlers.GovernorHandlers{Gateway: s.opts.Gateway}
		s.router.Get("/v1/governor/status", gw.Status)
		if s.opts.AdminToken != "" {
			s.router.With(requireToken(s.opts.AdminToken)).Post("/v1/governor/clear", gw.Clear)
		}
		s.router.Get("/v1/backend/health", gw.BackendHealth)
		s.router.HandleFunc("/api/*", gw.Forward)
	}

	s.registerAdminEndpoint()
}

// registerAdminEndpoint mounts the signal endpoint when an admin token is
// configured.
func (s *Server) registerAdminEndpoint() {
	logger := observability.ServerLogger
	if s.opts.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no CLOSETIQ_ADMIN_TOKEN set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.opts.AdminToken,
		RateLimit: 10,
		RateBurst: 5,
		Manager:   nil,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("rate_limit", "10/min, burst 5"))
		logger.Warn("Admin endpoint enabled - keep this gateway off the public internet")
	}
}
