package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	errwrap "github.com/closetiq/closetiq/internal/errors"
	"github.com/closetiq/closetiq/internal/metrics"
	"github.com/closetiq/closetiq/internal/observability"
	"github.com/closetiq/closetiq/internal/server"
	"github.com/closetiq/closetiq/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker reports whether telemetry and the exporter are up.
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// storeHealthChecker pings the libsql store when the session opened one.
type storeHealthChecker struct {
	sess *session
}

func (s storeHealthChecker) CheckHealth(ctx context.Context) error {
	if s.sess == nil || s.sess.db == nil {
		return nil
	}
	return s.sess.db.Ping(ctx)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local governor gateway",
	Long: `Run an HTTP gateway that forwards /api/* to the wardrobe backend through the
request governor, so every local client shares one rate limit, token cache and
dedupe table.

Routes:
  /api/*                 forwarded through the governor
  /v1/governor/status    queue depth and window usage
  /v1/governor/clear     drop queued requests (POST, needs CLOSETIQ_ADMIN_TOKEN)
  /v1/backend/health     direct backend probe
  /health, /version, /metrics

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reload config file (pacing changes need a restart)`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadedConfig()
		if err != nil {
			return err
		}
		namespace := appIdentity.BinaryName

		observability.InitServerLogger(appIdentity.BinaryName, cfg.Logging.Level, namespace)
		logger := observability.ServerLogger

		metricsPort := cfg.Metrics.Port
		if metricsPort == 0 {
			metricsPort = observability.DefaultMetricsPort
		}
		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(appIdentity.BinaryName, metricsPort, namespace); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
			}
		} else {
			observability.DisableMetrics()
		}
		metrics.SetServerStartTime(time.Now().Unix())

		sess, err := openSession(cmd.Context(), cfg, logger)
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "governor initialization failed")
		}

		logger.Info("Initializing gateway",
			zap.String("service", appIdentity.BinaryName),
			zap.String("version", versionInfo.Version),
			zap.String("backend", sess.governor.Endpoint()),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Int("metrics_port", metricsPort))

		hm := handlers.InitHealthManager(versionInfo.Version)
		hm.RegisterChecker("backend", handlers.BackendChecker{Probe: sess.governor.CheckHealth})
		hm.RegisterChecker("store", storeHealthChecker{sess: sess})
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}

		handlers.SetVersionInfo(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
		handlers.SetAppIdentity(appIdentity)

		srv := server.New(server.Options{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
			Gateway:      sess.governor,
			AdminToken:   os.Getenv(appIdentity.EnvPrefix + "ADMIN_TOKEN"),
		})

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout <= 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Handlers run LIFO: HTTP first, then the governor, then the logger.
		signals.OnShutdown(func(ctx context.Context) error {
			if err := logger.Sync(); err != nil {
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Stopping request governor", zap.Int("pending", sess.governor.Status().PendingRequests))
			sess.Close()
			return nil
		})
		signals.OnShutdown(func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}
			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: reloading config")
			if err := viper.ReadInConfig(); err != nil {
				var notFound viper.ConfigFileNotFoundError
				if errors.As(err, &notFound) {
					logger.Info("No config file found - using defaults and environment variables")
					return nil
				}
				logger.Error("Failed to reload config file", zap.String("file", viper.ConfigFileUsed()), zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}
			logger.Info("Configuration reloaded", zap.String("file", viper.ConfigFileUsed()))
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()
		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			sess.Close()
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
