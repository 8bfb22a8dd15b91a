package cmd

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/closetiq/closetiq/internal/errors"
	"github.com/closetiq/closetiq/internal/observability"
	"github.com/closetiq/closetiq/internal/store"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify version metadata, configuration and the credential store before starting the gateway.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		if logger == nil {
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", errwrap.NewConfigInvalidError("Logger not initialized"))
			return
		}

		if versionInfo.Version == "" {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		logger.Info("✅ Version information available", zap.String("version", versionInfo.Version))

		cfg, err := loadedConfig()
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Configuration not loaded", err)
			return
		}
		if cfg.Backend.BaseURL == "" {
			logger.Warn("⚠️  backend.base_url is not set; requests will fail")
		} else if _, err := backendHost(cfg.Backend.BaseURL); err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Invalid backend URL", err)
			return
		} else {
			logger.Info("✅ Backend configured", zap.String("base_url", cfg.Backend.BaseURL))
		}

		if cfg.Credentials.Store == "libsql" || cfg.Governor.PersistWindow {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			db, err := store.OpenAndMigrate(ctx, cfg.Store)
			if err != nil {
				ExitWithCode(logger, foundry.ExitFileNotFound, "Store unavailable", err)
				return
			}
			pingErr := db.Ping(ctx)
			_ = db.Close()
			if pingErr != nil {
				ExitWithCode(logger, foundry.ExitFileNotFound, "Store ping failed", pingErr)
				return
			}
			logger.Info("✅ Store reachable", zap.String("driver", cfg.Store.Driver))
		}

		logger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
