package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/closetiq/closetiq/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display version, runtime and effective governor configuration.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		log := observability.CLILogger

		log.Info("=== ClosetIQ Environment Information ===")
		log.Info("Application:")
		log.Info("  Name:       " + appIdentity.BinaryName)
		log.Info("  Version:    " + versionInfo.Version)
		log.Info("  Commit:     " + versionInfo.Commit)
		log.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		log.Info("")

		cfg, err := loadedConfig()
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return
		}

		log.Info("Backend:")
		log.Info("  Base URL:        "+orUnset(cfg.Backend.BaseURL), zap.String("base_url", cfg.Backend.BaseURL))
		log.Info("  Health Path:     " + cfg.Backend.HealthPath)
		log.Info("  Request Timeout: " + cfg.Backend.RequestTimeout.String())
		log.Info("")

		g := cfg.Governor
		log.Info("Governor:")
		log.Info(fmt.Sprintf("  Window:          %d per %s", g.MaxPerWindow, g.Window), zap.Int("max_per_window", g.MaxPerWindow))
		log.Info("  Min Interval:    " + g.MinInterval.String())
		log.Info("  Tick:            " + g.TickInterval.String())
		log.Info(fmt.Sprintf("  Max Retries:     %d", g.MaxRetries))
		log.Info(fmt.Sprintf("  Backoff:         %s..%s (429: %s..%s)", g.BaseDelay, g.MaxDelay, g.RateLimitBaseDelay, g.RateLimitMaxDelay))
		log.Info("  Dedupe POSTs:    " + strings.Join(g.DedupePostPaths, ", "))
		log.Info(fmt.Sprintf("  Persist Window:  %t", g.PersistWindow))
		log.Info("")

		log.Info("Credentials:")
		log.Info("  Source:     " + cfg.Credentials.Source)
		log.Info("  Store:      " + cfg.Credentials.Store)
		log.Info("  Look-ahead: " + cfg.Credentials.LookAhead.String())
		if cfg.Credentials.Store == "redis" {
			log.Info("  Redis:      " + cfg.Redis.Addr)
			log.Info(fmt.Sprintf("  Encrypted:  %t", cfg.Redis.EncryptionKey != ""))
		}
		log.Info("")

		log.Info("Store:")
		log.Info("  Driver: " + cfg.Store.Driver)
		if strings.TrimSpace(cfg.Store.URL) != "" {
			log.Info("  URL:    " + cfg.Store.URL)
		} else {
			log.Info("  Path:   " + cfg.Store.Path)
		}
		log.Info("=== End Environment Information ===")
	},
}

func orUnset(value string) string {
	if strings.TrimSpace(value) == "" {
		return "(unset)"
	}
	return value
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
