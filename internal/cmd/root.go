package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/closetiq/closetiq/internal/config"
	"github.com/closetiq/closetiq/internal/observability"
)

var (
	cfgFile string
	verbose bool
	baseURL string

	appIdentity = &appidentity.Identity{
		BinaryName:  config.AppName,
		ConfigName:  config.AppName,
		EnvPrefix:   config.EnvPrefix + "_",
		Description: "ClosetIQ wardrobe backend client with request governor",
	}

	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main with linker-injected build metadata.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the application identity.
func GetAppIdentity() *appidentity.Identity {
	return appIdentity
}

var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "ClosetIQ wardrobe backend client",
	Long: `closetiq talks to the ClosetIQ wardrobe backend through a request governor
that paces calls (30 per minute, 100ms apart), retries rate-limit, server and
network failures with backoff, caches identity tokens, and collapses duplicate
in-flight requests.

Run "closetiq serve" to expose the governor as a local HTTP gateway.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Keep config loading quiet; serve installs the real telemetry system.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/closetiq/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "wardrobe backend base URL")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("backend.base_url", rootCmd.PersistentFlags().Lookup("base-url"))
}

func initConfig() {
	observability.InitCLILogger(appIdentity.BinaryName, verbose)

	used, err := config.Configure(viper.GetViper(), cfgFile)
	if err != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Failed to read config file", err)
	}
	if used != "" {
		observability.CLILogger.Debug("Using config file", zap.String("path", used))
	} else {
		observability.CLILogger.Debug("No config file found, using defaults and environment variables")
	}

	if _, err := config.Load(viper.GetViper()); err != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Invalid configuration", err)
	}
}

// loadedConfig returns the configuration decoded by initConfig.
func loadedConfig() (*config.Config, error) {
	cfg := config.GetConfig()
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}

func printf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stdout, format, args...)
}
