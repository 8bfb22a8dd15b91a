package observability

import (
	"testing"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func resetLoggers(t *testing.T) {
	t.Helper()
	cli, server := CLILogger, ServerLogger
	t.Cleanup(func() {
		CLILogger, ServerLogger = cli, server
	})
	CLILogger, ServerLogger = nil, nil
}

func TestLoggers(t *testing.T) {
	resetLoggers(t)
	assert.Nil(t, Logger())

	InitCLILogger("closetiq", true)
	require.NotNil(t, CLILogger)
	assert.Same(t, CLILogger, Logger())
	CLILogger.Debug("cli logger ready", zap.String("component", "test"))

	InitServerLogger("closetiq", "warn", "closetiq")
	require.NotNil(t, ServerLogger)
	assert.Same(t, ServerLogger, Logger())
	ServerLogger.Warn("server logger ready", zap.Int("port", 8080))
}

func TestStructuredConfig(t *testing.T) {
	t.Setenv("CLOSETIQ_ENV", "staging")

	cfg := structuredConfig("closetiq", "debug", "closetiq-gw")
	assert.Equal(t, logging.ProfileStructured, cfg.Profile)
	assert.Equal(t, "DEBUG", cfg.DefaultLevel)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "closetiq-gw", cfg.StaticFields["namespace"])
	require.Len(t, cfg.Sinks, 1)
	assert.Equal(t, "stderr", cfg.Sinks[0].Console.Stream)

	logger, err := logging.New(cfg)
	require.NoError(t, err)
	logger.Info("structured config accepted")

	assert.Empty(t, structuredConfig("closetiq", "info").StaticFields)
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]string{
		"trace":   "TRACE",
		"DEBUG":   "DEBUG",
		" info ":  "INFO",
		"warning": "WARN",
		"error":   "ERROR",
		"bogus":   "INFO",
		"":        "INFO",
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestDisableMetrics(t *testing.T) {
	original := TelemetrySystem
	t.Cleanup(func() { TelemetrySystem = original })

	TelemetrySystem = nil
	DisableMetrics()
	require.NotNil(t, TelemetrySystem)
	assert.NotPanics(t, func() {
		_ = TelemetrySystem.Counter("closetiq_test_total", 1, nil)
	})
}

func TestResolvePort(t *testing.T) {
	port, err := resolvePort("[::]:9464")
	require.NoError(t, err)
	assert.Equal(t, 9464, port)

	_, err = resolvePort("not-an-addr")
	assert.Error(t, err)
}
