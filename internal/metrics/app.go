package metrics

import (
	"time"

	"github.com/closetiq/closetiq/internal/observability"
)

// Gateway metric names.
const (
	BackendHealthTotal    = "backend_health_check_total"
	BackendHealthDuration = "backend_health_check_duration_ms"
	ServerStartTime       = "app_server_start_time_seconds"
)

// RecordHealthCheck records one backend health probe.
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(BackendHealthTotal, 1, map[string]string{
		"check":  checkName,
		"status": outcome(healthy, "healthy", "unhealthy"),
	})
	_ = observability.TelemetrySystem.Histogram(BackendHealthDuration, duration, map[string]string{
		"check": checkName,
	})
}

// SetServerStartTime records the gateway start time as a Unix timestamp.
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(timestamp), nil)
}
