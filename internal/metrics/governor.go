package metrics

import (
	"strconv"
	"time"

	"github.com/closetiq/closetiq/internal/governor"
	"github.com/closetiq/closetiq/internal/observability"
)

// Governor metric names.
const (
	GovernorDispatchTotal    = "governor_dispatch_total"
	GovernorDispatchDuration = "governor_dispatch_duration_ms"
	GovernorQueueDepth       = "governor_queue_depth"
	GovernorRetriesTotal     = "governor_retries_total"
	GovernorRetryDelay       = "governor_retry_delay_ms"
	GovernorSettledTotal     = "governor_settled_total"
	GovernorDedupeTotal      = "governor_dedupe_total"
	GovernorTokenRefresh     = "governor_token_refresh_total"
)

// GovernorHooks emits governor events to the telemetry system.
type GovernorHooks struct {
	// Endpoint labels every metric with the backend host
	Endpoint string
}

var _ governor.Hooks = GovernorHooks{}

func (h GovernorHooks) OnEnqueue(depth int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(GovernorQueueDepth, float64(depth), h.labels(nil))
}

func (h GovernorHooks) OnDispatch(method string, status int, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	labels := h.labels(map[string]string{
		"method": method,
		"status": statusLabel(status),
	})
	_ = observability.TelemetrySystem.Counter(GovernorDispatchTotal, 1, labels)
	_ = observability.TelemetrySystem.Histogram(GovernorDispatchDuration, duration, labels)
}

func (h GovernorHooks) OnRetry(reason string, attempt int, delay time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	labels := h.labels(map[string]string{
		"reason":  reason,
		"attempt": strconv.Itoa(attempt),
	})
	_ = observability.TelemetrySystem.Counter(GovernorRetriesTotal, 1, labels)
	_ = observability.TelemetrySystem.Histogram(GovernorRetryDelay, delay, h.labels(map[string]string{"reason": reason}))
}

func (h GovernorHooks) OnSettle(success bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(GovernorSettledTotal, 1, h.labels(map[string]string{
		"status": outcome(success, "success", "failure"),
	}))
}

func (h GovernorHooks) OnDedupe(shared bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(GovernorDedupeTotal, 1, h.labels(map[string]string{
		"result": outcome(shared, "shared", "leader"),
	}))
}

func (h GovernorHooks) OnTokenRefresh(success bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(GovernorTokenRefresh, 1, h.labels(map[string]string{
		"status": outcome(success, "success", "failure"),
	}))
}

func (h GovernorHooks) labels(extra map[string]string) map[string]string {
	labels := map[string]string{}
	if h.Endpoint != "" {
		labels["endpoint"] = h.Endpoint
	}
	for k, v := range extra {
		labels[k] = v
	}
	return labels
}

// statusLabel keeps network failures (status 0) distinct from real codes.
func statusLabel(status int) string {
	if status == 0 {
		return "network_error"
	}
	return strconv.Itoa(status)
}

func outcome(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
