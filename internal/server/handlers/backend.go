package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/closetiq/closetiq/internal/metrics"
)

// ErrBackendUnhealthy is reported when the backend health probe fails.
var ErrBackendUnhealthy = errors.New("backend health check failed")

// BackendChecker adapts a governor health probe to HealthChecker.
type BackendChecker struct {
	Probe func(ctx context.Context) bool
}

// CheckHealth implements HealthChecker.
func (b BackendChecker) CheckHealth(ctx context.Context) error {
	if b.Probe == nil {
		return ErrBackendUnhealthy
	}

	start := time.Now()
	healthy := b.Probe(ctx)
	metrics.RecordHealthCheck("backend", healthy, time.Since(start))
	if !healthy {
		return ErrBackendUnhealthy
	}
	return nil
}
