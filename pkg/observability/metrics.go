package observability

import (
	"time"
)

// NoOpMetricsClient is a metrics client that discards all measurements.
// It is the default for tests and for deployments without a metrics backend.
type NoOpMetricsClient struct{}

// NewNoOpMetricsClient creates a new no-op metrics client
func NewNoOpMetricsClient() MetricsClient {
	return &NoOpMetricsClient{}
}

func (c *NoOpMetricsClient) RecordCounter(name string, value float64, labels map[string]string)   {}
func (c *NoOpMetricsClient) RecordGauge(name string, value float64, labels map[string]string)     {}
func (c *NoOpMetricsClient) RecordHistogram(name string, value float64, labels map[string]string) {}
func (c *NoOpMetricsClient) RecordLatency(operation string, duration time.Duration)               {}
func (c *NoOpMetricsClient) IncrementCounter(name string, value float64)                          {}
func (c *NoOpMetricsClient) IncrementCounterWithLabels(name string, value float64, labels map[string]string) {
}
func (c *NoOpMetricsClient) Close() error { return nil }
