package services

import (
	"github.com/sony/gobreaker"

	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/observability"
)

// ServiceConfig provides common configuration for all services
type ServiceConfig struct {
	// Resilience
	CircuitBreaker *gobreaker.Settings

	// Observability
	Logger  observability.Logger
	Metrics observability.MetricsClient
	Tracer  observability.StartSpanFunc
}

// BaseService provides common functionality for all services
type BaseService struct {
	config ServiceConfig
}

// NewBaseService creates a new base service
func NewBaseService(config ServiceConfig) BaseService {
	if config.Logger == nil {
		config.Logger = observability.NewNoopLogger()
	}
	if config.Metrics == nil {
		config.Metrics = observability.NewNoOpMetricsClient()
	}
	if config.Tracer == nil {
		config.Tracer = observability.NoopStartSpan
	}
	return BaseService{config: config}
}
