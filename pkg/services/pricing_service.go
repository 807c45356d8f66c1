package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/cache"
	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/models"
)

// PricingService derives live pricing from the guided flow document.
type PricingService interface {
	// CalculateRealTimePricing prices the flow synchronously and caches the
	// result per estimate.
	CalculateRealTimePricing(ctx context.Context, flow *models.GuidedFlowData, estimateID string) *models.PricingResult

	// UpdatePricing schedules a debounced recalculation; subscribers are
	// notified once per completed cycle. Fire-and-forget.
	UpdatePricing(flow *models.GuidedFlowData, estimateID string)

	// GetLastResult returns the cached result for an estimate, or nil.
	GetLastResult(ctx context.Context, estimateID string) *models.PricingResult

	// Subscribe registers a listener for an estimate's pricing cycles. The
	// returned func unsubscribes and is idempotent.
	Subscribe(estimateID string, cb func(*models.PricingResult)) func()

	Close()
}

type pricingSubscriber struct {
	id uuid.UUID
	cb func(*models.PricingResult)
}

type pricingService struct {
	BaseService
	calculator CalculatorService
	results    *cache.ResultCache
	debounce   *debouncer

	mu          sync.Mutex
	subscribers map[string][]pricingSubscriber
}

// NewPricingService creates the real-time pricing service. delay controls
// the UpdatePricing debounce window.
func NewPricingService(config ServiceConfig, calculator CalculatorService, results *cache.ResultCache, delay time.Duration) PricingService {
	if delay <= 0 {
		delay = 300 * time.Millisecond
	}
	return &pricingService{
		BaseService: NewBaseService(config),
		calculator:  calculator,
		results:     results,
		debounce:    newDebouncer(delay),
		subscribers: make(map[string][]pricingSubscriber),
	}
}

func (s *pricingService) CalculateRealTimePricing(ctx context.Context, flow *models.GuidedFlowData, estimateID string) *models.PricingResult {
	ctx, span := s.config.Tracer(ctx, "PricingService.CalculateRealTimePricing")
	defer span.End()

	result := s.compute(flow)

	if s.results != nil {
		s.results.SetPricing(ctx, estimateID, result)
	}

	s.config.Metrics.IncrementCounter("pricing.calculated", 1)
	return result
}

func (s *pricingService) UpdatePricing(flow *models.GuidedFlowData, estimateID string) {
	s.debounce.Schedule("pricing:"+estimateID, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		result := s.CalculateRealTimePricing(ctx, flow, estimateID)
		s.notify(estimateID, result)
	})
}

func (s *pricingService) GetLastResult(ctx context.Context, estimateID string) *models.PricingResult {
	if s.results == nil {
		return nil
	}
	return s.results.GetPricing(ctx, estimateID)
}

func (s *pricingService) Subscribe(estimateID string, cb func(*models.PricingResult)) func() {
	id := uuid.New()

	s.mu.Lock()
	s.subscribers[estimateID] = append(s.subscribers[estimateID], pricingSubscriber{id: id, cb: cb})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			subs := s.subscribers[estimateID]
			for i, sub := range subs {
				if sub.id == id {
					s.subscribers[estimateID] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			if len(s.subscribers[estimateID]) == 0 {
				delete(s.subscribers, estimateID)
			}
		})
	}
}

func (s *pricingService) Close() {
	s.debounce.Close()
}

func (s *pricingService) notify(estimateID string, result *models.PricingResult) {
	s.mu.Lock()
	subs := make([]pricingSubscriber, len(s.subscribers[estimateID]))
	copy(subs, s.subscribers[estimateID])
	s.mu.Unlock()

	for _, sub := range subs {
		sub.cb(result)
	}
}

// compute prices every selected service, resolving each service's area from
// the takeoff step and falling back to the site's total area when no
// measurement exists.
func (s *pricingService) compute(flow *models.GuidedFlowData) *models.PricingResult {
	result := &models.PricingResult{
		ServiceBreakdown: []models.ServiceBreakdown{},
		MissingData:      []string{},
		Warnings:         []string{},
		Adjustments:      []models.PricingAdjustment{},
		LastUpdated:      time.Now(),
	}

	services := flow.SelectedServices()
	if len(services) == 0 {
		result.MissingData = append(result.MissingData, "selected services")
		result.Confidence = models.ConfidenceLow
		return result
	}

	var buildingHeight, totalArea float64
	if flow.AreaOfWork != nil {
		buildingHeight = flow.AreaOfWork.BuildingHeight
		totalArea = flow.AreaOfWork.TotalArea
	} else {
		result.MissingData = append(result.MissingData, "area of work")
	}

	crewSize := 1
	if flow.Duration != nil && flow.Duration.CrewSize > 0 {
		crewSize = flow.Duration.CrewSize
	}

	for _, service := range services {
		area, measured := flow.MeasuredArea(service)
		if !measured {
			if totalArea > 0 {
				area = totalArea
				result.Warnings = append(result.Warnings, "using total area for "+service.ServiceName())
			} else {
				result.MissingData = append(result.MissingData, "measurements for "+service.ServiceName())
			}
		}

		breakdown := s.calculator.Calculate(service, area, buildingHeight, crewSize)
		result.ServiceBreakdown = append(result.ServiceBreakdown, breakdown)
		result.Warnings = append(result.Warnings, breakdown.Warnings...)

		result.TotalCost += breakdown.Price
		result.TotalHours += breakdown.TotalHours
		result.TotalArea += breakdown.Area
	}

	if buildingHeight > 40 {
		surcharge := result.TotalCost * 0.10
		result.Adjustments = append(result.Adjustments, models.PricingAdjustment{
			Type:        "height-premium",
			Description: "specialized access equipment for buildings over 40 ft",
			Amount:      surcharge,
		})
		result.TotalCost += surcharge
	}

	result.Confidence = pricingConfidence(result)
	return result
}

func pricingConfidence(result *models.PricingResult) models.Confidence {
	if len(result.MissingData) > 0 {
		return models.ConfidenceLow
	}
	if len(result.Warnings) > 2 {
		return models.ConfidenceMedium
	}
	return models.ConfidenceHigh
}
