package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/cache"
	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/models"
)

// Wizard step names used in validation findings.
const (
	stepScopeDetails = "scopeDetails"
	stepAreaOfWork   = "areaOfWork"
	stepTakeoff      = "takeoff"
	stepDuration     = "duration"
	stepExpenses     = "expenses"
	stepPricing      = "pricing"
)

// ValidationService runs the cross-step rule set over a guided flow document.
type ValidationService interface {
	// ValidateCrossStepData runs the rule families and caches the result per
	// estimate. changedStep, when non-empty, narrows the run to the rules
	// that read that step.
	ValidateCrossStepData(ctx context.Context, flow *models.GuidedFlowData, estimateID, changedStep string) *models.ValidationResult

	// ScheduleValidation debounces per estimate: bursts within the window
	// coalesce into one run and one listener notification.
	ScheduleValidation(flow *models.GuidedFlowData, estimateID string, delay time.Duration)

	// GetLastResult returns the cached result, or nil if never validated.
	GetLastResult(ctx context.Context, estimateID string) *models.ValidationResult

	// Subscribe registers a listener for an estimate's validation runs. The
	// returned func unsubscribes and is idempotent.
	Subscribe(estimateID string, cb func(*models.ValidationResult)) func()

	Close()
}

type validationSubscriber struct {
	id uuid.UUID
	cb func(*models.ValidationResult)
}

type validationRule struct {
	name  string
	steps []string
	run   func(flow *models.GuidedFlowData, pricing *models.PricingResult, result *models.ValidationResult)
}

type validationService struct {
	BaseService
	pricing  PricingService
	results  *cache.ResultCache
	debounce *debouncer
	rules    []validationRule

	mu          sync.Mutex
	subscribers map[string][]validationSubscriber
}

// NewValidationService creates the cross-step validator. pricing supplies the
// computed totals the pricing-consistency and budget rules compare against.
func NewValidationService(config ServiceConfig, pricing PricingService, results *cache.ResultCache, defaultDelay time.Duration) ValidationService {
	if defaultDelay <= 0 {
		defaultDelay = 300 * time.Millisecond
	}
	s := &validationService{
		BaseService: NewBaseService(config),
		pricing:     pricing,
		results:     results,
		debounce:    newDebouncer(defaultDelay),
		subscribers: make(map[string][]validationSubscriber),
	}
	s.rules = []validationRule{
		{name: "service-area", steps: []string{stepScopeDetails, stepAreaOfWork, stepTakeoff}, run: s.checkServiceArea},
		{name: "duration", steps: []string{stepScopeDetails, stepTakeoff, stepDuration}, run: s.checkDuration},
		{name: "pricing-consistency", steps: []string{stepScopeDetails, stepTakeoff, stepPricing}, run: s.checkPricingConsistency},
		{name: "equipment-access", steps: []string{stepScopeDetails, stepAreaOfWork}, run: s.checkEquipmentAccess},
		{name: "service-dependency", steps: []string{stepScopeDetails}, run: s.checkServiceDependencies},
		{name: "budget", steps: []string{stepScopeDetails, stepTakeoff, stepPricing}, run: s.checkBudget},
	}
	return s
}

func (s *validationService) ValidateCrossStepData(ctx context.Context, flow *models.GuidedFlowData, estimateID, changedStep string) *models.ValidationResult {
	ctx, span := s.config.Tracer(ctx, "ValidationService.ValidateCrossStepData")
	defer span.End()

	result := &models.ValidationResult{
		Errors:        []models.ValidationError{},
		Warnings:      []models.ValidationWarning{},
		Suggestions:   []models.ValidationSuggestion{},
		BlockedSteps:  []string{},
		LastValidated: time.Now(),
	}

	var pricing *models.PricingResult
	if s.pricing != nil {
		pricing = s.pricing.CalculateRealTimePricing(ctx, flow, estimateID)
	}

	for _, rule := range s.rules {
		if changedStep != "" && !ruleReadsStep(rule, changedStep) {
			continue
		}
		rule.run(flow, pricing, result)
	}

	result.IsValid = len(result.Errors) == 0
	for _, e := range result.Errors {
		if e.BlocksProgression && e.StepID != "" && !containsString(result.BlockedSteps, e.StepID) {
			result.BlockedSteps = append(result.BlockedSteps, e.StepID)
		}
	}
	result.Confidence = validationConfidence(result)

	if s.results != nil {
		s.results.SetValidation(ctx, estimateID, result)
	}

	s.config.Metrics.IncrementCounter("validation.run", 1)
	return result
}

func (s *validationService) ScheduleValidation(flow *models.GuidedFlowData, estimateID string, delay time.Duration) {
	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		result := s.ValidateCrossStepData(ctx, flow, estimateID, "")
		s.notify(estimateID, result)
	}

	s.debounce.ScheduleAfter("validation:"+estimateID, delay, run)
}

func (s *validationService) GetLastResult(ctx context.Context, estimateID string) *models.ValidationResult {
	if s.results == nil {
		return nil
	}
	return s.results.GetValidation(ctx, estimateID)
}

func (s *validationService) Subscribe(estimateID string, cb func(*models.ValidationResult)) func() {
	id := uuid.New()

	s.mu.Lock()
	s.subscribers[estimateID] = append(s.subscribers[estimateID], validationSubscriber{id: id, cb: cb})
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

func (s *validationService) Close() {
	s.debounce.Close()
}

func (s *validationService) notify(estimateID string, result *models.ValidationResult) {
	s.mu.Lock()
	subs := make([]validationSubscriber, len(s.subscribers[estimateID]))
	copy(subs, s.subscribers[estimateID])
	s.mu.Unlock()

	for _, sub := range subs {
		sub.cb(result)
	}
}

// Rule families. Each independently null-checks the steps it reads.

func (s *validationService) checkServiceArea(flow *models.GuidedFlowData, _ *models.PricingResult, result *models.ValidationResult) {
	services := flow.SelectedServices()
	if len(services) == 0 {
		return
	}

	for _, service := range services {
		if _, ok := flow.MeasuredArea(service); !ok {
			result.Warnings = append(result.Warnings, models.ValidationWarning{
				ID:         fmt.Sprintf("missing-service-area-%s", service),
				StepID:     stepTakeoff,
				Message:    fmt.Sprintf("no measured area for %s", service.ServiceName()),
				Severity:   models.SeverityMedium,
				Type:       models.WarningTypeQuality,
				CanAutoFix: true,
			})
		}
	}

	if flow.AreaOfWork == nil || flow.AreaOfWork.TotalArea <= 0 {
		return
	}
	measured := flow.TotalMeasuredArea()
	if measured > flow.AreaOfWork.TotalArea*1.10 {
		result.Errors = append(result.Errors, models.ValidationError{
			ID:     "area-exceeds-total-area",
			StepID: stepTakeoff,
			Message: fmt.Sprintf("measured area %.0f exceeds 110%% of total area %.0f",
				measured, flow.AreaOfWork.TotalArea),
			Severity:          models.SeverityHigh,
			BlocksProgression: true,
		})
	}
}

func (s *validationService) checkDuration(flow *models.GuidedFlowData, pricing *models.PricingResult, result *models.ValidationResult) {
	services := flow.SelectedServices()
	if len(services) == 0 {
		return
	}

	if flow.Duration == nil || flow.Duration.EstimatedHours <= 0 {
		result.Errors = append(result.Errors, models.ValidationError{
			ID:                "missing-duration",
			StepID:            stepDuration,
			Message:           "estimated duration is required for the selected services",
			Severity:          models.SeverityHigh,
			BlocksProgression: true,
		})
		return
	}

	if pricing == nil || pricing.TotalHours <= 0 {
		return
	}

	estimated := flow.Duration.EstimatedHours
	expected := pricing.TotalHours
	if estimated < expected*0.5 {
		result.Warnings = append(result.Warnings, models.ValidationWarning{
			ID:       "duration-too-short",
			StepID:   stepDuration,
			Message:  fmt.Sprintf("estimated %.1f hours is far below the %.1f hours the selected services suggest", estimated, expected),
			Severity: models.SeverityMedium,
			Type:     models.WarningTypeRisk,
		})
	} else if estimated > expected*3 {
		result.Warnings = append(result.Warnings, models.ValidationWarning{
			ID:       "duration-too-long",
			StepID:   stepDuration,
			Message:  fmt.Sprintf("estimated %.1f hours is far above the %.1f hours the selected services suggest", estimated, expected),
			Severity: models.SeverityLow,
			Type:     models.WarningTypeQuality,
		})
	}
}

func (s *validationService) checkPricingConsistency(flow *models.GuidedFlowData, pricing *models.PricingResult, result *models.ValidationResult) {
	if flow == nil || flow.Pricing == nil || flow.Pricing.TotalPrice <= 0 {
		return
	}
	if pricing == nil || pricing.TotalCost <= 0 {
		return
	}

	stated := flow.Pricing.TotalPrice
	computed := pricing.TotalCost
	variance := (stated - computed) / computed
	if variance < 0 {
		variance = -variance
	}
	if variance > 0.30 {
		result.Warnings = append(result.Warnings, models.ValidationWarning{
			ID:       "pricing-variance",
			StepID:   stepPricing,
			Message:  fmt.Sprintf("stated price $%.2f differs from calculated $%.2f by more than 30%%", stated, computed),
			Severity: models.SeverityHigh,
			Type:     models.WarningTypeRisk,
		})
		result.Suggestions = append(result.Suggestions, models.ValidationSuggestion{
			ID:             "align-pricing",
			Type:           "pricing",
			Message:        "align the stated price with the calculated total",
			SuggestedValue: computed,
		})
	}
}

func (s *validationService) checkEquipmentAccess(flow *models.GuidedFlowData, _ *models.PricingResult, result *models.ValidationResult) {
	if flow == nil || flow.AreaOfWork == nil || flow.AreaOfWork.AccessType != models.AccessLadder {
		return
	}

	height := flow.AreaOfWork.BuildingHeight

	if height > 30 {
		suggested := models.AccessLift
		if height > 40 {
			suggested = models.AccessScaffold
		}
		result.Suggestions = append(result.Suggestions, models.ValidationSuggestion{
			ID:             "upgrade-access",
			Type:           "equipment",
			Message:        fmt.Sprintf("ladder access is unsafe at %.0f ft", height),
			SuggestedValue: suggested,
		})
	}

	if height > 35 {
		result.Errors = append(result.Errors, models.ValidationError{
			ID:                "inadequate-access",
			StepID:            stepAreaOfWork,
			Message:           fmt.Sprintf("ladder access cannot reach a %.0f ft building", height),
			Severity:          models.SeverityHigh,
			BlocksProgression: true,
		})
	}

	for _, service := range flow.SelectedServices() {
		if service == models.ServiceWindowCleaning {
			result.Warnings = append(result.Warnings, models.ValidationWarning{
				ID:       "window-cleaning-access",
				StepID:   stepAreaOfWork,
				Message:  "ladder access for window cleaning carries elevated fall risk",
				Severity: models.SeverityHigh,
				Type:     models.WarningTypeRisk,
			})
			break
		}
	}
}

// serviceDependencies maps a service to the prerequisite it expects in the
// same scope.
var serviceDependencies = map[models.ServiceType]models.ServiceType{
	models.ServiceGlassRestoration: models.ServiceWindowCleaning,
	models.ServiceFrameRestoration: models.ServiceWindowCleaning,
	models.ServiceFinalClean:       models.ServicePressureWashing,
}

func (s *validationService) checkServiceDependencies(flow *models.GuidedFlowData, _ *models.PricingResult, result *models.ValidationResult) {
	services := flow.SelectedServices()
	if len(services) == 0 {
		return
	}

	selected := make(map[models.ServiceType]bool, len(services))
	for _, service := range services {
		selected[service] = true
	}

	for _, service := range services {
		required, ok := serviceDependencies[service]
		if !ok || selected[required] {
			continue
		}
		result.Warnings = append(result.Warnings, models.ValidationWarning{
			ID:       fmt.Sprintf("missing-dependency-%s-%s", service, required),
			StepID:   stepScopeDetails,
			Message:  fmt.Sprintf("%s usually requires %s", service.ServiceName(), required.ServiceName()),
			Severity: models.SeverityMedium,
			Type:     models.WarningTypeDependency,
		})
	}
}

func (s *validationService) checkBudget(flow *models.GuidedFlowData, pricing *models.PricingResult, result *models.ValidationResult) {
	if flow == nil || flow.InitialContact == nil {
		return
	}
	ceiling, ok := parseBudget(flow.InitialContact.CustomerBudget)
	if !ok {
		return
	}
	if pricing == nil || pricing.TotalCost <= ceiling {
		return
	}

	result.Warnings = append(result.Warnings, models.ValidationWarning{
		ID:       "over-budget",
		StepID:   stepPricing,
		Message:  fmt.Sprintf("calculated cost $%.2f exceeds the customer's stated budget $%.2f", pricing.TotalCost, ceiling),
		Severity: models.SeverityHigh,
		Type:     models.WarningTypeRisk,
	})
	result.Suggestions = append(result.Suggestions, models.ValidationSuggestion{
		ID:      "optimize-scope",
		Type:    "budget",
		Message: "reduce selected services or measured scope to fit the stated budget",
	})
}

func ruleReadsStep(rule validationRule, step string) bool {
	for _, s := range rule.steps {
		if s == step {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// validationConfidence buckets overall trust from the volume and severity of
// findings.
func validationConfidence(result *models.ValidationResult) models.Confidence {
	score := len(result.Errors) * 3
	for _, w := range result.Warnings {
		switch w.Severity {
		case models.SeverityHigh:
			score += 2
		default:
			score++
		}
	}

	switch {
	case score == 0:
		return models.ConfidenceHigh
	case score <= 3:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}
