package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/cache"
	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/models"
	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/observability"
)

// countingPricing wraps the real pricing service to count pricing cycles
// triggered by validation runs.
type countingPricing struct {
	PricingService
	calls int32
}

func (c *countingPricing) CalculateRealTimePricing(ctx context.Context, flow *models.GuidedFlowData, estimateID string) *models.PricingResult {
	atomic.AddInt32(&c.calls, 1)
	return c.PricingService.CalculateRealTimePricing(ctx, flow, estimateID)
}

func newTestValidationService(t *testing.T) (ValidationService, *countingPricing) {
	t.Helper()
	results, err := cache.NewResultCache(0, observability.NewNoopLogger())
	require.NoError(t, err)
	pricing := &countingPricing{
		PricingService: NewPricingService(ServiceConfig{}, NewRateTableCalculator(), results, 50*time.Millisecond),
	}
	svc := NewValidationService(ServiceConfig{}, pricing, results, 50*time.Millisecond)
	t.Cleanup(func() {
		svc.Close()
		pricing.PricingService.Close()
	})
	return svc, pricing
}

func findError(result *models.ValidationResult, id string) *models.ValidationError {
	for i := range result.Errors {
		if result.Errors[i].ID == id {
			return &result.Errors[i]
		}
	}
	return nil
}

func findWarning(result *models.ValidationResult, id string) *models.ValidationWarning {
	for i := range result.Warnings {
		if result.Warnings[i].ID == id {
			return &result.Warnings[i]
		}
	}
	return nil
}

func findSuggestion(result *models.ValidationResult, id string) *models.ValidationSuggestion {
	for i := range result.Suggestions {
		if result.Suggestions[i].ID == id {
			return &result.Suggestions[i]
		}
	}
	return nil
}

func TestValidateCrossStepData(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestValidationService(t)

	t.Run("empty flow is valid", func(t *testing.T) {
		result := svc.ValidateCrossStepData(ctx, &models.GuidedFlowData{}, "est-empty", "")

		assert.True(t, result.IsValid)
		assert.Empty(t, result.Errors)
		assert.Contains(t, []models.Confidence{
			models.ConfidenceHigh, models.ConfidenceMedium, models.ConfidenceLow,
		}, result.Confidence)
	})

	t.Run("area within 110 percent never errors", func(t *testing.T) {
		flow := &models.GuidedFlowData{
			ScopeDetails: &models.ScopeDetails{SelectedServices: []models.ServiceType{models.ServicePressureWashing}},
			AreaOfWork:   &models.AreaOfWork{TotalArea: 1000},
			Takeoff: &models.TakeoffData{Measurements: []models.Measurement{
				{ServiceType: models.ServicePressureWashing, Area: 1100},
			}},
			Duration: &models.DurationData{EstimatedHours: 2},
		}
		result := svc.ValidateCrossStepData(ctx, flow, "est-area-ok", "")
		assert.Nil(t, findError(result, "area-exceeds-total-area"))
	})

	t.Run("area over 110 percent blocks", func(t *testing.T) {
		flow := &models.GuidedFlowData{
			ScopeDetails: &models.ScopeDetails{SelectedServices: []models.ServiceType{models.ServicePressureWashing}},
			AreaOfWork:   &models.AreaOfWork{TotalArea: 1000},
			Takeoff: &models.TakeoffData{Measurements: []models.Measurement{
				{ServiceType: models.ServicePressureWashing, Area: 1101},
			}},
			Duration: &models.DurationData{EstimatedHours: 2},
		}
		result := svc.ValidateCrossStepData(ctx, flow, "est-area-over", "")

		err := findError(result, "area-exceeds-total-area")
		require.NotNil(t, err)
		assert.True(t, err.BlocksProgression)
		assert.False(t, result.IsValid)
		assert.Contains(t, result.BlockedSteps, stepTakeoff)
	})

	t.Run("missing measurement warns auto-fixable", func(t *testing.T) {
		flow := &models.GuidedFlowData{
			ScopeDetails: &models.ScopeDetails{SelectedServices: []models.ServiceType{models.ServiceWindowCleaning}},
			AreaOfWork:   &models.AreaOfWork{TotalArea: 1000},
			Duration:     &models.DurationData{EstimatedHours: 4},
		}
		result := svc.ValidateCrossStepData(ctx, flow, "est-missing-area", "")

		warning := findWarning(result, "missing-service-area-WC")
		require.NotNil(t, warning)
		assert.True(t, warning.CanAutoFix)
	})

	t.Run("missing duration blocks", func(t *testing.T) {
		flow := &models.GuidedFlowData{
			ScopeDetails: &models.ScopeDetails{SelectedServices: []models.ServiceType{models.ServiceWindowCleaning}},
		}
		result := svc.ValidateCrossStepData(ctx, flow, "est-no-duration", "")

		err := findError(result, "missing-duration")
		require.NotNil(t, err)
		assert.True(t, err.BlocksProgression)
	})

	t.Run("ladder at 36 ft blocks and suggests lift", func(t *testing.T) {
		flow := &models.GuidedFlowData{
			AreaOfWork: &models.AreaOfWork{TotalArea: 1000, BuildingHeight: 36, AccessType: models.AccessLadder},
		}
		result := svc.ValidateCrossStepData(ctx, flow, "est-ladder-36", "")

		require.NotNil(t, findError(result, "inadequate-access"))
		suggestion := findSuggestion(result, "upgrade-access")
		require.NotNil(t, suggestion)
		assert.Equal(t, models.AccessLift, suggestion.SuggestedValue)
	})

	t.Run("ladder at 50 ft suggests scaffold", func(t *testing.T) {
		flow := &models.GuidedFlowData{
			AreaOfWork: &models.AreaOfWork{TotalArea: 1000, BuildingHeight: 50, AccessType: models.AccessLadder},
		}
		result := svc.ValidateCrossStepData(ctx, flow, "est-ladder-50", "")

		require.NotNil(t, findError(result, "inadequate-access"))
		suggestion := findSuggestion(result, "upgrade-access")
		require.NotNil(t, suggestion)
		assert.Equal(t, models.AccessScaffold, suggestion.SuggestedValue)
	})

	t.Run("ladder at 32 ft suggests lift without blocking", func(t *testing.T) {
		flow := &models.GuidedFlowData{
			AreaOfWork: &models.AreaOfWork{TotalArea: 1000, BuildingHeight: 32, AccessType: models.AccessLadder},
		}
		result := svc.ValidateCrossStepData(ctx, flow, "est-ladder-32", "")

		assert.Nil(t, findError(result, "inadequate-access"))
		suggestion := findSuggestion(result, "upgrade-access")
		require.NotNil(t, suggestion)
		assert.Equal(t, models.AccessLift, suggestion.SuggestedValue)
	})

	t.Run("ladder window cleaning risk warning", func(t *testing.T) {
		flow := &models.GuidedFlowData{
			ScopeDetails: &models.ScopeDetails{SelectedServices: []models.ServiceType{models.ServiceWindowCleaning}},
			AreaOfWork:   &models.AreaOfWork{TotalArea: 1000, BuildingHeight: 10, AccessType: models.AccessLadder},
			Duration:     &models.DurationData{EstimatedHours: 4},
		}
		result := svc.ValidateCrossStepData(ctx, flow, "est-wc-ladder", "")

		warning := findWarning(result, "window-cleaning-access")
		require.NotNil(t, warning)
		assert.Equal(t, models.SeverityHigh, warning.Severity)
		assert.Nil(t, findError(result, "inadequate-access"))
	})

	t.Run("dependency warning for glass restoration without window cleaning", func(t *testing.T) {
		flow := &models.GuidedFlowData{
			ScopeDetails: &models.ScopeDetails{SelectedServices: []models.ServiceType{models.ServiceGlassRestoration}},
			AreaOfWork:   &models.AreaOfWork{TotalArea: 500},
			Duration:     &models.DurationData{EstimatedHours: 10},
		}
		result := svc.ValidateCrossStepData(ctx, flow, "est-dep", "")

		warning := findWarning(result, "missing-dependency-GR-WC")
		require.NotNil(t, warning)
		assert.Equal(t, models.WarningTypeDependency, warning.Type)
	})

	t.Run("no dependency warning when prerequisite present", func(t *testing.T) {
		flow := &models.GuidedFlowData{
			ScopeDetails: &models.ScopeDetails{SelectedServices: []models.ServiceType{
				models.ServiceGlassRestoration, models.ServiceWindowCleaning,
			}},
			AreaOfWork: &models.AreaOfWork{TotalArea: 500},
			Duration:   &models.DurationData{EstimatedHours: 10},
		}
		result := svc.ValidateCrossStepData(ctx, flow, "est-dep-ok", "")
		assert.Nil(t, findWarning(result, "missing-dependency-GR-WC"))
	})

	t.Run("pricing variance warns with aligned suggestion", func(t *testing.T) {
		flow := &models.GuidedFlowData{
			ScopeDetails: &models.ScopeDetails{SelectedServices: []models.ServiceType{models.ServicePressureWashing}},
			AreaOfWork:   &models.AreaOfWork{TotalArea: 2000, BuildingHeight: 10},
			Duration:     &models.DurationData{EstimatedHours: 3},
			Pricing:      &models.PricingData{TotalPrice: 10000},
		}
		result := svc.ValidateCrossStepData(ctx, flow, "est-variance", "")

		require.NotNil(t, findWarning(result, "pricing-variance"))
		suggestion := findSuggestion(result, "align-pricing")
		require.NotNil(t, suggestion)
		assert.NotNil(t, suggestion.SuggestedValue)
	})

	t.Run("over budget warns and suggests scope reduction", func(t *testing.T) {
		flow := &models.GuidedFlowData{
			InitialContact: &models.InitialContact{CustomerBudget: "$100"},
			ScopeDetails:   &models.ScopeDetails{SelectedServices: []models.ServiceType{models.ServiceGlassRestoration}},
			AreaOfWork:     &models.AreaOfWork{TotalArea: 2000},
			Duration:       &models.DurationData{EstimatedHours: 40},
		}
		result := svc.ValidateCrossStepData(ctx, flow, "est-budget", "")

		require.NotNil(t, findWarning(result, "over-budget"))
		require.NotNil(t, findSuggestion(result, "optimize-scope"))
	})

	t.Run("changed step narrows the run", func(t *testing.T) {
		flow := &models.GuidedFlowData{
			ScopeDetails: &models.ScopeDetails{SelectedServices: []models.ServiceType{models.ServiceWindowCleaning}},
			AreaOfWork:   &models.AreaOfWork{TotalArea: 1000, BuildingHeight: 50, AccessType: models.AccessLadder},
		}
		result := svc.ValidateCrossStepData(ctx, flow, "est-narrow", stepAreaOfWork)

		// The duration rule does not read areaOfWork, so its blocking error
		// is absent from a narrowed run.
		assert.Nil(t, findError(result, "missing-duration"))
		require.NotNil(t, findError(result, "inadequate-access"))
	})

	t.Run("result cached and retrievable", func(t *testing.T) {
		svc.ValidateCrossStepData(ctx, &models.GuidedFlowData{}, "est-cache", "")
		assert.NotNil(t, svc.GetLastResult(ctx, "est-cache"))
		assert.Nil(t, svc.GetLastResult(ctx, "est-never-validated"))
	})
}

func TestScheduleValidationDebounce(t *testing.T) {
	svc, pricing := newTestValidationService(t)
	flow := &models.GuidedFlowData{}

	var notifications int32
	unsubscribe := svc.Subscribe("est-1", func(*models.ValidationResult) {
		atomic.AddInt32(&notifications, 1)
	})
	defer unsubscribe()

	for i := 0; i < 3; i++ {
		svc.ScheduleValidation(flow, "est-1", 100*time.Millisecond)
	}

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&notifications))
	assert.Equal(t, int32(1), atomic.LoadInt32(&pricing.calls))
}
