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

func newTestPricingService(t *testing.T) PricingService {
	t.Helper()
	results, err := cache.NewResultCache(0, observability.NewNoopLogger())
	require.NoError(t, err)
	svc := NewPricingService(ServiceConfig{}, NewRateTableCalculator(), results, 50*time.Millisecond)
	t.Cleanup(svc.Close)
	return svc
}

func flowWithServices(services []models.ServiceType, totalArea float64) *models.GuidedFlowData {
	return &models.GuidedFlowData{
		ScopeDetails: &models.ScopeDetails{SelectedServices: services},
		AreaOfWork:   &models.AreaOfWork{TotalArea: totalArea, BuildingHeight: 15},
	}
}

func TestCalculateRealTimePricing(t *testing.T) {
	ctx := context.Background()
	svc := newTestPricingService(t)

	t.Run("one breakdown per selected service", func(t *testing.T) {
		services := []models.ServiceType{
			models.ServiceWindowCleaning,
			models.ServicePressureWashing,
			models.ServiceHighDusting,
		}
		result := svc.CalculateRealTimePricing(ctx, flowWithServices(services, 2000), "est-1")

		assert.Len(t, result.ServiceBreakdown, len(services))
		assert.Greater(t, result.TotalCost, 0.0)
		assert.Greater(t, result.TotalHours, 0.0)
	})

	t.Run("doubling area roughly doubles cost", func(t *testing.T) {
		services := []models.ServiceType{models.ServicePressureWashing}
		small := svc.CalculateRealTimePricing(ctx, flowWithServices(services, 1000), "est-a")
		large := svc.CalculateRealTimePricing(ctx, flowWithServices(services, 2000), "est-b")

		require.Greater(t, small.TotalCost, 0.0)
		ratio := large.TotalCost / small.TotalCost
		assert.InDelta(t, 2.0, ratio, 1.0)
	})

	t.Run("no services forces low confidence", func(t *testing.T) {
		result := svc.CalculateRealTimePricing(ctx, &models.GuidedFlowData{}, "est-2")

		assert.Empty(t, result.ServiceBreakdown)
		assert.Equal(t, models.ConfidenceLow, result.Confidence)
		assert.NotEmpty(t, result.MissingData)
	})

	t.Run("missing area data forces low confidence", func(t *testing.T) {
		flow := &models.GuidedFlowData{
			ScopeDetails: &models.ScopeDetails{
				SelectedServices: []models.ServiceType{models.ServiceWindowCleaning},
			},
		}
		result := svc.CalculateRealTimePricing(ctx, flow, "est-3")
		assert.Equal(t, models.ConfidenceLow, result.Confidence)
	})

	t.Run("takeoff measurement preferred over total area", func(t *testing.T) {
		flow := flowWithServices([]models.ServiceType{models.ServiceWindowCleaning}, 5000)
		flow.Takeoff = &models.TakeoffData{Measurements: []models.Measurement{
			{ServiceType: models.ServiceWindowCleaning, Area: 800},
		}}
		result := svc.CalculateRealTimePricing(ctx, flow, "est-4")

		require.Len(t, result.ServiceBreakdown, 1)
		assert.Equal(t, 800.0, result.ServiceBreakdown[0].Area)
	})

	t.Run("height premium adjustment over 40 ft", func(t *testing.T) {
		flow := flowWithServices([]models.ServiceType{models.ServiceWindowCleaning}, 2000)
		flow.AreaOfWork.BuildingHeight = 55
		result := svc.CalculateRealTimePricing(ctx, flow, "est-5")

		require.Len(t, result.Adjustments, 1)
		assert.Equal(t, "height-premium", result.Adjustments[0].Type)
		assert.Greater(t, result.Adjustments[0].Amount, 0.0)
	})

	t.Run("result is cached", func(t *testing.T) {
		svc.CalculateRealTimePricing(ctx, flowWithServices([]models.ServiceType{models.ServiceFinalClean}, 1500), "est-6")
		cached := svc.GetLastResult(ctx, "est-6")
		require.NotNil(t, cached)
		assert.Len(t, cached.ServiceBreakdown, 1)
	})
}

func TestUpdatePricingDebounceAndSubscribe(t *testing.T) {
	svc := newTestPricingService(t)
	flow := flowWithServices([]models.ServiceType{models.ServiceWindowCleaning}, 1000)

	var calls int32
	unsubscribe := svc.Subscribe("est-1", func(*models.PricingResult) {
		atomic.AddInt32(&calls, 1)
	})

	for i := 0; i < 3; i++ {
		svc.UpdatePricing(flow, "est-1")
	}
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "burst should coalesce into one notification")

	unsubscribe()
	unsubscribe() // idempotent

	svc.UpdatePricing(flow, "est-1")
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "no callbacks after unsubscribe")
}
