package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/models"
	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/observability"
)

func TestResultCache(t *testing.T) {
	ctx := context.Background()
	logger := observability.NewNoopLogger()

	t.Run("miss before first set", func(t *testing.T) {
		c, err := NewResultCache(8, logger)
		require.NoError(t, err)
		assert.Nil(t, c.GetValidation(ctx, "est-1"))
		assert.Nil(t, c.GetPricing(ctx, "est-1"))
	})

	t.Run("set and get per estimate", func(t *testing.T) {
		c, err := NewResultCache(8, logger)
		require.NoError(t, err)

		validation := &models.ValidationResult{IsValid: true, Confidence: models.ConfidenceHigh, LastValidated: time.Now()}
		pricing := &models.PricingResult{TotalCost: 1500, Confidence: models.ConfidenceMedium}
		c.SetValidation(ctx, "est-1", validation)
		c.SetPricing(ctx, "est-1", pricing)

		assert.Equal(t, validation, c.GetValidation(ctx, "est-1"))
		assert.Equal(t, pricing, c.GetPricing(ctx, "est-1"))
		assert.Nil(t, c.GetValidation(ctx, "est-2"))
	})

	t.Run("invalidate clears both results", func(t *testing.T) {
		c, err := NewResultCache(8, logger)
		require.NoError(t, err)

		c.SetValidation(ctx, "est-1", &models.ValidationResult{IsValid: true})
		c.SetPricing(ctx, "est-1", &models.PricingResult{TotalCost: 100})
		c.Invalidate(ctx, "est-1")

		assert.Nil(t, c.GetValidation(ctx, "est-1"))
		assert.Nil(t, c.GetPricing(ctx, "est-1"))
	})

	t.Run("redis layer recovers after lru eviction", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		defer mr.Close()
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer func() { _ = client.Close() }()

		c, err := NewResultCache(1, logger, WithRedis(client))
		require.NoError(t, err)

		c.SetValidation(ctx, "est-1", &models.ValidationResult{IsValid: true, Confidence: models.ConfidenceHigh})
		// Evict est-1 from the LRU
		c.SetValidation(ctx, "est-2", &models.ValidationResult{IsValid: false, Confidence: models.ConfidenceLow})

		got := c.GetValidation(ctx, "est-1")
		require.NotNil(t, got)
		assert.True(t, got.IsValid)
		assert.Equal(t, models.ConfidenceHigh, got.Confidence)
	})
}
