// Package cache holds the per-estimate result caches for validation and
// pricing. Results live in a size-bounded in-memory LRU, optionally backed
// by redis so sibling processes can reuse a computed result.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/models"
	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/observability"
)

const (
	defaultCapacity = 512
	defaultTTL      = 10 * time.Minute
)

type entry struct {
	validation *models.ValidationResult
	pricing    *models.PricingResult
}

// ResultCache caches the last ValidationResult and PricingResult per
// estimate. Entries are invalidated explicitly on the next data change.
type ResultCache struct {
	lru    *lru.Cache[string, *entry]
	redis  *redis.Client
	ttl    time.Duration
	logger observability.Logger
}

// Option configures a ResultCache
type Option func(*ResultCache)

// WithRedis adds a redis write-through layer
func WithRedis(client *redis.Client) Option {
	return func(c *ResultCache) { c.redis = client }
}

// WithTTL overrides the redis entry TTL
func WithTTL(ttl time.Duration) Option {
	return func(c *ResultCache) { c.ttl = ttl }
}

// NewResultCache creates a cache with the given capacity. A non-positive
// capacity falls back to the default.
func NewResultCache(capacity int, logger observability.Logger, opts ...Option) (*ResultCache, error) {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	inner, err := lru.New[string, *entry](capacity)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create lru cache")
	}

	c := &ResultCache{
		lru:    inner,
		ttl:    defaultTTL,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetValidation stores a validation result for an estimate
func (c *ResultCache) SetValidation(ctx context.Context, estimateID string, result *models.ValidationResult) {
	e := c.getOrAdd(estimateID)
	e.validation = result
	c.writeThrough(ctx, validationKey(estimateID), result)
}

// GetValidation returns the cached validation result, or nil if the
// estimate was never validated or has been invalidated
func (c *ResultCache) GetValidation(ctx context.Context, estimateID string) *models.ValidationResult {
	if e, ok := c.lru.Get(estimateID); ok && e.validation != nil {
		return e.validation
	}
	if c.redis == nil {
		return nil
	}
	var result models.ValidationResult
	if !c.readThrough(ctx, validationKey(estimateID), &result) {
		return nil
	}
	c.getOrAdd(estimateID).validation = &result
	return &result
}

// SetPricing stores a pricing result for an estimate
func (c *ResultCache) SetPricing(ctx context.Context, estimateID string, result *models.PricingResult) {
	e := c.getOrAdd(estimateID)
	e.pricing = result
	c.writeThrough(ctx, pricingKey(estimateID), result)
}

// GetPricing returns the cached pricing result, or nil
func (c *ResultCache) GetPricing(ctx context.Context, estimateID string) *models.PricingResult {
	if e, ok := c.lru.Get(estimateID); ok && e.pricing != nil {
		return e.pricing
	}
	if c.redis == nil {
		return nil
	}
	var result models.PricingResult
	if !c.readThrough(ctx, pricingKey(estimateID), &result) {
		return nil
	}
	c.getOrAdd(estimateID).pricing = &result
	return &result
}

// Invalidate drops every cached result for an estimate
func (c *ResultCache) Invalidate(ctx context.Context, estimateID string) {
	c.lru.Remove(estimateID)
	if c.redis != nil {
		if err := c.redis.Del(ctx, validationKey(estimateID), pricingKey(estimateID)).Err(); err != nil {
			c.logger.Warn("Failed to invalidate redis cache", map[string]interface{}{
				"estimate_id": estimateID,
				"error":       err.Error(),
			})
		}
	}
}

func (c *ResultCache) getOrAdd(estimateID string) *entry {
	if e, ok := c.lru.Get(estimateID); ok {
		return e
	}
	e := &entry{}
	c.lru.Add(estimateID, e)
	return e
}

// writeThrough mirrors a result into redis; failures degrade to a warning
func (c *ResultCache) writeThrough(ctx context.Context, key string, value interface{}) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Failed to marshal cache entry", map[string]interface{}{"key": key, "error": err.Error()})
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to write cache entry to redis", map[string]interface{}{"key": key, "error": err.Error()})
	}
}

func (c *ResultCache) readThrough(ctx context.Context, key string, out interface{}) bool {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		c.logger.Warn("Failed to read cache entry from redis", map[string]interface{}{"key": key, "error": err.Error()})
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Warn("Dropping malformed cache entry", map[string]interface{}{"key": key, "error": err.Error()})
		return false
	}
	return true
}

func validationKey(estimateID string) string {
	return fmt.Sprintf("estimate:validation:%s", estimateID)
}

func pricingKey(estimateID string) string {
	return fmt.Sprintf("estimate:pricing:%s", estimateID)
}
