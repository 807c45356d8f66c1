package services

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// FieldLockService provides distributed advisory locks on estimate fields.
// Locks are advisory: BroadcastChange never requires one, but clients that
// take a lock get exclusive-writer semantics for the lock's lifetime.
type FieldLockService interface {
	LockField(ctx context.Context, estimateID, fieldPath, userID string, duration time.Duration) (*FieldLock, error)
	UnlockField(ctx context.Context, estimateID, fieldPath, userID string) error
	ExtendLock(ctx context.Context, estimateID, fieldPath, userID string, extension time.Duration) error
	IsFieldLocked(ctx context.Context, estimateID, fieldPath string) (bool, *FieldLock, error)
	GetEstimateLocks(ctx context.Context, estimateID string) ([]*FieldLock, error)
	ReleaseAllLocks(ctx context.Context, estimateID, userID string) error
	Close()
}

// FieldLock represents an advisory lock on a single field path.
// ExpiresAtUnix mirrors ExpiresAt in epoch seconds for the takeover script,
// which cannot parse RFC3339.
type FieldLock struct {
	ID            string                 `json:"id"`
	EstimateID    string                 `json:"estimate_id"`
	FieldPath     string                 `json:"field_path"`
	UserID        string                 `json:"user_id"`
	AcquiredAt    time.Time              `json:"acquired_at"`
	ExpiresAt     time.Time              `json:"expires_at"`
	ExpiresAtUnix int64                  `json:"expires_at_unix"`
	RefreshCount  int                    `json:"refresh_count"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

type fieldLockService struct {
	BaseService
	redis           *redis.Client
	keyPrefix       string
	defaultTTL      time.Duration
	maxRefreshCount int

	// Auto-refresh management
	refreshInterval time.Duration
	activeLocks     sync.Map // lockID -> *FieldLock
	refreshStop     chan struct{}
	stopOnce        sync.Once
}

// NewFieldLockService creates a new field lock service backed by Redis.
func NewFieldLockService(config ServiceConfig, redisClient *redis.Client) FieldLockService {
	s := &fieldLockService{
		BaseService:     NewBaseService(config),
		redis:           redisClient,
		keyPrefix:       "estimate:lock:",
		defaultTTL:      2 * time.Minute,
		maxRefreshCount: 10,
		refreshInterval: 30 * time.Second,
		refreshStop:     make(chan struct{}),
	}

	go s.autoRefreshLocks()

	return s
}

func (s *fieldLockService) lockKey(estimateID, fieldPath string) string {
	return s.keyPrefix + estimateID + ":" + fieldPath
}

// LockField acquires an exclusive advisory lock on a field.
func (s *fieldLockService) LockField(ctx context.Context, estimateID, fieldPath, userID string, duration time.Duration) (*FieldLock, error) {
	ctx, span := s.config.Tracer(ctx, "FieldLockService.LockField")
	defer span.End()

	if duration > 30*time.Minute {
		duration = 30 * time.Minute
	}
	if duration == 0 {
		duration = s.defaultTTL
	}

	expiresAt := time.Now().Add(duration)
	lock := &FieldLock{
		ID:            uuid.New().String(),
		EstimateID:    estimateID,
		FieldPath:     fieldPath,
		UserID:        userID,
		AcquiredAt:    time.Now(),
		ExpiresAt:     expiresAt,
		ExpiresAtUnix: expiresAt.Unix(),
		Metadata: map[string]interface{}{
			"host": getHostname(),
			"pid":  os.Getpid(),
		},
	}

	lockData, err := json.Marshal(lock)
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize lock")
	}

	key := s.lockKey(estimateID, fieldPath)
	success, err := s.redis.SetNX(ctx, key, lockData, duration).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to acquire lock")
	}

	if !success {
		existing, err := s.getLock(ctx, key)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get existing lock")
		}

		if existing != nil && existing.UserID == userID {
			// Re-entrant acquire: refresh our own lock in place.
			if err := s.redis.Set(ctx, key, lockData, duration).Err(); err != nil {
				return nil, errors.Wrap(err, "failed to refresh lock")
			}
		} else if existing != nil && time.Now().After(existing.ExpiresAt) {
			// Holder's TTL lapsed but the key lingers; take over atomically.
			if err := s.tryAcquireExpiredLock(ctx, key, lockData, duration); err != nil {
				if err == redis.Nil {
					// Lost the race: another taker re-acquired between
					// the read and the swap.
					return nil, &FieldLockConflictError{
						EstimateID:    estimateID,
						FieldPath:     fieldPath,
						CurrentHolder: existing.UserID,
						ExpiresAt:     existing.ExpiresAt,
					}
				}
				return nil, errors.Wrap(err, "failed to take over expired lock")
			}
		} else if existing != nil {
			return nil, &FieldLockConflictError{
				EstimateID:    estimateID,
				FieldPath:     fieldPath,
				CurrentHolder: existing.UserID,
				ExpiresAt:     existing.ExpiresAt,
			}
		}
	}

	s.activeLocks.Store(lock.ID, lock)
	s.config.Metrics.IncrementCounter("field_lock.acquired", 1)

	return lock, nil
}

// UnlockField releases a field lock held by userID.
func (s *fieldLockService) UnlockField(ctx context.Context, estimateID, fieldPath, userID string) error {
	ctx, span := s.config.Tracer(ctx, "FieldLockService.UnlockField")
	defer span.End()

	key := s.lockKey(estimateID, fieldPath)

	current, err := s.getLock(ctx, key)
	if err != nil {
		return errors.Wrap(err, "failed to get lock")
	}
	if current == nil {
		return nil
	}

	if current.UserID != userID {
		return &UnauthorizedLockError{
			EstimateID: estimateID,
			FieldPath:  fieldPath,
			UserID:     userID,
			OwnerID:    current.UserID,
		}
	}

	s.activeLocks.Delete(current.ID)

	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return errors.Wrap(err, "failed to delete lock")
	}

	s.config.Metrics.IncrementCounter("field_lock.released", 1)
	return nil
}

// ExtendLock pushes out the expiration of an existing lock.
func (s *fieldLockService) ExtendLock(ctx context.Context, estimateID, fieldPath, userID string, extension time.Duration) error {
	ctx, span := s.config.Tracer(ctx, "FieldLockService.ExtendLock")
	defer span.End()

	if extension > 30*time.Minute {
		extension = 30 * time.Minute
	}
	if extension == 0 {
		extension = s.defaultTTL
	}

	key := s.lockKey(estimateID, fieldPath)

	current, err := s.getLock(ctx, key)
	if err != nil {
		return errors.Wrap(err, "failed to get lock")
	}
	if current == nil {
		return &NotFoundError{Resource: "lock", ID: estimateID + ":" + fieldPath}
	}

	if current.UserID != userID {
		return &UnauthorizedLockError{
			EstimateID: estimateID,
			FieldPath:  fieldPath,
			UserID:     userID,
			OwnerID:    current.UserID,
		}
	}

	if current.RefreshCount >= s.maxRefreshCount {
		return &LockRefreshLimitError{
			EstimateID:   estimateID,
			FieldPath:    fieldPath,
			RefreshCount: current.RefreshCount,
			MaxRefresh:   s.maxRefreshCount,
		}
	}

	current.ExpiresAt = time.Now().Add(extension)
	current.ExpiresAtUnix = current.ExpiresAt.Unix()
	current.RefreshCount++

	lockData, err := json.Marshal(current)
	if err != nil {
		return errors.Wrap(err, "failed to serialize lock")
	}

	if err := s.redis.Set(ctx, key, lockData, extension).Err(); err != nil {
		return errors.Wrap(err, "failed to extend lock")
	}

	s.activeLocks.Store(current.ID, current)
	return nil
}

// IsFieldLocked reports whether a field currently carries an unexpired lock.
func (s *fieldLockService) IsFieldLocked(ctx context.Context, estimateID, fieldPath string) (bool, *FieldLock, error) {
	ctx, span := s.config.Tracer(ctx, "FieldLockService.IsFieldLocked")
	defer span.End()

	key := s.lockKey(estimateID, fieldPath)
	lock, err := s.getLock(ctx, key)
	if err != nil {
		return false, nil, err
	}
	if lock == nil {
		return false, nil, nil
	}

	if time.Now().After(lock.ExpiresAt) {
		s.redis.Del(ctx, key)
		return false, nil, nil
	}

	return true, lock, nil
}

// GetEstimateLocks lists all unexpired locks on an estimate.
func (s *fieldLockService) GetEstimateLocks(ctx context.Context, estimateID string) ([]*FieldLock, error) {
	ctx, span := s.config.Tracer(ctx, "FieldLockService.GetEstimateLocks")
	defer span.End()

	pattern := s.keyPrefix + estimateID + ":*"
	keys, err := s.redis.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list lock keys")
	}

	var locks []*FieldLock
	for _, key := range keys {
		lock, err := s.getLock(ctx, key)
		if err != nil || lock == nil {
			continue
		}
		if time.Now().Before(lock.ExpiresAt) {
			locks = append(locks, lock)
		}
	}

	return locks, nil
}

// ReleaseAllLocks releases every lock userID holds on an estimate. Used when
// a collaborator leaves the session.
func (s *fieldLockService) ReleaseAllLocks(ctx context.Context, estimateID, userID string) error {
	locks, err := s.GetEstimateLocks(ctx, estimateID)
	if err != nil {
		return err
	}

	for _, lock := range locks {
		if lock.UserID != userID {
			continue
		}
		if err := s.UnlockField(ctx, estimateID, lock.FieldPath, userID); err != nil {
			s.config.Logger.Error("Failed to release lock", map[string]interface{}{
				"lock_id":     lock.ID,
				"estimate_id": estimateID,
				"field_path":  lock.FieldPath,
				"error":       err.Error(),
			})
		}
	}

	return nil
}

// Close stops the auto-refresh loop.
func (s *fieldLockService) Close() {
	s.stopOnce.Do(func() { close(s.refreshStop) })
}

// Helper methods

func (s *fieldLockService) getLock(ctx context.Context, key string) (*FieldLock, error) {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var lock FieldLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, err
	}

	return &lock, nil
}

func (s *fieldLockService) tryAcquireExpiredLock(ctx context.Context, key string, lockData []byte, duration time.Duration) error {
	// Atomic compare-and-swap so two takers of an expired lock cannot both win.
	script := `
		local current = redis.call('get', KEYS[1])
		if not current then
			return redis.call('set', KEYS[1], ARGV[1], 'EX', ARGV[2])
		end

		local lock = cjson.decode(current)
		local now = tonumber(ARGV[3])
		local expires = tonumber(lock.expires_at_unix)

		if not expires or now > expires then
			return redis.call('set', KEYS[1], ARGV[1], 'EX', ARGV[2])
		end

		return nil
	`

	_, err := s.redis.Eval(ctx, script, []string{key}, lockData, int(duration.Seconds()), time.Now().Unix()).Result()
	return err
}

func (s *fieldLockService) autoRefreshLocks() {
	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.refreshActiveLocks()
		case <-s.refreshStop:
			return
		}
	}
}

func (s *fieldLockService) refreshActiveLocks() {
	s.activeLocks.Range(func(key, value interface{}) bool {
		lock := value.(*FieldLock)

		if time.Until(lock.ExpiresAt) < s.refreshInterval*2 {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := s.ExtendLock(ctx, lock.EstimateID, lock.FieldPath, lock.UserID, s.defaultTTL)
			cancel()
			if err != nil {
				s.config.Logger.Error("Failed to auto-refresh lock", map[string]interface{}{
					"lock_id":     lock.ID,
					"estimate_id": lock.EstimateID,
					"field_path":  lock.FieldPath,
					"error":       err.Error(),
				})
				s.activeLocks.Delete(key)
			}
		}

		return true
	})
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
