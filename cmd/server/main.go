package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sony/gobreaker"

	"github.com/prfowler23/estimatepro-2.5-sub004/internal/api"
	"github.com/prfowler23/estimatepro-2.5-sub004/internal/config"
	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/cache"
	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/events"
	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/observability"
	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/repository"
	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/repository/postgres"
	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/services"
)

func main() {
	logger := observability.NewStandardLogger("estimate")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", map[string]interface{}{"error": err.Error()})
	}

	metrics := observability.NewNoOpMetricsClient()
	svcConfig := services.ServiceConfig{
		Logger:  logger,
		Metrics: metrics,
		Tracer:  observability.NoopStartSpan,
		CircuitBreaker: &gobreaker.Settings{
			Name:    "repository",
			Timeout: 30 * time.Second,
		},
	}

	// Repositories: Postgres when a DSN is configured, in-memory otherwise.
	var (
		collaborators repository.CollaboratorRepository
		changes       repository.ChangeRepository
		conflicts     repository.ConflictRepository
	)
	if cfg.Database.DSN != "" {
		db, err := sqlx.Connect("postgres", cfg.Database.DSN)
		if err != nil {
			logger.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
		defer func() { _ = db.Close() }()

		if _, err := db.Exec(postgres.Schema); err != nil {
			logger.Fatal("Failed to apply schema", map[string]interface{}{"error": err.Error()})
		}

		collaborators = postgres.NewCollaboratorRepository(db, logger, svcConfig.Tracer)
		changes = postgres.NewChangeRepository(db, logger, svcConfig.Tracer)
		conflicts = postgres.NewConflictRepository(db, logger, svcConfig.Tracer)
		logger.Info("Using postgres repositories", nil)
	} else {
		collaborators = repository.NewInMemoryCollaboratorRepository()
		changes = repository.NewInMemoryChangeRepository()
		conflicts = repository.NewInMemoryConflictRepository()
		logger.Info("Using in-memory repositories", nil)
	}

	// Redis backs field locks, the cross-session event transport, and the
	// shared result cache. All are optional.
	var (
		redisClient *redis.Client
		transport   events.TransportPublisher
		remote      events.TransportSubscriber
		locks       services.FieldLockService
	)
	cacheOpts := []cache.Option{cache.WithTTL(cfg.Validation.CacheTTL)}
	if cfg.Redis.Address != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Address,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			PoolSize:     cfg.Redis.PoolSize,
		})
		defer func() { _ = redisClient.Close() }()

		rt := events.NewRedisTransport(redisClient, logger)
		transport = rt
		remote = rt
		defer func() { _ = rt.Close() }()

		locks = services.NewFieldLockService(svcConfig, redisClient)
		defer locks.Close()

		cacheOpts = append(cacheOpts, cache.WithRedis(redisClient))
	}

	results, err := cache.NewResultCache(cfg.Validation.CacheCapacity, logger, cacheOpts...)
	if err != nil {
		logger.Fatal("Failed to create result cache", map[string]interface{}{"error": err.Error()})
	}

	bus := events.NewEventBus(logger)
	defer bus.Close()

	collab := services.NewCollaborationService(svcConfig, services.CollaborationDeps{
		Collaborators:    collaborators,
		Changes:          changes,
		Conflicts:        conflicts,
		Bus:              bus,
		Transport:        transport,
		Remote:           remote,
		Locks:            locks,
		HeartbeatTimeout: cfg.Collaboration.HeartbeatTimeout,
		DebounceWindow:   cfg.Collaboration.DebounceWindow,
		HistoryLimit:     cfg.Collaboration.HistoryLimit,
	})
	defer collab.Close()

	pricing := services.NewPricingService(svcConfig, services.NewRateTableCalculator(), results, cfg.Collaboration.DebounceWindow)
	defer pricing.Close()

	validation := services.NewValidationService(svcConfig, pricing, results, cfg.Validation.DebounceWindow)
	defer validation.Close()

	server := api.NewServer(cfg.API, logger, metrics, api.Services{
		Collaboration: collab,
		Validation:    validation,
		Pricing:       pricing,
		Locks:         locks,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Fatal("Server failed", map[string]interface{}{"error": err.Error()})
	case sig := <-stop:
		logger.Info("Shutting down", map[string]interface{}{"signal": sig.String()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Graceful shutdown failed", map[string]interface{}{"error": err.Error()})
	}
}
