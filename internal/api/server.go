// Package api exposes the collaboration, validation, and pricing services
// over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prfowler23/estimatepro-2.5-sub004/internal/config"
	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/observability"
	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/services"
)

// Server is the HTTP front end
type Server struct {
	cfg        config.APIConfig
	logger     observability.Logger
	metrics    observability.MetricsClient
	collab     services.CollaborationService
	validation services.ValidationService
	pricing    services.PricingService
	locks      services.FieldLockService

	engine *gin.Engine
	http   *http.Server
}

// Services bundles the server's dependencies
type Services struct {
	Collaboration services.CollaborationService
	Validation    services.ValidationService
	Pricing       services.PricingService
	Locks         services.FieldLockService
}

// NewServer builds the router and handlers
func NewServer(cfg config.APIConfig, logger observability.Logger, metrics observability.MetricsClient, svcs Services) *Server {
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		collab:     svcs.Collaboration,
		validation: svcs.Validation,
		pricing:    svcs.Pricing,
		locks:      svcs.Locks,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	if cfg.LogRequests {
		engine.Use(requestLogger(logger))
	}
	if cfg.EnableCORS {
		engine.Use(corsMiddleware())
	}
	if cfg.RateLimit.Enabled {
		engine.Use(rateLimiter(cfg.RateLimit))
	}

	s.registerRoutes(engine)
	s.engine = engine
	s.http = &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) registerRoutes(engine *gin.Engine) {
	engine.GET("/healthz", s.handleHealth)

	base := s.cfg.BasePath
	if base == "" {
		base = "/api/v1"
	}
	v1 := engine.Group(base)

	estimates := v1.Group("/estimates/:estimateID")
	{
		estimates.POST("/session", s.handleJoinSession)
		estimates.DELETE("/session/:userID", s.handleLeaveSession)

		estimates.PUT("/presence/:userID", s.handleUpdatePresence)
		estimates.GET("/cursor/:userID", s.handleGetCursor)
		estimates.GET("/field-status", s.handleFieldStatus)

		estimates.POST("/changes", s.handleBroadcastChange)
		estimates.GET("/changes", s.handleRecentChanges)
		estimates.GET("/field-values", s.handleFieldValues)

		estimates.GET("/conflicts", s.handleListConflicts)
		estimates.POST("/conflicts/:conflictID/resolve", s.handleResolveConflict)

		estimates.POST("/collaborators", s.handleInviteCollaborator)
		estimates.DELETE("/collaborators/:userID", s.handleRemoveCollaborator)

		estimates.POST("/locks", s.handleLockField)
		estimates.DELETE("/locks", s.handleUnlockField)
		estimates.GET("/locks", s.handleListLocks)

		estimates.POST("/validation", s.handleValidate)
		estimates.GET("/validation", s.handleLastValidation)

		estimates.POST("/pricing", s.handleCalculatePricing)
		estimates.GET("/pricing", s.handleLastPricing)
	}
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until the listener fails or Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", map[string]interface{}{
		"address": s.cfg.ListenAddress,
	})
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
