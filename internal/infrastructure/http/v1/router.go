// Package v1 provides HTTP API version 1.
package v1

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"carmen/internal/domain/costing/settings"
	"carmen/internal/domain/registers/cost"
	"carmen/internal/infrastructure/http/v1/handlers"
	"carmen/internal/infrastructure/http/v1/middleware"
	"carmen/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// Location interprets date-only parameters
	Location *time.Location

	Settings  *settings.Service
	Register  *cost.Service
	Valuation handlers.CostValuer
	Averages  handlers.AverageReader
	Lots      handlers.LotReader

	// HealthChecks run on /health/ready
	HealthChecks map[string]handlers.CheckFunc

	// Gatherer backs /metrics; nil disables the endpoint
	Gatherer prometheus.Gatherer

	Development bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Trace())
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.HealthChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	baseHandler := handlers.NewBaseHandler(cfg.Location)

	api := router.Group("/api/v1")
	api.Use(middleware.UserContext())
	{
		if cfg.Settings != nil {
			RegisterSettingsRoutes(api.Group("/settings"), handlers.NewSettingsHandler(baseHandler, cfg.Settings))
		}
		if cfg.Valuation != nil {
			RegisterValuationRoutes(api.Group("/valuation"),
				handlers.NewValuationHandler(baseHandler, cfg.Valuation, cfg.Averages, cfg.Lots))
		}
		if cfg.Register != nil {
			RegisterRegisterRoutes(api.Group("/register"), handlers.NewRegisterHandler(baseHandler, cfg.Register))
		}
	}

	return router
}
