package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetwatch/internal/config"
	"fleetwatch/internal/delivery/http/handler"
	"fleetwatch/internal/delivery/ws"
	"fleetwatch/internal/logger"
	"fleetwatch/internal/metrics"
	"fleetwatch/internal/middleware"
	"fleetwatch/internal/tracking"
)

// Dependencies are the long lived components the HTTP surface reads from.
// Hub, Registry and Limiter are optional.
type Dependencies struct {
	Controller   *tracking.Controller
	Hub          *ws.Hub
	Tracker      *metrics.Tracker
	Registry     *prometheus.Registry
	Limiter      *middleware.RateLimiter
	HealthChecks map[string]handler.HealthCheck
}

func SetupRoutes(cfg *config.Config, deps Dependencies) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// request ID, logging, security headers, CORS, request size limit, rate limit
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.CORSMiddleware(&cfg.CORS))
	router.Use(middleware.RequestSizeLimitMiddleware(middleware.DefaultMaxRequestSize))
	if deps.Limiter != nil {
		router.Use(middleware.RateLimitMiddleware(deps.Limiter))
	}

	healthHandler := handler.NewHealthHandler(deps.Tracker, deps.HealthChecks)
	router.GET("/health", healthHandler.Health)

	if deps.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	trackingHandler := handler.NewTrackingHandler(deps.Controller, deps.Hub)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	{
		trackingHandler.RegisterRoutes(v1)
	}

	logger.Info("All routes initialized")
	return router
}
