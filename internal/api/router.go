package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Simodalstix/AWS-dr-pilot-light/internal/api/handlers"
	"github.com/Simodalstix/AWS-dr-pilot-light/internal/api/middleware"
	"github.com/Simodalstix/AWS-dr-pilot-light/internal/config"
	"github.com/Simodalstix/AWS-dr-pilot-light/internal/sla"
	"github.com/Simodalstix/AWS-dr-pilot-light/internal/storage/redis"
)

type Server struct {
	Router *gin.Engine
}

func NewServer(
	cfg *config.Config,
	service handlers.FailoverService,
	monitor handlers.HealthSource,
	dnsController handlers.RecordSetSource,
	slaCalculator *sla.Calculator,
	cache *redis.Client,
	logger *zap.Logger,
) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(logger))
	router.Use(gin.Recovery())

	server := &Server{Router: router}

	// Health check and metrics
	router.GET("/health", handlers.Liveness)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	failoverHandler := handlers.NewFailoverHandler(service, cfg.Workflow.TriggerRate, cfg.Workflow.TriggerBurst)
	healthHandler := handlers.NewHealthHandler(monitor, cache, logger)

	api := router.Group("/api/v1")
	{
		api.POST("/failover/trigger", failoverHandler.Trigger)
		api.GET("/runs", failoverHandler.ListRuns)
		api.GET("/runs/:id", failoverHandler.GetRun)
		api.GET("/health/:region", healthHandler.RegionHealth)
	}

	if dnsController != nil {
		dnsHandler := handlers.NewDNSHandler(dnsController)
		api.GET("/dns/recordset", dnsHandler.RecordSet)
	}

	if slaCalculator != nil {
		slaHandler := handlers.NewSLAHandler(slaCalculator)
		api.GET("/sla", slaHandler.Report)
	}

	return server
}
