package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Simodalstix/AWS-dr-pilot-light/internal/core"
	"github.com/Simodalstix/AWS-dr-pilot-light/internal/storage/redis"
)

// HealthSource is the monitor's debounced view.
type HealthSource interface {
	Status(regionID string) core.HealthStatus
}

type HealthHandler struct {
	monitor HealthSource
	cache   *redis.Client
	logger  *zap.Logger
}

func NewHealthHandler(monitor HealthSource, cache *redis.Client, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{monitor: monitor, cache: cache, logger: logger}
}

// RegionHealth serves the debounced judgment for one region. The redis
// snapshot is the fast path; the in-process monitor is authoritative.
func (h *HealthHandler) RegionHealth(c *gin.Context) {
	regionID := c.Param("region")

	if h.cache != nil {
		if status, err := h.cache.GetCachedRegionHealth(c.Request.Context(), regionID); err == nil {
			c.JSON(http.StatusOK, status)
			return
		}
	}

	c.JSON(http.StatusOK, h.monitor.Status(regionID))
}

// Liveness is the orchestrator's own health endpoint.
func Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
