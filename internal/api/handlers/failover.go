package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/Simodalstix/AWS-dr-pilot-light/internal/core"
)

// FailoverService is the workflow engine surface the API exposes.
type FailoverService interface {
	Trigger(ctx context.Context, reason string, metadata map[string]string) (string, error)
	GetRun(ctx context.Context, runID string) (*core.FailoverWorkflowRun, error)
	ListRuns(ctx context.Context, limit int) ([]*core.FailoverWorkflowRun, error)
}

type FailoverHandler struct {
	service FailoverService
	limiter *rate.Limiter
}

// NewFailoverHandler rate-limits triggers so an alarm storm cannot hammer the
// engine; rejected triggers are cheap but the log noise is not.
func NewFailoverHandler(service FailoverService, triggerRate float64, burst int) *FailoverHandler {
	if triggerRate <= 0 {
		triggerRate = 1
	}
	if burst <= 0 {
		burst = 3
	}
	return &FailoverHandler{
		service: service,
		limiter: rate.NewLimiter(rate.Limit(triggerRate), burst),
	}
}

type triggerRequest struct {
	Reason   string            `json:"reason" binding:"required"`
	Metadata map[string]string `json:"metadata"`
}

func (h *FailoverHandler) Trigger(c *gin.Context) {
	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.limiter.Allow() {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "trigger rate exceeded"})
		return
	}

	runID, err := h.service.Trigger(c.Request.Context(), req.Reason, req.Metadata)
	if err != nil {
		if errors.Is(err, core.ErrConcurrencyConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "busy"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

func (h *FailoverHandler) GetRun(c *gin.Context) {
	run, err := h.service.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, core.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *FailoverHandler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	runs, err := h.service.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}
