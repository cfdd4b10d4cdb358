package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Simodalstix/AWS-dr-pilot-light/internal/sla"
)

type SLAHandler struct {
	calculator *sla.Calculator
}

func NewSLAHandler(calculator *sla.Calculator) *SLAHandler {
	return &SLAHandler{calculator: calculator}
}

func (h *SLAHandler) Report(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	report, err := h.calculator.Report(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}
