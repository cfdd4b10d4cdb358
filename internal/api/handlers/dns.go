package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Simodalstix/AWS-dr-pilot-light/internal/core"
)

// RecordSetSource exposes the DNS controller's derived record view.
type RecordSetSource interface {
	RecordSet() core.DNSRecordSet
}

type DNSHandler struct {
	controller RecordSetSource
}

func NewDNSHandler(controller RecordSetSource) *DNSHandler {
	return &DNSHandler{controller: controller}
}

func (h *DNSHandler) RecordSet(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.RecordSet())
}
