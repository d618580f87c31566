package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) GetTraces(c *gin.Context) {
	if h.Observability == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": "tracing disabled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"limit":  h.Observability.Limit(),
		"traces": h.Observability.List(),
	})
}

func (h *Handlers) GetAlerts(c *gin.Context) {
	if h.Alerts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": "alerts disabled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"limit":  h.Alerts.Limit(),
		"alerts": h.Alerts.List(),
	})
}
