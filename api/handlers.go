package api

import (
	"net/http"
	"strconv"

	"vifd/internal/logger"
	"vifd/internal/metrics"
	"vifd/internal/observability"
	"vifd/pkg/flow"
	"vifd/pkg/lifecycle"
	"vifd/pkg/network"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Interfaces    *lifecycle.Manager
	Flows         *flow.Table
	Metrics       *metrics.Metrics
	Observability *observability.TraceStore
	Alerts        *observability.AlertStore
	Log           *logger.Logger
}

type interfaceView struct {
	Name         string `json:"name"`
	Index        int    `json:"index"`
	HardwareAddr string `json:"hardware_addr"`
	MTU          int    `json:"mtu"`
	Address      string `json:"address"`
	Netmask      string `json:"netmask"`
	Flags        string `json:"flags"`
	Up           bool   `json:"up"`
	State        string `json:"state"`
	Error        string `json:"error,omitempty"`
}

func newInterfaceView(d network.Descriptor) interfaceView {
	state := lifecycle.StateCreated
	if d.Up {
		state = lifecycle.StateRunning
	}
	return interfaceView{
		Name:         d.Name,
		Index:        d.Index,
		HardwareAddr: d.HardwareAddr.String(),
		MTU:          d.MTU,
		Address:      d.AddressString(),
		Netmask:      d.NetmaskString(),
		Flags:        d.Flags.String(),
		Up:           d.Up,
		State:        state.String(),
		Error:        d.Error,
	}
}

// statusFor maps a lifecycle outcome to the HTTP status the API reports.
func statusFor(err error) int {
	switch lifecycle.KindOf(err) {
	case lifecycle.KindSuccess:
		return http.StatusOK
	case lifecycle.KindAlreadyExists:
		return http.StatusConflict
	case lifecycle.KindNotFound:
		return http.StatusNotFound
	case lifecycle.KindResourceUnavailable:
		return http.StatusServiceUnavailable
	case lifecycle.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"status": "error", "error": err.Error()})
}

func respondSuccess(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": message})
}

func (h *Handlers) CreateInterface(c *gin.Context) {
	desc, err := h.Interfaces.Create(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"message":   "interface " + desc.Name + " created",
		"interface": newInterfaceView(desc),
	})
}

func (h *Handlers) GetInterfaceStatus(c *gin.Context) {
	desc, err := h.Interfaces.Status()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newInterfaceView(desc))
}

func (h *Handlers) StartInterface(c *gin.Context) {
	if err := h.Interfaces.Start(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, "packet loop started")
}

func (h *Handlers) StopInterface(c *gin.Context) {
	if err := h.Interfaces.Stop(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, "packet loop stopped")
}

func (h *Handlers) DeleteInterface(c *gin.Context) {
	if err := h.Interfaces.Delete(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, "interface deleted")
}

func (h *Handlers) GetFlows(c *gin.Context) {
	if h.Flows == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": "flow accounting disabled"})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid limit"})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{
		"flows":    h.Flows.Top(limit),
		"total":    h.Flows.Len(),
		"overflow": h.Flows.Overflow(),
	})
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"interface": h.Interfaces.State().String(),
	})
}

func (h *Handlers) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.Metrics.Snapshot())
}
