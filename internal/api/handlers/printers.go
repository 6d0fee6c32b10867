package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"printgate/internal/health"
	"printgate/internal/printer"
)

type PrinterResponse struct {
	printer.Info
	Status      string               `json:"status"`
	DeviceState *printer.DeviceState `json:"device_state,omitempty"`
}

// PrinterHandler exposes the registry over HTTP.
type PrinterHandler struct {
	registry *printer.Registry
	monitor  *health.Monitor
}

func NewPrinterHandler(registry *printer.Registry, monitor *health.Monitor) *PrinterHandler {
	return &PrinterHandler{registry: registry, monitor: monitor}
}

func (h *PrinterHandler) describe(c *gin.Context, p printer.Printer) PrinterResponse {
	resp := PrinterResponse{
		Info:   printer.Describe(p),
		Status: string(p.GetStatus(c.Request.Context())),
	}
	if lp, ok := p.(*printer.LabelPrinter); ok {
		state := lp.DeviceState()
		resp.DeviceState = &state
	}
	return resp
}

// List handles GET /api/v1/printers.
func (h *PrinterHandler) List(c *gin.Context) {
	printers := h.registry.List()
	out := make([]PrinterResponse, 0, len(printers))
	for _, p := range printers {
		out = append(out, h.describe(c, p))
	}
	c.JSON(http.StatusOK, gin.H{"printers": out})
}

// Get handles GET /api/v1/printers/:id.
func (h *PrinterHandler) Get(c *gin.Context) {
	p, ok := h.registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Printer not found"})
		return
	}
	c.JSON(http.StatusOK, h.describe(c, p))
}

// Check handles POST /api/v1/printers/:id/check. It forces a monitor
// poll instead of waiting for the next interval.
func (h *PrinterHandler) Check(c *gin.Context) {
	if _, ok := h.registry.Get(c.Param("id")); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Printer not found"})
		return
	}

	statuses := h.monitor.CheckNow(c.Request.Context())
	status, ok := statuses[c.Param("id")]
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Status probe failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": string(status)})
}
