package handlers

import (
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"printgate/internal/printer"
	"printgate/internal/queue"
	"printgate/internal/routing"
	"printgate/internal/validation"
)

type PrintResponse struct {
	JobID     string `json:"job_id"`
	PrinterID string `json:"printer_id"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}

// PrintHandler accepts uploads and admits them to the target queue.
type PrintHandler struct {
	registry     *printer.Registry
	queues       *queue.Manager
	router       *routing.Router
	offlineHolds bool
}

func NewPrintHandler(registry *printer.Registry, queues *queue.Manager, router *routing.Router, offlineHolds bool) *PrintHandler {
	return &PrintHandler{
		registry:     registry,
		queues:       queues,
		router:       router,
		offlineHolds: offlineHolds,
	}
}

// Submit handles POST /api/v1/print. The multipart form carries the
// file plus optional printer, intent and copies fields. An explicit
// printer id wins over intent routing.
func (h *PrintHandler) Submit(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing file field"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to open upload"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, validation.MaxPayloadSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read upload"})
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mime.TypeByExtension(filepath.Ext(fileHeader.Filename))
	}
	contentType, _, _ = strings.Cut(contentType, ";")

	if err := validation.Validate(contentType, data); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, validation.ErrUnsupportedType) {
			status = http.StatusUnsupportedMediaType
		}
		if errors.Is(err, validation.ErrPayloadTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	printerID := c.PostForm("printer")
	if printerID == "" {
		printerID = h.router.ResolveOrDefault(c.PostForm("intent"), contentType)
	}

	target, ok := h.registry.Get(printerID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown printer: " + printerID})
		return
	}

	copies := 1
	if v := c.PostForm("copies"); v != "" {
		copies, err = strconv.Atoi(v)
		if err != nil || copies < 1 || copies > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "copies must be between 1 and 100"})
			return
		}
	}

	job := printer.NewJob(printerID, fileHeader.Filename, contentType, data, copies)
	if ok, reason := target.ValidateJob(job); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": reason})
		return
	}

	q, ok := h.queues.Get(printerID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No queue for printer: " + printerID})
		return
	}

	var entry queue.QueuedJob
	if target.GetStatus(c.Request.Context()) == printer.StatusOffline {
		if !h.offlineHolds {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Printer is offline"})
			return
		}
		entry, err = q.AddOffline(job)
	} else {
		entry, err = q.Add(job)
	}
	if err != nil {
		if errors.Is(err, queue.ErrQueueFull) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	log.Printf("[JOB_SUBMITTED] job=%s printer=%s type=%s size=%d copies=%d",
		job.ID, printerID, contentType, len(data), copies)

	resp := PrintResponse{
		JobID:     job.ID,
		PrinterID: printerID,
		Status:    string(entry.Status),
	}
	if entry.Status == queue.StatusQueuedOffline {
		resp.Message = "Printer offline, job held until it returns"
	}
	c.JSON(http.StatusAccepted, resp)
}
