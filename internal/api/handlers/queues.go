package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"printgate/internal/archive"
	"printgate/internal/queue"
)

type JobResponse struct {
	JobID       string     `json:"job_id"`
	PrinterID   string     `json:"printer_id"`
	Filename    string     `json:"filename"`
	ContentType string     `json:"content_type"`
	SizeBytes   int        `json:"size_bytes"`
	Copies      int        `json:"copies"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	QueuedAt    time.Time  `json:"queued_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func toJobResponse(qj queue.QueuedJob) JobResponse {
	return JobResponse{
		JobID:       qj.Job.ID,
		PrinterID:   qj.Job.PrinterID,
		Filename:    qj.Job.Filename,
		ContentType: qj.Job.ContentType,
		SizeBytes:   len(qj.Job.Data),
		Copies:      qj.Job.Copies,
		Status:      string(qj.Status),
		Error:       qj.Error,
		QueuedAt:    qj.QueuedAt,
		ExpiresAt:   qj.ExpiresAt,
		StartedAt:   qj.StartedAt,
		CompletedAt: qj.CompletedAt,
	}
}

// QueueHandler exposes per-printer queue state and job lookups. The
// archive is optional; history falls back to the in-memory ring when it
// is nil.
type QueueHandler struct {
	queues  *queue.Manager
	archive *archive.Archive
}

func NewQueueHandler(queues *queue.Manager, arch *archive.Archive) *QueueHandler {
	return &QueueHandler{queues: queues, archive: arch}
}

// List handles GET /api/v1/queues.
func (h *QueueHandler) List(c *gin.Context) {
	all := h.queues.All()
	out := make([]queue.Stats, 0, len(all))
	for _, q := range all {
		out = append(out, q.Status())
	}
	c.JSON(http.StatusOK, gin.H{"queues": out})
}

// Get handles GET /api/v1/queues/:printer.
func (h *QueueHandler) Get(c *gin.Context) {
	q, ok := h.queues.Get(c.Param("printer"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Queue not found"})
		return
	}

	jobs := q.Jobs()
	out := make([]JobResponse, 0, len(jobs))
	for _, qj := range jobs {
		out = append(out, toJobResponse(qj))
	}
	c.JSON(http.StatusOK, gin.H{"status": q.Status(), "jobs": out})
}

// History handles GET /api/v1/queues/:printer/history?limit=N.
func (h *QueueHandler) History(c *gin.Context) {
	q, ok := h.queues.Get(c.Param("printer"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Queue not found"})
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	entries := q.History(limit)
	out := make([]JobResponse, 0, len(entries))
	for _, qj := range entries {
		out = append(out, toJobResponse(qj))
	}
	c.JSON(http.StatusOK, gin.H{"history": out})
}

// GetJob handles GET /api/v1/jobs/:id, searching every queue.
func (h *QueueHandler) GetJob(c *gin.Context) {
	id := c.Param("id")
	for _, q := range h.queues.All() {
		if qj, ok := q.GetJob(id); ok {
			c.JSON(http.StatusOK, toJobResponse(qj))
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
}

// CancelJob handles DELETE /api/v1/jobs/:id. Only jobs still waiting
// can be cancelled.
func (h *QueueHandler) CancelJob(c *gin.Context) {
	id := c.Param("id")
	for _, q := range h.queues.All() {
		qj, ok := q.GetJob(id)
		if !ok {
			continue
		}
		if q.Cancel(id) {
			c.JSON(http.StatusOK, gin.H{"cancelled": true, "job_id": id})
			return
		}
		c.JSON(http.StatusConflict, gin.H{
			"error":  "Job can no longer be cancelled",
			"status": string(qj.Status),
		})
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
}

// Archived handles GET /api/v1/archive?printer=&limit=N.
func (h *QueueHandler) Archived(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Archive is not enabled"})
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	records, err := h.archive.Recent(c.Query("printer"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}
