package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"printgate/internal/printer"
	"printgate/internal/telemetry"
)

// ErrQueueFull is returned by Add/AddOffline when admission would exceed
// the queue ceiling. Callers retry later or fail the request.
var ErrQueueFull = errors.New("queue full")

// Status of a queue entry.
type Status string

const (
	StatusQueued        Status = "queued"
	StatusQueuedOffline Status = "queued_offline" // held while printer offline
	StatusPrinting      Status = "printing"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusCancelled     Status = "cancelled"
	StatusExpired       Status = "expired" // timed out waiting for an offline printer
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// PrintHandler delivers one job to the device and reports the outcome. An
// error return means the handler could not produce a definitive result.
type PrintHandler func(ctx context.Context, job *printer.Job) (*printer.Result, error)

// QueuedJob wraps a Job with its queue lifecycle. Mutated only by the
// owning queue; public methods hand out copies.
type QueuedJob struct {
	Job         *printer.Job
	Status      Status
	QueuedAt    time.Time
	ExpiresAt   *time.Time // offline holds only
	StartedAt   *time.Time
	CompletedAt *time.Time
	Result      *printer.Result
	Error       string
}

// Config tunes one queue. Zero values fall back to defaults.
type Config struct {
	MaxSize        int           // pending + in-flight ceiling, default 100
	HistorySize    int           // terminal entries retained, default 50
	OfflineTimeout time.Duration // offline hold before expiry, default 10m
	SweepInterval  time.Duration // expiry sweep period, default 60s

	// OnTerminal, when set, receives a copy of every entry that reaches a
	// terminal status. Called outside the queue lock.
	OnTerminal func(QueuedJob)
}

func (c Config) withDefaults() Config {
	if c.MaxSize <= 0 {
		c.MaxSize = 100
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 50
	}
	if c.OfflineTimeout <= 0 {
		c.OfflineTimeout = 10 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	return c
}

// Queue is the in-memory FIFO job holder and drain loop for one printer.
// Jobs are delivered sequentially, at most one in flight, with offline
// holds for a transiently unavailable device. State is lost on restart.
type Queue struct {
	printerID string
	handler   PrintHandler
	cfg       Config
	now       func() time.Time // injectable clock for expiry tests

	mu            sync.Mutex
	pending       []*QueuedJob // FIFO; offline holds stay in place
	current       *QueuedJob
	history       []*QueuedJob // bounded ring, oldest evicted first
	processing    bool
	sweeping      bool
	printerOnline bool
}

func New(printerID string, handler PrintHandler, cfg Config) *Queue {
	return &Queue{
		printerID:     printerID,
		handler:       handler,
		cfg:           cfg.withDefaults(),
		now:           time.Now,
		printerOnline: true,
	}
}

// Stats is a point-in-time view of one queue.
type Stats struct {
	PrinterID     string `json:"printer_id"`
	Queued        int    `json:"queued"`
	QueuedOffline int    `json:"queued_offline"`
	Processing    bool   `json:"processing"`
	CurrentJobID  string `json:"current_job,omitempty"`
	PrinterOnline bool   `json:"printer_online"`
}

// Add admits a job for asynchronous delivery. The returned copy reflects
// the entry at admission time.
func (q *Queue) Add(job *printer.Job) (QueuedJob, error) {
	q.mu.Lock()

	if err := q.admitLocked(); err != nil {
		q.mu.Unlock()
		telemetry.QueueRejects.WithLabelValues(q.printerID).Inc()
		return QueuedJob{}, err
	}

	entry := &QueuedJob{Job: job, Status: StatusQueued, QueuedAt: q.now()}
	q.pending = append(q.pending, entry)
	snapshot := *entry

	start := !q.processing
	if start {
		q.processing = true
	}
	depth := len(q.pending)
	q.mu.Unlock()

	log.Printf("job %s added to queue for %s", job.ID, q.printerID)
	telemetry.JobsEnqueued.WithLabelValues(q.printerID).Inc()
	telemetry.QueueDepth.WithLabelValues(q.printerID).Set(float64(depth))

	if start {
		go q.drain()
	}
	return snapshot, nil
}

// AddOffline admits a job while the printer is known unavailable. The entry
// is held (not drained) and expires if the printer stays away too long.
func (q *Queue) AddOffline(job *printer.Job) (QueuedJob, error) {
	q.mu.Lock()

	if err := q.admitLocked(); err != nil {
		q.mu.Unlock()
		telemetry.QueueRejects.WithLabelValues(q.printerID).Inc()
		return QueuedJob{}, err
	}

	expiresAt := q.now().Add(q.cfg.OfflineTimeout)
	entry := &QueuedJob{
		Job:       job,
		Status:    StatusQueuedOffline,
		QueuedAt:  q.now(),
		ExpiresAt: &expiresAt,
	}
	q.pending = append(q.pending, entry)
	snapshot := *entry

	startSweep := !q.sweeping
	if startSweep {
		q.sweeping = true
	}
	depth := len(q.pending)
	q.mu.Unlock()

	log.Printf("[JOB_QUEUED_OFFLINE] job %s queued offline for %s, expires at %s",
		job.ID, q.printerID, expiresAt.Format(time.RFC3339))
	telemetry.JobsEnqueuedOffline.WithLabelValues(q.printerID).Inc()
	telemetry.QueueDepth.WithLabelValues(q.printerID).Set(float64(depth))

	if startSweep {
		go q.sweepExpired()
	}
	return snapshot, nil
}

// admitLocked enforces the ceiling over queued plus in-flight entries.
func (q *Queue) admitLocked() error {
	inFlight := 0
	if q.current != nil {
		inFlight = 1
	}
	if len(q.pending)+inFlight >= q.cfg.MaxSize {
		return fmt.Errorf("%w (max %d jobs)", ErrQueueFull, q.cfg.MaxSize)
	}
	return nil
}

// OnPrinterOnline promotes every offline hold back to the live queue,
// keeping its original position, and restarts the drain loop. Idempotent.
func (q *Queue) OnPrinterOnline() int {
	q.mu.Lock()
	q.printerOnline = true

	promoted := 0
	for _, entry := range q.pending {
		if entry.Status == StatusQueuedOffline {
			entry.Status = StatusQueued
			entry.ExpiresAt = nil
			promoted++
			log.Printf("job %s promoted from offline queue", entry.Job.ID)
		}
	}

	start := !q.processing && q.hasQueuedLocked()
	if start {
		q.processing = true
	}
	q.mu.Unlock()

	if promoted > 0 {
		log.Printf("[PRINTER_ONLINE] %s: %d jobs promoted from offline queue", q.printerID, promoted)
	}
	if start {
		go q.drain()
	}
	return promoted
}

// SetPrinterOffline records device unavailability. Existing entries are
// untouched; new offline holds come from callers using AddOffline.
func (q *Queue) SetPrinterOffline() {
	q.mu.Lock()
	q.printerOnline = false
	q.mu.Unlock()
	log.Printf("[PRINTER_OFFLINE] %s: queue will hold jobs", q.printerID)
}

// Cancel removes a not-yet-started entry. Printing and terminal jobs
// cannot be cancelled.
func (q *Queue) Cancel(jobID string) bool {
	q.mu.Lock()

	for i, entry := range q.pending {
		if entry.Job.ID != jobID {
			continue
		}
		if entry.Status != StatusQueued && entry.Status != StatusQueuedOffline {
			break
		}
		now := q.now()
		entry.Status = StatusCancelled
		entry.CompletedAt = &now
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		q.appendHistoryLocked(entry)
		depth := len(q.pending)
		q.mu.Unlock()

		log.Printf("job %s cancelled", jobID)
		telemetry.JobsCancelled.WithLabelValues(q.printerID).Inc()
		telemetry.QueueDepth.WithLabelValues(q.printerID).Set(float64(depth))
		q.notifyTerminal(entry)
		return true
	}

	q.mu.Unlock()
	return false
}

// drain delivers QUEUED entries in admission order until none remain.
// Exactly one instance runs per queue; the processing flag is owned by the
// queue mutex.
func (q *Queue) drain() {
	for {
		q.mu.Lock()

		idx := -1
		for i, entry := range q.pending {
			if entry.Status == StatusQueued {
				idx = i
				break
			}
		}
		if idx == -1 {
			// Empty or offline holds only.
			q.processing = false
			q.mu.Unlock()
			return
		}

		entry := q.pending[idx]
		q.pending = append(q.pending[:idx], q.pending[idx+1:]...)
		q.current = entry
		started := q.now()
		entry.Status = StatusPrinting
		entry.StartedAt = &started
		depth := len(q.pending)
		q.mu.Unlock()

		telemetry.QueueDepth.WithLabelValues(q.printerID).Set(float64(depth))
		log.Printf("processing job %s", entry.Job.ID)

		result, err := q.handler(context.Background(), entry.Job)

		q.mu.Lock()
		completed := q.now()
		entry.CompletedAt = &completed
		switch {
		case err != nil:
			entry.Status = StatusFailed
			entry.Error = err.Error()
		case result.Success:
			entry.Status = StatusCompleted
			entry.Result = result
		default:
			entry.Status = StatusFailed
			entry.Result = result
			entry.Error = result.Message
		}
		q.appendHistoryLocked(entry)
		q.current = nil
		q.mu.Unlock()

		switch entry.Status {
		case StatusCompleted:
			log.Printf("job %s completed successfully", entry.Job.ID)
			telemetry.JobsCompleted.WithLabelValues(q.printerID).Inc()
		default:
			log.Printf("job %s failed: %s", entry.Job.ID, entry.Error)
			telemetry.JobsFailed.WithLabelValues(q.printerID).Inc()
		}
		q.notifyTerminal(entry)
	}
}

// sweepExpired expires past-due offline holds on a fixed interval and
// stops itself once none remain. Single instance, owned by the sweeping
// flag under the queue mutex.
func (q *Queue) sweepExpired() {
	ticker := time.NewTicker(q.cfg.SweepInterval)
	defer ticker.Stop()

	for range ticker.C {
		var expired []*QueuedJob

		q.mu.Lock()
		now := q.now()
		kept := q.pending[:0]
		remaining := 0
		for _, entry := range q.pending {
			if entry.Status == StatusQueuedOffline && entry.ExpiresAt != nil && entry.ExpiresAt.Before(now) {
				entry.Status = StatusExpired
				entry.CompletedAt = &now
				entry.Error = "job expired while printer offline"
				q.appendHistoryLocked(entry)
				expired = append(expired, entry)
				continue
			}
			if entry.Status == StatusQueuedOffline {
				remaining++
			}
			kept = append(kept, entry)
		}
		q.pending = kept
		depth := len(q.pending)
		done := remaining == 0
		if done {
			q.sweeping = false
		}
		q.mu.Unlock()

		for _, entry := range expired {
			log.Printf("[JOB_EXPIRED] job %s expired after waiting for offline printer", entry.Job.ID)
			telemetry.JobsExpired.WithLabelValues(q.printerID).Inc()
			q.notifyTerminal(entry)
		}
		if len(expired) > 0 {
			telemetry.QueueDepth.WithLabelValues(q.printerID).Set(float64(depth))
		}
		if done {
			return
		}
	}
}

func (q *Queue) notifyTerminal(entry *QueuedJob) {
	if q.cfg.OnTerminal == nil {
		return
	}
	q.mu.Lock()
	snapshot := *entry
	q.mu.Unlock()
	q.cfg.OnTerminal(snapshot)
}

func (q *Queue) hasQueuedLocked() bool {
	for _, entry := range q.pending {
		if entry.Status == StatusQueued {
			return true
		}
	}
	return false
}

// appendHistoryLocked keeps the history ring bounded, evicting the oldest.
func (q *Queue) appendHistoryLocked(entry *QueuedJob) {
	if len(q.history) == q.cfg.HistorySize {
		copy(q.history, q.history[1:])
		q.history[len(q.history)-1] = entry
		return
	}
	q.history = append(q.history, entry)
}

func (q *Queue) PrinterID() string { return q.printerID }

// Status reports a snapshot of queue counters.
func (q *Queue) Status() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	offline := 0
	for _, entry := range q.pending {
		if entry.Status == StatusQueuedOffline {
			offline++
		}
	}
	stats := Stats{
		PrinterID:     q.printerID,
		Queued:        len(q.pending),
		QueuedOffline: offline,
		Processing:    q.current != nil,
		PrinterOnline: q.printerOnline,
	}
	if q.current != nil {
		stats.CurrentJobID = q.current.Job.ID
	}
	return stats
}

// Jobs lists the in-flight entry (if any) followed by pending entries in
// FIFO order.
func (q *Queue) Jobs() []QueuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]QueuedJob, 0, len(q.pending)+1)
	if q.current != nil {
		out = append(out, *q.current)
	}
	for _, entry := range q.pending {
		out = append(out, *entry)
	}
	return out
}

// History returns up to limit most recent terminal entries, oldest first.
func (q *Queue) History(limit int) []QueuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	if limit <= 0 || limit > len(q.history) {
		limit = len(q.history)
	}
	out := make([]QueuedJob, 0, limit)
	for _, entry := range q.history[len(q.history)-limit:] {
		out = append(out, *entry)
	}
	return out
}

// GetJob finds an entry by job id: in-flight first, then pending, then
// history.
func (q *Queue) GetJob(jobID string) (QueuedJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current != nil && q.current.Job.ID == jobID {
		return *q.current, true
	}
	for _, entry := range q.pending {
		if entry.Job.ID == jobID {
			return *entry, true
		}
	}
	for _, entry := range q.history {
		if entry.Job.ID == jobID {
			return *entry, true
		}
	}
	return QueuedJob{}, false
}
