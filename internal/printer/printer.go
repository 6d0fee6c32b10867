package printer

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status is the observed state of a printer at probe time. Adapters derive
// it from the underlying connection on every call rather than caching it.
type Status string

const (
	StatusReady   Status = "ready"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
	StatusError   Status = "error"
)

// Job is a single print request. Immutable once created.
type Job struct {
	ID          string
	PrinterID   string
	Filename    string
	Data        []byte
	ContentType string
	Copies      int
	Options     map[string]string
	CreatedAt   time.Time
}

// NewJob builds a Job with a fresh id and creation timestamp.
func NewJob(printerID, filename, contentType string, data []byte, copies int) *Job {
	if copies < 1 {
		copies = 1
	}
	return &Job{
		ID:          uuid.NewString(),
		PrinterID:   printerID,
		Filename:    filename,
		Data:        data,
		ContentType: contentType,
		Copies:      copies,
		CreatedAt:   time.Now(),
	}
}

// Result is the outcome of a print attempt. A failed Result is an
// application-level failure; adapters raise an error only for conditions
// they cannot classify before returning.
type Result struct {
	Success   bool
	JobID     string
	Message   string
	ErrorCode string
}

// Printer is the adapter contract shared by all device types.
//
// GetStatus must be cheap to call frequently and must not fail for ordinary
// unavailability: it reports StatusOffline or StatusError instead.
type Printer interface {
	ID() string
	Name() string
	GetStatus(ctx context.Context) Status
	Print(ctx context.Context, job *Job) (*Result, error)
	ValidateJob(job *Job) (bool, string)
	SupportedContentTypes() []string
}

// Info is the API-facing description of a printer.
type Info struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	SupportedTypes []string `json:"supported_types"`
}

func Describe(p Printer) Info {
	return Info{
		ID:             p.ID(),
		Name:           p.Name(),
		SupportedTypes: p.SupportedContentTypes(),
	}
}
