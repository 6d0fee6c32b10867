package printer

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"
)

// MockPrinter simulates a printer for development and tests. The content
// type decides whether it stands in for a label or a document printer.
type MockPrinter struct {
	id           string
	name         string
	contentTypes []string
	printDelay   time.Duration
	failRate     float64

	mu     sync.Mutex
	status Status
}

func NewMockLabelPrinter(id, name string) *MockPrinter {
	if id == "" {
		id = "mock-label"
	}
	if name == "" {
		name = "Mock Label Printer"
	}
	return &MockPrinter{
		id:           id,
		name:         name,
		contentTypes: []string{"image/png"},
		printDelay:   500 * time.Millisecond,
		status:       StatusReady,
	}
}

func NewMockDocumentPrinter(id, name string) *MockPrinter {
	if id == "" {
		id = "mock-document"
	}
	if name == "" {
		name = "Mock Document Printer"
	}
	return &MockPrinter{
		id:           id,
		name:         name,
		contentTypes: []string{"application/pdf"},
		printDelay:   time.Second,
		status:       StatusReady,
	}
}

func (m *MockPrinter) ID() string                      { return m.id }
func (m *MockPrinter) Name() string                    { return m.name }
func (m *MockPrinter) SupportedContentTypes() []string { return m.contentTypes }

// SetStatus lets tests and the simulator endpoints force a status.
func (m *MockPrinter) SetStatus(s Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = s
}

// SetPrintDelay overrides the simulated transfer time.
func (m *MockPrinter) SetPrintDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.printDelay = d
}

// SetFailRate makes a fraction of prints fail, for exercising error paths.
func (m *MockPrinter) SetFailRate(rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRate = rate
}

func (m *MockPrinter) GetStatus(_ context.Context) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *MockPrinter) ValidateJob(job *Job) (bool, string) {
	if !contains(m.contentTypes, job.ContentType) {
		return false, fmt.Sprintf("unsupported content type: %s", job.ContentType)
	}
	if len(job.Data) == 0 {
		return false, "no data provided"
	}
	return true, ""
}

func (m *MockPrinter) Print(ctx context.Context, job *Job) (*Result, error) {
	m.mu.Lock()
	if m.status != StatusReady {
		status := m.status
		m.mu.Unlock()
		return &Result{
			Success:   false,
			JobID:     job.ID,
			Message:   fmt.Sprintf("printer not ready: %s", status),
			ErrorCode: "PRINTER_NOT_READY",
		}, nil
	}
	delay := m.printDelay
	failRate := m.failRate
	m.status = StatusBusy
	m.mu.Unlock()

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		m.SetStatus(StatusReady)
		return nil, ctx.Err()
	}

	m.SetStatus(StatusReady)

	if failRate > 0 && rand.Float64() < failRate {
		return &Result{
			Success:   false,
			JobID:     job.ID,
			Message:   "simulated print failure",
			ErrorCode: "MOCK_FAILURE",
		}, nil
	}

	log.Printf("[MOCK] printed job %s: %s (%d bytes)", job.ID, job.Filename, len(job.Data))
	return &Result{Success: true, JobID: job.ID, Message: "print job completed (mock)"}, nil
}
