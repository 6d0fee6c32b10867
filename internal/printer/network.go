package printer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"
)

var (
	ErrConnectionFailed = errors.New("connection failed")
	ErrInvalidStatus    = errors.New("invalid status response")
)

const (
	defaultRawPort        = 9100
	rawStatusCommand      = "\x1b!?"
	rawStatusResponseLen  = 4
	defaultNetworkTimeout = 10 * time.Second
)

// Raw 4-byte status response maps, first byte is the printer state.
var rawPrinterStateMap = map[byte]Status{
	'@': StatusReady, // normal
	'I': StatusReady, // idle
	'S': StatusReady, // standby
	'F': StatusBusy,  // feeding
	'L': StatusBusy,  // label waiting
	'P': StatusError, // paused at the panel, cannot print
	'E': StatusError,
	'H': StatusError, // head open
}

// NetworkPrinter drives a label printer over a raw TCP (port 9100) socket.
// The connection is kept open between jobs and re-dialed on write failure.
type NetworkPrinter struct {
	id      string
	name    string
	address string
	timeout time.Duration

	mu   sync.Mutex
	conn net.Conn
}

type NetworkPrinterConfig struct {
	ID      string
	Name    string
	Host    string
	Port    int
	Timeout time.Duration
}

func NewNetworkPrinter(cfg NetworkPrinterConfig) *NetworkPrinter {
	if cfg.Port == 0 {
		cfg.Port = defaultRawPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultNetworkTimeout
	}
	return &NetworkPrinter{
		id:      cfg.ID,
		name:    cfg.Name,
		address: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		timeout: cfg.Timeout,
	}
}

func (p *NetworkPrinter) ID() string   { return p.id }
func (p *NetworkPrinter) Name() string { return p.name }

func (p *NetworkPrinter) SupportedContentTypes() []string {
	return []string{"image/png", "application/octet-stream"}
}

func (p *NetworkPrinter) ValidateJob(job *Job) (bool, string) {
	if !contains(p.SupportedContentTypes(), job.ContentType) {
		return false, fmt.Sprintf("unsupported content type: %s", job.ContentType)
	}
	if len(job.Data) == 0 {
		return false, "no data provided"
	}
	return true, ""
}

// connect reuses the cached connection or dials a fresh one. Caller holds mu.
func (p *NetworkPrinter) connect() (net.Conn, error) {
	if p.conn != nil {
		return p.conn, nil
	}
	conn, err := net.DialTimeout("tcp", p.address, p.timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	p.conn = conn
	return conn, nil
}

// disconnect drops the cached connection. Caller holds mu.
func (p *NetworkPrinter) disconnect() {
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

// GetStatus queries the device with the raw status command and maps the
// response. Any transport problem reads as offline rather than an error.
func (p *NetworkPrinter) GetStatus(_ context.Context) Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, err := p.connect()
	if err != nil {
		return StatusOffline
	}

	deadline := time.Now().Add(p.timeout)
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write([]byte(rawStatusCommand)); err != nil {
		// Stale connection; one re-dial before giving up.
		p.disconnect()
		conn, err = p.connect()
		if err != nil {
			return StatusOffline
		}
		_ = conn.SetDeadline(deadline)
		if _, err := conn.Write([]byte(rawStatusCommand)); err != nil {
			p.disconnect()
			return StatusOffline
		}
	}

	response := make([]byte, rawStatusResponseLen)
	total := 0
	for total < rawStatusResponseLen {
		n, err := conn.Read(response[total:])
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			p.disconnect()
			return StatusOffline
		}
		total += n
	}
	if total < rawStatusResponseLen {
		return StatusError
	}

	return parseRawStatus(response)
}

func parseRawStatus(response []byte) Status {
	if status, ok := rawPrinterStateMap[response[0]]; ok {
		// Media or hardware errors override a printable state.
		if response[2] != '@' || response[3] != '@' {
			return StatusError
		}
		return status
	}
	return StatusError
}

func (p *NetworkPrinter) Print(_ context.Context, job *Job) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, err := p.connect()
	if err != nil {
		return &Result{
			Success:   false,
			JobID:     job.ID,
			Message:   fmt.Sprintf("printer unreachable: %v", err),
			ErrorCode: "PRINTER_OFFLINE",
		}, nil
	}

	copies := job.Copies
	if copies < 1 {
		copies = 1
	}
	payload := bytes.Repeat(job.Data, copies)

	_ = conn.SetDeadline(time.Now().Add(p.timeout))
	if _, err := conn.Write(payload); err != nil {
		p.disconnect()
		// Raise so a resilient caller can classify; socket errors carry the
		// underlying errno.
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	log.Printf("printed job %s to %s (%d copies)", job.ID, p.address, copies)
	return &Result{Success: true, JobID: job.ID, Message: "print completed"}, nil
}

// Close drops the device connection. Safe to call more than once.
func (p *NetworkPrinter) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnect()
}
