package printer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"printgate/internal/telemetry"
)

// Renderer converts a job payload into the raw byte stream the device
// understands. Conversion itself lives outside this package; the default
// renderer passes the payload through untouched.
type Renderer interface {
	Render(job *Job) ([]byte, error)
}

type rawRenderer struct{}

func (rawRenderer) Render(job *Job) ([]byte, error) { return job.Data, nil }

// LabelPrinter drives a USB label printer through a Bus, absorbing transient
// disconnects so the queue sees an adapter that either succeeds or fails
// definitively.
type LabelPrinter struct {
	id         string
	name       string
	model      string
	resilience ResilienceConfig
	bus        Bus
	renderer   Renderer

	// devMu serializes every transfer and reconnect attempt against the
	// physical device.
	devMu  sync.Mutex
	device string // bus identifier; may be rewritten on reconnect
	state  deviceStateTracker
}

type LabelPrinterConfig struct {
	ID         string
	Name       string
	Model      string
	Device     string
	Resilience ResilienceConfig
	Bus        Bus
	Renderer   Renderer
}

func NewLabelPrinter(cfg LabelPrinterConfig) *LabelPrinter {
	if cfg.Bus == nil {
		cfg.Bus = &USBLPBus{}
	}
	if cfg.Renderer == nil {
		cfg.Renderer = rawRenderer{}
	}
	if cfg.Resilience.MaxRetries < 1 {
		cfg.Resilience.MaxRetries = 1
	}

	p := &LabelPrinter{
		id:         cfg.ID,
		name:       cfg.Name,
		model:      cfg.Model,
		device:     cfg.Device,
		resilience: cfg.Resilience,
		bus:        cfg.Bus,
		renderer:   cfg.Renderer,
	}
	p.state.state.Connected = cfg.Device != ""
	return p
}

func (p *LabelPrinter) ID() string   { return p.id }
func (p *LabelPrinter) Name() string { return p.name }

func (p *LabelPrinter) SupportedContentTypes() []string {
	return []string{"image/png"}
}

// DeviceState exposes connection diagnostics for the status API.
func (p *LabelPrinter) DeviceState() DeviceState {
	return p.state.snapshot()
}

// Device returns the current bus identifier (it can change after a
// reconnect that adopted a re-enumerated device).
func (p *LabelPrinter) Device() string {
	p.devMu.Lock()
	defer p.devMu.Unlock()
	return p.device
}

func (p *LabelPrinter) Resilience() ResilienceConfig { return p.resilience }

func (p *LabelPrinter) ValidateJob(job *Job) (bool, string) {
	if !contains(p.SupportedContentTypes(), job.ContentType) {
		return false, fmt.Sprintf("unsupported content type: %s", job.ContentType)
	}
	if len(job.Data) == 0 {
		return false, "no data provided"
	}
	return true, ""
}

// GetStatus probes the bus instead of trusting any cached flag.
func (p *LabelPrinter) GetStatus(ctx context.Context) Status {
	device := p.Device()
	if device == "" {
		return StatusOffline
	}

	found, err := p.probeDevice(ctx, device)
	if err != nil {
		log.Printf("device probe failed for %s: %v", p.id, err)
		p.state.markLost(err.Error())
		return StatusOffline
	}
	if !found {
		p.state.markLost("")
		return StatusOffline
	}

	p.state.markSeen()
	return StatusReady
}

func (p *LabelPrinter) probeDevice(ctx context.Context, device string) (bool, error) {
	devices, err := p.bus.Enumerate(ctx)
	if err != nil {
		return false, err
	}
	for _, d := range devices {
		if d.Identifier == device {
			return true, nil
		}
	}
	return false, nil
}

func (p *LabelPrinter) Print(ctx context.Context, job *Job) (*Result, error) {
	if p.Device() == "" {
		return &Result{
			Success:   false,
			JobID:     job.ID,
			Message:   "no device configured",
			ErrorCode: "NO_DEVICE",
		}, nil
	}

	if p.resilience.AutoReconnect {
		return p.printWithRetry(ctx, job)
	}

	p.devMu.Lock()
	defer p.devMu.Unlock()
	return p.doPrint(ctx, job)
}

// printWithRetry runs the attempt loop: transient errors trigger a
// reconnect plus backoff, anything else aborts. Exhaustion never leaks the
// raw error; it is folded into a failure result.
func (p *LabelPrinter) printWithRetry(ctx context.Context, job *Job) (*Result, error) {
	var lastErr error

	for attempt := 0; attempt < p.resilience.MaxRetries; attempt++ {
		p.devMu.Lock()
		result, err := p.doPrint(ctx, job)
		p.devMu.Unlock()

		if err == nil {
			// A failed result without an error is application-level; the
			// device answered, so retrying would reprint the same failure.
			return result, nil
		}

		lastErr = err
		p.state.noteFailure(err.Error())

		if ClassifyError(err) != ErrorRecoverable {
			log.Printf("non-recoverable print error for job %s: %v", job.ID, err)
			break
		}

		log.Printf("[JOB_RETRY] usb error on attempt %d/%d for job %s: %v",
			attempt+1, p.resilience.MaxRetries, job.ID, err)

		if attempt < p.resilience.MaxRetries-1 {
			if p.attemptReconnect(ctx) {
				log.Printf("reconnected, retrying job %s", job.ID)
			}
			select {
			case <-time.After(p.resilience.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	p.state.markLost("")
	p.emitEvent("USB_RECONNECT_FAILED", fmt.Sprint(lastErr))

	return &Result{
		Success:   false,
		JobID:     job.ID,
		Message:   fmt.Sprintf("print failed after %d attempts: %v", p.resilience.MaxRetries, lastErr),
		ErrorCode: "USB_ERROR",
	}, nil
}

// doPrint performs one transfer. Caller holds devMu.
func (p *LabelPrinter) doPrint(ctx context.Context, job *Job) (*Result, error) {
	payload, err := p.renderer.Render(job)
	if err != nil {
		return nil, fmt.Errorf("render job %s: %w", job.ID, err)
	}

	copies := job.Copies
	if copies < 1 {
		copies = 1
	}
	for i := 0; i < copies; i++ {
		if err := p.bus.Send(ctx, p.device, payload); err != nil {
			return nil, err
		}
	}

	p.state.markSeen()
	log.Printf("printed label job %s to %s", job.ID, p.device)
	return &Result{Success: true, JobID: job.ID, Message: "print completed"}, nil
}

// attemptReconnect re-enumerates the bus looking for the configured device.
// If the identifier is gone but exactly one device is present, that device
// is adopted as the new identity. This treats USB re-enumeration under a
// different address as a reconnection; with several compatible devices
// attached it can pick the wrong one.
func (p *LabelPrinter) attemptReconnect(ctx context.Context) bool {
	p.devMu.Lock()
	defer p.devMu.Unlock()

	attempts := p.state.noteReconnectAttempt()
	log.Printf("[USB_RECONNECT] attempting usb reconnect for %s (attempt %d)", p.id, attempts)
	p.emitEvent("USB_DISCONNECTED", p.device)

	devices, err := p.bus.Enumerate(ctx)
	if err != nil {
		log.Printf("reconnect failed for %s: %v", p.id, err)
		p.state.markLost(err.Error())
		return false
	}

	if len(devices) == 0 {
		log.Printf("no devices found during reconnect for %s", p.id)
		return false
	}

	for _, d := range devices {
		if d.Identifier == p.device {
			p.state.markSeen()
			telemetry.USBReconnects.WithLabelValues(p.id).Inc()
			p.emitEvent("USB_RECONNECTED", p.device)
			return true
		}
	}

	if len(devices) == 1 && devices[0].Identifier != "" {
		newDevice := devices[0].Identifier
		log.Printf("[USB_RECONNECTED] device path changed: %s -> %s", p.device, newDevice)
		p.device = newDevice
		p.state.markSeen()
		telemetry.USBReconnects.WithLabelValues(p.id).Inc()
		p.emitEvent("USB_RECONNECTED", newDevice)
		return true
	}

	log.Printf("configured device %s not found during reconnect (%d candidates)", p.device, len(devices))
	return false
}

func (p *LabelPrinter) emitEvent(event, detail string) {
	log.Printf("[EVENT] %s: printer=%s detail=%s", event, p.id, detail)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
