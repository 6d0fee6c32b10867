// Package health watches registered printers and reports status
// transitions so the rest of the gateway does not have to poll.
package health

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"printgate/internal/printer"
	"printgate/internal/telemetry"
)

// StatusListener receives one notification per detected transition. old is
// nil the first time a printer is observed. Panics and misbehavior inside
// the listener are contained by the monitor.
type StatusListener interface {
	PrinterStatusChanged(printerID string, old *printer.Status, next printer.Status)
}

// ListenerFunc adapts a function to the StatusListener interface.
type ListenerFunc func(printerID string, old *printer.Status, next printer.Status)

func (f ListenerFunc) PrinterStatusChanged(printerID string, old *printer.Status, next printer.Status) {
	f(printerID, old, next)
}

// Monitor polls every registered printer on a fixed interval and invokes
// the listener on status transitions.
type Monitor struct {
	registry *printer.Registry
	listener StatusListener
	interval time.Duration

	mu         sync.Mutex
	lastStatus map[string]printer.Status
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	running    bool
}

func NewMonitor(registry *printer.Registry, listener StatusListener, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		registry:   registry,
		listener:   listener,
		interval:   interval,
		lastStatus: make(map[string]printer.Status),
	}
}

// Start begins periodic polling, with an immediate first poll. Calling
// Start on a running monitor is a logged no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		log.Printf("health monitor already running")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop(ctx)
	log.Printf("health monitor started (interval: %s)", m.interval)
}

// Stop cancels polling and waits for any in-flight poll to unwind.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	log.Printf("health monitor stopped")
}

func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// LastStatus returns the most recent committed status, or nil if the
// printer has never been successfully probed.
func (m *Monitor) LastStatus(printerID string) *printer.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.lastStatus[printerID]; ok {
		return &s
	}
	return nil
}

// CheckNow forces an immediate synchronous poll of every printer,
// independent of the periodic loop.
func (m *Monitor) CheckNow(ctx context.Context) map[string]printer.Status {
	return m.checkAll(ctx)
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	// First poll happens right away, not after the first interval.
	m.checkAll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

// checkAll probes every printer and commits observed statuses. A probe
// panic is logged and the previous status kept, so one flaky probe cannot
// manufacture a spurious transition.
func (m *Monitor) checkAll(ctx context.Context) map[string]printer.Status {
	current := make(map[string]printer.Status)

	for _, p := range m.registry.List() {
		status, err := m.probe(ctx, p)
		if err != nil {
			log.Printf("failed to check status for %s: %v", p.ID(), err)
			continue
		}
		current[p.ID()] = status

		m.mu.Lock()
		previous, seen := m.lastStatus[p.ID()]
		m.mu.Unlock()

		if !seen || previous != status {
			var old *printer.Status
			if seen {
				old = &previous
			}
			m.handleChange(p.ID(), old, status)
		}

		m.mu.Lock()
		m.lastStatus[p.ID()] = status
		m.mu.Unlock()
	}

	return current
}

// probe isolates a single GetStatus call; a panicking adapter is treated
// as a failed probe, not a status change.
func (m *Monitor) probe(ctx context.Context, p printer.Printer) (status printer.Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &probePanicError{printerID: p.ID(), value: r}
		}
	}()
	return p.GetStatus(ctx), nil
}

type probePanicError struct {
	printerID string
	value     any
}

func (e *probePanicError) Error() string {
	return fmt.Sprintf("status probe for %s panicked: %v", e.printerID, e.value)
}

func (m *Monitor) handleChange(printerID string, old *printer.Status, next printer.Status) {
	if old == nil {
		log.Printf("[HEALTH] printer %s: initial status = %s", printerID, next)
	} else {
		log.Printf("[HEALTH] printer %s: %s -> %s", printerID, *old, next)
	}
	telemetry.StatusTransitions.WithLabelValues(printerID, string(next)).Inc()

	// Connection events precede the generic notification.
	if next == printer.StatusOffline {
		emitEvent("USB_DISCONNECTED", printerID)
	} else if old != nil && *old == printer.StatusOffline &&
		(next == printer.StatusReady || next == printer.StatusBusy) {
		emitEvent("USB_RECONNECTED", printerID)
	}

	if m.listener == nil {
		return
	}
	defer func() {
		// A failing listener never stops the poll cycle; the new status is
		// still committed by the caller.
		if r := recover(); r != nil {
			log.Printf("status change listener failed for %s: %v", printerID, r)
		}
	}()
	m.listener.PrinterStatusChanged(printerID, old, next)
}

func emitEvent(event, printerID string) {
	log.Printf("[EVENT] %s: printer=%s", event, printerID)
}
