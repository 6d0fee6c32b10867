package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"printgate/internal/printer"
)

// panickyPrinter simulates a probe failure by panicking in GetStatus.
type panickyPrinter struct {
	*printer.MockPrinter
	mu     sync.Mutex
	panics bool
}

func (p *panickyPrinter) GetStatus(ctx context.Context) printer.Status {
	p.mu.Lock()
	shouldPanic := p.panics
	p.mu.Unlock()
	if shouldPanic {
		panic("usb stack misbehaved")
	}
	return p.MockPrinter.GetStatus(ctx)
}

func (p *panickyPrinter) setPanics(v bool) {
	p.mu.Lock()
	p.panics = v
	p.mu.Unlock()
}

type change struct {
	printerID string
	old       *printer.Status
	next      printer.Status
}

// recordingListener collects transitions; optionally panics on each call.
type recordingListener struct {
	mu      sync.Mutex
	changes []change
	panics  bool
}

func (l *recordingListener) PrinterStatusChanged(printerID string, old *printer.Status, next printer.Status) {
	l.mu.Lock()
	l.changes = append(l.changes, change{printerID, old, next})
	shouldPanic := l.panics
	l.mu.Unlock()
	if shouldPanic {
		panic("listener broke")
	}
}

func (l *recordingListener) seen() []change {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]change(nil), l.changes...)
}

func newTestMonitor(listener StatusListener) (*Monitor, *printer.MockPrinter) {
	registry := printer.NewRegistry()
	p := printer.NewMockLabelPrinter("label", "Label")
	registry.Register(p)
	return NewMonitor(registry, listener, time.Hour), p
}

func TestInitialObservationIsReported(t *testing.T) {
	listener := &recordingListener{}
	m, _ := newTestMonitor(listener)

	m.CheckNow(context.Background())

	changes := listener.seen()
	if len(changes) != 1 {
		t.Fatalf("changes = %v, want one initial transition", changes)
	}
	if changes[0].old != nil || changes[0].next != printer.StatusReady {
		t.Fatalf("initial change = %+v", changes[0])
	}
	if got := m.LastStatus("label"); got == nil || *got != printer.StatusReady {
		t.Fatalf("LastStatus = %v", got)
	}
}

func TestTransitionDetection(t *testing.T) {
	listener := &recordingListener{}
	m, p := newTestMonitor(listener)
	ctx := context.Background()

	m.CheckNow(ctx)
	p.SetStatus(printer.StatusOffline)
	m.CheckNow(ctx)
	// No change: no notification.
	m.CheckNow(ctx)
	p.SetStatus(printer.StatusReady)
	m.CheckNow(ctx)

	changes := listener.seen()
	if len(changes) != 3 {
		t.Fatalf("changes = %d, want 3 (initial, offline, ready)", len(changes))
	}
	if *changes[1].old != printer.StatusReady || changes[1].next != printer.StatusOffline {
		t.Fatalf("offline transition = %+v", changes[1])
	}
	if *changes[2].old != printer.StatusOffline || changes[2].next != printer.StatusReady {
		t.Fatalf("recovery transition = %+v", changes[2])
	}
}

func TestProbeFailurePreservesPreviousStatus(t *testing.T) {
	registry := printer.NewRegistry()
	p := &panickyPrinter{MockPrinter: printer.NewMockLabelPrinter("label", "Label")}
	registry.Register(p)
	listener := &recordingListener{}
	m := NewMonitor(registry, listener, time.Hour)
	ctx := context.Background()

	m.CheckNow(ctx)
	if got := m.LastStatus("label"); got == nil || *got != printer.StatusReady {
		t.Fatalf("LastStatus = %v", got)
	}

	p.setPanics(true)
	statuses := m.CheckNow(ctx)
	if _, ok := statuses["label"]; ok {
		t.Fatal("failed probe reported a status")
	}
	// Previous status untouched, no spurious transition.
	if got := m.LastStatus("label"); got == nil || *got != printer.StatusReady {
		t.Fatalf("LastStatus after failed probe = %v", got)
	}
	if len(listener.seen()) != 1 {
		t.Fatalf("changes = %v, want only the initial one", listener.seen())
	}

	p.setPanics(false)
	m.CheckNow(ctx)
	if len(listener.seen()) != 1 {
		t.Fatal("recovered probe with same status produced a transition")
	}
}

func TestListenerFailureDoesNotStopCycle(t *testing.T) {
	registry := printer.NewRegistry()
	first := printer.NewMockLabelPrinter("label", "Label")
	second := printer.NewMockDocumentPrinter("document", "Document")
	registry.Register(first)
	registry.Register(second)

	listener := &recordingListener{panics: true}
	m := NewMonitor(registry, listener, time.Hour)

	statuses := m.CheckNow(context.Background())
	if len(statuses) != 2 {
		t.Fatalf("statuses = %v, want both printers probed", statuses)
	}
	// Both transitions delivered despite the listener panicking, and both
	// statuses committed.
	if len(listener.seen()) != 2 {
		t.Fatalf("changes = %v", listener.seen())
	}
	if m.LastStatus("label") == nil || m.LastStatus("document") == nil {
		t.Fatal("listener failure prevented status commit")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	listener := &recordingListener{}
	registry := printer.NewRegistry()
	registry.Register(printer.NewMockLabelPrinter("label", "Label"))
	m := NewMonitor(registry, listener, 10*time.Millisecond)

	m.Start()
	if !m.IsRunning() {
		t.Fatal("monitor not running after Start")
	}
	// Second Start is a no-op.
	m.Start()

	deadline := time.Now().Add(2 * time.Second)
	for m.LastStatus("label") == nil && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if m.LastStatus("label") == nil {
		t.Fatal("first poll did not happen promptly after Start")
	}

	m.Stop()
	if m.IsRunning() {
		t.Fatal("monitor still running after Stop")
	}
	// No polls after Stop returns.
	before := len(listener.seen())
	time.Sleep(50 * time.Millisecond)
	if got := len(listener.seen()); got != before {
		t.Fatalf("poll happened after Stop: %d -> %d", before, got)
	}

	// Stop on a stopped monitor is safe.
	m.Stop()
}

func TestCheckNowWithoutStart(t *testing.T) {
	listener := &recordingListener{}
	m, p := newTestMonitor(listener)
	p.SetStatus(printer.StatusBusy)

	statuses := m.CheckNow(context.Background())
	if statuses["label"] != printer.StatusBusy {
		t.Fatalf("statuses = %v", statuses)
	}
}
