package archive

import (
	"path/filepath"
	"testing"
	"time"

	"printgate/internal/printer"
	"printgate/internal/queue"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func terminalJob(printerID string, status queue.Status, completed time.Time) *queue.QueuedJob {
	job := printer.NewJob(printerID, "label.png", "image/png", []byte("payload"), 1)
	return &queue.QueuedJob{
		Job:         job,
		Status:      status,
		QueuedAt:    completed.Add(-time.Minute),
		CompletedAt: &completed,
	}
}

func TestStoreAndRecent(t *testing.T) {
	a := openTestArchive(t)
	now := time.Now()

	for i, st := range []queue.Status{queue.StatusCompleted, queue.StatusFailed, queue.StatusExpired} {
		qj := terminalJob("label", st, now.Add(time.Duration(i)*time.Second))
		if err := a.Store(qj); err != nil {
			t.Fatalf("store: %v", err)
		}
	}

	records, err := a.Recent("", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	// Newest first.
	if records[0].Status != string(queue.StatusExpired) {
		t.Errorf("first record status = %s, want expired", records[0].Status)
	}
	if records[0].SizeBytes != len("payload") {
		t.Errorf("size = %d", records[0].SizeBytes)
	}
}

func TestStoreRejectsNonTerminal(t *testing.T) {
	a := openTestArchive(t)
	qj := terminalJob("label", queue.StatusQueued, time.Now())
	if err := a.Store(qj); err == nil {
		t.Fatal("expected error for non-terminal job")
	}
}

func TestRecentFiltersByPrinter(t *testing.T) {
	a := openTestArchive(t)
	now := time.Now()
	a.Store(terminalJob("label", queue.StatusCompleted, now))
	a.Store(terminalJob("office", queue.StatusCompleted, now))

	records, err := a.Recent("office", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 1 || records[0].PrinterID != "office" {
		t.Fatalf("records = %+v", records)
	}
}

func TestPrune(t *testing.T) {
	a := openTestArchive(t)
	now := time.Now()
	a.Store(terminalJob("label", queue.StatusCompleted, now.Add(-48*time.Hour)))
	a.Store(terminalJob("label", queue.StatusCompleted, now))

	removed, err := a.Prune(24 * time.Hour)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("pruned %d rows, want 1", removed)
	}

	records, _ := a.Recent("", 10)
	if len(records) != 1 {
		t.Fatalf("%d records remain, want 1", len(records))
	}
}
