// Package archive persists finished jobs to sqlite for auditing. The
// live queues stay memory-resident; only terminal outcomes land here.
package archive

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"printgate/internal/queue"
)

// Record is one archived job outcome.
type Record struct {
	JobID       string    `json:"job_id"`
	PrinterID   string    `json:"printer_id"`
	ContentType string    `json:"content_type"`
	SizeBytes   int       `json:"size_bytes"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	QueuedAt    time.Time `json:"queued_at"`
	CompletedAt time.Time `json:"completed_at"`
}

type Archive struct {
	db *sql.DB
}

// Open creates or opens the archive database at path.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			job_id       TEXT PRIMARY KEY,
			printer_id   TEXT NOT NULL,
			content_type TEXT NOT NULL,
			size_bytes   INTEGER NOT NULL,
			status       TEXT NOT NULL,
			error        TEXT NOT NULL DEFAULT '',
			queued_at    DATETIME NOT NULL,
			completed_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_completed_at ON jobs(completed_at);
		CREATE INDEX IF NOT EXISTS idx_jobs_printer ON jobs(printer_id);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create archive schema: %w", err)
	}

	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

// Store writes a terminal job. Re-archiving the same job id overwrites
// the earlier row.
func (a *Archive) Store(qj *queue.QueuedJob) error {
	if !qj.Status.Terminal() {
		return fmt.Errorf("job %s is not terminal (status %s)", qj.Job.ID, qj.Status)
	}

	var completed time.Time
	if qj.CompletedAt != nil {
		completed = *qj.CompletedAt
	}
	if completed.IsZero() {
		completed = time.Now()
	}

	_, err := a.db.Exec(`
		INSERT OR REPLACE INTO jobs
			(job_id, printer_id, content_type, size_bytes, status, error, queued_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		qj.Job.ID, qj.Job.PrinterID, qj.Job.ContentType, len(qj.Job.Data),
		string(qj.Status), qj.Error, qj.QueuedAt, completed,
	)
	if err != nil {
		return fmt.Errorf("failed to archive job %s: %w", qj.Job.ID, err)
	}
	return nil
}

// Recent returns up to limit archived jobs, newest first. An empty
// printerID matches all printers.
func (a *Archive) Recent(printerID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT job_id, printer_id, content_type, size_bytes, status, error, queued_at, completed_at
		FROM jobs`
	args := []any{}
	if printerID != "" {
		query += " WHERE printer_id = ?"
		args = append(args, printerID)
	}
	query += " ORDER BY completed_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := a.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.JobID, &r.PrinterID, &r.ContentType, &r.SizeBytes,
			&r.Status, &r.Error, &r.QueuedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan archive row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune deletes rows whose completion time is older than the retention
// window and returns the number removed.
func (a *Archive) Prune(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	res, err := a.db.Exec("DELETE FROM jobs WHERE completed_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune archive: %w", err)
	}
	return res.RowsAffected()
}
