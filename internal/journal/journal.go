// Package journal records every sync pass and the outcome of each document in
// a local SQLite database.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mohammad-safakhou/notesync/models"
)

// Journal is the run history store.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal at path and migrates it to the
// latest schema.
func Open(ctx context.Context, path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}
	if err := Migrate(db, "up", 0); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// OpenDB opens the journal database without migrating it.
func OpenDB(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

const upsertRun = `
INSERT INTO runs (id, status, since_ms, started_at_ms, finished_at_ms, duration_ms, error, dry_run,
	processed, created, updated, skipped, failed, transcripts_fetched, transcripts_failed)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	status = excluded.status,
	since_ms = excluded.since_ms,
	finished_at_ms = excluded.finished_at_ms,
	duration_ms = excluded.duration_ms,
	error = excluded.error,
	processed = excluded.processed,
	created = excluded.created,
	updated = excluded.updated,
	skipped = excluded.skipped,
	failed = excluded.failed,
	transcripts_fetched = excluded.transcripts_fetched,
	transcripts_failed = excluded.transcripts_failed`

func (j *Journal) saveRun(ctx context.Context, r models.RunRecord) error {
	s := r.Stats
	_, err := j.db.ExecContext(ctx, upsertRun,
		r.ID, r.Status, toMillis(r.Since), toMillis(s.StartedAt), toMillis(r.FinishedAt), s.Duration.Milliseconds(),
		r.Error, r.DryRun, s.Processed, s.Created, s.Updated, s.Skipped, s.Failed,
		s.TranscriptsFetched, s.TranscriptsFailed)
	if err != nil {
		return fmt.Errorf("save run %s: %w", r.ID, err)
	}
	return nil
}

// StartRun records a pass as running.
func (j *Journal) StartRun(ctx context.Context, run models.RunRecord) error {
	return j.saveRun(ctx, run)
}

// FinishRun records the final state of a pass.
func (j *Journal) FinishRun(ctx context.Context, run models.RunRecord) error {
	return j.saveRun(ctx, run)
}

// RecordDocument appends a per-document outcome.
func (j *Journal) RecordDocument(ctx context.Context, rec models.DocumentRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO run_documents (run_id, document_id, title, filename, outcome, content_hash, error, recorded_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.DocumentID, rec.Title, rec.Filename, rec.Outcome, rec.ContentHash, rec.Error, toMillis(rec.RecordedAt))
	if err != nil {
		return fmt.Errorf("record document %s: %w", rec.DocumentID, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (j *Journal) RecentRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, status, since_ms, started_at_ms, finished_at_ms, duration_ms, error, dry_run,
			processed, created, updated, skipped, failed, transcripts_fetched, transcripts_failed
		FROM runs
		ORDER BY started_at_ms DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunRecord
	for rows.Next() {
		var (
			r                               models.RunRecord
			since, started, finished, durMS int64
		)
		if err := rows.Scan(&r.ID, &r.Status, &since, &started, &finished, &durMS, &r.Error, &r.DryRun,
			&r.Stats.Processed, &r.Stats.Created, &r.Stats.Updated, &r.Stats.Skipped, &r.Stats.Failed,
			&r.Stats.TranscriptsFetched, &r.Stats.TranscriptsFailed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Since = fromMillis(since)
		r.Stats.StartedAt = fromMillis(started)
		r.FinishedAt = fromMillis(finished)
		r.Stats.Duration = time.Duration(durMS) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Documents returns the document outcomes of a run in the order they were recorded.
func (j *Journal) Documents(ctx context.Context, runID string) ([]models.DocumentRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, document_id, title, filename, outcome, content_hash, error, recorded_at_ms
		FROM run_documents
		WHERE run_id = ?
		ORDER BY id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run documents: %w", err)
	}
	defer rows.Close()

	var out []models.DocumentRecord
	for rows.Next() {
		var d models.DocumentRecord
		var recorded int64
		if err := rows.Scan(&d.RunID, &d.DocumentID, &d.Title, &d.Filename, &d.Outcome, &d.ContentHash, &d.Error, &recorded); err != nil {
			return nil, fmt.Errorf("scan run document: %w", err)
		}
		d.RecordedAt = fromMillis(recorded)
		out = append(out, d)
	}
	return out, rows.Err()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
