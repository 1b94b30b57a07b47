package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"inboxcleaner/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// Run is one recorded scan.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Source     string // "gmail" or the mbox path
	Query      string
	Live       bool
	Stats      model.ScanStats
}

// SQLiteStore keeps a ledger of scan runs and their candidates in a local
// SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at the given path and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	started_at    TEXT NOT NULL,
	finished_at   TEXT NOT NULL,
	source        TEXT NOT NULL DEFAULT '',
	query         TEXT NOT NULL DEFAULT '',
	live          INTEGER NOT NULL DEFAULT 0,
	scanned       INTEGER NOT NULL DEFAULT 0,
	links_found   INTEGER NOT NULL DEFAULT 0,
	emails_found  INTEGER NOT NULL DEFAULT 0,
	actions_taken INTEGER NOT NULL DEFAULT 0,
	errors        INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS candidates (
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq        INTEGER NOT NULL,
	message_id TEXT NOT NULL,
	sender     TEXT NOT NULL DEFAULT '',
	subject    TEXT NOT NULL DEFAULT '',
	url        TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, seq)
);
`
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun records a run and its candidates in one transaction. Saving the
// same run id again replaces the earlier record.
func (s *SQLiteStore) SaveRun(ctx context.Context, run Run, candidates []model.Candidate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, source, query, live,
			scanned, links_found, emails_found, actions_taken, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			started_at    = excluded.started_at,
			finished_at   = excluded.finished_at,
			source        = excluded.source,
			query         = excluded.query,
			live          = excluded.live,
			scanned       = excluded.scanned,
			links_found   = excluded.links_found,
			emails_found  = excluded.emails_found,
			actions_taken = excluded.actions_taken,
			errors        = excluded.errors
	`, run.ID, formatTime(run.StartedAt), formatTime(run.FinishedAt), run.Source, run.Query, run.Live,
		run.Stats.Scanned, run.Stats.LinksFound, run.Stats.EmailsFound, run.Stats.ActionsTaken, run.Stats.Errors)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM candidates WHERE run_id = ?", run.ID); err != nil {
		return fmt.Errorf("clear candidates: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candidates (run_id, seq, message_id, sender, subject, url, email)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, c := range candidates {
		_, err := stmt.ExecContext(ctx, run.ID, i, c.MessageID, c.Sender, c.Subject, c.Unsubscribe.URL, c.Unsubscribe.Email)
		if err != nil {
			return fmt.Errorf("insert candidate %s: %w", c.MessageID, err)
		}
	}
	return tx.Commit()
}

// ListRuns returns up to limit runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, source, query, live,
			scanned, links_found, emails_found, actions_taken, errors
		FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun loads one run. An empty id selects the most recent run.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (Run, error) {
	query := `SELECT id, started_at, finished_at, source, query, live,
			scanned, links_found, emails_found, actions_taken, errors
		FROM runs `
	var row *sql.Row
	if id == "" {
		row = s.db.QueryRowContext(ctx, query+"ORDER BY started_at DESC, id LIMIT 1")
	} else {
		row = s.db.QueryRowContext(ctx, query+"WHERE id = ?", id)
	}
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

// LoadCandidates returns the candidates of a run in scan order.
func (s *SQLiteStore) LoadCandidates(ctx context.Context, runID string) ([]model.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, sender, subject, url, email
		FROM candidates WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		var c model.Candidate
		if err := rows.Scan(&c.MessageID, &c.Sender, &c.Subject, &c.Unsubscribe.URL, &c.Unsubscribe.Email); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var r Run
	var started, finished string
	err := row.Scan(&r.ID, &started, &finished, &r.Source, &r.Query, &r.Live,
		&r.Stats.Scanned, &r.Stats.LinksFound, &r.Stats.EmailsFound, &r.Stats.ActionsTaken, &r.Stats.Errors)
	if err != nil {
		return Run{}, err
	}
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)
	return r, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
