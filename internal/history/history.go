// Package history keeps a SQLite log of collection runs and per-source outcomes.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Run is one collection run.
type Run struct {
	ID               string
	Started          time.Time
	Duration         time.Duration
	TemplateChannels int
	Matched          int
	Records          int
	Invalid          int
	PriorPruned      int
	Err              string
	Sources          []SourceResult
}

// SourceResult is the outcome of fetching one source during a run.
type SourceResult struct {
	URL      string
	Format   string
	Entries  int
	Dropped  int
	Duration time.Duration
	Err      string
}

// Store is a run history database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// Single writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Record stores a run and its source results in one transaction.
func (s *Store) Record(ctx context.Context, r Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, duration_ms, template_channels, matched, records, invalid, prior_pruned, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Started.UTC().UnixMilli(), r.Duration.Milliseconds(), r.TemplateChannels,
		r.Matched, r.Records, r.Invalid, r.PriorPruned, r.Err)
	if err != nil {
		return fmt.Errorf("history: insert run: %w", err)
	}
	for i, src := range r.Sources {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO source_results (run_id, position, url, format, entries, dropped, duration_ms, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, i, src.URL, src.Format, src.Entries, src.Dropped, src.Duration.Milliseconds(), src.Err)
		if err != nil {
			return fmt.Errorf("history: insert source %s: %w", src.URL, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first, with their source results.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, duration_ms, template_channels, matched, records, invalid, prior_pruned, error
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	var runs []Run
	for rows.Next() {
		var r Run
		var started, dur int64
		if err := rows.Scan(&r.ID, &started, &dur, &r.TemplateChannels, &r.Matched, &r.Records, &r.Invalid, &r.PriorPruned, &r.Err); err != nil {
			rows.Close()
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		r.Started = time.UnixMilli(started).UTC()
		r.Duration = time.Duration(dur) * time.Millisecond
		runs = append(runs, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: runs: %w", err)
	}
	for i := range runs {
		srcs, err := s.sources(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Sources = srcs
	}
	return runs, nil
}

func (s *Store) sources(ctx context.Context, runID string) ([]SourceResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT url, format, entries, dropped, duration_ms, error
		FROM source_results WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("history: query sources: %w", err)
	}
	defer rows.Close()
	var out []SourceResult
	for rows.Next() {
		var src SourceResult
		var dur int64
		if err := rows.Scan(&src.URL, &src.Format, &src.Entries, &src.Dropped, &dur, &src.Err); err != nil {
			return nil, fmt.Errorf("history: scan source: %w", err)
		}
		src.Duration = time.Duration(dur) * time.Millisecond
		out = append(out, src)
	}
	return out, rows.Err()
}
