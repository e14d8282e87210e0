// Package store copies event-log rows into Postgres.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// EventRow is one exploded event as stored in stage.twcs_events.
type EventRow struct {
	RunID     string
	Company   string
	CaseID    int64
	TweetID   int64
	Timestamp time.Time
	Resource  string
	Activity  string
	Text      string
}

const createTable = `
CREATE SCHEMA IF NOT EXISTS stage;
CREATE TABLE IF NOT EXISTS stage.twcs_events (
	run_id     TEXT        NOT NULL,
	company    TEXT        NOT NULL,
	case_id    BIGINT      NOT NULL,
	tweet_id   BIGINT      NOT NULL,
	event_time TIMESTAMPTZ NOT NULL,
	resource   TEXT        NOT NULL,
	activity   TEXT        NOT NULL,
	text       TEXT        NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// Open connects to Postgres, configures the pool and makes sure the events
// table exists.
func Open(ctx context.Context, dbURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := db.ExecContext(ctx, createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema setup failed: %w", err)
	}
	return db, nil
}

// CopyEvents bulk-inserts rows in one transaction using COPY.
func CopyEvents(ctx context.Context, db *sql.DB, rows []EventRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema("stage", "twcs_events",
		"run_id", "company", "case_id", "tweet_id", "event_time", "resource", "activity", "text",
	))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.RunID, r.Company, r.CaseID, r.TweetID, r.Timestamp, r.Resource, r.Activity, r.Text); err != nil {
			return fmt.Errorf("failed to copy event %d/%s: %w", r.TweetID, r.Activity, err)
		}
	}

	// Execute the bulk insert
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to flush copy: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CountEvents returns the number of stored events of a run.
func CountEvents(ctx context.Context, db *sql.DB, runID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT count(*) FROM stage.twcs_events WHERE run_id = $1`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}
