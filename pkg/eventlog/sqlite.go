// Copyright 2026 © The Heuris Authors
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jllopis/heuris/pkg/core"
)

// SQLiteStore persists run events in SQLite for later inspection.
type SQLiteStore struct {
	db *sql.DB
}

// Filter narrows a List query.
type Filter struct {
	RunID     string
	SessionID string
	Type      core.EventType
	Limit     int
}

// OpenSQLiteStore opens (creating if needed) the database at path and
// ensures the schema.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore wraps an existing database handle and ensures the schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureEventSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Emit implements core.EventEmitter. Insert failures are logged, never
// surfaced to the run.
func (s *SQLiteStore) Emit(ctx context.Context, event core.Event) {
	if err := s.Record(ctx, event); err != nil {
		slog.Warn("eventlog.sqlite.insert.failed", slog.String("error", err.Error()))
	}
}

// Record stores a single event.
func (s *SQLiteStore) Record(ctx context.Context, event core.Event) error {
	payload := ""
	if event.Payload != nil {
		data, err := json.Marshal(event.Payload)
		if err != nil {
			return err
		}
		payload = string(data)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_events (run_id, session_id, event_type, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		event.RunID,
		event.SessionID,
		string(event.Type),
		payload,
		normalizeEventTime(event.Timestamp),
	)
	return err
}

// List returns events matching the filter in insertion order.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]core.Event, error) {
	query := `
		SELECT run_id, session_id, event_type, payload_json, created_at
		FROM run_events
	`
	var args []any
	where := ""
	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, value)
	}
	if filter.RunID != "" {
		addFilter("run_id = ?", filter.RunID)
	}
	if filter.SessionID != "" {
		addFilter("session_id = ?", filter.SessionID)
	}
	if filter.Type != "" {
		addFilter("event_type = ?", string(filter.Type))
	}
	query += where + " ORDER BY created_at ASC, rowid ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []core.Event
	for rows.Next() {
		var (
			event       core.Event
			eventType   string
			payloadJSON string
			created     sql.NullTime
		)
		if err := rows.Scan(
			&event.RunID,
			&event.SessionID,
			&eventType,
			&payloadJSON,
			&created,
		); err != nil {
			return nil, err
		}
		event.Type = core.EventType(eventType)
		if payloadJSON != "" {
			var payload map[string]any
			if err := json.Unmarshal([]byte(payloadJSON), &payload); err == nil {
				event.Payload = payload
			}
		}
		if created.Valid {
			event.Timestamp = created.Time
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func ensureEventSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS run_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT,
			session_id TEXT,
			event_type TEXT NOT NULL,
			payload_json TEXT,
			created_at TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_run_events_run_id ON run_events(run_id)
	`)
	return err
}

func normalizeEventTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
