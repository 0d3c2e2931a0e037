// Package sqlite provides an append-only archive of correction lifecycle
// events, so completed sessions can be inspected after the fact.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/steveyegge/mend/internal/events"
)

const schema = `
CREATE TABLE IF NOT EXISTS correction_events (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	session_id TEXT NOT NULL,
	timestamp  DATETIME NOT NULL,
	payload    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_correction_events_session
	ON correction_events(session_id, timestamp);
`

// Archive is a SQLite-backed event log. Events are only ever inserted.
type Archive struct {
	db *sql.DB
}

// New opens (or creates) the archive database at path.
func New(path string) (*Archive, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Archive{db: db}, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// ArchivedEvent is one stored event row. Payload holds the full event
// serialized as JSON.
type ArchivedEvent struct {
	ID        string
	Type      events.EventType
	SessionID string
	Timestamp time.Time
	Payload   json.RawMessage
}

// ArchiveEvent stores a correction event.
func (a *Archive) ArchiveEvent(ctx context.Context, e events.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	query := `
		INSERT INTO correction_events (id, type, session_id, timestamp, payload)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err = a.db.ExecContext(ctx, query,
		e.EventID(),
		string(e.Type()),
		e.Session(),
		e.OccurredAt().UTC(),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to archive event (type=%s, session=%s): %w", e.Type(), e.Session(), err)
	}
	return nil
}

// Recent returns the most recent events across all sessions, newest first.
func (a *Archive) Recent(ctx context.Context, limit int) ([]*ArchivedEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, type, session_id, timestamp, payload
		FROM correction_events
		ORDER BY timestamp DESC
		LIMIT ?
	`
	rows, err := a.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// BySession returns every archived event for a session in chronological
// order.
func (a *Archive) BySession(ctx context.Context, sessionID string) ([]*ArchivedEvent, error) {
	query := `
		SELECT id, type, session_id, timestamp, payload
		FROM correction_events
		WHERE session_id = ?
		ORDER BY timestamp ASC
	`
	rows, err := a.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events for session %s: %w", sessionID, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*ArchivedEvent, error) {
	var out []*ArchivedEvent
	for rows.Next() {
		var (
			ev      ArchivedEvent
			typ     string
			payload string
		)
		if err := rows.Scan(&ev.ID, &typ, &ev.SessionID, &ev.Timestamp, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		ev.Type = events.EventType(typ)
		ev.Payload = json.RawMessage(payload)
		out = append(out, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate event rows: %w", err)
	}
	return out, nil
}

// Summary aggregates the archive: total events, distinct sessions, and
// a count per event type.
type Summary struct {
	TotalEvents int
	Sessions    int
	ByType      map[events.EventType]int
}

// Summarize computes aggregate counts over the whole archive.
func (a *Archive) Summarize(ctx context.Context) (*Summary, error) {
	summary := &Summary{ByType: make(map[events.EventType]int)}

	rows, err := a.db.QueryContext(ctx, `
		SELECT type, COUNT(*) FROM correction_events GROUP BY type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			typ   string
			count int
		)
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		summary.ByType[events.EventType(typ)] = count
		summary.TotalEvents += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate summary rows: %w", err)
	}

	err = a.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT session_id) FROM correction_events
	`).Scan(&summary.Sessions)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}

	return summary, nil
}

// Listener returns a bus listener that archives every published event.
// Archive failures are reported on stderr rather than propagated, so a
// broken disk never breaks the correction loop.
func (a *Archive) Listener() events.Listener {
	return func(e events.Event) {
		if err := a.ArchiveEvent(context.Background(), e); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to archive event: %v\n", err)
		}
	}
}
