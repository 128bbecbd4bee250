// Package journal persists a transcript of outbound traffic: every line the
// dispatch loop sent and every line the purge pass suppressed. The flood
// engine itself stays in memory; the journal only observes it through hooks.
package journal

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quenchbot/floodgate/buffer"
)

//go:embed schema.sql
var schema string

// Disposition values recorded per entry.
const (
	DispositionSent    = "sent"
	DispositionDropped = "dropped"
)

// Journal wraps the SQLite transcript database.
type Journal struct {
	*sql.DB
}

// Open opens or creates the transcript at path and applies the schema.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}
	slog.Info("journal opened", "path", path)
	return &Journal{db}, nil
}

// Sent records a successfully dispatched message and its send time.
func (j *Journal) Sent(m *buffer.Message, at time.Time) error {
	return j.record(m, DispositionSent, at)
}

// Dropped records a message that was purged or discarded at shutdown.
func (j *Journal) Dropped(m *buffer.Message, at time.Time) error {
	return j.record(m, DispositionDropped, at)
}

func (j *Journal) record(m *buffer.Message, disposition string, at time.Time) error {
	_, err := j.Exec(`
		INSERT INTO outbound_log (verb, target, body, disposition, queued_at, logged_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, string(m.Command()), m.Target(), m.Text(), disposition, m.Timestamp().UTC(), at.UTC())
	if err != nil {
		return fmt.Errorf("journal %s: %w", disposition, err)
	}
	return nil
}

// Entry is one journaled outbound line.
type Entry struct {
	ID          int64
	Verb        string
	Target      string
	Body        string
	Disposition string
	QueuedAt    time.Time
	LoggedAt    time.Time
}

// Recent returns the latest entries, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := j.Query(`
		SELECT id, verb, target, body, disposition, queued_at, logged_at
		FROM outbound_log
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Verb, &e.Target, &e.Body, &e.Disposition, &e.QueuedAt, &e.LoggedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
