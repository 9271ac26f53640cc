// Package journal persists every emitted market event to SQLite for external
// indexing. It implements the engine's event sink.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	imarket "github.com/kaifufi/imarket-go"
)

// Store appends market events to a SQLite database.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// New opens (and migrates) the journal database.
func New(path string, log *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	store := &Store{db: db, log: log}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id   TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		at   TIMESTAMP NOT NULL,
		data TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
	CREATE INDEX IF NOT EXISTS idx_events_at ON events(at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends one event. Sink contract: it never calls back into the
// engine, and persistence failures are logged rather than surfaced.
func (s *Store) Record(ev imarket.Event) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		s.log.Error("journal encode failed", zap.String("event", string(ev.Type)), zap.Error(err))
		return
	}

	_, err = s.db.Exec(
		`INSERT INTO events (id, type, at, data) VALUES (?, ?, ?, ?)`,
		ev.ID, string(ev.Type), ev.At, string(data),
	)
	if err != nil {
		s.log.Error("journal write failed", zap.String("event", string(ev.Type)), zap.Error(err))
	}
}

// Recent returns the most recent events, newest first.
func (s *Store) Recent(limit int) ([]imarket.Event, error) {
	rows, err := s.db.Query(
		`SELECT id, type, at, data FROM events ORDER BY at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []imarket.Event
	for rows.Next() {
		var (
			ev   imarket.Event
			typ  string
			at   time.Time
			data string
		)
		if err := rows.Scan(&ev.ID, &typ, &at, &data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = imarket.EventType(typ)
		ev.At = at

		var payload map[string]any
		if data != "" && data != "null" {
			if err := json.Unmarshal([]byte(data), &payload); err != nil {
				return nil, fmt.Errorf("decode event payload: %w", err)
			}
			ev.Data = payload
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
