package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/linkfleet/fleetctl/internal/history"
)

// DB implements history.Store on SQLite (modernc.org/sqlite, CGO-free).
// The default database lives next to the pid markers in the control dir.
type DB struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at path. ":memory:" works for
// tests.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fleet_events(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			service TEXT NOT NULL,
			pid INTEGER NOT NULL,
			kind TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			occurred_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_fleet_events_service ON fleet_events(service);`,
		`CREATE INDEX IF NOT EXISTS idx_fleet_events_occurred ON fleet_events(occurred_at);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Append(ctx context.Context, e history.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fleet_events(service, pid, kind, detail, occurred_at)
		VALUES(?, ?, ?, ?, ?);`,
		e.Service, e.PID, string(e.Kind), e.Detail, e.OccurredAt.UTC())
	return err
}

func (s *DB) Recent(ctx context.Context, service string, limit int) ([]history.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows *sql.Rows
	var err error
	if service == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, service, pid, kind, detail, occurred_at
			FROM fleet_events ORDER BY id DESC LIMIT ?;`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, service, pid, kind, detail, occurred_at
			FROM fleet_events WHERE service=? ORDER BY id DESC LIMIT ?;`, service, limit)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanEvents(rows)
}

func (s *DB) Close() error { return s.db.Close() }

func scanEvents(rows *sql.Rows) ([]history.Event, error) {
	out := make([]history.Event, 0)
	for rows.Next() {
		var e history.Event
		var kind string
		if err := rows.Scan(&e.ID, &e.Service, &e.PID, &kind, &e.Detail, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.Kind = history.Kind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}
