// Package eventlog is the append-only position lifecycle log. It lives in
// its own SQLite file on database/sql so reporting consumers can tail it
// without touching the main store.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"alphapilot/internal/types"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS lifecycle_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	position_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	event TEXT NOT NULL,
	reason TEXT,
	price REAL NOT NULL,
	shares INTEGER NOT NULL,
	ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lifecycle_events_ts ON lifecycle_events(ts);
CREATE INDEX IF NOT EXISTS idx_lifecycle_events_symbol ON lifecycle_events(symbol);
`

// Store implements store.EventStore.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("event log: path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("event log migration failed: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append writes one event. Events are never updated or deleted.
func (s *Store) Append(ctx context.Context, evt types.LifecycleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := evt.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lifecycle_events (position_id, symbol, event, reason, price, shares, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		evt.PositionID, evt.Symbol, string(evt.Event), evt.Reason, evt.Price, evt.Shares, ts.Unix())
	if err != nil {
		return fmt.Errorf("append lifecycle event: %w", err)
	}
	return nil
}

// Recent returns the newest events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]types.LifecycleEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT position_id, symbol, event, reason, price, shares, ts
		 FROM lifecycle_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.LifecycleEvent
	for rows.Next() {
		var evt types.LifecycleEvent
		var event, reason string
		var ts int64
		if err := rows.Scan(&evt.PositionID, &evt.Symbol, &event, &reason, &evt.Price, &evt.Shares, &ts); err != nil {
			return nil, err
		}
		evt.Event = types.LifecycleEventType(event)
		evt.Reason = reason
		evt.Timestamp = time.Unix(ts, 0)
		out = append(out, evt)
	}
	return out, rows.Err()
}
