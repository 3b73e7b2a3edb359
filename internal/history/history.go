package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/thatsimonsguy/battery-manager/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	outlet TEXT NOT NULL,
	mode TEXT NOT NULL,
	state TEXT NOT NULL,
	cycle_count INTEGER NOT NULL,
	last_reading REAL NOT NULL,
	started_at TEXT NOT NULL,
	ended_at TEXT NOT NULL,
	defaulted_profile INTEGER NOT NULL,
	reason TEXT
);`

// Store journals finished charge sessions to sqlite so past cutoffs and
// durations can be compared while tuning thresholds.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply history schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) RecordSession(res model.SessionResult) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (outlet, mode, state, cycle_count, last_reading, started_at, ended_at, defaulted_profile, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.Outlet, string(res.Mode), string(res.State), res.CycleCount, res.LastReading,
		res.StartedAt.Format(time.RFC3339), res.EndedAt.Format(time.RFC3339), res.Defaulted, res.Reason)
	if err != nil {
		return fmt.Errorf("failed to record session for %s: %w", res.Outlet, err)
	}
	return nil
}

func (s *Store) RecentSessions(limit int) ([]model.SessionResult, error) {
	rows, err := s.db.Query(
		`SELECT outlet, mode, state, cycle_count, last_reading, started_at, ended_at, defaulted_profile, reason
		 FROM sessions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []model.SessionResult
	for rows.Next() {
		var res model.SessionResult
		var mode, state, started, ended string
		if err := rows.Scan(&res.Outlet, &mode, &state, &res.CycleCount, &res.LastReading, &started, &ended, &res.Defaulted, &res.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		res.Mode = model.ChargeMode(mode)
		res.State = model.SessionState(state)
		res.StartedAt, _ = time.Parse(time.RFC3339, started)
		res.EndedAt, _ = time.Parse(time.RFC3339, ended)
		out = append(out, res)
	}
	return out, rows.Err()
}
