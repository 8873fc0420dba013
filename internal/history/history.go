// Package history implements the Session History Ledger: an optional
// SQLite-backed audit log of past connect_server/disconnect_server
// invocations, entirely separate from the YAML config store. It is
// diagnostic only — the orchestrator never reads it back to make
// decisions, and a ledger write failure never fails the caller.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/logging"
)

var histLog = logging.ForComponent(logging.CompHistory)

// Outcome is the recorded result of one orchestrator run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeTimeout Outcome = "timeout"
	OutcomeFatal   Outcome = "fatal"
	OutcomeError   Outcome = "error"
)

// Action distinguishes a connect attempt from a disconnect.
type Action string

const (
	ActionConnect    Action = "connect"
	ActionDisconnect Action = "disconnect"
)

// Entry is one row of the ledger.
type Entry struct {
	ID         int64     `json:"id"`
	ServerName string    `json:"server_name"`
	Action     Action    `json:"action"`
	Outcome    Outcome   `json:"outcome"`
	Detail     string    `json:"detail"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Ledger is the interface both the real SQLite-backed store and the
// disabled no-op implementation satisfy, so callers never branch on
// whether history is enabled.
type Ledger interface {
	RecordConnectAttempt(name string, action Action, outcome Outcome, detail string, started, finished time.Time) error
	RecentHistory(name string, limit int) ([]Entry, error)
	Close() error
}

// Open returns a SQLite-backed Ledger at dbPath, or a no-op Ledger if
// dbPath is empty — this is the REMOTE_TERMINAL_HISTORY_DB gate.
func Open(dbPath string) (Ledger, error) {
	if dbPath == "" {
		return noopLedger{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("history: creating parent directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("history: opening %s: %w", dbPath, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: setting busy timeout: %w", err)
	}

	l := &sqliteLedger{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

type sqliteLedger struct {
	db *sql.DB
}

func (l *sqliteLedger) migrate() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS connection_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			server_name TEXT NOT NULL,
			action TEXT NOT NULL,
			outcome TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_connection_history_server
			ON connection_history(server_name, started_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("history: migrating schema: %w", err)
	}
	return nil
}

// RecordConnectAttempt appends one row. A write failure is logged at warn
// and returned; the tool dispatcher logs it and does not fail the tool call.
func (l *sqliteLedger) RecordConnectAttempt(name string, action Action, outcome Outcome, detail string, started, finished time.Time) error {
	_, err := l.db.Exec(
		`INSERT INTO connection_history (server_name, action, outcome, detail, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?)`,
		name, string(action), string(outcome), detail, started.UnixMilli(), finished.UnixMilli(),
	)
	if err != nil {
		histLog.Warn("history_write_failed", "server", name, "error", err.Error())
		return err
	}
	return nil
}

// RecentHistory returns the most recent entries for a server, newest
// first.
func (l *sqliteLedger) RecentHistory(name string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.Query(
		`SELECT id, server_name, action, outcome, detail, started_at, finished_at
		 FROM connection_history WHERE server_name = ? ORDER BY started_at DESC, id DESC LIMIT ?`,
		name, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: querying %s: %w", name, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var action, outcome string
		var startedMs, finishedMs int64
		if err := rows.Scan(&e.ID, &e.ServerName, &action, &outcome, &e.Detail, &startedMs, &finishedMs); err != nil {
			return nil, fmt.Errorf("history: scanning row: %w", err)
		}
		e.Action = Action(action)
		e.Outcome = Outcome(outcome)
		e.StartedAt = time.UnixMilli(startedMs)
		e.FinishedAt = time.UnixMilli(finishedMs)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (l *sqliteLedger) Close() error {
	_, _ = l.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return l.db.Close()
}

// noopLedger is the null-object implementation used when
// REMOTE_TERMINAL_HISTORY_DB is unset.
type noopLedger struct{}

func (noopLedger) RecordConnectAttempt(string, Action, Outcome, string, time.Time, time.Time) error {
	return nil
}

func (noopLedger) RecentHistory(string, int) ([]Entry, error) { return nil, nil }

func (noopLedger) Close() error { return nil }
