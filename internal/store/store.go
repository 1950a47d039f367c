// Package store provides the SQLite-backed task history. Finished tasks
// are recorded so the history command and wait estimates survive restarts.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jfeld/taskforge/pkg/models"
)

// DB wraps an SQLite connection with task-history operations.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// DefaultPath returns the standard history database location under the
// user's XDG data directory.
func DefaultPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "taskforge", "history.db")
}

// Open opens the history database at the given path, creating parent
// directories as needed. WAL mode is enabled for concurrent reads.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	db := &DB{conn: conn, path: path}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path returns the path to the database file.
func (db *DB) Path() string {
	return db.path
}

const migrationV1Tasks = `
CREATE TABLE IF NOT EXISTS task_history (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	priority TEXT NOT NULL,
	status TEXT NOT NULL,
	complexity TEXT,
	steps INTEGER NOT NULL DEFAULT 0,
	error TEXT,
	result_json TEXT,
	source TEXT,
	created_at DATETIME NOT NULL,
	started_at DATETIME,
	completed_at DATETIME,
	duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_task_history_status ON task_history(status);
CREATE INDEX IF NOT EXISTS idx_task_history_completed_at ON task_history(completed_at);
`

func (db *DB) migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Tasks},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// RecordTask persists a finished task. Recording the same task twice
// overwrites the earlier row, so re-delivery after a crash is harmless.
func (db *DB) RecordTask(task *models.Task) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var resultJSON []byte
	if task.Result != nil {
		if data, err := json.Marshal(task.Result); err == nil {
			resultJSON = data
		}
	}

	var durationMs int64
	if d := task.Duration(); d > 0 {
		durationMs = d.Milliseconds()
	}

	_, err := db.conn.Exec(`
		INSERT OR REPLACE INTO task_history
		(id, name, description, priority, status, complexity, steps, error,
		 result_json, source, created_at, started_at, completed_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Name, task.Description, string(task.Priority),
		string(task.Status), string(task.Complexity), len(task.Steps),
		task.Error, string(resultJSON), task.Source,
		task.CreatedAt, task.StartedAt, task.CompletedAt, durationMs,
	)
	if err != nil {
		return fmt.Errorf("record task %s: %w", task.ID, err)
	}
	return nil
}

// HistoryEntry is one recorded task, as read back from the store.
type HistoryEntry struct {
	ID          string
	Name        string
	Description string
	Priority    string
	Status      string
	Complexity  string
	Steps       int
	Error       string
	Source      string
	CreatedAt   time.Time
	CompletedAt *time.Time
	Duration    time.Duration
}

// ListRecent returns up to limit recorded tasks, newest first.
func (db *DB) ListRecent(limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT id, name, description, priority, status, complexity, steps,
		       error, source, created_at, completed_at, duration_ms
		FROM task_history
		ORDER BY completed_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list task history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var errMsg, source sql.NullString
		var completedAt sql.NullTime
		var durationMs int64
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &e.Priority,
			&e.Status, &e.Complexity, &e.Steps, &errMsg, &source,
			&e.CreatedAt, &completedAt, &durationMs); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.Error = errMsg.String
		e.Source = source.String
		if completedAt.Valid {
			t := completedAt.Time
			e.CompletedAt = &t
		}
		e.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// HistoryStats summarizes the recorded tasks.
type HistoryStats struct {
	Total     int
	Completed int
	Failed    int
	Cancelled int
	// AvgDuration is the mean duration of completed tasks.
	AvgDuration time.Duration
}

// Stats aggregates counts and the average completed-task duration.
func (db *DB) Stats() (HistoryStats, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var stats HistoryStats
	rows, err := db.conn.Query(`SELECT status, COUNT(*) FROM task_history GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("history stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("scan stats row: %w", err)
		}
		stats.Total += count
		switch models.TaskStatus(status) {
		case models.TaskStatusCompleted:
			stats.Completed = count
		case models.TaskStatusFailed:
			stats.Failed = count
		case models.TaskStatusCancelled:
			stats.Cancelled = count
		}
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	var avgMs sql.NullFloat64
	row := db.conn.QueryRow(`SELECT AVG(duration_ms) FROM task_history WHERE status = ?`,
		string(models.TaskStatusCompleted))
	if err := row.Scan(&avgMs); err != nil {
		return stats, fmt.Errorf("average duration: %w", err)
	}
	if avgMs.Valid {
		stats.AvgDuration = time.Duration(avgMs.Float64) * time.Millisecond
	}
	return stats, nil
}
