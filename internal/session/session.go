// Package session persists factory run history to a SQLite database so
// past runs can be inspected after the process exits.
package session

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// Session statuses
const (
	StatusRunning   = "running"
	StatusConverged = "converged"
	StatusStopped   = "stopped"
	StatusStuck     = "stuck"
	StatusCrashed   = "crashed"
)

// Summary describes a finished session's outcome.
type Summary struct {
	Completed int
	Failed    int
	Dropped   int
	Merged    int
}

// Record is one persisted session row.
type Record struct {
	ID          string
	RepoPath    string
	TrunkBranch string
	Status      string
	StartedAt   time.Time
	CompletedAt *time.Time
	Summary     Summary
}

// TaskRun is one provider invocation within a session.
type TaskRun struct {
	ID        int64
	SessionID string
	TaskID    string
	Provider  string
	Model     string
	Tier      string
	Worker    int
	Status    string
	Error     string
}

// Manager wraps the SQLite connection with session operations.
type Manager struct {
	conn *sql.DB
}

// Open creates or opens the session database at path, creating parent
// directories as needed. It enables WAL mode and runs migrations, then
// marks sessions left running by a previous process as crashed.
func Open(path string) (*Manager, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	m := &Manager{conn: conn}
	if err := m.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if err := m.markOrphaned(); err != nil {
		conn.Close()
		return nil, err
	}
	return m, nil
}

// Close closes the database connection.
func (m *Manager) Close() error {
	return m.conn.Close()
}

func (m *Manager) migrate() error {
	schema := `
-- Sessions table: one row per factory run
CREATE TABLE IF NOT EXISTS sessions (
    id              TEXT PRIMARY KEY,
    repo_path       TEXT NOT NULL,
    trunk_branch    TEXT NOT NULL,
    status          TEXT NOT NULL,
    started_at      DATETIME NOT NULL,
    completed_at    DATETIME,
    tasks_completed INTEGER NOT NULL DEFAULT 0,
    tasks_failed    INTEGER NOT NULL DEFAULT 0,
    tasks_dropped   INTEGER NOT NULL DEFAULT 0,
    commits_merged  INTEGER NOT NULL DEFAULT 0
);

-- Task runs table: one row per provider invocation
CREATE TABLE IF NOT EXISTS task_runs (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id      TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    task_id         TEXT NOT NULL,
    provider        TEXT NOT NULL,
    model           TEXT NOT NULL,
    tier            TEXT NOT NULL,
    worker          INTEGER NOT NULL,
    status          TEXT NOT NULL,
    commit_hash     TEXT,
    error           TEXT,
    started_at      DATETIME NOT NULL,
    completed_at    DATETIME
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_task_runs_session ON task_runs(session_id);
CREATE INDEX IF NOT EXISTS idx_task_runs_task ON task_runs(task_id);
`
	if _, err := m.conn.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// markOrphaned flags sessions a previous process never closed.
func (m *Manager) markOrphaned() error {
	_, err := m.conn.Exec(
		`UPDATE sessions SET status = ?, completed_at = ? WHERE status = ?`,
		StatusCrashed, time.Now().UTC(), StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("mark orphaned sessions: %w", err)
	}
	return nil
}

// CreateSession records a new running session and returns its ID.
func (m *Manager) CreateSession(repoPath, trunkBranch string) (string, error) {
	id := ulid.Make().String()
	_, err := m.conn.Exec(
		`INSERT INTO sessions (id, repo_path, trunk_branch, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, repoPath, trunkBranch, StatusRunning, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// StartTask records a provider invocation beginning and returns the row ID.
func (m *Manager) StartTask(sessionID, taskID, providerName, model, tier string, worker int) (int64, error) {
	res, err := m.conn.Exec(
		`INSERT INTO task_runs (session_id, task_id, provider, model, tier, worker, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, taskID, providerName, model, tier, worker, StatusRunning, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("start task run: %w", err)
	}
	return res.LastInsertId()
}

// FinishTask records the outcome of a provider invocation.
func (m *Manager) FinishTask(runID int64, status, commitHash, errMsg string) error {
	_, err := m.conn.Exec(
		`UPDATE task_runs SET status = ?, commit_hash = ?, error = ?, completed_at = ? WHERE id = ?`,
		status, commitHash, errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return fmt.Errorf("finish task run: %w", err)
	}
	return nil
}

// CompleteSession closes a session with its final status and counters.
func (m *Manager) CompleteSession(sessionID, status string, summary Summary) error {
	_, err := m.conn.Exec(
		`UPDATE sessions SET status = ?, completed_at = ?, tasks_completed = ?, tasks_failed = ?, tasks_dropped = ?, commits_merged = ?
		 WHERE id = ?`,
		status, time.Now().UTC(), summary.Completed, summary.Failed, summary.Dropped, summary.Merged, sessionID,
	)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	return nil
}

// GetSession loads one session row.
func (m *Manager) GetSession(id string) (*Record, error) {
	row := m.conn.QueryRow(
		`SELECT id, repo_path, trunk_branch, status, started_at, completed_at,
		        tasks_completed, tasks_failed, tasks_dropped, commits_merged
		 FROM sessions WHERE id = ?`, id,
	)

	var rec Record
	var completedAt sql.NullTime
	err := row.Scan(&rec.ID, &rec.RepoPath, &rec.TrunkBranch, &rec.Status, &rec.StartedAt,
		&completedAt, &rec.Summary.Completed, &rec.Summary.Failed, &rec.Summary.Dropped, &rec.Summary.Merged)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	if completedAt.Valid {
		rec.CompletedAt = &completedAt.Time
	}
	return &rec, nil
}

// ListSessions returns sessions newest-first, bounded by limit.
func (m *Manager) ListSessions(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := m.conn.Query(
		`SELECT id, repo_path, trunk_branch, status, started_at, completed_at,
		        tasks_completed, tasks_failed, tasks_dropped, commits_merged
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var completedAt sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.RepoPath, &rec.TrunkBranch, &rec.Status, &rec.StartedAt,
			&completedAt, &rec.Summary.Completed, &rec.Summary.Failed, &rec.Summary.Dropped, &rec.Summary.Merged); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if completedAt.Valid {
			rec.CompletedAt = &completedAt.Time
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// TaskRuns returns the task runs of a session in start order.
func (m *Manager) TaskRuns(sessionID string) ([]TaskRun, error) {
	rows, err := m.conn.Query(
		`SELECT id, session_id, task_id, provider, model, tier, worker, status,
		        COALESCE(error, '')
		 FROM task_runs WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list task runs: %w", err)
	}
	defer rows.Close()

	var runs []TaskRun
	for rows.Next() {
		var run TaskRun
		if err := rows.Scan(&run.ID, &run.SessionID, &run.TaskID, &run.Provider, &run.Model,
			&run.Tier, &run.Worker, &run.Status, &run.Error); err != nil {
			return nil, fmt.Errorf("scan task run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
