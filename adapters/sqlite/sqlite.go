package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open creates a new SQLite database connection configured for a single process deployment.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=10000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	// A single connection serialises writers, which the compare-and-set in Transition and the claim in the task
	// queue rely on.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return db, nil
}

// InitSchema creates all required tables for the store and the task queue.
func InitSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS statusflow_entities (
    workflow_name TEXT NOT NULL,
    id            TEXT NOT NULL,
    status        INTEGER NOT NULL,
    version       INTEGER NOT NULL,
    created_at    DATETIME NOT NULL,
    updated_at    DATETIME NOT NULL,
    PRIMARY KEY (workflow_name, id)
);

CREATE INDEX IF NOT EXISTS idx_entities_workflow_name_status_id
    ON statusflow_entities (workflow_name, status, id);

-- Append only. seq preserves insertion order.
CREATE TABLE IF NOT EXISTS statusflow_history (
    seq             INTEGER PRIMARY KEY AUTOINCREMENT,
    id              TEXT NOT NULL UNIQUE,
    workflow_name   TEXT NOT NULL,
    entity_id       TEXT NOT NULL,
    status_old      INTEGER NOT NULL,
    status_new      INTEGER NOT NULL,
    change_reason   TEXT NOT NULL,
    changed_by_id   TEXT NOT NULL,
    changed_by_role TEXT NOT NULL,
    path_type       INTEGER NOT NULL,
    created_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_workflow_name_entity_id
    ON statusflow_history (workflow_name, entity_id, seq);

-- run_at and visible_at are unix milliseconds so that due tasks can be compared numerically.
CREATE TABLE IF NOT EXISTS statusflow_tasks (
    id         TEXT NOT NULL PRIMARY KEY,
    name       TEXT NOT NULL,
    args       TEXT NOT NULL,
    attempt    INTEGER NOT NULL,
    last_error TEXT NOT NULL,
    run_at     INTEGER NOT NULL,
    visible_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_visible_at
    ON statusflow_tasks (visible_at, id);`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	return nil
}
