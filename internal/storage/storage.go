// Package storage persists run history: one row per organize run plus the
// groups it produced.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Run is the stored record of one categorization-and-reconciliation run.
type Run struct {
	ID        int64
	Profile   string // empty in live mode
	Mode      string // "model" or "heuristic"
	Model     string // model name; empty on the heuristic path
	Fallback  bool   // model path requested but heuristic delivered
	DryRun    bool
	TabCount  int
	Groups    []RunGroup
	CreatedAt time.Time
}

// RunGroup is one group produced by a run.
type RunGroup struct {
	Name     string
	Color    string
	TabCount int
	Merged   bool
}

// migration is a numbered schema change. Migrations are applied in order
// and tracked in the schema_migrations table so each runs exactly once.
type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "run history",
		SQL: `
CREATE TABLE IF NOT EXISTS runs (
    id          INTEGER PRIMARY KEY,
    profile     TEXT NOT NULL DEFAULT '',
    mode        TEXT NOT NULL,
    model       TEXT NOT NULL DEFAULT '',
    fallback    BOOLEAN DEFAULT FALSE,
    dry_run     BOOLEAN DEFAULT FALSE,
    tab_count   INTEGER NOT NULL,
    created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS run_groups (
    id          INTEGER PRIMARY KEY,
    run_id      INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    name        TEXT NOT NULL,
    color       TEXT NOT NULL DEFAULT '',
    tab_count   INTEGER NOT NULL,
    merged      BOOLEAN DEFAULT FALSE
);`,
	},
}

// OpenDB opens (or creates) a SQLite database at the given path.
// It creates parent directories if needed, enables foreign keys and WAL
// mode, and runs any pending migrations.
func OpenDB(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version     INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if exists > 0 {
			continue
		}

		if _, err := db.Exec(m.SQL); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := db.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// DefaultDBPath returns the default database file path:
// ~/.local/share/tabgruppen/tabgruppen.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "tabgruppen", "tabgruppen.db"), nil
}

// SaveRun inserts a run and its groups in one transaction and returns the
// run's ID.
func SaveRun(db *sql.DB, run *Run) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO runs (profile, mode, model, fallback, dry_run, tab_count) VALUES (?, ?, ?, ?, ?, ?)`,
		run.Profile, run.Mode, run.Model, run.Fallback, run.DryRun, run.TabCount,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}

	for _, g := range run.Groups {
		_, err := tx.Exec(
			`INSERT INTO run_groups (run_id, name, color, tab_count, merged) VALUES (?, ?, ?, ?, ?)`,
			runID, g.Name, g.Color, g.TabCount, g.Merged,
		)
		if err != nil {
			return 0, fmt.Errorf("insert run group %q: %w", g.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return runID, nil
}

// ListRuns returns the most recent runs, newest first, with their groups.
func ListRuns(db *sql.DB, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(
		`SELECT id, profile, mode, model, fallback, dry_run, tab_count, created_at
		 FROM runs ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Profile, &r.Mode, &r.Model, &r.Fallback, &r.DryRun, &r.TabCount, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	for i := range runs {
		groups, err := runGroups(db, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Groups = groups
	}
	return runs, nil
}

func runGroups(db *sql.DB, runID int64) ([]RunGroup, error) {
	rows, err := db.Query(
		`SELECT name, color, tab_count, merged FROM run_groups WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query run groups: %w", err)
	}
	defer rows.Close()

	var groups []RunGroup
	for rows.Next() {
		var g RunGroup
		if err := rows.Scan(&g.Name, &g.Color, &g.TabCount, &g.Merged); err != nil {
			return nil, fmt.Errorf("scan run group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
