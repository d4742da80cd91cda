package database

import (
	"database/sql"
	"strings"
)

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx, d Dialect) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "ledger and comment records",
		Up: func(tx *sql.Tx, d Dialect) error {
			pk := autoPK(d)
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS ledger (
    id ` + pk + `,
    source TEXT NOT NULL,
    identifier TEXT NOT NULL,
    recorded_at TEXT NOT NULL,
    UNIQUE (source, identifier)
)`,
				`CREATE TABLE IF NOT EXISTS comments (
    seq ` + pk + `,
    id TEXT UNIQUE NOT NULL,
    source TEXT NOT NULL,
    created_at TEXT NOT NULL,
    post_url TEXT NOT NULL,
    post_title TEXT NOT NULL DEFAULT '',
    source_content TEXT,
    generated_reply TEXT NOT NULL,
    retrieval_context TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    posted_at TEXT,
    is_duplicate INTEGER NOT NULL DEFAULT 0,
    cancel_reason TEXT,
    attempts INTEGER NOT NULL DEFAULT 0
)`,
				`CREATE TABLE IF NOT EXISTS comment_actions (
    id ` + pk + `,
    comment_id TEXT NOT NULL REFERENCES comments(id) ON DELETE CASCADE,
    action TEXT NOT NULL,
    at TEXT NOT NULL,
    detail TEXT
)`,
				`CREATE INDEX IF NOT EXISTS idx_ledger_source ON ledger(source)`,
				`CREATE INDEX IF NOT EXISTS idx_comments_source_status ON comments(source, status)`,
				`CREATE INDEX IF NOT EXISTS idx_comment_actions_comment ON comment_actions(comment_id)`,
			})
		},
	},
	{
		Version:     2,
		Description: "keywords and scan runs",
		Up: func(tx *sql.Tx, d Dialect) error {
			pk := autoPK(d)
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS keywords (
    id ` + pk + `,
    source TEXT NOT NULL,
    keyword TEXT NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL,
    UNIQUE (source, keyword)
)`,
				`CREATE TABLE IF NOT EXISTS scan_runs (
    id ` + pk + `,
    source TEXT NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    found INTEGER NOT NULL DEFAULT 0,
    new_items INTEGER NOT NULL DEFAULT 0,
    declined INTEGER NOT NULL DEFAULT 0,
    drafted INTEGER NOT NULL DEFAULT 0,
    errors INTEGER NOT NULL DEFAULT 0
)`,
				`CREATE INDEX IF NOT EXISTS idx_scan_runs_source ON scan_runs(source, started_at)`,
			})
		},
	},
}

func autoPK(d Dialect) string {
	if d == Postgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func execAll(tx *sql.Tx, stmts []string) error {
	for _, s := range stmts {
		if _, err := tx.Exec(strings.TrimSpace(s)); err != nil {
			return err
		}
	}
	return nil
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
