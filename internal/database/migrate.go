package database

import (
	"database/sql"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// getSchemaVersion reads the applied schema version. SQLite keeps it in
// PRAGMA user_version, Postgres in a one-row schema_version table.
func getSchemaVersion(conn *sql.DB, d Dialect) (int, error) {
	var version int
	if d == Postgres {
		if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
			return 0, fmt.Errorf("creating schema_version: %w", err)
		}
		err := conn.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
		if err != nil {
			return 0, fmt.Errorf("reading schema version: %w", err)
		}
		return version, nil
	}
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// migrate brings the database schema up to the latest version.
func (db *DB) migrate() error {
	current, err := getSchemaVersion(db.conn, db.dialect)
	if err != nil {
		return err
	}

	if current >= latestVersion() {
		return nil
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		log.WithField("dialect", db.dialect).Infof("applying migration %d: %s", m.Version, m.Description)

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if err := m.Up(tx, db.dialect); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if db.dialect == Postgres {
			if _, err := tx.Exec(`DELETE FROM schema_version`); err != nil {
				tx.Rollback()
				return fmt.Errorf("clearing version: %w", err)
			}
			if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, m.Version); err != nil {
				tx.Rollback()
				return fmt.Errorf("setting version %d: %w", m.Version, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		if db.dialect == SQLite {
			// user_version is set outside the transaction (modernc/sqlite requirement).
			// The DDL is idempotent, so a crash here just re-runs the step.
			if _, err := db.conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
				return fmt.Errorf("setting version %d: %w", m.Version, err)
			}
		}
	}

	return nil
}
