package database

import (
	"fmt"
	"time"
)

// InsertIdentifier appends an identifier to the source's ledger.
// Returns false when the identifier was already present.
func (db *DB) InsertIdentifier(source, identifier string, at time.Time) (bool, error) {
	result, err := db.exec(
		`INSERT INTO ledger (source, identifier, recorded_at) VALUES (?, ?, ?)
		ON CONFLICT (source, identifier) DO NOTHING`,
		source, identifier, FormatTime(at),
	)
	if err != nil {
		return false, fmt.Errorf("inserting identifier: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting identifier: %w", err)
	}
	return n > 0, nil
}

// HasIdentifier reports whether the identifier is in the source's ledger.
func (db *DB) HasIdentifier(source, identifier string) (bool, error) {
	var count int
	err := db.queryRow(
		"SELECT COUNT(*) FROM ledger WHERE source = ? AND identifier = ?",
		source, identifier,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking identifier: %w", err)
	}
	return count > 0, nil
}

// CountIdentifiers returns the number of ledger entries for a source.
func (db *DB) CountIdentifiers(source string) (int, error) {
	var count int
	if err := db.queryRow("SELECT COUNT(*) FROM ledger WHERE source = ?", source).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting identifiers: %w", err)
	}
	return count, nil
}

// ListIdentifiers returns ledger entries newest first. limit <= 0 returns all.
func (db *DB) ListIdentifiers(source string, limit int) ([]LedgerEntry, error) {
	query := "SELECT source, identifier, recorded_at FROM ledger WHERE source = ? ORDER BY id DESC"
	args := []any{source}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var at string
		if err := rows.Scan(&e.Source, &e.Identifier, &at); err != nil {
			return nil, err
		}
		e.RecordedAt = ParseTime(at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
