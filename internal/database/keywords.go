package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// InsertKeyword adds a search keyword for a source.
// Returns 0 if the keyword already exists.
func (db *DB) InsertKeyword(source, keyword string) (int64, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return 0, fmt.Errorf("keyword is empty")
	}

	var id int64
	err := db.queryRow(
		`INSERT INTO keywords (source, keyword, created_at) VALUES (?, ?, ?)
		ON CONFLICT (source, keyword) DO NOTHING RETURNING id`,
		source, keyword, FormatTime(time.Now()),
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// SeedKeywords inserts keywords that are not yet stored and returns how many were added.
func (db *DB) SeedKeywords(source string, keywords []string) (int, error) {
	added := 0
	for _, kw := range keywords {
		if strings.TrimSpace(kw) == "" {
			continue
		}
		id, err := db.InsertKeyword(source, kw)
		if err != nil {
			return added, err
		}
		if id != 0 {
			added++
		}
	}
	return added, nil
}

// GetKeywords returns all keywords of a source.
func (db *DB) GetKeywords(source string) ([]Keyword, error) {
	return db.queryKeywords("SELECT id, source, keyword, is_active, created_at FROM keywords WHERE source = ? ORDER BY id", source)
}

// GetActiveKeywords returns only active keywords, in insertion order.
func (db *DB) GetActiveKeywords(source string) ([]Keyword, error) {
	return db.queryKeywords("SELECT id, source, keyword, is_active, created_at FROM keywords WHERE source = ? AND is_active = 1 ORDER BY id", source)
}

// ToggleKeyword flips the active state of a keyword.
func (db *DB) ToggleKeyword(source string, id int64) error {
	result, err := db.exec(
		"UPDATE keywords SET is_active = 1 - is_active WHERE source = ? AND id = ?",
		source, id,
	)
	if err != nil {
		return err
	}
	return requireRow(result, "keyword", id)
}

// DeleteKeyword removes a keyword.
func (db *DB) DeleteKeyword(source string, id int64) error {
	result, err := db.exec("DELETE FROM keywords WHERE source = ? AND id = ?", source, id)
	if err != nil {
		return err
	}
	return requireRow(result, "keyword", id)
}

func (db *DB) queryKeywords(query string, args ...any) ([]Keyword, error) {
	rows, err := db.query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keywords []Keyword
	for rows.Next() {
		var k Keyword
		var active int
		var createdAt string
		if err := rows.Scan(&k.ID, &k.Source, &k.Keyword, &active, &createdAt); err != nil {
			return nil, err
		}
		k.IsActive = active != 0
		k.CreatedAt = ParseTime(createdAt)
		keywords = append(keywords, k)
	}
	return keywords, rows.Err()
}

func requireRow(result sql.Result, what string, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d not found", what, id)
	}
	return nil
}
