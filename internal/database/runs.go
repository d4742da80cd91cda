package database

import (
	"database/sql"
)

// InsertScanRun stores the counters of one scanner pass.
func (db *DB) InsertScanRun(r ScanRun) (int64, error) {
	var id int64
	err := db.queryRow(
		`INSERT INTO scan_runs (source, started_at, finished_at, found, new_items, declined, drafted, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		r.Source, FormatTime(r.StartedAt), FormatTime(r.FinishedAt),
		r.Found, r.New, r.Declined, r.Drafted, r.Errors,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetRecentScanRuns returns the latest scan runs of a source, newest first.
func (db *DB) GetRecentScanRuns(source string, limit int) ([]ScanRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.query(
		`SELECT id, source, started_at, finished_at, found, new_items, declined, drafted, errors
		FROM scan_runs WHERE source = ? ORDER BY id DESC LIMIT ?`,
		source, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ScanRun
	for rows.Next() {
		var r ScanRun
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Source, &started, &finished,
			&r.Found, &r.New, &r.Declined, &r.Drafted, &r.Errors); err != nil {
			return nil, err
		}
		r.StartedAt = ParseTime(started)
		r.FinishedAt = ParseTime(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetStats returns aggregate statistics for a source.
func (db *DB) GetStats(source string) (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM ledger WHERE source = ?", &s.LedgerEntries},
		{"SELECT COUNT(*) FROM comments WHERE source = ?", &s.TotalComments},
		{"SELECT COUNT(*) FROM comments WHERE source = ? AND is_duplicate = 1", &s.Duplicates},
		{"SELECT COUNT(*) FROM keywords WHERE source = ?", &s.TotalKeywords},
		{"SELECT COUNT(*) FROM keywords WHERE source = ? AND is_active = 1", &s.ActiveKeywords},
		{"SELECT COUNT(*) FROM scan_runs WHERE source = ?", &s.ScanRuns},
	}

	for _, q := range queries {
		if err := db.queryRow(q.sql, source).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	byStatus, err := db.CountCommentsByStatus(source)
	if err != nil {
		return nil, err
	}
	s.ByStatus = byStatus

	var last string
	err = db.queryRow("SELECT finished_at FROM scan_runs WHERE source = ? ORDER BY id DESC LIMIT 1", source).Scan(&last)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, err
	default:
		t := ParseTime(last)
		s.LastScan = &t
	}

	return s, nil
}
