package database

// GetCancelReasonSummary aggregates reviewer cancellation reasons, most
// frequent first, for query prompt injection.
func (db *DB) GetCancelReasonSummary(source string, limit int) ([]CancelReasonCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.query(`
		SELECT cancel_reason, COUNT(*) AS n
		FROM comments
		WHERE source = ? AND status = 'cancelled'
			AND cancel_reason IS NOT NULL AND cancel_reason <> ''
		GROUP BY cancel_reason
		ORDER BY n DESC, cancel_reason ASC
		LIMIT ?`, source, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summary []CancelReasonCount
	for rows.Next() {
		var c CancelReasonCount
		if err := rows.Scan(&c.Reason, &c.Count); err != nil {
			return nil, err
		}
		summary = append(summary, c)
	}
	return summary, rows.Err()
}
