package database

import (
	"database/sql"
	"fmt"
)

const commentColumns = `seq, id, source, created_at, post_url, post_title, source_content,
	generated_reply, retrieval_context, status, posted_at, is_duplicate, cancel_reason, attempts`

// InsertComment stores a new comment together with its "created" action and
// evicts the oldest comments of the source beyond capacity. Everything runs in
// one transaction. Returns the number of evicted comments.
func (db *DB) InsertComment(c *Comment, capacity int) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin insert comment: %w", err)
	}
	defer tx.Rollback()

	var postedAt *string
	if c.PostedAt != nil {
		s := FormatTime(*c.PostedAt)
		postedAt = &s
	}

	_, err = tx.Exec(db.rebind(
		`INSERT INTO comments (id, source, created_at, post_url, post_title, source_content,
		generated_reply, retrieval_context, status, posted_at, is_duplicate, cancel_reason, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.Source, FormatTime(c.CreatedAt), c.PostURL, c.PostTitle, c.SourceContent,
		c.GeneratedReply, c.RetrievalContext, c.Status, postedAt, boolInt(c.IsDuplicate),
		c.CancelReason, c.Attempts,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting comment: %w", err)
	}

	if _, err := tx.Exec(db.rebind(
		`INSERT INTO comment_actions (comment_id, action, at) VALUES (?, ?, ?)`),
		c.ID, "created", FormatTime(c.CreatedAt),
	); err != nil {
		return 0, fmt.Errorf("inserting created action: %w", err)
	}

	var evicted int64
	if capacity > 0 {
		result, err := tx.Exec(db.rebind(
			`DELETE FROM comments WHERE source = ? AND seq NOT IN (
				SELECT seq FROM comments WHERE source = ? ORDER BY seq DESC LIMIT ?
			)`),
			c.Source, c.Source, capacity,
		)
		if err != nil {
			return 0, fmt.Errorf("evicting comments: %w", err)
		}
		evicted, _ = result.RowsAffected()
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert comment: %w", err)
	}
	return evicted, nil
}

// GetComment returns a single comment, or nil if it does not exist.
func (db *DB) GetComment(source, id string) (*Comment, error) {
	row := db.queryRow(
		"SELECT "+commentColumns+" FROM comments WHERE source = ? AND id = ?",
		source, id,
	)
	c, err := scanComment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCommentsByStatus returns the source's comments in a status, oldest first.
func (db *DB) ListCommentsByStatus(source, status string) ([]Comment, error) {
	return db.queryComments(
		"SELECT "+commentColumns+" FROM comments WHERE source = ? AND status = ? ORDER BY seq ASC",
		source, status,
	)
}

// ListComments returns the source's comments newest first. limit <= 0 returns all.
func (db *DB) ListComments(source string, limit int) ([]Comment, error) {
	query := "SELECT " + commentColumns + " FROM comments WHERE source = ? ORDER BY seq DESC"
	args := []any{source}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return db.queryComments(query, args...)
}

// CountCommentsByStatus returns comment counts keyed by status.
func (db *DB) CountCommentsByStatus(source string) (map[string]int, error) {
	rows, err := db.query("SELECT status, COUNT(*) FROM comments WHERE source = ? GROUP BY status", source)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// UpdateCommentStatus applies u only if the comment is still in u.From, and
// appends the matching action in the same transaction. Returns false when the
// comment was missing or had already moved on.
func (db *DB) UpdateCommentStatus(u StatusUpdate) (bool, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return false, fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback()

	var postedAt *string
	if u.PostedAt != nil {
		s := FormatTime(*u.PostedAt)
		postedAt = &s
	}
	attempts := 0
	if u.CountAttempt {
		attempts = 1
	}

	result, err := tx.Exec(db.rebind(
		`UPDATE comments SET status = ?, posted_at = COALESCE(?, posted_at),
		is_duplicate = ?, cancel_reason = COALESCE(?, cancel_reason), attempts = attempts + ?
		WHERE source = ? AND id = ? AND status = ?`),
		u.To, postedAt, boolInt(u.IsDuplicate), u.CancelReason, attempts,
		u.Source, u.ID, u.From,
	)
	if err != nil {
		return false, fmt.Errorf("updating status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("updating status: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	var detail *string
	if u.Detail != "" {
		detail = &u.Detail
	}
	if _, err := tx.Exec(db.rebind(
		`INSERT INTO comment_actions (comment_id, action, at, detail) VALUES (?, ?, ?, ?)`),
		u.ID, u.To, FormatTime(u.At), detail,
	); err != nil {
		return false, fmt.Errorf("inserting action: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit status update: %w", err)
	}
	return true, nil
}

// ListActions returns a comment's audit trail in insertion order.
func (db *DB) ListActions(commentID string) ([]CommentAction, error) {
	rows, err := db.query(
		"SELECT id, comment_id, action, at, detail FROM comment_actions WHERE comment_id = ? ORDER BY id ASC",
		commentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []CommentAction
	for rows.Next() {
		var a CommentAction
		var at string
		if err := rows.Scan(&a.ID, &a.CommentID, &a.Action, &at, &a.Detail); err != nil {
			return nil, err
		}
		a.At = ParseTime(at)
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func (db *DB) queryComments(query string, args ...any) ([]Comment, error) {
	rows, err := db.query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, *c)
	}
	return comments, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComment(row rowScanner) (*Comment, error) {
	var c Comment
	var createdAt string
	var postedAt *string
	var dup int
	if err := row.Scan(&c.Seq, &c.ID, &c.Source, &createdAt, &c.PostURL, &c.PostTitle,
		&c.SourceContent, &c.GeneratedReply, &c.RetrievalContext, &c.Status, &postedAt,
		&dup, &c.CancelReason, &c.Attempts); err != nil {
		return nil, err
	}
	c.CreatedAt = ParseTime(createdAt)
	if postedAt != nil {
		t := ParseTime(*postedAt)
		c.PostedAt = &t
	}
	c.IsDuplicate = dup != 0
	return &c, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
