package database

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &DB{conn: conn, dialect: Postgres}, mock
}

func TestRebind(t *testing.T) {
	pg := &DB{dialect: Postgres}
	got := pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?")
	if got != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Errorf("unexpected rebind: %q", got)
	}

	lite := &DB{dialect: SQLite}
	if q := lite.rebind("a = ?"); q != "a = ?" {
		t.Errorf("sqlite query rewritten: %q", q)
	}
}

func TestPostgresInsertIdentifier(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger (source, identifier, recorded_at) VALUES ($1, $2, $3)")).
		WithArgs("s", "42", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := db.InsertIdentifier("s", "42", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted {
		t.Error("expected conflict to report false")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresInsertIdentifierError(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO ledger").WillReturnError(errors.New("connection reset"))
	if _, err := db.InsertIdentifier("s", "42", time.Now()); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresUpdateCommentStatusConflict(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("WHERE source = $6 AND id = $7 AND status = $8")).
		WithArgs("approved", nil, 0, nil, 0, "s", "c1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	ok, err := db.UpdateCommentStatus(StatusUpdate{Source: "s", ID: "c1", From: "pending", To: "approved", At: time.Now()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected CAS miss")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresUpdateCommentStatusApplied(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE comments SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO comment_actions (comment_id, action, at, detail) VALUES ($1, $2, $3, $4)")).
		WithArgs("c1", "cancelled", sqlmock.AnyArg(), "spam").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	reason := "spam"
	ok, err := db.UpdateCommentStatus(StatusUpdate{
		Source: "s", ID: "c1", From: "pending", To: "cancelled", At: time.Now(),
		CancelReason: &reason, Detail: "spam",
	})
	if err != nil || !ok {
		t.Fatalf("expected update to apply, ok=%v err=%v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresSchemaVersion(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_version").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) FROM schema_version")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(2))

	version, err := getSchemaVersion(db.conn, Postgres)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version != 2 {
		t.Errorf("expected version 2, got %d", version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresListCommentsScanError(t *testing.T) {
	db, mock := newMockDB(t)

	rows := sqlmock.NewRows([]string{"seq", "id", "source", "created_at", "post_url", "post_title",
		"source_content", "generated_reply", "retrieval_context", "status", "posted_at",
		"is_duplicate", "cancel_reason", "attempts"}).
		AddRow("not-int", "c1", "s", "", "u", "t", nil, "r", "", "pending", nil, 0, nil, 0)
	mock.ExpectQuery("SELECT seq, id, source").WillReturnRows(rows)

	if _, err := db.ListComments("s", 10); err == nil {
		t.Fatal("expected scan error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
