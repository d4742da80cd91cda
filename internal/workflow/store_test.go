package workflow

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/cafebot/internal/database"
)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db, "suhui", opts...)
}

func createDraft(t *testing.T, s *Store, n int) *Record {
	t.Helper()
	r, err := s.Create(Draft{
		PostURL:   fmt.Sprintf("https://cafe.naver.com/suhui/%d", n),
		PostTitle: fmt.Sprintf("post %d", n),
		Content:   "내신 3등급인데 수시 어떻게 준비하나요?",
		Reply:     "생기부 관리부터 시작하세요.",
	})
	require.NoError(t, err)
	return r
}

func assertAuditMatches(t *testing.T, s *Store, id string) {
	t.Helper()
	rec, err := s.Get(id)
	require.NoError(t, err)
	history, err := s.History(id)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, ActionCreated, history[0].Action)

	last := history[len(history)-1].Action
	if rec.Status == StatusPending {
		assert.Contains(t, []string{ActionCreated, string(StatusPending)}, last)
	} else {
		assert.Equal(t, string(rec.Status), last)
	}
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].At.Before(history[i-1].At), "history must be time-ordered")
	}
	assert.Equal(t, rec.Status == StatusPosted, rec.PostedAt != nil)
}

func TestCreateStartsPending(t *testing.T) {
	s := openTestStore(t)
	r := createDraft(t, s, 1)

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, StatusPending, r.Status)
	assert.Nil(t, r.PostedAt)
	assertAuditMatches(t, s, r.ID)
}

func TestApprovePostLifecycle(t *testing.T) {
	s := openTestStore(t)
	r := createDraft(t, s, 1)

	_, err := s.Approve(r.ID)
	require.NoError(t, err)

	posted, err := s.MarkPosted(r.ID, false)
	require.NoError(t, err)
	assert.Equal(t, StatusPosted, posted.Status)
	require.NotNil(t, posted.PostedAt)
	assert.False(t, posted.IsDuplicate)
	assert.Equal(t, 1, posted.Attempts)

	history, _ := s.History(r.ID)
	actions := make([]string, 0, len(history))
	for _, h := range history {
		actions = append(actions, h.Action)
	}
	assert.Equal(t, []string{"created", "approved", "posted"}, actions)

	_, err = s.Cancel(r.ID, "changed my mind")
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, StatusPosted, invalid.From)
	assert.Equal(t, StatusCancelled, invalid.To)

	after, _ := s.Get(r.ID)
	assert.Equal(t, StatusPosted, after.Status, "rejected transition must not mutate")
	assertAuditMatches(t, s, r.ID)
}

func TestMarkPostedDuplicate(t *testing.T) {
	s := openTestStore(t)
	r := createDraft(t, s, 1)
	_, err := s.Approve(r.ID)
	require.NoError(t, err)

	posted, err := s.MarkPosted(r.ID, true)
	require.NoError(t, err)
	assert.True(t, posted.IsDuplicate)
	assert.NotNil(t, posted.PostedAt)

	history, _ := s.History(r.ID)
	assert.Equal(t, "already present", history[len(history)-1].Detail)
}

func TestFailRetryCancel(t *testing.T) {
	s := openTestStore(t)
	r := createDraft(t, s, 1)

	_, err := s.Retry(r.ID)
	require.Error(t, err, "retry only applies to failed records")

	_, err = s.Approve(r.ID)
	require.NoError(t, err)
	failed, err := s.MarkFailed(r.ID, "comment box not found")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, 1, failed.Attempts)

	retried, err := s.Retry(r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, retried.Status)

	_, err = s.MarkFailed(r.ID, "timeout")
	require.NoError(t, err)
	cancelled, err := s.Cancel(r.ID, "gave up")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, "gave up", cancelled.CancelReason)
	assert.Nil(t, cancelled.PostedAt)
	assertAuditMatches(t, s, r.ID)
}

func TestFailureReasonStoredAsValidUTF8(t *testing.T) {
	s := openTestStore(t)
	r := createDraft(t, s, 1)
	_, err := s.Approve(r.ID)
	require.NoError(t, err)

	// A byte-cut Korean body: the last rune is incomplete.
	broken := "agent returned 500: 댓글"[:len("agent returned 500: 댓글")-1]
	got, err := s.MarkFailed(r.ID, broken)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)

	history, err := s.History(r.ID)
	require.NoError(t, err)
	detail := history[len(history)-1].Detail
	assert.True(t, utf8.ValidString(detail), "detail %q", detail)
	assert.True(t, strings.HasPrefix(detail, "agent returned 500: 댓"))
}

func TestTransitionGraph(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusPending, StatusApproved}:   true,
		{StatusPending, StatusCancelled}:  true,
		{StatusApproved, StatusPosted}:    true,
		{StatusApproved, StatusFailed}:    true,
		{StatusApproved, StatusCancelled}: true,
		{StatusFailed, StatusApproved}:    true,
		{StatusFailed, StatusCancelled}:   true,
	}
	for _, from := range Statuses {
		for _, to := range Statuses {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.True(t, StatusPosted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusFailed.Terminal())
}

func TestPendingCannotPostDirectly(t *testing.T) {
	s := openTestStore(t)
	r := createDraft(t, s, 1)

	_, err := s.MarkPosted(r.ID, false)
	var invalid *InvalidTransitionError
	assert.ErrorAs(t, err, &invalid)
}

func TestUnknownIDIsNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Approve("does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.History("does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindByStatusOldestFirst(t *testing.T) {
	s := openTestStore(t)
	a := createDraft(t, s, 1)
	b := createDraft(t, s, 2)
	c := createDraft(t, s, 3)
	_, err := s.Approve(c.ID)
	require.NoError(t, err)
	_, err = s.Approve(a.ID)
	require.NoError(t, err)

	approved, err := s.FindByStatus(StatusApproved)
	require.NoError(t, err)
	require.Len(t, approved, 2)
	assert.Equal(t, a.ID, approved[0].ID)
	assert.Equal(t, c.ID, approved[1].ID)

	pending, _ := s.FindByStatus(StatusPending)
	require.Len(t, pending, 1)
	assert.Equal(t, b.ID, pending[0].ID)
}

func TestCapacityEvictsOldest(t *testing.T) {
	s := openTestStore(t, WithCapacity(2))
	first := createDraft(t, s, 1)
	createDraft(t, s, 2)
	createDraft(t, s, 3)

	all, err := s.List(0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = s.Get(first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateNormalizesContent(t *testing.T) {
	s := openTestStore(t, WithMaxContent(3))
	// The first syllable is written in decomposed jamo form.
	r, err := s.Create(Draft{PostURL: "u", Content: "가나다라", Reply: "x"})
	require.NoError(t, err)
	require.NotNil(t, r.SourceContent)
	assert.Equal(t, "가나다", *r.SourceContent)
}

func TestCleanContentBlank(t *testing.T) {
	assert.Nil(t, CleanContent("  \n ", 10))
	got := CleanContent(strings.Repeat("a", 5), 0)
	require.NotNil(t, got)
	assert.Len(t, *got, 5)
}

// racingBackend simulates a concurrent writer winning the first update.
type racingBackend struct {
	*database.DB
	raced bool
}

func (b *racingBackend) UpdateCommentStatus(u database.StatusUpdate) (bool, error) {
	if !b.raced {
		b.raced = true
		_, err := b.DB.UpdateCommentStatus(database.StatusUpdate{
			Source: u.Source, ID: u.ID, From: u.From, To: string(StatusCancelled), At: time.Now(),
		})
		if err != nil {
			return false, err
		}
		return false, nil
	}
	return b.DB.UpdateCommentStatus(u)
}

func TestTransitionReloadsAfterConcurrentChange(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewStore(&racingBackend{DB: db}, "suhui")
	r := createDraft(t, s, 1)

	_, err = s.Approve(r.ID)
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid, "after reload the record is cancelled")
	assert.Equal(t, StatusCancelled, invalid.From)
}

type brokenBackend struct{ *database.DB }

func (brokenBackend) UpdateCommentStatus(database.StatusUpdate) (bool, error) {
	return false, errors.New("database is locked")
}

func TestTransitionStorageError(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewStore(brokenBackend{db}, "suhui")
	r := createDraft(t, s, 1)
	_, err = s.Approve(r.ID)
	require.Error(t, err)

	after, _ := s.Get(r.ID)
	assert.Equal(t, StatusPending, after.Status)
}
