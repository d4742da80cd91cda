// Package workflow owns comment records and the lifecycle that moves them
// from draft to posted.
package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/cafebot/internal/database"
)

// DefaultCapacity is the number of records kept per source.
const DefaultCapacity = 500

const casRetries = 3

// Backend persists records. *database.DB satisfies it.
type Backend interface {
	InsertComment(c *database.Comment, capacity int) (int64, error)
	GetComment(source, id string) (*database.Comment, error)
	ListCommentsByStatus(source, status string) ([]database.Comment, error)
	ListComments(source string, limit int) ([]database.Comment, error)
	UpdateCommentStatus(u database.StatusUpdate) (bool, error)
	ListActions(commentID string) ([]database.CommentAction, error)
}

// Record is a reply draft with its lifecycle state.
type Record struct {
	ID               string
	Source           string
	CreatedAt        time.Time
	PostURL          string
	PostTitle        string
	SourceContent    *string
	Reply            string
	RetrievalContext string
	Status           Status
	PostedAt         *time.Time
	IsDuplicate      bool
	CancelReason     string
	Attempts         int
}

// Action is one entry of a record's audit trail.
type Action struct {
	Action string
	At     time.Time
	Detail string
}

// Draft is the input for Create.
type Draft struct {
	PostURL          string
	PostTitle        string
	Content          string
	Reply            string
	RetrievalContext string
}

// TransitionOptions carries the side data of a transition.
type TransitionOptions struct {
	PostedAt     *time.Time
	IsDuplicate  bool
	Reason       string
	CountAttempt bool
}

// Store manages the records of one source.
type Store struct {
	backend    Backend
	source     string
	capacity   int
	maxContent int
	now        func() time.Time
	log        *logrus.Entry
}

// Option configures a Store.
type Option func(*Store)

// WithCapacity bounds the number of stored records.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithMaxContent caps stored post text, in runes.
func WithMaxContent(n int) Option {
	return func(s *Store) { s.maxContent = n }
}

// WithLogger sets the logger transitions are reported to.
func WithLogger(l *logrus.Entry) Option {
	return func(s *Store) { s.log = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore returns a store scoped to source.
func NewStore(backend Backend, source string, opts ...Option) *Store {
	s := &Store{
		backend:    backend,
		source:     source,
		capacity:   DefaultCapacity,
		maxContent: 2000,
		now:        time.Now,
		log:        logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.WithField("source", source)
	return s
}

// Source returns the site name the store is scoped to.
func (s *Store) Source() string {
	return s.source
}

// Create stores a new pending record.
func (s *Store) Create(d Draft) (*Record, error) {
	c := &database.Comment{
		ID:               uuid.NewString(),
		Source:           s.source,
		CreatedAt:        s.now(),
		PostURL:          d.PostURL,
		PostTitle:        d.PostTitle,
		SourceContent:    CleanContent(d.Content, s.maxContent),
		GeneratedReply:   d.Reply,
		RetrievalContext: d.RetrievalContext,
		Status:           string(StatusPending),
	}

	evicted, err := s.backend.InsertComment(c, s.capacity)
	if err != nil {
		return nil, fmt.Errorf("creating record: %w", err)
	}
	if evicted > 0 {
		s.log.WithField("evicted", evicted).Debug("evicted oldest records")
	}
	s.log.WithFields(logrus.Fields{"id": c.ID, "url": c.PostURL}).Info("record created")
	return fromComment(c), nil
}

// Get returns a record by id.
func (s *Store) Get(id string) (*Record, error) {
	c, err := s.backend.GetComment(s.source, id)
	if err != nil {
		return nil, fmt.Errorf("loading record %s: %w", id, err)
	}
	if c == nil {
		return nil, ErrNotFound
	}
	return fromComment(c), nil
}

// FindByStatus returns records in a status, oldest first.
func (s *Store) FindByStatus(status Status) ([]Record, error) {
	comments, err := s.backend.ListCommentsByStatus(s.source, string(status))
	if err != nil {
		return nil, fmt.Errorf("listing %s records: %w", status, err)
	}
	return fromComments(comments), nil
}

// List returns the newest records. limit <= 0 returns all.
func (s *Store) List(limit int) ([]Record, error) {
	comments, err := s.backend.ListComments(s.source, limit)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return fromComments(comments), nil
}

// History returns the audit trail of a record, oldest first.
func (s *Store) History(id string) ([]Action, error) {
	if _, err := s.Get(id); err != nil {
		return nil, err
	}
	actions, err := s.backend.ListActions(id)
	if err != nil {
		return nil, fmt.Errorf("loading history of %s: %w", id, err)
	}
	out := make([]Action, 0, len(actions))
	for _, a := range actions {
		act := Action{Action: a.Action, At: a.At}
		if a.Detail != nil {
			act.Detail = *a.Detail
		}
		out = append(out, act)
	}
	return out, nil
}

// Transition moves a record to a new status. The move is validated against the
// current status and applied with a compare-and-set, so a concurrent writer
// cannot slip a second transition in between.
func (s *Store) Transition(id string, to Status, opts TransitionOptions) (*Record, error) {
	opts.Reason = strings.ToValidUTF8(opts.Reason, "\uFFFD")
	for attempt := 0; attempt < casRetries; attempt++ {
		current, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		if !CanTransition(current.Status, to) {
			return nil, &InvalidTransitionError{ID: id, From: current.Status, To: to}
		}

		now := s.now()
		u := database.StatusUpdate{
			Source:       s.source,
			ID:           id,
			From:         string(current.Status),
			To:           string(to),
			At:           now,
			CountAttempt: opts.CountAttempt,
			Detail:       opts.Reason,
		}
		if to == StatusPosted {
			posted := now
			if opts.PostedAt != nil {
				posted = *opts.PostedAt
			}
			u.PostedAt = &posted
			u.IsDuplicate = opts.IsDuplicate
		}
		if to == StatusCancelled && opts.Reason != "" {
			reason := opts.Reason
			u.CancelReason = &reason
		}

		applied, err := s.backend.UpdateCommentStatus(u)
		if err != nil {
			return nil, fmt.Errorf("transition %s %s -> %s: %w", id, current.Status, to, err)
		}
		if applied {
			entry := s.log.WithFields(logrus.Fields{"id": id, "from": current.Status, "to": to})
			if opts.Reason != "" {
				entry = entry.WithField("reason", opts.Reason)
			}
			entry.Info("record transitioned")
			return s.Get(id)
		}
		s.log.WithField("id", id).Debug("status changed concurrently, reloading")
	}
	return nil, fmt.Errorf("transition %s -> %s: record kept changing concurrently", id, to)
}

// Approve moves a pending or failed record to approved.
func (s *Store) Approve(id string) (*Record, error) {
	return s.Transition(id, StatusApproved, TransitionOptions{})
}

// Cancel withdraws a record, keeping the reason as reviewer feedback.
func (s *Store) Cancel(id, reason string) (*Record, error) {
	return s.Transition(id, StatusCancelled, TransitionOptions{Reason: reason})
}

// MarkPosted records a successful post. duplicate marks a reply that was
// already present on the page.
func (s *Store) MarkPosted(id string, duplicate bool) (*Record, error) {
	opts := TransitionOptions{IsDuplicate: duplicate, CountAttempt: true}
	if duplicate {
		opts.Reason = "already present"
	}
	return s.Transition(id, StatusPosted, opts)
}

// MarkFailed records a failed posting attempt.
func (s *Store) MarkFailed(id, reason string) (*Record, error) {
	return s.Transition(id, StatusFailed, TransitionOptions{Reason: reason, CountAttempt: true})
}

// Retry re-approves a failed record.
func (s *Store) Retry(id string) (*Record, error) {
	current, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusFailed {
		return nil, &InvalidTransitionError{ID: id, From: current.Status, To: StatusApproved}
	}
	return s.Transition(id, StatusApproved, TransitionOptions{Reason: "retry"})
}

func fromComment(c *database.Comment) *Record {
	r := &Record{
		ID:               c.ID,
		Source:           c.Source,
		CreatedAt:        c.CreatedAt,
		PostURL:          c.PostURL,
		PostTitle:        c.PostTitle,
		SourceContent:    c.SourceContent,
		Reply:            c.GeneratedReply,
		RetrievalContext: c.RetrievalContext,
		Status:           Status(c.Status),
		PostedAt:         c.PostedAt,
		IsDuplicate:      c.IsDuplicate,
		Attempts:         c.Attempts,
	}
	if c.CancelReason != nil {
		r.CancelReason = *c.CancelReason
	}
	return r
}

func fromComments(comments []database.Comment) []Record {
	out := make([]Record, 0, len(comments))
	for i := range comments {
		out = append(out, *fromComment(&comments[i]))
	}
	return out
}
