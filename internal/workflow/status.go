package workflow

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of a comment record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusPosted    Status = "posted"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// ActionCreated is the first audit entry of every record.
const ActionCreated = "created"

// Statuses lists every status in display order.
var Statuses = []Status{StatusPending, StatusApproved, StatusPosted, StatusFailed, StatusCancelled}

var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusCancelled},
	StatusApproved: {StatusPosted, StatusFailed, StatusCancelled},
	StatusFailed:   {StatusApproved, StatusCancelled},
}

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// CanTransition reports whether from -> to is an allowed move.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// ErrNotFound is returned for unknown record ids.
var ErrNotFound = errors.New("comment record not found")

// InvalidTransitionError is returned when a move is not in the transition graph.
type InvalidTransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for %s: %s -> %s", e.ID, e.From, e.To)
}
