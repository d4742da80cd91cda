// Package ledger keeps the append-only set of items a source has already
// considered, so no post is ever answered twice.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrStorage wraps every failure of the backing store. Callers must treat it
// as "unknown", never as "recorded".
var ErrStorage = errors.New("ledger storage failure")

// Backend persists identifiers. *database.DB satisfies it.
type Backend interface {
	InsertIdentifier(source, identifier string, at time.Time) (bool, error)
	HasIdentifier(source, identifier string) (bool, error)
	CountIdentifiers(source string) (int, error)
}

// Ledger is the dedup ledger of one source.
type Ledger struct {
	backend Backend
	source  string
	now     func() time.Time
	mu      sync.Mutex
}

// New returns a ledger scoped to source.
func New(backend Backend, source string) *Ledger {
	return &Ledger{backend: backend, source: source, now: time.Now}
}

// Source returns the site name the ledger is scoped to.
func (l *Ledger) Source() string {
	return l.source
}

// Contains reports whether an identifier has been recorded.
func (l *Ledger) Contains(id string) (bool, error) {
	ok, err := l.backend.HasIdentifier(l.source, id)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return ok, nil
}

// Record appends id and reports whether this call inserted it. Concurrent
// callers with the same id see exactly one true.
func (l *Ledger) Record(id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: empty identifier", ErrStorage)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	inserted, err := l.backend.InsertIdentifier(l.source, id, l.now())
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return inserted, nil
}

// RecordURL normalizes u and records it.
func (l *Ledger) RecordURL(u string) (string, bool, error) {
	id := Normalize(u)
	inserted, err := l.Record(id)
	return id, inserted, err
}

// Size returns the number of recorded identifiers.
func (l *Ledger) Size() (int, error) {
	n, err := l.backend.CountIdentifiers(l.source)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return n, nil
}
