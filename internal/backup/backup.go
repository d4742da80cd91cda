// Package backup writes JSON snapshots of a source's records, ledger and
// keywords to blob storage.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/cafebot/internal/database"
)

// Database is the read side a snapshot is taken from.
type Database interface {
	ListComments(source string, limit int) ([]database.Comment, error)
	ListActions(commentID string) ([]database.CommentAction, error)
	ListIdentifiers(source string, limit int) ([]database.LedgerEntry, error)
	GetKeywords(source string) ([]database.Keyword, error)
}

// Snapshot is the serialized backup document.
type Snapshot struct {
	Source   string        `json:"source"`
	TakenAt  time.Time     `json:"taken_at"`
	Comments []CommentDump `json:"comments"`
	Ledger   []LedgerDump  `json:"ledger"`
	Keywords []KeywordDump `json:"keywords"`
}

type CommentDump struct {
	ID               string       `json:"id"`
	CreatedAt        time.Time    `json:"created_at"`
	PostURL          string       `json:"post_url"`
	PostTitle        string       `json:"post_title"`
	SourceContent    *string      `json:"source_content,omitempty"`
	GeneratedReply   string       `json:"generated_reply"`
	RetrievalContext string       `json:"retrieval_context,omitempty"`
	Status           string       `json:"status"`
	PostedAt         *time.Time   `json:"posted_at,omitempty"`
	IsDuplicate      bool         `json:"is_duplicate"`
	CancelReason     *string      `json:"cancel_reason,omitempty"`
	Attempts         int          `json:"attempts"`
	History          []ActionDump `json:"action_history"`
}

type ActionDump struct {
	Action string    `json:"action"`
	At     time.Time `json:"at"`
	Detail *string   `json:"detail,omitempty"`
}

type LedgerDump struct {
	Identifier string    `json:"identifier"`
	RecordedAt time.Time `json:"recorded_at"`
}

type KeywordDump struct {
	Keyword  string `json:"keyword"`
	IsActive bool   `json:"is_active"`
}

// Exporter builds snapshots and stores them as {source}/{timestamp}.json.
type Exporter struct {
	db      Database
	storage Storage
	source  string
	now     func() time.Time
}

// NewExporter creates an exporter for one source.
func NewExporter(db Database, storage Storage, source string) *Exporter {
	return &Exporter{db: db, storage: storage, source: source, now: time.Now}
}

// Build collects the current state into a Snapshot.
func (e *Exporter) Build() (*Snapshot, error) {
	snap := &Snapshot{Source: e.source, TakenAt: e.now().UTC()}

	comments, err := e.db.ListComments(e.source, 0)
	if err != nil {
		return nil, fmt.Errorf("listing comments: %w", err)
	}
	for _, c := range comments {
		actions, err := e.db.ListActions(c.ID)
		if err != nil {
			return nil, fmt.Errorf("listing actions for %s: %w", c.ID, err)
		}
		dump := CommentDump{
			ID:               c.ID,
			CreatedAt:        c.CreatedAt,
			PostURL:          c.PostURL,
			PostTitle:        c.PostTitle,
			SourceContent:    c.SourceContent,
			GeneratedReply:   c.GeneratedReply,
			RetrievalContext: c.RetrievalContext,
			Status:           c.Status,
			PostedAt:         c.PostedAt,
			IsDuplicate:      c.IsDuplicate,
			CancelReason:     c.CancelReason,
			Attempts:         c.Attempts,
			History:          make([]ActionDump, 0, len(actions)),
		}
		for _, a := range actions {
			dump.History = append(dump.History, ActionDump{Action: a.Action, At: a.At, Detail: a.Detail})
		}
		snap.Comments = append(snap.Comments, dump)
	}

	entries, err := e.db.ListIdentifiers(e.source, 0)
	if err != nil {
		return nil, fmt.Errorf("listing ledger: %w", err)
	}
	for _, l := range entries {
		snap.Ledger = append(snap.Ledger, LedgerDump{Identifier: l.Identifier, RecordedAt: l.RecordedAt})
	}

	keywords, err := e.db.GetKeywords(e.source)
	if err != nil {
		return nil, fmt.Errorf("listing keywords: %w", err)
	}
	for _, k := range keywords {
		snap.Keywords = append(snap.Keywords, KeywordDump{Keyword: k.Keyword, IsActive: k.IsActive})
	}

	return snap, nil
}

// Run takes a snapshot and uploads it, returning the blob name.
func (e *Exporter) Run(ctx context.Context) (string, error) {
	snap, err := e.Build()
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}

	name := fmt.Sprintf("%s/%s.json", e.source, snap.TakenAt.Format("20060102T150405Z"))
	if err := e.storage.Store(ctx, name, data); err != nil {
		return "", err
	}

	logrus.WithFields(logrus.Fields{
		"source":   e.source,
		"blob":     name,
		"comments": len(snap.Comments),
		"ledger":   len(snap.Ledger),
	}).Info("backup stored")
	return name, nil
}
