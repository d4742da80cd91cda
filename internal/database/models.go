package database

import "time"

// TimeLayout is the fixed-width UTC layout used for every stored timestamp,
// so lexical order matches chronological order in both dialects.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a TimeLayout timestamp. Malformed values yield the zero time.
func ParseTime(s string) time.Time {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// LedgerEntry is one recorded item identifier.
type LedgerEntry struct {
	Source     string
	Identifier string
	RecordedAt time.Time
}

// Comment is a stored reply draft and its lifecycle state.
type Comment struct {
	Seq              int64
	ID               string
	Source           string
	CreatedAt        time.Time
	PostURL          string
	PostTitle        string
	SourceContent    *string
	GeneratedReply   string
	RetrievalContext string
	Status           string
	PostedAt         *time.Time
	IsDuplicate      bool
	CancelReason     *string
	Attempts         int
}

// CommentAction is one audit entry of a comment's history.
type CommentAction struct {
	ID        int64
	CommentID string
	Action    string
	At        time.Time
	Detail    *string
}

// StatusUpdate describes a compare-and-set status change.
type StatusUpdate struct {
	Source       string
	ID           string
	From         string
	To           string
	At           time.Time
	PostedAt     *time.Time
	IsDuplicate  bool
	CancelReason *string
	CountAttempt bool
	Detail       string
}

// Keyword is a search term scanned for a source.
type Keyword struct {
	ID        int64
	Source    string
	Keyword   string
	IsActive  bool
	CreatedAt time.Time
}

// ScanRun holds counters of one scanner pass.
type ScanRun struct {
	ID         int64
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time
	Found      int
	New        int
	Declined   int
	Drafted    int
	Errors     int
}

// CancelReasonCount is an aggregated cancellation reason.
type CancelReasonCount struct {
	Reason string
	Count  int
}

// Stats contains aggregate statistics for one source.
type Stats struct {
	LedgerEntries  int
	TotalComments  int
	ByStatus       map[string]int
	Duplicates     int
	TotalKeywords  int
	ActiveKeywords int
	ScanRuns       int
	LastScan       *time.Time
}
