package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"

	"github.com/TobiSchelling/cafebot/internal/database"
	"github.com/TobiSchelling/cafebot/internal/worker"
	"github.com/TobiSchelling/cafebot/internal/workflow"
)

var at = time.Date(2026, 4, 15, 9, 0, 0, 0, time.UTC)

func assertGolden(t *testing.T, name string, got []byte) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, got)
}

func TestPrintStatus(t *testing.T) {
	stats := &database.Stats{
		LedgerEntries: 12,
		TotalComments: 5,
		ByStatus: map[string]int{
			"pending":   2,
			"approved":  1,
			"posted":    1,
			"cancelled": 1,
		},
		Duplicates:     1,
		TotalKeywords:  3,
		ActiveKeywords: 2,
		ScanRuns:       4,
		LastScan:       &at,
	}
	runs := []database.ScanRun{
		{Source: "suhui", StartedAt: at, FinishedAt: at.Add(time.Minute), Found: 7, New: 3, Declined: 1, Drafted: 2},
	}

	var buf bytes.Buffer
	printStatus(&buf, "suhui", stats, runs)
	assertGolden(t, "status", buf.Bytes())
}

func TestPrintRecords(t *testing.T) {
	posted := at.Add(time.Hour)
	records := []workflow.Record{
		{ID: "a1b2c3d4", Status: workflow.StatusPending, CreatedAt: at, PostTitle: "내신 2.5 수시 질문"},
		{
			ID:          "e5f6a7b8",
			Status:      workflow.StatusPosted,
			CreatedAt:   at.Add(30 * time.Minute),
			PostTitle:   "Which university accepts a  late\nsubmission of the student record?",
			PostedAt:    &posted,
			IsDuplicate: true,
		},
	}

	var buf bytes.Buffer
	printRecords(&buf, records)
	assertGolden(t, "records", buf.Bytes())
}

func TestPrintRecordsEmpty(t *testing.T) {
	var buf bytes.Buffer
	printRecords(&buf, nil)
	assert.Equal(t, "No comments.\n", buf.String())
}

func TestPrintRecord(t *testing.T) {
	rec := &workflow.Record{
		ID:           "a1b2c3d4",
		Status:       workflow.StatusCancelled,
		CreatedAt:    at,
		PostURL:      "https://cafe.naver.com/suhui/29392388",
		PostTitle:    "내신 2.5 수시 질문",
		Reply:        "학생부 종합 전형을 추천드려요.\n자세한 내용은 입학처를 확인하세요.",
		CancelReason: "too pushy",
	}
	history := []workflow.Action{
		{Action: "created", At: at},
		{Action: "cancelled", At: at.Add(5 * time.Minute), Detail: "too pushy"},
	}

	var buf bytes.Buffer
	printRecord(&buf, rec, history)
	assertGolden(t, "record", buf.Bytes())
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, worker.Report{Found: 7, New: 3, Declined: 1, Drafted: 2})
	assert.Equal(t, "Found 7, new 3, declined 1, drafted 2, errors 0\n", buf.String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b", truncate(" a\n  b ", 10))
	assert.Equal(t, "수시...", truncate("수시 질문", 2))
}
