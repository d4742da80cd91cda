package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/TobiSchelling/cafebot/internal/database"
	"github.com/TobiSchelling/cafebot/internal/worker"
	"github.com/TobiSchelling/cafebot/internal/workflow"
)

const timeLayout = "2006-01-02 15:04"

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func printStatus(w io.Writer, source string, stats *database.Stats, runs []database.ScanRun) {
	fmt.Fprintf(w, "Source: %s\n\n", source)
	fmt.Fprintf(w, "Ledger:    %d item(s)\n", stats.LedgerEntries)
	fmt.Fprintf(w, "Keywords:  %d active / %d total\n", stats.ActiveKeywords, stats.TotalKeywords)
	fmt.Fprintf(w, "Comments:  %d\n", stats.TotalComments)
	for _, st := range workflow.Statuses {
		fmt.Fprintf(w, "  %-10s %d\n", st, stats.ByStatus[string(st)])
	}
	fmt.Fprintf(w, "  %-10s %d\n", "duplicate", stats.Duplicates)
	fmt.Fprintf(w, "Scan runs: %d (last: %s)\n", stats.ScanRuns, formatTime(stats.LastScan))

	if len(runs) == 0 {
		return
	}
	fmt.Fprintln(w, "\nRecent scans:")
	for _, r := range runs {
		started := r.StartedAt
		fmt.Fprintf(w, "  %s  found=%d new=%d declined=%d drafted=%d errors=%d\n",
			formatTime(&started), r.Found, r.New, r.Declined, r.Drafted, r.Errors)
	}
}

func printRecords(w io.Writer, records []workflow.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No comments.")
		return
	}
	for _, r := range records {
		created := r.CreatedAt
		flag := ""
		if r.IsDuplicate {
			flag = " (duplicate)"
		}
		fmt.Fprintf(w, "%s  %-9s  %s  %s%s\n", r.ID, r.Status, formatTime(&created), truncate(r.PostTitle, 40), flag)
	}
}

func printRecord(w io.Writer, r *workflow.Record, history []workflow.Action) {
	created := r.CreatedAt
	fmt.Fprintf(w, "ID:       %s\n", r.ID)
	fmt.Fprintf(w, "Status:   %s\n", r.Status)
	fmt.Fprintf(w, "Post:     %s\n", r.PostTitle)
	fmt.Fprintf(w, "URL:      %s\n", r.PostURL)
	fmt.Fprintf(w, "Created:  %s\n", formatTime(&created))
	if r.PostedAt != nil {
		fmt.Fprintf(w, "Posted:   %s\n", formatTime(r.PostedAt))
	}
	if r.IsDuplicate {
		fmt.Fprintln(w, "Duplicate: reply was already on the page")
	}
	if r.CancelReason != "" {
		fmt.Fprintf(w, "Reason:   %s\n", r.CancelReason)
	}
	if r.Attempts > 0 {
		fmt.Fprintf(w, "Attempts: %d\n", r.Attempts)
	}

	fmt.Fprintln(w, "\nReply:")
	for _, line := range strings.Split(r.Reply, "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}

	if len(history) > 0 {
		fmt.Fprintln(w, "\nHistory:")
		for _, a := range history {
			at := a.At
			if a.Detail != "" {
				fmt.Fprintf(w, "  %s  %s: %s\n", formatTime(&at), a.Action, a.Detail)
			} else {
				fmt.Fprintf(w, "  %s  %s\n", formatTime(&at), a.Action)
			}
		}
	}
}

func printReport(w io.Writer, rep worker.Report) {
	fmt.Fprintf(w, "Found %d, new %d, declined %d, drafted %d, errors %d\n",
		rep.Found, rep.New, rep.Declined, rep.Drafted, rep.Errors)
}
