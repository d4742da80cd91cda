package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/cafebot/internal/database"
	"github.com/TobiSchelling/cafebot/internal/ledger"
	"github.com/TobiSchelling/cafebot/internal/notify"
	"github.com/TobiSchelling/cafebot/internal/ratelimit"
	"github.com/TobiSchelling/cafebot/internal/reply"
	"github.com/TobiSchelling/cafebot/internal/source"
	"github.com/TobiSchelling/cafebot/internal/workflow"
)

// Collector gathers candidate items for a list of keywords.
type Collector interface {
	Collect(ctx context.Context, keywords []string) source.Result
}

// RunRecorder stores scan pass counters. *database.DB satisfies it.
type RunRecorder interface {
	InsertScanRun(r database.ScanRun) (int64, error)
}

// Report counts what one scanner pass did.
type Report struct {
	Found    int
	New      int
	Declined int
	Drafted  int
	Errors   int
}

// Scanner turns search results into pending (or auto-approved) records.
type Scanner struct {
	wc          *Context
	keywords    func() ([]string, error)
	collector   Collector
	pipeline    reply.Pipeline
	runs        RunRecorder
	notifier    notify.Notifier
	gate        *ratelimit.Gate
	autoApprove bool
	reviewURL   func(id string) string
}

// ScannerOptions are the collaborators of a Scanner.
type ScannerOptions struct {
	Keywords    func() ([]string, error)
	Collector   Collector
	Pipeline    reply.Pipeline
	Runs        RunRecorder
	Notifier    notify.Notifier
	Gate        *ratelimit.Gate
	AutoApprove bool
	ReviewURL   func(id string) string
}

// NewScanner creates a scanner. Runs, Notifier and ReviewURL may be nil.
func NewScanner(wc *Context, opts ScannerOptions) *Scanner {
	n := opts.Notifier
	if n == nil {
		n = notify.Nop{}
	}
	return &Scanner{
		wc:          wc,
		keywords:    opts.Keywords,
		collector:   opts.Collector,
		pipeline:    opts.Pipeline,
		runs:        opts.Runs,
		notifier:    n,
		gate:        opts.Gate,
		autoApprove: opts.AutoApprove,
		reviewURL:   opts.ReviewURL,
	}
}

// RunOnce performs a single scan pass. Items are handled in search order. An
// item is recorded in the ledger before its reply is generated; an item the
// ledger cannot record is skipped and picked up again next pass.
func (s *Scanner) RunOnce(ctx context.Context) (Report, error) {
	log := s.wc.logger().WithField("worker", "scanner")
	started := time.Now()
	var rep Report

	keywords, err := s.keywords()
	if err != nil {
		return rep, fmt.Errorf("loading keywords: %w", err)
	}
	if len(keywords) == 0 {
		log.Warn("no active keywords, nothing to scan")
		return rep, nil
	}

	res := s.collector.Collect(ctx, keywords)
	rep.Found = res.Found
	rep.Errors = res.Errors
	log.WithFields(logrus.Fields{"keywords": len(keywords), "candidates": len(res.Items)}).Info("scan pass started")

	for _, item := range res.Items {
		if ctx.Err() != nil || s.wc.stopped() {
			log.Info("stop requested, ending scan pass early")
			break
		}
		s.handle(ctx, log, item, &rep)
	}

	if s.runs != nil {
		if _, err := s.runs.InsertScanRun(database.ScanRun{
			Source:     s.wc.Source,
			StartedAt:  started,
			FinishedAt: time.Now(),
			Found:      rep.Found,
			New:        rep.New,
			Declined:   rep.Declined,
			Drafted:    rep.Drafted,
			Errors:     rep.Errors,
		}); err != nil {
			log.WithError(err).Error("failed to store scan run")
		}
	}

	log.WithFields(logrus.Fields{
		"found":    rep.Found,
		"new":      rep.New,
		"declined": rep.Declined,
		"drafted":  rep.Drafted,
		"errors":   rep.Errors,
	}).Info("scan pass finished")
	return rep, nil
}

func (s *Scanner) handle(ctx context.Context, log *logrus.Entry, item source.Item, rep *Report) {
	id := ledger.Normalize(item.URL)
	log = log.WithFields(logrus.Fields{"item": id, "url": item.URL})

	inserted, err := s.wc.Ledger.Record(id)
	if err != nil {
		rep.Errors++
		log.WithError(err).Error("ledger unavailable, skipping item")
		return
	}
	if !inserted {
		log.Debug("already seen")
		return
	}
	rep.New++

	req := reply.Request{URL: item.URL, Title: item.Title, Body: item.Body}
	for _, r := range item.Replies {
		req.ExistingReplies = append(req.ExistingReplies, reply.Comment{Author: r.Author, Text: r.Text})
	}

	draft, err := s.pipeline.Generate(ctx, req)
	if err != nil {
		rep.Errors++
		log.WithError(err).Error("reply generation failed")
		return
	}
	if draft == nil {
		rep.Declined++
		log.Info("declined")
		return
	}

	rec, err := s.wc.Store.Create(workflow.Draft{
		PostURL:          item.URL,
		PostTitle:        item.Title,
		Content:          item.Body,
		Reply:            draft.Text,
		RetrievalContext: draft.RetrievalContext,
	})
	if err != nil {
		rep.Errors++
		log.WithError(err).Error("failed to store draft")
		return
	}
	rep.Drafted++

	if s.autoApprove {
		if _, err := s.wc.Store.Approve(rec.ID); err != nil {
			log.WithError(err).WithField("id", rec.ID).Error("auto-approve failed")
		}
		return
	}

	ev := notify.Event{
		Source:    s.wc.Source,
		ID:        rec.ID,
		PostURL:   rec.PostURL,
		PostTitle: rec.PostTitle,
		Reply:     rec.Reply,
		Reason:    draft.Reason,
	}
	if s.reviewURL != nil {
		ev.ReviewURL = s.reviewURL(rec.ID)
	}
	if err := s.notifier.DraftCreated(ctx, ev); err != nil {
		log.WithError(err).Warn("draft notification failed")
	}
}

// Run scans repeatedly, resting between passes, until stopped or cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	log := s.wc.logger().WithField("worker", "scanner")
	log.Info("scanner started")
	for {
		if ctx.Err() != nil || s.wc.stopped() {
			log.Info("scanner stopped")
			return nil
		}
		if _, err := s.RunOnce(ctx); err != nil {
			log.WithError(err).Error("scan pass failed")
		}

		err := s.gate.Rest(ctx, s.wc.settings().RestMinutes, s.wc.Stop)
		if errors.Is(err, ratelimit.ErrStopped) || ctx.Err() != nil {
			log.Info("scanner stopped")
			return nil
		}
		if err != nil {
			return err
		}
	}
}
