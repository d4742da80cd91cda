// Package notify tells reviewers about new drafts and posting failures.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Event describes one comment record a reviewer should look at.
type Event struct {
	Source    string
	ID        string
	PostURL   string
	PostTitle string
	Reply     string
	Reason    string
	ReviewURL string
}

// Notifier delivers reviewer notifications. Failures are returned but never
// block the workflow.
type Notifier interface {
	DraftCreated(ctx context.Context, e Event) error
	PostFailed(ctx context.Context, e Event) error
}

// Nop discards every notification.
type Nop struct{}

func (Nop) DraftCreated(context.Context, Event) error { return nil }
func (Nop) PostFailed(context.Context, Event) error { return nil }

// Multi fans a notification out to several notifiers and joins their errors.
type Multi []Notifier

var _ Notifier = Multi(nil)

func (m Multi) DraftCreated(ctx context.Context, e Event) error {
	return m.each(func(n Notifier) error { return n.DraftCreated(ctx, e) })
}

func (m Multi) PostFailed(ctx context.Context, e Event) error {
	return m.each(func(n Notifier) error { return n.PostFailed(ctx, e) })
}

func (m Multi) each(fn func(Notifier) error) error {
	var errs []error
	for _, n := range m {
		if err := fn(n); err != nil {
			logrus.WithError(err).Warn("notification failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func draftSubject(e Event) string {
	return fmt.Sprintf("[%s] New reply draft awaiting review", e.Source)
}

func failedSubject(e Event) string {
	return fmt.Sprintf("[%s] Posting failed", e.Source)
}

func plainBody(e Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Post: %s\n", e.PostTitle)
	fmt.Fprintf(&b, "URL: %s\n", e.PostURL)
	fmt.Fprintf(&b, "Record: %s\n", e.ID)
	if e.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", e.Reason)
	}
	if e.ReviewURL != "" {
		fmt.Fprintf(&b, "Review: %s\n", e.ReviewURL)
	}
	if e.Reply != "" {
		fmt.Fprintf(&b, "\n%s\n", e.Reply)
	}
	return b.String()
}
