package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/cafebot/internal/notify"
	"github.com/TobiSchelling/cafebot/internal/posting"
	"github.com/TobiSchelling/cafebot/internal/ratelimit"
	"github.com/TobiSchelling/cafebot/internal/workflow"
)

// DefaultPollInterval is how long the poster idles when nothing is approved.
const DefaultPollInterval = 30 * time.Second

// Poster publishes approved records, oldest first, paced by the rate gate.
type Poster struct {
	wc       *Context
	action   posting.Action
	gate     *ratelimit.Gate
	notifier notify.Notifier
	poll     time.Duration
}

// NewPoster creates a poster. notifier may be nil.
func NewPoster(wc *Context, action posting.Action, gate *ratelimit.Gate, notifier notify.Notifier) *Poster {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Poster{wc: wc, action: action, gate: gate, notifier: notifier, poll: DefaultPollInterval}
}

// SetPollInterval changes the idle interval.
func (p *Poster) SetPollInterval(d time.Duration) {
	if d > 0 {
		p.poll = d
	}
}

// PostOnce posts the oldest approved record, if any. It reports whether a
// posting attempt was made. Once started, an attempt runs to completion and
// its outcome is stored even if ctx is cancelled meanwhile.
func (p *Poster) PostOnce(ctx context.Context) (bool, error) {
	log := p.wc.logger().WithField("worker", "poster")

	approved, err := p.wc.Store.FindByStatus(workflow.StatusApproved)
	if err != nil {
		return false, fmt.Errorf("listing approved records: %w", err)
	}
	if len(approved) == 0 {
		return false, nil
	}
	rec := approved[0]
	log = log.WithFields(logrus.Fields{"id": rec.ID, "url": rec.PostURL})

	inflight := context.WithoutCancel(ctx)
	res, err := p.action.Post(inflight, rec.PostURL, rec.Reply)
	if err != nil {
		res = posting.Result{Outcome: posting.Failed, Reason: err.Error()}
	}

	switch res.Outcome {
	case posting.Posted:
		_, err = p.wc.Store.MarkPosted(rec.ID, false)
	case posting.AlreadyPresent:
		log.Info("reply already present on the page")
		_, err = p.wc.Store.MarkPosted(rec.ID, true)
	default:
		log.WithField("reason", res.Reason).Warn("posting failed")
		_, err = p.wc.Store.MarkFailed(rec.ID, res.Reason)
		if err == nil {
			p.notifyFailure(inflight, log, rec, res.Reason)
		}
	}
	if err != nil {
		var invalid *workflow.InvalidTransitionError
		if errors.As(err, &invalid) {
			log.WithError(err).Warn("record changed while posting")
			return true, nil
		}
		return true, fmt.Errorf("recording posting outcome for %s: %w", rec.ID, err)
	}
	return true, nil
}

func (p *Poster) notifyFailure(ctx context.Context, log *logrus.Entry, rec workflow.Record, reason string) {
	err := p.notifier.PostFailed(ctx, notify.Event{
		Source:    p.wc.Source,
		ID:        rec.ID,
		PostURL:   rec.PostURL,
		PostTitle: rec.PostTitle,
		Reply:     rec.Reply,
		Reason:    reason,
	})
	if err != nil {
		log.WithError(err).Warn("failure notification failed")
	}
}

// Run posts until stopped or cancelled. A posting session that is not ready
// is a start-up failure and is returned so the supervisor can restart.
func (p *Poster) Run(ctx context.Context) error {
	log := p.wc.logger().WithField("worker", "poster")

	if err := p.action.Ready(ctx); err != nil {
		return fmt.Errorf("posting session: %w", err)
	}
	log.Info("poster started")

	for {
		if ctx.Err() != nil || p.wc.stopped() {
			log.Info("poster stopped")
			return nil
		}

		posted, err := p.PostOnce(ctx)
		if err != nil {
			log.WithError(err).Error("posting pass failed")
		}

		if posted {
			_, err = p.gate.Wait(ctx, p.wc.Stop)
		} else {
			err = p.gate.Sleep(ctx, p.poll, p.wc.Stop)
		}
		if errors.Is(err, ratelimit.ErrStopped) || ctx.Err() != nil {
			log.Info("poster stopped")
			return nil
		}
		if err != nil {
			return err
		}
	}
}
