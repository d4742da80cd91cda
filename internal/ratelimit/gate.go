package ratelimit

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultSlice is how often a wait re-checks the stop signal.
const DefaultSlice = 5 * time.Second

// ErrStopped is returned when a wait is cut short by the stop signal.
var ErrStopped = errors.New("stop requested")

// StopFunc reports whether the worker should stop.
type StopFunc func() bool

// Gate spaces out posts according to a live envelope.
type Gate struct {
	envelope func() Envelope
	slice    time.Duration
	randN    func(n int64) int64
	sleep    func(ctx context.Context, d time.Duration) error
	log      *logrus.Entry
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithSlice sets the stop-check interval.
func WithSlice(d time.Duration) GateOption {
	return func(g *Gate) {
		if d > 0 {
			g.slice = d
		}
	}
}

// WithRand replaces the random source.
func WithRand(randN func(n int64) int64) GateOption {
	return func(g *Gate) { g.randN = randN }
}

// WithSleeper replaces the clock used to wait.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) GateOption {
	return func(g *Gate) { g.sleep = sleep }
}

// WithLogger sets the gate's logger.
func WithLogger(l *logrus.Entry) GateOption {
	return func(g *Gate) { g.log = l }
}

// NewGate returns a gate reading its envelope from envelope on every wait, so
// settings changes apply without a restart.
func NewGate(envelope func() Envelope, opts ...GateOption) *Gate {
	g := &Gate{
		envelope: envelope,
		slice:    DefaultSlice,
		randN:    rand.Int63n,
		sleep:    sleepCtx,
		log:      logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// NextDelay draws the delay before the next post.
func (g *Gate) NextDelay() time.Duration {
	e := g.envelope()
	if !e.Valid() {
		g.log.WithFields(logrus.Fields{
			"cph_min": e.CommentsPerHourMin,
			"cph_max": e.CommentsPerHourMax,
		}).Warn("invalid comments-per-hour settings, using fallback window")
	}
	return ComputeWindow(e).Sample(g.randN)
}

// Wait blocks for a freshly drawn delay. It returns the delay, ErrStopped if
// the stop signal fired, or the context error.
func (g *Gate) Wait(ctx context.Context, stop StopFunc) (time.Duration, error) {
	d := g.NextDelay()
	g.log.WithField("delay", d.Round(time.Second)).Debug("waiting before next post")
	return d, g.Sleep(ctx, d, stop)
}

// Rest waits between scan passes.
func (g *Gate) Rest(ctx context.Context, minutes int, stop StopFunc) error {
	if minutes <= 0 {
		minutes = 1
	}
	return g.Sleep(ctx, time.Duration(minutes)*time.Minute, stop)
}

// Sleep waits for d in slices, checking ctx and stop after each slice.
func (g *Gate) Sleep(ctx context.Context, d time.Duration, stop StopFunc) error {
	for remaining := d; remaining > 0; {
		step := g.slice
		if remaining < step {
			step = remaining
		}
		if err := g.sleep(ctx, step); err != nil {
			return err
		}
		remaining -= step
		if stop != nil && stop() {
			return ErrStopped
		}
	}
	return ctx.Err()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
