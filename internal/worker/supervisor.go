package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Task is a worker loop. Returning nil means a clean stop.
type Task func(ctx context.Context) error

// Supervisor restarts a crashed task with exponential backoff.
type Supervisor struct {
	Name string
	// MaxRestarts bounds restarts; 0 means unbounded.
	MaxRestarts int
	// NewBackOff overrides the restart policy.
	NewBackOff func() backoff.BackOff
	Log        *logrus.Entry

	sleep func(ctx context.Context, d time.Duration) error
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 5 * time.Minute
	b.MaxElapsedTime = 0
	return b
}

// Run executes task until it returns nil, ctx is cancelled, or the restart
// budget is exhausted. A panic counts as a crash.
func (s *Supervisor) Run(ctx context.Context, task Task) error {
	log := s.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("worker", s.Name)

	newBackOff := s.NewBackOff
	if newBackOff == nil {
		newBackOff = defaultBackOff
	}
	b := newBackOff()
	sleep := s.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	restarts := 0
	for {
		err := runSafe(ctx, task)
		if err == nil || ctx.Err() != nil {
			return nil
		}

		if s.MaxRestarts > 0 && restarts >= s.MaxRestarts {
			return fmt.Errorf("%s: giving up after %d restarts: %w", s.Name, restarts, err)
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("%s: backoff exhausted: %w", s.Name, err)
		}
		restarts++

		log.WithError(err).WithFields(logrus.Fields{
			"restart": restarts,
			"wait":    wait.Round(time.Millisecond),
		}).Warn("worker crashed, restarting")

		if sleep(ctx, wait) != nil {
			return nil
		}
	}
}

func runSafe(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return task(ctx)
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
