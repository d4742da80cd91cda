// Package scheduler runs periodic jobs such as backups next to the workers.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is a scheduled task.
type Job func(ctx context.Context) error

// Service wraps a cron runner.
type Service struct {
	cron *cron.Cron
	ctx  context.Context
	log  *logrus.Entry
}

// New creates a scheduler whose jobs receive ctx.
func New(ctx context.Context, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{cron: cron.New(), ctx: ctx, log: log}
}

// Add registers job under a standard five-field cron expression.
func (s *Service) Add(name, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		if s.ctx.Err() != nil {
			return
		}
		s.log.WithField("job", name).Info("starting scheduled job")
		if err := job(s.ctx); err != nil {
			s.log.WithField("job", name).WithError(err).Error("scheduled job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	return nil
}

// Len returns the number of registered jobs.
func (s *Service) Len() int {
	return len(s.cron.Entries())
}

// Start runs the scheduler in the background.
func (s *Service) Start() {
	s.cron.Start()
	s.log.Infof("Scheduler started with %d job(s)", s.Len())
}

// Stop stops scheduling and waits for running jobs to finish.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("Scheduler stopped")
}
