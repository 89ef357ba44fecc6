// Package scheduler periodically re-queues rank checks for every active allocated unit.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultSpec runs the recheck daily at 09:00
const DefaultSpec = "0 9 * * *"

// Store is the registry the scheduler fills
type Store interface {
	ExpireDueSlots(ctx context.Context) (int64, error)
	EnqueueRechecks(ctx context.Context) (int64, error)
}

// Notifier announces newly queued keyword jobs
type Notifier interface {
	Notify(ctx context.Context) error
}

// Scheduler wraps robfig/cron and owns the recheck job
type Scheduler struct {
	cron     *cron.Cron
	store    Store
	notifier Notifier
	spec     string
}

// New validates spec (standard five-field cron or a descriptor such as "@every 6h").
// notifier may be nil.
func New(store Store, notifier Notifier, spec string) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid recheck schedule %q: %w", spec, err)
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLogger(cron.PrintfLogger(logrus.StandardLogger()))),
		store:    store,
		notifier: notifier,
		spec:     spec,
	}, nil
}

// Start registers the recheck job and starts the cron loop
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			logrus.WithError(err).Error("Scheduled recheck failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule recheck: %w", err)
	}

	s.cron.Start()
	logrus.WithField("spec", s.spec).Info("Recheck scheduler started")
	return nil
}

// Stop halts the cron loop and waits for a running recheck to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logrus.Info("Recheck scheduler stopped")
}

// RunOnce expires elapsed grants, then queues a job for every (keyword, link) that
// still has active units and no pending job. It returns the number of jobs queued.
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	if _, err := s.store.ExpireDueSlots(ctx); err != nil {
		return 0, fmt.Errorf("failed to expire slots: %w", err)
	}

	queued, err := s.store.EnqueueRechecks(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to queue rechecks: %w", err)
	}

	logrus.WithField("queued", queued).Info("Queued rank rechecks")
	if queued > 0 && s.notifier != nil {
		if err := s.notifier.Notify(ctx); err != nil {
			logrus.WithError(err).Warn("Failed to notify rank workers")
		}
	}
	return queued, nil
}
