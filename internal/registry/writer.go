// Package registry persists rank-check outcomes and talks to the registry HTTP API.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rossigee/slot-rank-tracker/internal/metrics"
	"github.com/rossigee/slot-rank-tracker/internal/storage"
	"github.com/rossigee/slot-rank-tracker/pkg/types"
)

// Defaults for failed checks
const (
	DefaultRetryAfter  = 30 * time.Minute
	DefaultMaxAttempts = 3
)

// Store is the persistence the writer needs
type Store interface {
	ApplyRank(ctx context.Context, keyword, linkURL string, rank int, checkedAt time.Time) ([]storage.RankedUnit, error)
	AppendRankHistory(ctx context.Context, entry *types.RankHistory) error
	DeleteKeyword(ctx context.Context, id int64) error
	FailKeyword(ctx context.Context, id int64, checkedAt, retryAt time.Time) (int, error)
}

// Writer records check outcomes against the keyword registry
type Writer struct {
	store       Store
	retryAfter  time.Duration
	maxAttempts int
}

// NewWriter creates a writer; zero values select the defaults
func NewWriter(store Store, retryAfter time.Duration, maxAttempts int) *Writer {
	if retryAfter <= 0 {
		retryAfter = DefaultRetryAfter
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Writer{
		store:       store,
		retryAfter:  retryAfter,
		maxAttempts: maxAttempts,
	}
}

// Record dispatches a check result to Apply or Fail
func (w *Writer) Record(ctx context.Context, job types.Keyword, result types.CheckResult, checkedAt time.Time) error {
	if result.Status == types.CheckFound && result.Rank != nil && *result.Rank > 0 {
		return w.Apply(ctx, job, *result.Rank, checkedAt)
	}
	_, err := w.Fail(ctx, job, checkedAt)
	return err
}

// Apply writes a found rank: current rank on every slot-status row for the job's keyword
// and link, the baseline where still unset, one history row per updated row, and finally
// removes the job. The steps are independent writes. Once the rank update succeeds, later
// failures are logged and counted but nothing is rolled back; the first such error is
// returned after all steps ran.
func (w *Writer) Apply(ctx context.Context, job types.Keyword, rank int, checkedAt time.Time) error {
	log := logrus.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"keyword": job.Keyword,
		"rank":    rank,
	})

	units, err := w.store.ApplyRank(ctx, job.Keyword, job.LinkURL, rank, checkedAt)
	if err != nil {
		metrics.RegistryWrites.WithLabelValues("rank", "error").Inc()
		return fmt.Errorf("failed to update rank for keyword %d: %w", job.ID, err)
	}
	metrics.RegistryWrites.WithLabelValues("rank", "ok").Inc()

	if len(units) == 0 {
		log.Warn("No slot-status rows match keyword and link, consuming job without history")
	}

	var firstErr error
	for _, unit := range units {
		current := rank
		entry := &types.RankHistory{
			SlotStatusID: unit.ID,
			Keyword:      job.Keyword,
			LinkURL:      job.LinkURL,
			CurrentRank:  &current,
			StartRank:    unit.StartRank,
			CheckDate:    checkedAt,
		}
		if err := w.store.AppendRankHistory(ctx, entry); err != nil {
			metrics.RegistryWrites.WithLabelValues("history", "error").Inc()
			metrics.RegistryWriteFailures.Inc()
			log.WithError(err).WithField("slot_status_id", unit.ID).Error("Failed to append rank history")
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to append history for slot status %d: %w", unit.ID, err)
			}
			continue
		}
		metrics.RegistryWrites.WithLabelValues("history", "ok").Inc()
	}

	if err := w.consume(ctx, job, "found"); err != nil && firstErr == nil {
		firstErr = err
	}

	if firstErr == nil {
		log.WithField("slot_rows", len(units)).Info("Recorded rank")
	}
	return firstErr
}

// Fail records a check that did not produce a rank. The job is held back for the retry
// interval, and consumed once it has failed maxAttempts times. Reports whether the job
// was consumed.
func (w *Writer) Fail(ctx context.Context, job types.Keyword, checkedAt time.Time) (bool, error) {
	attempts, err := w.store.FailKeyword(ctx, job.ID, checkedAt, checkedAt.Add(w.retryAfter))
	if err != nil {
		metrics.RegistryWrites.WithLabelValues("fail", "error").Inc()
		return false, fmt.Errorf("failed to record failed check: %w", err)
	}
	metrics.RegistryWrites.WithLabelValues("fail", "ok").Inc()

	log := logrus.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"keyword":  job.Keyword,
		"attempts": attempts,
	})

	if attempts < w.maxAttempts {
		log.WithField("retry_after", w.retryAfter).Info("Rank not resolved, job will be retried")
		return false, nil
	}

	log.Warn("Rank not resolved after maximum attempts, consuming job")
	if err := w.consume(ctx, job, "exhausted"); err != nil {
		return false, err
	}
	return true, nil
}

func (w *Writer) consume(ctx context.Context, job types.Keyword, reason string) error {
	err := w.store.DeleteKeyword(ctx, job.ID)
	switch {
	case err == nil:
		metrics.JobsConsumed.WithLabelValues(reason).Inc()
		metrics.RegistryWrites.WithLabelValues("delete", "ok").Inc()
		return nil
	case errors.Is(err, storage.ErrNotFound):
		logrus.WithField("job_id", job.ID).Warn("Job already removed from registry")
		return nil
	default:
		metrics.RegistryWrites.WithLabelValues("delete", "error").Inc()
		metrics.RegistryWriteFailures.Inc()
		logrus.WithError(err).WithField("job_id", job.ID).Error("Failed to remove consumed job")
		return fmt.Errorf("failed to remove job %d: %w", job.ID, err)
	}
}
