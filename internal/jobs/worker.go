// Package jobs runs rank checks for keyword jobs, either continuously against the
// registry or as a one-off batch.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rossigee/slot-rank-tracker/internal/metrics"
	"github.com/rossigee/slot-rank-tracker/internal/rank"
	"github.com/rossigee/slot-rank-tracker/pkg/types"
)

// Session is an open browser that can render search pages
type Session interface {
	rank.PageFetcher
	Close() error
}

// Launcher opens a browser session
type Launcher func(ctx context.Context) (Session, error)

// Claimer hands out one pending job at a time
type Claimer interface {
	ClaimKeyword(ctx context.Context, slotType string, lease time.Duration) (*types.Keyword, error)
}

// Recorder persists the outcome of a check
type Recorder interface {
	Record(ctx context.Context, job types.Keyword, result types.CheckResult, checkedAt time.Time) error
}

// Config holds worker timing
type Config struct {
	SlotType      string
	BusyInterval  time.Duration
	IdleInterval  time.Duration
	ErrorInterval time.Duration
	BatchPause    time.Duration
	Lease         time.Duration
}

// DefaultConfig returns the polling cadence used in production
func DefaultConfig() Config {
	return Config{
		BusyInterval:  3 * time.Second,
		IdleInterval:  10 * time.Second,
		ErrorInterval: 5 * time.Second,
		BatchPause:    2 * time.Second,
		Lease:         10 * time.Minute,
	}
}

// Status is a snapshot of the worker's current run
type Status struct {
	RunID       string          `json:"run_id"`
	State       types.RunStatus `json:"state"`
	StartedAt   time.Time       `json:"started_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Processed   int             `json:"processed"`
	Found       int             `json:"found"`
	Failed      int             `json:"failed"`
	LastKeyword string          `json:"last_keyword,omitempty"`
}

// Worker resolves ranks for keyword jobs using one browser session at a time
type Worker struct {
	resolver *rank.Resolver
	launch   Launcher
	cfg      Config
	wake     <-chan struct{}
	now      func() time.Time

	mu     sync.RWMutex
	status Status
}

// NewWorker creates a worker
func NewWorker(resolver *rank.Resolver, launch Launcher, cfg Config) *Worker {
	return &Worker{
		resolver: resolver,
		launch:   launch,
		cfg:      cfg,
		now:      time.Now,
		status:   Status{State: types.StatusPending},
	}
}

// SetWake installs a channel that cuts an idle wait short
func (w *Worker) SetWake(wake <-chan struct{}) {
	w.wake = wake
}

// Status returns a snapshot of the current run
func (w *Worker) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

func (w *Worker) begin() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	w.status = Status{
		RunID:     uuid.New().String(),
		State:     types.StatusRunning,
		StartedAt: now,
		UpdatedAt: now,
	}
	return w.status.RunID
}

func (w *Worker) finish(state types.RunStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status.State = state
	w.status.UpdatedAt = w.now()
}

func (w *Worker) count(result types.CheckResult) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status.Processed++
	switch result.Status {
	case types.CheckFound:
		w.status.Found++
	case types.CheckFailed:
		w.status.Failed++
	}
	w.status.LastKeyword = result.Keyword
	w.status.UpdatedAt = w.now()
}

// Run polls for jobs until ctx is cancelled: claim one job, check it, record the
// outcome, pause briefly; with nothing to do, wait longer or until woken. The browser
// session is opened once and closed on every return path.
func (w *Worker) Run(ctx context.Context, claimer Claimer, recorder Recorder) error {
	runID := w.begin()
	log := logrus.WithField("run_id", runID)

	session, err := w.launch(ctx)
	if err != nil {
		w.finish(types.StatusFailed)
		return fmt.Errorf("failed to open browser session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.WithError(err).Warn("Failed to close browser session")
		}
	}()

	log.Info("Rank worker started")

	for {
		wait := w.cfg.IdleInterval
		idle := false

		job, err := claimer.ClaimKeyword(ctx, w.cfg.SlotType, w.cfg.Lease)
		switch {
		case ctx.Err() != nil:
			w.finish(types.StatusCancelled)
			log.Info("Rank worker stopped")
			return nil
		case err != nil:
			log.WithError(err).Error("Failed to claim keyword job")
			wait = w.cfg.ErrorInterval
		case job == nil:
			log.Debug("No pending keyword jobs")
			idle = true
		default:
			w.process(ctx, session, recorder, *job)
			wait = w.cfg.BusyInterval
		}

		if !w.sleep(ctx, wait, idle) {
			w.finish(types.StatusCancelled)
			log.Info("Rank worker stopped")
			return nil
		}
	}
}

func (w *Worker) process(ctx context.Context, session Session, recorder Recorder, job types.Keyword) {
	log := logrus.WithFields(logrus.Fields{"job_id": job.ID, "keyword": job.Keyword})

	result, ok := w.Check(ctx, session, job)
	if !ok {
		// left claimed; the lease keeps it from being picked up again straight away
		log.WithField("link_url", job.LinkURL).Warn("Skipping job without product id")
		return
	}
	if ctx.Err() != nil && result.Status == types.CheckFailed {
		// interrupted mid-check; the lease expires and the job is retried later
		return
	}

	w.count(result)
	if err := recorder.Record(ctx, job, result, w.now()); err != nil {
		log.WithError(err).Error("Failed to record check result")
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration, wakeable bool) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	var wake <-chan struct{}
	if wakeable {
		wake = w.wake
	}

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-wake:
		return true
	}
}

// Check resolves one job's rank. It returns false when the job's link carries no
// product id, in which case nothing was fetched.
func (w *Worker) Check(ctx context.Context, fetcher rank.PageFetcher, job types.Keyword) (types.CheckResult, bool) {
	productID, ok := rank.ExtractProductID(job.LinkURL)
	if !ok {
		return types.CheckResult{}, false
	}

	log := logrus.WithFields(logrus.Fields{
		"job_id":     job.ID,
		"keyword":    job.Keyword,
		"product_id": productID,
	})

	start := time.Now()
	out, err := w.resolver.Resolve(ctx, fetcher, job.Keyword, productID)
	metrics.CheckDuration.Observe(time.Since(start).Seconds())

	result := types.CheckResult{
		ID:                 job.ID,
		Keyword:            job.Keyword,
		ProductID:          productID,
		URL:                job.LinkURL,
		TotalProductsFound: out.TotalSeen,
		PagesChecked:       out.PagesChecked,
	}

	switch {
	case err != nil:
		result.Status = types.CheckFailed
		result.Error = err.Error()
		log.WithError(err).Warn("Rank check failed")
	case out.Found:
		r := out.Rank
		result.Rank = &r
		result.Status = types.CheckFound
		log.WithFields(logrus.Fields{"rank": r, "pages": out.PagesChecked}).Info("Product found")
	default:
		result.Status = types.CheckNotFound
		log.WithFields(logrus.Fields{"seen": out.TotalSeen, "pages": out.PagesChecked}).Info("Product not found")
	}

	metrics.ChecksTotal.WithLabelValues(string(result.Status)).Inc()
	return result, true
}

// FilterValid drops jobs whose link carries no product id and reports how many were dropped
func FilterValid(jobs []types.Keyword) ([]types.Keyword, int) {
	valid := make([]types.Keyword, 0, len(jobs))
	for _, job := range jobs {
		if _, ok := rank.ExtractProductID(job.LinkURL); ok {
			valid = append(valid, job)
		}
	}
	return valid, len(jobs) - len(valid)
}

// RunBatch checks every valid job in order with one browser session. A failed check
// becomes a FAILED result and the batch continues. Results are in input order.
func (w *Worker) RunBatch(ctx context.Context, jobs []types.Keyword) (*types.RunReport, error) {
	runID := w.begin()
	log := logrus.WithField("run_id", runID)

	report := &types.RunReport{
		RunID:     runID,
		Status:    types.StatusRunning,
		StartedAt: w.now(),
		Results:   []types.CheckResult{},
	}

	valid, skipped := FilterValid(jobs)
	if skipped > 0 {
		log.WithField("skipped", skipped).Warn("Skipping jobs without product id")
	}
	if len(valid) == 0 {
		w.finish(types.StatusCompleted)
		report.Status = types.StatusCompleted
		report.FinishedAt = w.now()
		return report, nil
	}

	session, err := w.launch(ctx)
	if err != nil {
		w.finish(types.StatusFailed)
		report.Status = types.StatusFailed
		report.FinishedAt = w.now()
		return report, fmt.Errorf("failed to open browser session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.WithError(err).Warn("Failed to close browser session")
		}
	}()

	report.Status = types.StatusCompleted
	for i, job := range valid {
		if ctx.Err() != nil {
			report.Status = types.StatusCancelled
			break
		}

		log.WithFields(logrus.Fields{
			"index":   i + 1,
			"total":   len(valid),
			"keyword": job.Keyword,
		}).Info("Checking keyword")

		result, _ := w.Check(ctx, session, job)
		w.count(result)
		report.Results = append(report.Results, result)
		report.PagesChecked += result.PagesChecked
		if result.Status == types.CheckFound {
			report.Found++
		}

		if i < len(valid)-1 && !w.sleep(ctx, w.cfg.BatchPause, false) {
			report.Status = types.StatusCancelled
			break
		}
	}

	report.Total = len(report.Results)
	report.FinishedAt = w.now()
	w.finish(report.Status)

	log.WithFields(logrus.Fields{
		"found":  report.Found,
		"total":  report.Total,
		"pages":  report.PagesChecked,
		"status": report.Status,
	}).Info("Batch finished")
	return report, nil
}
