// Package scheduler runs anderson's periodic jobs on cron schedules, with
// overlap protection and persisted run records.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/MikeSquared-Agency/anderson/internal/events"
	"github.com/MikeSquared-Agency/anderson/internal/store"
)

// Job is one periodic task. Run returns a human-readable detail line for
// the run record.
type Job struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) (string, error)
}

// Scheduler wraps cron with per-job overlap guards: a tick that lands while
// the previous run is still going is skipped, not queued.
type Scheduler struct {
	store   *store.Store
	events  *events.Client
	logger  *slog.Logger
	cron    *cron.Cron
	jobs    []Job
	running map[string]*atomic.Bool
}

func New(s *store.Store, ev *events.Client, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:   s,
		events:  ev,
		logger:  logger,
		cron:    cron.New(),
		running: map[string]*atomic.Bool{},
	}
}

// Add registers a job. Must be called before Start.
func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, job)
	s.running[job.Name] = &atomic.Bool{}
}

// Start schedules every registered job and begins ticking.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, job := range s.jobs {
		job := job
		spec := fmt.Sprintf("@every %s", job.Every)
		if _, err := s.cron.AddFunc(spec, func() { s.execute(ctx, job) }); err != nil {
			return fmt.Errorf("schedule %s: %w", job.Name, err)
		}
		s.logger.Info("job scheduled", "job", job.Name, "every", job.Every)
	}
	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunNow triggers one job by name, honoring the overlap guard.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	for _, job := range s.jobs {
		if job.Name == name {
			s.execute(ctx, job)
			return nil
		}
	}
	return fmt.Errorf("unknown job: %s", name)
}

func (s *Scheduler) execute(ctx context.Context, job Job) {
	guard := s.running[job.Name]
	if !guard.CompareAndSwap(false, true) {
		s.logger.Warn("job still running, skipping tick", "job", job.Name)
		return
	}
	defer guard.Store(false)

	started := time.Now()
	runID, err := s.store.StartJobRun(ctx, job.Name)
	if err != nil {
		s.logger.Error("cannot record job start", "job", job.Name, "error", err)
	}

	detail, runErr := job.Run(ctx)

	if runID != uuid.Nil {
		if err := s.store.FinishJobRun(ctx, runID, detail, runErr); err != nil {
			s.logger.Error("cannot record job finish", "job", job.Name, "error", err)
		}
	}

	duration := time.Since(started).Round(time.Millisecond)
	if runErr != nil {
		s.logger.Error("job failed", "job", job.Name, "duration", duration, "error", runErr)
	} else {
		s.logger.Info("job completed", "job", job.Name, "duration", duration, "detail", detail)
	}
	s.announce(job.Name, runID.String(), detail, duration, runErr)
}

func (s *Scheduler) announce(name, runID, detail string, duration time.Duration, runErr error) {
	if s.events == nil {
		return
	}
	subject := events.SubjectJobCompleted
	result := events.JobResult{
		Job:      name,
		RunID:    runID,
		Detail:   detail,
		Duration: duration.String(),
	}
	if runErr != nil {
		subject = events.SubjectJobFailed
		result.Error = runErr.Error()
	}
	if err := s.events.Publish(subject, result); err != nil {
		s.logger.Warn("publish failed", "subject", subject, "error", err)
	}
}
