package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job run statuses as persisted in job_runs.
const (
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// JobRun is one recorded execution of a background job.
type JobRun struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Detail     string     `json:"detail,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// StartJobRun records the start of a job and returns the run ID.
func (s *Store) StartJobRun(ctx context.Context, name string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_runs (id, name, status) VALUES ($1, $2, $3)`,
		id, name, JobRunning,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("start job run: %w", err)
	}
	return id, nil
}

// FinishJobRun closes a run as completed or failed.
func (s *Store) FinishJobRun(ctx context.Context, id uuid.UUID, detail string, runErr error) error {
	status, errText := JobCompleted, ""
	if runErr != nil {
		status, errText = JobFailed, runErr.Error()
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE job_runs SET status = $1, finished_at = now(), detail = $2, error = $3
		WHERE id = $4`,
		status, detail, errText, id,
	)
	if err != nil {
		return fmt.Errorf("finish job run: %w", err)
	}
	return nil
}

// RecentJobRuns lists the latest runs across all jobs, newest first.
func (s *Store) RecentJobRuns(ctx context.Context, limit int) ([]JobRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, status, started_at, finished_at, detail, error
		FROM job_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query job runs: %w", err)
	}
	defer rows.Close()

	var out []JobRun
	for rows.Next() {
		var jr JobRun
		if err := rows.Scan(&jr.ID, &jr.Name, &jr.Status, &jr.StartedAt, &jr.FinishedAt, &jr.Detail, &jr.Error); err != nil {
			return nil, fmt.Errorf("scan job run: %w", err)
		}
		out = append(out, jr)
	}
	return out, rows.Err()
}
