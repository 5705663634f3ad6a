// Package cron runs periodic maintenance jobs, such as pruning idle agent
// sessions, on 5-field cron schedules.
package cron

import (
	"context"
	"time"
)

// Job defines a periodic background task.
type Job interface {
	// Name returns a unique identifier for this job.
	Name() string

	// Schedule returns a 5-field cron expression (e.g., "*/5 * * * *").
	Schedule() string

	// Run executes the job. Implementations should stop when ctx is done.
	Run(ctx context.Context) error
}

// JobStatus is the last known outcome of a job.
type JobStatus struct {
	Name     string        `json:"name"`
	Schedule string        `json:"schedule"`
	Runs     int           `json:"runs"`
	Skipped  int           `json:"skipped"`
	LastRun  time.Time     `json:"last_run,omitzero"`
	Duration time.Duration `json:"duration"`
	LastErr  string        `json:"last_error,omitempty"`
}
