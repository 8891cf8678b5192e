// Package cron runs the periodic background work: cache maintenance,
// knowledge refresh and conversation cleanup.
package cron

import "context"

// Job defines a periodic background task.
type Job interface {
	// Name returns a unique identifier for this job (used for logging and dedup).
	Name() string

	// Schedule returns a 5-field cron expression (e.g., "*/5 * * * *") or a
	// descriptor such as "@every 2h".
	Schedule() string

	// Run executes the job. Implementations should check ctx.Done() for
	// graceful cancellation.
	Run(ctx context.Context) error
}

// StartupJob is implemented by jobs that also run once as soon as the
// scheduler starts.
type StartupJob interface {
	Job
	RunOnStart() bool
}
