package db

import (
	"context"
	"time"

	"github.com/whole-tale/gwvolman/pkg/domain/job"
)

type Interface interface {
	// Enqueue registers a new queued job.
	Enqueue(ctx context.Context, spec job.Spec) (job.Job, error)

	// Get returns the job. When it is not found, an error wrapping job.ErrMissing is returned.
	Get(ctx context.Context, id string) (job.Job, error)

	// Find returns jobs matching the query, oldest first.
	Find(ctx context.Context, query job.Query) ([]job.Job, error)

	// Claim moves the oldest queued job of the tasks to running, on behalf of worker.
	//
	// When there are no such jobs, it returns (nil, nil).
	Claim(ctx context.Context, tasks []string, worker string) (*job.Job, error)

	// Finish ends a running job with the outcome, and returns the job as finished.
	//
	// When the job is not running, an error wrapping job.ErrNotRunning is returned.
	Finish(ctx context.Context, id string, outcome job.Outcome) (job.Job, error)

	// RequestCancel asks to stop the job.
	//
	// A queued job is cancelled at once. A running job is flagged, and its
	// worker stops it. A finished job causes an error wrapping job.ErrFinished.
	RequestCancel(ctx context.Context, id string) (job.Job, error)

	// IsCancelRequested tells whether cancellation of the job is requested.
	IsCancelRequested(ctx context.Context, id string) (bool, error)

	// Touch updates the timestamp of a running job, to tell that its worker is alive.
	Touch(ctx context.Context, id string) error

	// ReclaimStale fails running jobs not updated for olderThan, and returns them.
	ReclaimStale(ctx context.Context, olderThan time.Duration) ([]job.Job, error)
}
