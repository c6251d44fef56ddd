// Package reclaim is the loop failing jobs whose worker has gone.
package reclaim

import (
	"context"
	"log"
	"time"

	jobdb "github.com/whole-tale/gwvolman/pkg/domain/job/db"
	"github.com/whole-tale/gwvolman/pkg/girder"
	"github.com/whole-tale/gwvolman/pkg/loop/recurring"
	"github.com/whole-tale/gwvolman/pkg/tasks"
)

// initial value for task
func Seed() any {
	return nil
}

// Task fails running jobs not updated for staleAfter, and reports them to Girder.
//
// It reports true when some jobs are reclaimed.
func Task(
	dbjob jobdb.Interface,
	staleAfter time.Duration,
	girderOf func(token string) girder.Client,
	logger *log.Logger,
) recurring.Task[any] {
	return func(ctx context.Context, value any) (any, bool, error) {
		reclaimed, err := dbjob.ReclaimStale(ctx, staleAfter)
		if err != nil {
			return value, false, err
		}
		for _, j := range reclaimed {
			logger.Printf("job %s (%s) is reclaimed: %s", j.ID, j.Task, j.Message)
			tasks.JobProgress(girderOf(j.GirderToken), j.GirderJobID, logger).
				Status(ctx, girder.JobError, j.Message)
		}
		return value, len(reclaimed) != 0, nil
	}
}
