package tasks

import (
	"context"
	"log"

	"github.com/whole-tale/gwvolman/pkg/girder"
)

// Progress reports progress of a task to its Girder job.
type Progress interface {
	// Update tells the job that current steps in total are done.
	Update(ctx context.Context, current float64, total float64, message string)

	// Status changes the status of the job.
	Status(ctx context.Context, status girder.JobStatus, message string)
}

type jobProgress struct {
	gc     girder.Client
	jobId  string
	logger *log.Logger
}

// JobProgress reports progress to the Girder job jobId.
//
// When jobId is empty, reports are discarded. Failures of reporting are logged.
func JobProgress(gc girder.Client, jobId string, logger *log.Logger) Progress {
	return &jobProgress{gc: gc, jobId: jobId, logger: logger}
}

func (p *jobProgress) Update(ctx context.Context, current float64, total float64, message string) {
	p.send(ctx, girder.JobUpdate{
		ProgressCurrent: current,
		ProgressTotal:   total,
		ProgressMessage: message,
		Notify:          true,
	})
}

func (p *jobProgress) Status(ctx context.Context, status girder.JobStatus, message string) {
	p.send(ctx, girder.JobUpdate{
		Status:          status,
		ProgressMessage: message,
		Notify:          true,
	})
}

func (p *jobProgress) send(ctx context.Context, u girder.JobUpdate) {
	if p.jobId == "" {
		return
	}
	if err := p.gc.UpdateJob(ctx, p.jobId, u); err != nil && p.logger != nil {
		p.logger.Printf("cannot update job %s: %s", p.jobId, err)
	}
}

// NoProgress discards reports.
func NoProgress() Progress {
	return noProgress{}
}

type noProgress struct{}

func (noProgress) Update(context.Context, float64, float64, string) {}
func (noProgress) Status(context.Context, girder.JobStatus, string) {}
