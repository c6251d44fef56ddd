// Package jobs is the loop handling queued jobs.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/whole-tale/gwvolman/cmd/gwvolman/hook"
	"github.com/whole-tale/gwvolman/pkg/domain/job"
	jobdb "github.com/whole-tale/gwvolman/pkg/domain/job/db"
	xe "github.com/whole-tale/gwvolman/pkg/errors"
	"github.com/whole-tale/gwvolman/pkg/girder"
	"github.com/whole-tale/gwvolman/pkg/loop/recurring"
	"github.com/whole-tale/gwvolman/pkg/tasks"
)

// ErrCancelRequested is the cause of the handler's context when the job is cancelled.
var ErrCancelRequested = errors.New("cancel is requested")

// finishTimeout bounds recording the outcome after the loop context is done.
const finishTimeout = 30 * time.Second

type Config struct {
	// Worker is the name recorded on claimed jobs.
	Worker string

	// Tasks are names of tasks this loop handles.
	Tasks []string

	Env *tasks.Env

	// Girder returns a client acting with the token of the job.
	Girder func(token string) girder.Client

	// Lookup finds the task of a job. When nil, tasks.Lookup is used.
	Lookup func(name string) (tasks.Task, bool)

	// Hook is called before handling and after finishing a job.
	Hook hook.Hook[job.Job]

	// PollInterval is the interval to check cancel requests of the running job.
	PollInterval time.Duration

	Logger *log.Logger
}

// initial value for task
func Seed() any {
	return nil
}

// Task claims a queued job and handles it.
//
// It reports true when a job is claimed. Failures of the job are recorded
// on the job. Only failures of the job queue are returned.
func Task(dbjob jobdb.Interface, conf Config) recurring.Task[any] {
	lookup := conf.Lookup
	if lookup == nil {
		lookup = tasks.Lookup
	}
	var h hook.Hook[job.Job] = hook.None[job.Job]{}
	if conf.Hook != nil {
		h = conf.Hook
	}
	logger := conf.Logger
	if logger == nil {
		logger = log.Default()
	}

	return func(ctx context.Context, value any) (any, bool, error) {
		claimed, err := dbjob.Claim(ctx, conf.Tasks, conf.Worker)
		if err != nil {
			return value, false, err
		}
		if claimed == nil {
			return value, false, nil
		}
		j := *claimed
		jlogger := log.New(logger.Writer(), fmt.Sprintf("%s[%s %s] ", logger.Prefix(), j.Task, j.ID), logger.Flags())

		gc := conf.Girder(j.GirderToken)
		progress := tasks.JobProgress(gc, j.GirderJobID, jlogger)

		outcome := func() job.Outcome {
			if err := h.Before(ctx, j); err != nil {
				jlogger.Printf("before-hook failed: %s", err)
				return job.FailedWith(xe.Message(err))
			}

			t, ok := lookup(j.Task)
			if !ok {
				return job.FailedWith(fmt.Sprintf("unknown task: %s", j.Task))
			}

			progress.Status(ctx, girder.JobRunning, "")
			return run(ctx, dbjob, conf, t, j, tasks.Call{Girder: gc, Progress: progress, Logger: jlogger})
		}()

		fctx := ctx
		if ctx.Err() != nil {
			c, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
			defer cancel()
			fctx = c
		}

		switch outcome.Status {
		case job.Done:
			progress.Status(fctx, girder.JobSuccess, "")
		case job.Cancelled:
			progress.Status(fctx, girder.JobCanceled, outcome.Message)
		default:
			progress.Status(fctx, girder.JobError, outcome.Message)
		}

		finished, err := dbjob.Finish(fctx, j.ID, outcome)
		if err != nil {
			return value, true, err
		}
		jlogger.Printf("finished as %s", finished.Status)

		if spec, ok := finished.FollowUp(); ok {
			next, err := dbjob.Enqueue(fctx, spec)
			if err != nil {
				return value, true, err
			}
			jlogger.Printf("follow-up %s is queued as %s", next.Task, next.ID)
		}

		if err := h.After(fctx, finished); err != nil {
			jlogger.Printf("after-hook failed: %s", err)
		}
		return value, true, nil
	}
}

// run calls the handler of the job, stopping it when cancel is requested.
func run(
	ctx context.Context, dbjob jobdb.Interface, conf Config,
	t tasks.Task, j job.Job, call tasks.Call,
) job.Outcome {
	hctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	stopped := make(chan struct{})
	watching := make(chan struct{})
	go func() {
		defer close(watching)
		watch(hctx, dbjob, conf.PollInterval, j.ID, call.Logger, stopped, cancel)
	}()

	result, err := t.Handler(hctx, conf.Env, call, j.Args)
	close(stopped)
	<-watching

	if err == nil {
		buf, merr := json.Marshal(result)
		if merr != nil {
			return job.FailedWith(fmt.Sprintf("result is not serializable: %s", merr))
		}
		return job.Succeeded(buf)
	}

	if errors.Is(context.Cause(hctx), ErrCancelRequested) {
		call.Logger.Printf("cancelled: %s", err)
		return job.CancelledWith("cancelled by request")
	}
	if ctx.Err() != nil {
		call.Logger.Printf("interrupted: %s", err)
		return job.FailedWith(fmt.Sprintf("worker is stopped: %s", context.Cause(ctx)))
	}
	call.Logger.Printf("failed: %s", err)
	return job.FailedWith(tasks.MessageOf(err))
}

// watch keeps the job alive and cancels the handler when cancel is requested.
func watch(
	ctx context.Context, dbjob jobdb.Interface, interval time.Duration,
	id string, logger *log.Logger, stopped <-chan struct{},
	cancel context.CancelCauseFunc,
) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopped:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := dbjob.Touch(ctx, id); err != nil {
			logger.Printf("cannot touch job: %s", err)
		}
		requested, err := dbjob.IsCancelRequested(ctx, id)
		if err != nil {
			logger.Printf("cannot check cancel request: %s", err)
			continue
		}
		if requested {
			cancel(ErrCancelRequested)
			return
		}
	}
}
