package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/whole-tale/gwvolman/cmd/gwvolman/hook"
	"github.com/whole-tale/gwvolman/cmd/gwvolman/tasks/jobs"
	"github.com/whole-tale/gwvolman/cmd/gwvolman/tasks/reclaim"
	"github.com/whole-tale/gwvolman/pkg/domain/job"
	jobdb "github.com/whole-tale/gwvolman/pkg/domain/job/db"
	"github.com/whole-tale/gwvolman/pkg/girder"
	"github.com/whole-tale/gwvolman/pkg/loop"
	"github.com/whole-tale/gwvolman/pkg/loop/recurring"
	"github.com/whole-tale/gwvolman/pkg/tasks"
)

type LoopType string

const (
	// Jobs loop handles queued jobs.
	Jobs LoopType = "jobs"

	// Reclaim loop fails jobs whose worker has gone.
	Reclaim LoopType = "reclaim"
)

func (l LoopType) String() string {
	return string(l)
}

func AsLoopType(s string) (LoopType, error) {
	switch lt := LoopType(s); lt {
	case Jobs, Reclaim:
		return lt, nil
	}
	return "", fmt.Errorf("unknown loop type: %q (should be one of %s, %s)", s, Jobs, Reclaim)
}

type LoggerOptions func(*log.Logger) *log.Logger

func byLogger(l *log.Logger, opt ...LoggerOptions) *log.Logger {
	for _, o := range opt {
		l = o(l)
	}
	return l
}

func Copied() LoggerOptions {
	return func(l *log.Logger) *log.Logger {
		return log.New(l.Writer(), l.Prefix(), l.Flags())
	}
}

func WithPrefix(pre string) LoggerOptions {
	return func(l *log.Logger) *log.Logger {
		l.SetPrefix(pre)
		return l
	}
}

// monitor logs the start and the end of each turn of task.
func monitor[T any](logger *log.Logger, task loop.Task[T]) loop.Task[T] {
	var counter uint64
	return func(ctx context.Context, t T) (ret T, next loop.Next) {
		counter += 1
		started := time.Now()
		logger.Printf("turn start: #0x%X", counter)
		defer func() {
			logger.Printf("turn end: #0x%X (takes %s): %s", counter, time.Since(started), next)
		}()
		return task(ctx, t)
	}
}

// LoopManifest determines how a loop behaves.
type LoopManifest struct {
	Type   LoopType
	Policy recurring.Policy
	Hooks  hook.Hook[job.Job]
}

// Worker is what loops work with.
type Worker struct {
	Name   string
	Env    *tasks.Env
	Jobs   jobdb.Interface
	Girder func(token string) girder.Client
}

func StartLoop(ctx context.Context, logger *log.Logger, w Worker, manifest LoopManifest) error {
	switch manifest.Type {
	case Jobs:
		return StartJobsLoop(ctx, logger, w, manifest)
	case Reclaim:
		return StartReclaimLoop(ctx, logger, w, manifest)
	}
	return fmt.Errorf("unknown loop type: %s", manifest.Type)
}

func StartJobsLoop(ctx context.Context, logger *log.Logger, w Worker, manifest LoopManifest) error {
	l := byLogger(logger, Copied(), WithPrefix("[jobs loop] "))
	_, err := loop.Start(
		ctx, jobs.Seed(),
		monitor(
			l,
			jobs.Task(w.Jobs, jobs.Config{
				Worker:       w.Name,
				Tasks:        tasks.Names(),
				Env:          w.Env,
				Girder:       w.Girder,
				Hook:         manifest.Hooks,
				PollInterval: w.Env.Config.Worker().CancelPollInterval(),
				Logger:       l,
			}).Applied(manifest.Policy),
		),
	)
	return err
}

func StartReclaimLoop(ctx context.Context, logger *log.Logger, w Worker, manifest LoopManifest) error {
	l := byLogger(logger, Copied(), WithPrefix("[reclaim loop] "))
	_, err := loop.Start(
		ctx, reclaim.Seed(),
		monitor(
			l,
			reclaim.Task(
				w.Jobs, w.Env.Config.Worker().StaleAfter(), w.Girder, l,
			).Applied(manifest.Policy),
		),
		loop.WithTimeout(30*time.Second),
	)
	return err
}
