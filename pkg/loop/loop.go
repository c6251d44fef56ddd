package loop

import (
	"context"
	"fmt"
	"time"
)

// Next tells Start what to do after a task returns.
//
// The zero value means "continue immediately".
type Next struct {
	err      error
	quit     bool
	interval time.Duration
}

func (n Next) String() string {
	if n.err != nil {
		return fmt.Sprintf("[break] with error: %v", n.err)
	}
	if n.quit {
		return "[break] without error"
	}
	return fmt.Sprintf("[continue] interval: %s", n.interval)
}

// Continue runs the task again after interval.
func Continue(interval time.Duration) Next {
	return Next{interval: interval}
}

// Break stops the loop. err may be nil.
func Break(err error) Next {
	return Next{quit: true, err: err}
}

// Task is one turn of a loop.
//
// It receives the value returned by the previous turn (or the initial value),
// and returns the value for the next turn with what to do next.
type Task[T any] func(context.Context, T) (T, Next)

// Start runs task repeatedly until it breaks or ctx is done.
//
// Counting up to 10:
//
//	loop.Start(ctx, 1, func(_ context.Context, value int) (int, loop.Next) {
//		value += 1
//		if 10 <= value {
//			return value, loop.Break(nil)
//		}
//		return value, loop.Continue(0)
//	})
//
// # Returns
//
// - T: the last value returned by task. It is returned together with errors.
//
// - error: the error passed to Break, or ctx.Err() when ctx is done.
func Start[T any](ctx context.Context, init T, task Task[T], options ...LoopOption) (T, error) {
	if err := ctx.Err(); err != nil {
		return init, err
	}

	value := init
	for {
		lc := &loopConfig{ctx: ctx}
		for _, opt := range options {
			lc = opt(lc)
		}

		v, n := runTurn(lc, task, value)
		if n.err != nil {
			return v, n.err
		}
		if n.quit {
			return v, nil
		}
		value = v

		timer := time.NewTimer(n.interval)
		select {
		case <-ctx.Done():
			// shutting down has priority over the timer.
			if !timer.Stop() {
				<-timer.C
			}
			return value, ctx.Err()
		case <-timer.C:
		}
	}
}

type loopConfig struct {
	ctx      context.Context
	deferred func()
}

func runTurn[T any](lc *loopConfig, task Task[T], value T) (T, Next) {
	if lc.deferred != nil {
		defer lc.deferred()
	}
	return task(lc.ctx, value)
}

type LoopOption func(*loopConfig) *loopConfig

// WithTimeout sets a deadline on the context passed to each turn of the task.
func WithTimeout(d time.Duration) LoopOption {
	return func(lc *loopConfig) *loopConfig {
		ctx, cancel := context.WithTimeout(lc.ctx, d)
		return &loopConfig{
			ctx: ctx,
			deferred: func() {
				if lc.deferred != nil {
					defer lc.deferred()
				}
				cancel()
			},
		}
	}
}
