package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRetry is returned by a polled function to ask for another attempt.
var ErrRetry = errors.New("retry")

// Backoff blocks until the next attempt should be made.
//
// It returns ctx.Err() when ctx is done before that.
type Backoff func(context.Context) error

// StaticBackoff waits for a fixed interval between attempts.
func StaticBackoff(interval time.Duration) Backoff {
	return func(ctx context.Context) error {
		timer := time.NewTimer(interval)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
}

// Blocking calls f until it returns nil or an error other than ErrRetry.
//
// Backoff is awaited before every call, including the first one.
// It returns the last value of f with the error of f, or of b when ctx is done.
func Blocking[T any](ctx context.Context, b Backoff, f func() (T, error)) (T, error) {
	last := *new(T)
	for {
		if err := b(ctx); err != nil {
			return last, err
		}

		var err error
		last, err = f()
		if err == nil {
			return last, nil
		}
		if errors.Is(err, ErrRetry) {
			continue
		}
		return last, err
	}
}

type Result[T any] struct {
	Value T
	Err   error
}

// Promise delivers exactly one Result, then closes.
type Promise[T any] <-chan Result[T]

func Failed[T any](err error) Promise[T] {
	ch := make(chan Result[T], 1)
	ch <- Result[T]{Err: err}
	close(ch)
	return ch
}

func Ok[T any](value T) Promise[T] {
	ch := make(chan Result[T], 1)
	ch <- Result[T]{Value: value}
	close(ch)
	return ch
}

// Go runs Blocking(ctx, b, f) in a goroutine.
//
// A panic in f is delivered as an error.
func Go[T any](ctx context.Context, b Backoff, f func() (T, error)) Promise[T] {
	ch := make(chan Result[T], 1)

	go func() {
		defer close(ch)
		defer func() {
			r := recover()
			var err error
			switch rr := r.(type) {
			case nil:
				return
			case error:
				err = rr
			default:
				err = fmt.Errorf("%+v", rr)
			}

			select {
			case ch <- Result[T]{Err: err}:
			default:
				panic(r)
			}
		}()

		ret, err := Blocking(ctx, b, f)
		ch <- Result[T]{Value: ret, Err: err}
	}()

	return ch
}

// Await receives the result of p.
//
// When ctx is done first, it returns ctx.Err().
func Await[T any](ctx context.Context, p Promise[T]) (T, error) {
	select {
	case <-ctx.Done():
		return *new(T), ctx.Err()
	case r, ok := <-p:
		if !ok {
			return *new(T), errors.New("promise is closed without result")
		}
		return r.Value, r.Err
	}
}
