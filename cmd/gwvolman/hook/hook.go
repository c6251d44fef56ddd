// Package hook notifies external services of jobs handled by the worker.
package hook

import (
	"context"
	"errors"
)

// Hook is called around processing a value.
type Hook[T any] interface {
	// Before is called before the value is processed.
	//
	// When it fails, the value should not be processed.
	Before(context.Context, T) error

	// After is called after the value is processed.
	After(context.Context, T) error
}

var ErrHookFailed = errors.New("hook failed")

// None is a Hook doing nothing.
type None[T any] struct{}

func (None[T]) Before(context.Context, T) error { return nil }
func (None[T]) After(context.Context, T) error  { return nil }

// Func is a Hook calling functions. Nil functions are skipped.
type Func[T any] struct {
	BeforeFn func(context.Context, T) error
	AfterFn  func(context.Context, T) error
}

func (f Func[T]) Before(ctx context.Context, value T) error {
	return call(ctx, f.BeforeFn, value)
}

func (f Func[T]) After(ctx context.Context, value T) error {
	return call(ctx, f.AfterFn, value)
}

func call[T any](ctx context.Context, fn func(context.Context, T) error, value T) error {
	if fn == nil {
		return nil
	}
	if err := fn(ctx, value); err != nil {
		return errors.Join(err, ErrHookFailed)
	}
	return nil
}
