package recurring

import (
	"context"

	"github.com/whole-tale/gwvolman/pkg/loop"
)

// Task is a turn of a loop reporting whether it did something.
//
// The bool is true when the turn handled something and more may be waiting.
// A non-nil error is passed to the Policy.
type Task[T any] func(context.Context, T) (T, bool, error)

// Applied turns the Task into a loop.Task following p.
func (rt Task[T]) Applied(p Policy) loop.Task[T] {
	return func(ctx context.Context, t T) (T, loop.Next) {
		next, worked, err := rt(ctx, t)
		return next, p.Next(worked, err)
	}
}
