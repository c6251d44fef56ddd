// Package mock provides a mock implementation of the job database for testing.
package mock

import (
	"context"
	"errors"
	"time"

	"github.com/whole-tale/gwvolman/pkg/domain/job"
	jobdb "github.com/whole-tale/gwvolman/pkg/domain/job/db"
)

type MockJobInterface struct {
	Impl struct {
		Enqueue           func(context.Context, job.Spec) (job.Job, error)
		Get               func(context.Context, string) (job.Job, error)
		Find              func(context.Context, job.Query) ([]job.Job, error)
		Claim             func(context.Context, []string, string) (*job.Job, error)
		Finish            func(context.Context, string, job.Outcome) (job.Job, error)
		RequestCancel     func(context.Context, string) (job.Job, error)
		IsCancelRequested func(context.Context, string) (bool, error)
		Touch             func(context.Context, string) error
		ReclaimStale      func(context.Context, time.Duration) ([]job.Job, error)
	}
	Calls struct {
		Enqueue       []job.Spec
		Finish        []FinishArgs
		RequestCancel []string
	}
}

type FinishArgs struct {
	ID      string
	Outcome job.Outcome
}

var _ jobdb.Interface = &MockJobInterface{}

var errNotImplemented = errors.New("[MOCK] not implemented")

func New() *MockJobInterface {
	return &MockJobInterface{}
}

func (m *MockJobInterface) Enqueue(ctx context.Context, spec job.Spec) (job.Job, error) {
	m.Calls.Enqueue = append(m.Calls.Enqueue, spec)
	if m.Impl.Enqueue == nil {
		return job.Job{}, errNotImplemented
	}
	return m.Impl.Enqueue(ctx, spec)
}

func (m *MockJobInterface) Get(ctx context.Context, id string) (job.Job, error) {
	if m.Impl.Get == nil {
		return job.Job{}, errNotImplemented
	}
	return m.Impl.Get(ctx, id)
}

func (m *MockJobInterface) Find(ctx context.Context, query job.Query) ([]job.Job, error) {
	if m.Impl.Find == nil {
		return nil, errNotImplemented
	}
	return m.Impl.Find(ctx, query)
}

func (m *MockJobInterface) Claim(ctx context.Context, tasks []string, worker string) (*job.Job, error) {
	if m.Impl.Claim == nil {
		return nil, errNotImplemented
	}
	return m.Impl.Claim(ctx, tasks, worker)
}

func (m *MockJobInterface) Finish(ctx context.Context, id string, outcome job.Outcome) (job.Job, error) {
	m.Calls.Finish = append(m.Calls.Finish, FinishArgs{ID: id, Outcome: outcome})
	if m.Impl.Finish == nil {
		return job.Job{}, errNotImplemented
	}
	return m.Impl.Finish(ctx, id, outcome)
}

func (m *MockJobInterface) RequestCancel(ctx context.Context, id string) (job.Job, error) {
	m.Calls.RequestCancel = append(m.Calls.RequestCancel, id)
	if m.Impl.RequestCancel == nil {
		return job.Job{}, errNotImplemented
	}
	return m.Impl.RequestCancel(ctx, id)
}

func (m *MockJobInterface) IsCancelRequested(ctx context.Context, id string) (bool, error) {
	if m.Impl.IsCancelRequested == nil {
		return false, errNotImplemented
	}
	return m.Impl.IsCancelRequested(ctx, id)
}

func (m *MockJobInterface) Touch(ctx context.Context, id string) error {
	if m.Impl.Touch == nil {
		return errNotImplemented
	}
	return m.Impl.Touch(ctx, id)
}

func (m *MockJobInterface) ReclaimStale(ctx context.Context, olderThan time.Duration) ([]job.Job, error) {
	if m.Impl.ReclaimStale == nil {
		return nil, errNotImplemented
	}
	return m.Impl.ReclaimStale(ctx, olderThan)
}
