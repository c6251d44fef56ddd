package mock

import (
	"context"
	"io"
	"testing"

	"github.com/whole-tale/gwvolman/pkg/dataone"
)

// Created is an object which the member node has received.
type Created struct {
	Pid     string
	Content []byte
	SysMeta dataone.SystemMetadata
}

type MockMemberNode struct {
	t    *testing.T
	Impl struct {
		URL    func() string
		Create func(ctx context.Context, pid string, content []byte, sysmeta dataone.SystemMetadata) error
	}
	Calls struct {
		Create []Created
	}
}

func New(t *testing.T) *MockMemberNode {
	return &MockMemberNode{t: t}
}

var _ dataone.MemberNode = &MockMemberNode{}

func (m *MockMemberNode) URL() string {
	m.t.Helper()
	if m.Impl.URL == nil {
		m.t.Fatal("URL is not ready to be called")
	}
	return m.Impl.URL()
}

// Create reads object through and records it, then calls Impl.Create.
func (m *MockMemberNode) Create(ctx context.Context, pid string, object io.Reader, sysmeta dataone.SystemMetadata) error {
	m.t.Helper()
	content, err := io.ReadAll(object)
	if err != nil {
		m.t.Fatal(err)
	}
	m.Calls.Create = append(m.Calls.Create, Created{Pid: pid, Content: content, SysMeta: sysmeta})
	if m.Impl.Create == nil {
		m.t.Fatal("Create is not ready to be called")
	}
	return m.Impl.Create(ctx, pid, content, sysmeta)
}
