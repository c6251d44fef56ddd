// Package girderfs mounts Girder resources into a tale volume with the
// girderfs helper.
package girderfs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	xe "github.com/whole-tale/gwvolman/pkg/errors"
)

// Kind is a kind of girderfs mount.
type Kind string

const (
	// Data is a read-only view of registered datasets through a DM session.
	Data Kind = "wt_dms"

	// Home is the user's Home folder.
	Home Kind = "wt_home"

	// Workspace is the workspace of a tale.
	Workspace Kind = "wt_work"
)

// Runner runs a command to its end.
type Runner interface {
	// Run runs the command and returns its combined output.
	//
	// A non-zero exit is an error.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

// ExecRunner runs commands as subprocesses.
func ExecRunner() Runner {
	return execRunner{}
}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out := new(bytes.Buffer)
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Run(); err != nil {
		return out.Bytes(), xe.WrapWithNote(
			fmt.Sprintf("%s %s: %s", name, strings.Join(redact(args), " "), out.String()), err,
		)
	}
	return out.Bytes(), nil
}

// secretFlags are flags whose values are not shown in error messages.
var secretFlags = map[string]struct{}{
	"--api-key": {},
}

func redact(args []string) []string {
	ret := make([]string, len(args))
	copy(ret, args)
	for i := 0; i < len(ret)-1; i++ {
		if _, ok := secretFlags[ret[i]]; ok {
			ret[i+1] = "***"
			i++
		}
	}
	return ret
}

// Mounter mounts and unmounts girderfs.
type Mounter interface {
	// Mount mounts a resource identified by id onto dest.
	Mount(ctx context.Context, kind Kind, dest string, id string) error

	// Unmount unmounts dest.
	Unmount(ctx context.Context, dest string) error
}

type mounter struct {
	runner Runner
	apiUrl string
	apiKey string
}

// New returns a Mounter which runs girderfs with runner.
//
// # Args
//
// - runner: runs commands.
//
// - apiUrl: Girder API url passed to girderfs.
//
// - apiKey: Girder API key passed to girderfs.
func New(runner Runner, apiUrl string, apiKey string) Mounter {
	return &mounter{runner: runner, apiUrl: apiUrl, apiKey: apiKey}
}

// Args builds command line arguments of girderfs.
//
// Data mounts share the host's mount namespace.
func Args(kind Kind, apiUrl string, apiKey string, dest string, id string) []string {
	args := []string{}
	if kind == Data {
		args = append(args, "--hostns")
	}
	return append(
		args,
		"-c", string(kind),
		"--api-url", apiUrl,
		"--api-key", apiKey,
		dest, id,
	)
}

func (m *mounter) Mount(ctx context.Context, kind Kind, dest string, id string) error {
	_, err := m.runner.Run(ctx, "girderfs", Args(kind, m.apiUrl, m.apiKey, dest, id)...)
	return err
}

func (m *mounter) Unmount(ctx context.Context, dest string) error {
	_, err := m.runner.Run(ctx, "umount", dest)
	return err
}
