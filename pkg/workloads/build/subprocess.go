package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	xe "github.com/whole-tale/gwvolman/pkg/errors"
)

type subprocess struct {
	command string
}

// Subprocess runs repo2docker as a child process.
func Subprocess(command string) Builder {
	return &subprocess{command: command}
}

func (s *subprocess) Build(ctx context.Context, req Request, logline func(string)) error {
	cmd := exec.CommandContext(
		ctx, s.command, Args(req.Tag, filepath.Join(req.WorkDir, RepoDir))...,
	)
	cmd.Env = append(os.Environ(), "DOCKER_CONFIG="+filepath.Join(req.WorkDir, DockerConfigDir))

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		return xe.Wrap(err)
	}

	scanned := make(chan error, 1)
	go func() {
		defer close(scanned)
		err := scanLines(pr, logline)
		io.Copy(io.Discard, pr)
		scanned <- err
	}()

	err := cmd.Wait()
	pw.Close()
	serr := <-scanned

	if err != nil {
		if eerr := new(exec.ExitError); errors.As(err, &eerr) {
			return fmt.Errorf("repo2docker exited with %d", eerr.ExitCode())
		}
		return xe.Wrap(err)
	}
	return xe.Wrap(serr)
}
