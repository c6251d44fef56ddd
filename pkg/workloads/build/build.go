// Package build builds tale images with repo2docker.
//
// A build reads a work directory laid out as
//
//	{workdir}/repo     : the tale workspace, the source of the image
//	{workdir}/.docker  : docker credentials to push the image
//
// and pushes the image to the registry.
package build

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"

	xe "github.com/whole-tale/gwvolman/pkg/errors"
)

const (
	RepoDir         = "repo"
	DockerConfigDir = ".docker"

	// UserID and UserName of the user in built images.
	UserID   = 1000
	UserName = "jovyan"
)

// Request is a build of an image.
type Request struct {
	TaleID string

	// Tag is the name the image is pushed as.
	Tag string

	// WorkDir is the work directory of the build, as seen from gwvolman.
	WorkDir string
}

// Builder builds an image and pushes it.
type Builder interface {
	// Build runs a build to its end. Each line of the build log is passed to logline.
	Build(ctx context.Context, req Request, logline func(string)) error
}

// Args is the command line arguments of repo2docker.
func Args(tag string, repo string) []string {
	return []string{
		"--image-name", tag,
		"--no-run",
		"--push",
		"--user-id=" + strconv.Itoa(UserID),
		"--user-name=" + UserName,
		repo,
	}
}

// Prepare creates the work directory with docker credentials of the registry.
//
// It returns the directory where the repository should be placed in.
func Prepare(workDir string, registryHost string, user string, password string) (string, error) {
	repo := filepath.Join(workDir, RepoDir)
	if err := os.MkdirAll(repo, os.FileMode(0o755)); err != nil {
		return "", xe.Wrap(err)
	}

	dc := filepath.Join(workDir, DockerConfigDir)
	if err := os.MkdirAll(dc, os.FileMode(0o700)); err != nil {
		return "", xe.Wrap(err)
	}

	type auth struct {
		Auth string `json:"auth"`
	}
	conf := struct {
		Auths map[string]auth `json:"auths"`
	}{Auths: map[string]auth{}}
	if user != "" {
		conf.Auths[registryHost] = auth{
			Auth: base64.StdEncoding.EncodeToString([]byte(user + ":" + password)),
		}
	}

	f, err := os.OpenFile(
		filepath.Join(dc, "config.json"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(0o600),
	)
	if err != nil {
		return "", xe.Wrap(err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(conf); err != nil {
		return "", xe.Wrap(err)
	}
	return repo, nil
}

// scanLines passes each line of r to logline, until r is exhausted.
func scanLines(r io.Reader, logline func(string)) error {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	for s.Scan() {
		logline(s.Text())
	}
	return s.Err()
}
