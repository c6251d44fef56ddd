package tasks

import (
	"context"
	"fmt"
	"os"

	xe "github.com/whole-tale/gwvolman/pkg/errors"
	"github.com/whole-tale/gwvolman/pkg/workloads/build"
)

type BuildArgs struct {
	TaleID string `json:"taleId"`
}

// BuildTaleImage builds an image from the tale workspace, pushes it and
// returns its digest reference.
func BuildTaleImage(ctx context.Context, env *Env, call Call, args BuildArgs) (string, error) {
	gc := call.Girder
	logger := call.Logger
	conf := env.Config

	logger.Printf("building image for tale %s", args.TaleID)

	tmpDir := conf.Build().TmpDir()
	if err := os.MkdirAll(tmpDir, os.FileMode(0o755)); err != nil {
		return "", xe.Wrap(err)
	}
	workDir, err := os.MkdirTemp(tmpDir, "build-")
	if err != nil {
		return "", xe.Wrap(err)
	}
	defer os.RemoveAll(workDir)

	reg := conf.Registry()
	repo, err := build.Prepare(workDir, env.Registry.Host(), reg.User(), reg.Password())
	if err != nil {
		return "", err
	}

	tale, err := gc.GetTale(ctx, args.TaleID)
	if err != nil {
		return "", NewUserError(fmt.Sprintf("Error authenticating with Girder %s", err), err)
	}
	if tale.FolderID == "" {
		logger.Printf("tale %s has no workspace folder", tale.ID)
	} else {
		logger.Printf("downloading workspace folder to %s (%s)", repo, tale.ID)
		if err := gc.DownloadFolderRecursive(ctx, tale.FolderID, repo); err != nil {
			return "", NewUserError(fmt.Sprintf("Error authenticating with Girder %s", err), err)
		}
	}

	tag := env.Registry.Ref(tale.ID)
	logger.Printf("building image %s", tag)
	if err := env.Builder.Build(
		ctx,
		build.Request{TaleID: tale.ID, Tag: tag, WorkDir: workDir},
		func(line string) { logger.Print(line) },
	); err != nil {
		return "", err
	}

	digest, err := env.Registry.Digest(ctx, tag)
	if err != nil {
		return "", err
	}
	logger.Printf("image %s is pushed", digest)
	return digest, nil
}
