package girder

import (
	"context"
	"io"
	"os"
	"path/filepath"

	xe "github.com/whole-tale/gwvolman/pkg/errors"
)

const (
	ParentFolder     = "folder"
	ParentUser       = "user"
	ParentCollection = "collection"
)

func (c *client) DownloadFolderRecursive(ctx context.Context, folderId string, dest string) error {
	if err := os.MkdirAll(dest, os.FileMode(0o755)); err != nil {
		return xe.Wrap(err)
	}

	folders, err := c.ListFolders(ctx, ParentFolder, folderId, "")
	if err != nil {
		return err
	}
	for _, f := range folders {
		if err := c.DownloadFolderRecursive(ctx, f.ID, filepath.Join(dest, f.Name)); err != nil {
			return err
		}
	}

	items, err := c.ListItems(ctx, folderId, "")
	if err != nil {
		return err
	}
	for _, i := range items {
		if err := c.downloadItem(ctx, i, dest); err != nil {
			return err
		}
	}
	return nil
}

// downloadItem writes an item as a file, or as a directory when it has many
// files or its only file is named differently.
func (c *client) downloadItem(ctx context.Context, item Item, dest string) error {
	files, err := c.ListFiles(ctx, item.ID)
	if err != nil {
		return err
	}

	if len(files) == 1 && files[0].Name == item.Name {
		return c.downloadFileTo(ctx, files[0], filepath.Join(dest, item.Name))
	}

	dir := filepath.Join(dest, item.Name)
	if err := os.MkdirAll(dir, os.FileMode(0o755)); err != nil {
		return xe.Wrap(err)
	}
	for _, f := range files {
		if err := c.downloadFileTo(ctx, f, filepath.Join(dir, f.Name)); err != nil {
			return err
		}
	}
	return nil
}

func (c *client) downloadFileTo(ctx context.Context, file File, dest string) error {
	return c.DownloadFile(ctx, file.ID, func(r io.Reader) error {
		f, err := os.Create(dest)
		if err != nil {
			return xe.Wrap(err)
		}
		defer f.Close()
		if _, err := io.Copy(f, r); err != nil {
			return xe.Wrap(err)
		}
		return nil
	})
}
