package publish

import (
	"context"
	"fmt"

	xe "github.com/whole-tale/gwvolman/pkg/errors"
	"github.com/whole-tale/gwvolman/pkg/girder"
)

// ProviderDataONE is the provider of folders registered from DataONE.
const ProviderDataONE = "DataONE"

// entry is an item to be published with its first file.
type entry struct {
	ItemID string
	File   girder.File

	// Pid is the identifier of an object which is already on DataONE.
	Pid string
}

// classified holds items sorted by where their content is.
type classified struct {
	// DataONE are items registered from DataONE. They are referred, not uploaded.
	DataONE []entry

	// Remote are items linked to other http resources.
	Remote []entry

	// Local are items whose content is stored in Girder.
	Local []entry
}

func (c classified) uploads() int {
	return len(c.Remote) + len(c.Local)
}

// pids of objects already on DataONE.
func (c classified) dataonePids() []string {
	pids := []string{}
	for _, e := range c.DataONE {
		pids = append(pids, e.Pid)
	}
	return pids
}

func firstFile(ctx context.Context, gc girder.Client, itemId string) (girder.File, error) {
	files, err := gc.ListFiles(ctx, itemId)
	if err != nil {
		return girder.File{}, xe.Wrap(err)
	}
	if len(files) == 0 {
		return girder.File{}, fmt.Errorf("Failed to find the file with ID %s", itemId)
	}
	return files[0], nil
}

// classify sorts items by their first file.
//
// An item whose file has linkUrl is remote, or from DataONE when its folder
// has meta.provider "DataONE". Otherwise the item is local.
func classify(ctx context.Context, gc girder.Client, itemIds []string) (classified, error) {
	result := classified{}
	providers := map[string]string{}

	for _, itemId := range itemIds {
		file, err := firstFile(ctx, gc, itemId)
		if err != nil {
			return classified{}, err
		}
		if file.LinkURL == "" {
			result.Local = append(result.Local, entry{ItemID: itemId, File: file})
			continue
		}

		item, err := gc.GetItem(ctx, itemId)
		if err != nil {
			return classified{}, xe.Wrap(err)
		}
		provider, ok := providers[item.FolderID]
		if !ok {
			folder, err := gc.GetFolder(ctx, item.FolderID)
			if err != nil {
				return classified{}, xe.Wrap(err)
			}
			provider, _ = folder.Meta["provider"].(string)
			providers[item.FolderID] = provider
		}

		if provider == ProviderDataONE {
			pid, _ := item.Meta["identifier"].(string)
			result.DataONE = append(result.DataONE, entry{ItemID: itemId, File: file, Pid: pid})
			continue
		}
		result.Remote = append(result.Remote, entry{ItemID: itemId, File: file})
	}
	return result, nil
}
