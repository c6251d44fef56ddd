package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	xe "github.com/whole-tale/gwvolman/pkg/errors"
	"github.com/whole-tale/gwvolman/pkg/girder"
	"github.com/whole-tale/gwvolman/pkg/utils/retry"
)

// CatalogPath is the Girder path of the folder where datasets are registered.
const CatalogPath = "/collection/WholeTale Catalog/WholeTale Catalog"

type ImportArgs struct {
	// LookupKwargs is the query of the repository lookup. It must have "dataId", a list of urls or DOIs.
	LookupKwargs map[string]any `json:"lookupKwargs"`

	// TaleKwargs overrides fields of the new tale. It should have "imageId".
	TaleKwargs map[string]any `json:"taleKwargs"`

	// Spawn starts an instance of the new tale. Default is true.
	Spawn *bool `json:"spawn,omitempty"`
}

func (a ImportArgs) spawn() bool {
	return a.Spawn == nil || *a.Spawn
}

type ImportResult struct {
	Tale     map[string]any   `json:"tale"`
	Instance *girder.Instance `json:"instance"`
}

func lookupQuery(kwargs map[string]any) (url.Values, string, error) {
	q := url.Values{}
	var dataId []string
	raw, ok := kwargs["dataId"]
	if !ok {
		return nil, "", NewUserError("dataId is required", nil)
	}
	switch v := raw.(type) {
	case []string:
		dataId = v
	case []any:
		for _, d := range v {
			dataId = append(dataId, fmt.Sprint(d))
		}
	case string:
		dataId = []string{v}
	}
	if len(dataId) == 0 {
		return nil, "", NewUserError("dataId is required", nil)
	}
	buf, err := json.Marshal(dataId)
	if err != nil {
		return nil, "", xe.Wrap(err)
	}
	q.Set("dataId", string(buf))

	for k, v := range kwargs {
		if k == "dataId" {
			continue
		}
		switch vv := v.(type) {
		case string:
			q.Set(k, vv)
		default:
			buf, err := json.Marshal(vv)
			if err != nil {
				return nil, "", xe.Wrap(err)
			}
			q.Set(k, string(buf))
		}
	}
	return q, dataId[0], nil
}

// ImportTale registers an external dataset, creates a tale with it, and optionally spawns an instance.
func ImportTale(ctx context.Context, env *Env, call Call, args ImportArgs) (*ImportResult, error) {
	gc := call.Girder
	logger := call.Logger
	progress := call.Progress

	total := 3.0
	if args.spawn() {
		total = 4
	}

	progress.Update(ctx, 1, total, "Gathering basic info about the dataset")
	q, first, err := lookupQuery(args.LookupKwargs)
	if err != nil {
		return nil, err
	}
	dataMap, err := gc.LookupRepository(ctx, q)
	if err != nil {
		if herr, ok := girder.AsHttpError(err); ok {
			return nil, NewUserError(fmt.Sprintf(
				`Unable to register "%s". Server returned %d: %s`, first, herr.Status, herr.Message,
			), err)
		}
		return nil, err
	}
	if len(dataMap) == 0 {
		return nil, NewUserError(fmt.Sprintf(`Unable to register "%s". Source is not supported`, first), nil)
	}

	progress.Update(ctx, 2, total, "Registering the dataset in Whole Tale")
	if err := gc.RegisterDataset(ctx, dataMap); err != nil {
		return nil, err
	}

	name, _ := dataMap[0]["name"].(string)
	resource, err := registeredResource(ctx, gc, name)
	if err != nil {
		return nil, err
	}

	user, err := gc.Me(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNoUser
	}

	longName := strings.NewReplacer("-", " ", "_", " ").Replace(resource.Name)
	doc := map[string]any{
		"authors": user.FullName(),
		"title":   fmt.Sprintf(`A Tale for "%s"`, Shorten(longName, 30)),
		"dataSet": []girder.DataSetEntry{{
			MountPath: "/" + resource.Name,
			ItemID:    resource.ID,
			ModelType: resource.ModelType,
		}},
		"public":    false,
		"published": false,
	}
	for k, v := range args.TaleKwargs {
		doc[k] = v
	}
	tale, err := gc.CreateTale(ctx, doc)
	if err != nil {
		return nil, err
	}

	var inst *girder.Instance
	if args.spawn() {
		progress.Update(ctx, 3, total, "Creating a Tale container")
		taleId, _ := tale["_id"].(string)
		i, err := spawn(ctx, env, call, taleId)
		if err != nil {
			return nil, err
		}
		inst = &i
	}

	progress.Update(ctx, total, total, "Tale is ready!")
	logger.Printf("tale is imported from %s", first)
	return &ImportResult{Tale: tale, Instance: inst}, nil
}

// registeredResource finds a registered dataset in the catalog, as a folder, or as an item.
func registeredResource(ctx context.Context, gc girder.Client, name string) (girder.Resource, error) {
	catalog, err := gc.LookupResource(ctx, CatalogPath)
	if err != nil {
		return girder.Resource{}, err
	}

	folders, err := gc.ListFolders(ctx, girder.ParentFolder, catalog.ID, name)
	if err != nil {
		return girder.Resource{}, err
	}
	if len(folders) != 0 {
		f := folders[0]
		return girder.Resource{ID: f.ID, Name: f.Name, ModelType: modelTypeOr(f.ModelType, "folder")}, nil
	}

	items, err := gc.ListItems(ctx, catalog.ID, name)
	if err != nil {
		return girder.Resource{}, err
	}
	if len(items) != 0 {
		i := items[0]
		return girder.Resource{ID: i.ID, Name: i.Name, ModelType: modelTypeOr(i.ModelType, "item")}, nil
	}
	return girder.Resource{}, NewUserError("Registration failed. Aborting!", nil)
}

func modelTypeOr(mt string, d string) string {
	if mt == "" {
		return d
	}
	return mt
}

// spawn creates an instance of the tale, and waits while it is launching.
//
// When it is still launching after the instance timeout, it is returned as it is.
func spawn(ctx context.Context, env *Env, call Call, taleId string) (girder.Instance, error) {
	gc := call.Girder
	inst, err := gc.CreateInstance(ctx, taleId)
	if err != nil {
		if herr, ok := girder.AsHttpError(err); ok {
			return girder.Instance{}, NewUserError(fmt.Sprintf(
				"Unable to create instance. Server returned %d: %s", herr.Status, herr.Message,
			), err)
		}
		return girder.Instance{}, err
	}

	if inst.Status != girder.InstanceLaunching {
		return inst, nil
	}

	wctx, cancel := context.WithTimeout(ctx, env.Config.Worker().InstanceTimeout())
	defer cancel()
	last, err := retry.Blocking(
		wctx, retry.StaticBackoff(env.pollInterval(time.Second)),
		func() (girder.Instance, error) {
			next, err := gc.GetInstance(ctx, inst.ID)
			if err != nil {
				return girder.Instance{}, err
			}
			if next.Status == girder.InstanceLaunching {
				return next, retry.ErrRetry
			}
			return next, nil
		},
	)
	if err == nil {
		return last, nil
	}
	if ctx.Err() != nil || !errors.Is(err, context.DeadlineExceeded) {
		return girder.Instance{}, err
	}
	if last.ID == "" {
		last = inst
	}
	call.Logger.Printf("instance %s is still launching", inst.ID)
	return last, nil
}
