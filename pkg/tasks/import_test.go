package tasks_test

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/whole-tale/gwvolman/pkg/girder"
	gmock "github.com/whole-tale/gwvolman/pkg/girder/mock"
	"github.com/whole-tale/gwvolman/pkg/tasks"
	"github.com/whole-tale/gwvolman/pkg/utils/cmp"
	"github.com/whole-tale/gwvolman/pkg/utils/try"
)

const doi = "https://doi.org/10.5065/D6862DM8"

func importable(t *testing.T) *gmock.MockClient {
	gc := gmock.New(t)
	gc.Impl.LookupRepository = func(ctx context.Context, query url.Values) ([]map[string]any, error) {
		return []map[string]any{{"name": "Humans_and-hydrology", "dataId": doi, "repository": "DataONE"}}, nil
	}
	gc.Impl.RegisterDataset = func(ctx context.Context, dataMap []map[string]any) error {
		return nil
	}
	gc.Impl.LookupResource = func(ctx context.Context, path string) (girder.Resource, error) {
		return girder.Resource{ID: "catalog-1", Name: "WholeTale Catalog", ModelType: "folder"}, nil
	}
	gc.Impl.ListFolders = func(ctx context.Context, parentType string, parentId string, name string) ([]girder.Folder, error) {
		return []girder.Folder{{ID: "dataset-1", Name: name, ModelType: "folder"}}, nil
	}
	gc.Impl.Me = me("alice")
	gc.Impl.CreateTale = func(ctx context.Context, doc map[string]any) (map[string]any, error) {
		ret := map[string]any{"_id": "tale-1"}
		for k, v := range doc {
			ret[k] = v
		}
		return ret, nil
	}
	return gc
}

func TestImportTale(t *testing.T) {
	lookup := func() map[string]any {
		return map[string]any{"dataId": []any{doi}, "base_url": "https://cn.dataone.org/cn/v2"}
	}

	t.Run("it registers the dataset, creates a tale and spawns it", func(t *testing.T) {
		f := newFixture(t, nil, map[string]string{})
		gc := importable(t)
		gc.Impl.CreateInstance = func(ctx context.Context, taleId string) (girder.Instance, error) {
			return girder.Instance{ID: "inst-1", TaleID: taleId, Status: girder.InstanceLaunching}, nil
		}
		polled := 0
		gc.Impl.GetInstance = func(ctx context.Context, instanceId string) (girder.Instance, error) {
			polled += 1
			status := girder.InstanceLaunching
			if polled >= 2 {
				status = girder.InstanceRunning
			}
			return girder.Instance{ID: instanceId, TaleID: "tale-1", Status: status}, nil
		}
		progress := &progressRecorder{}

		actual := try.To(tasks.ImportTale(
			context.Background(), f.env, f.call(gc, progress),
			tasks.ImportArgs{
				LookupKwargs: lookup(),
				TaleKwargs:   map[string]any{"imageId": "image-1", "title": "My Tale"},
			},
		)).OrFatal(t)

		if actual.Instance == nil || actual.Instance.Status != girder.InstanceRunning {
			t.Errorf("unexpected instance: %+v", actual.Instance)
		}
		if polled != 2 {
			t.Errorf("unexpected polls: %d", polled)
		}
		if actual.Tale["_id"] != "tale-1" {
			t.Errorf("unexpected tale: %v", actual.Tale)
		}

		q := gc.Calls.LookupRepository[0]
		if q.Get("dataId") != `["`+doi+`"]` || q.Get("base_url") != "https://cn.dataone.org/cn/v2" {
			t.Errorf("unexpected lookup: %v", q)
		}
		if !cmp.SliceEq(gc.Calls.LookupResource, []string{tasks.CatalogPath}) {
			t.Errorf("unexpected catalog: %v", gc.Calls.LookupResource)
		}
		if !cmp.SliceEq(gc.Calls.ListFolders, []gmock.ListFoldersArgs{
			{ParentType: "folder", ParentId: "catalog-1", Name: "Humans_and-hydrology"},
		}) {
			t.Errorf("unexpected folder lookup: %+v", gc.Calls.ListFolders)
		}

		doc := gc.Calls.CreateTale[0]
		if doc["title"] != "My Tale" || doc["imageId"] != "image-1" {
			t.Errorf("tale kwargs are not applied: %v", doc)
		}
		if doc["authors"] != "Alice Liddell" || doc["public"] != false || doc["published"] != false {
			t.Errorf("unexpected tale: %v", doc)
		}
		if ds, ok := doc["dataSet"].([]girder.DataSetEntry); !ok || !cmp.SliceEq(ds, []girder.DataSetEntry{
			{ItemID: "dataset-1", MountPath: "/Humans_and-hydrology", ModelType: "folder"},
		}) {
			t.Errorf("unexpected dataSet: %v", doc["dataSet"])
		}

		expected := []progressed{
			{current: 1, total: 4, message: "Gathering basic info about the dataset"},
			{current: 2, total: 4, message: "Registering the dataset in Whole Tale"},
			{current: 3, total: 4, message: "Creating a Tale container"},
			{current: 4, total: 4, message: "Tale is ready!"},
		}
		if !cmp.SliceEq(progress.updates, expected) {
			t.Errorf("unexpected progress:\n===actual===\n%+v\n===expected===\n%+v", progress.updates, expected)
		}
	})

	t.Run("without spawn, it has 3 steps and no instance", func(t *testing.T) {
		f := newFixture(t, nil, map[string]string{})
		gc := importable(t)
		gc.Impl.ListFolders = func(ctx context.Context, parentType string, parentId string, name string) ([]girder.Folder, error) {
			return nil, nil
		}
		gc.Impl.ListItems = func(ctx context.Context, folderId string, name string) ([]girder.Item, error) {
			return []girder.Item{{ID: "item-1", Name: name}}, nil
		}
		progress := &progressRecorder{}
		spawn := false

		actual := try.To(tasks.ImportTale(
			context.Background(), f.env, f.call(gc, progress),
			tasks.ImportArgs{LookupKwargs: lookup(), TaleKwargs: map[string]any{"imageId": "image-1"}, Spawn: &spawn},
		)).OrFatal(t)

		if actual.Instance != nil {
			t.Errorf("unexpected instance: %+v", actual.Instance)
		}
		doc := gc.Calls.CreateTale[0]
		if doc["title"] != `A Tale for "Humans and hydrology"` {
			t.Errorf("unexpected title: %v", doc["title"])
		}
		if ds := doc["dataSet"].([]girder.DataSetEntry); ds[0].ModelType != "item" || ds[0].ItemID != "item-1" {
			t.Errorf("unexpected dataSet: %v", ds)
		}
		if len(progress.updates) != 3 || progress.updates[2] != (progressed{current: 3, total: 3, message: "Tale is ready!"}) {
			t.Errorf("unexpected progress: %+v", progress.updates)
		}
	})

	t.Run("lookup failure tells the server message", func(t *testing.T) {
		f := newFixture(t, nil, map[string]string{})
		gc := gmock.New(t)
		gc.Impl.LookupRepository = func(ctx context.Context, query url.Values) ([]map[string]any, error) {
			return nil, &girder.HttpError{Status: 400, Message: "Invalid DOI"}
		}

		_, err := tasks.ImportTale(
			context.Background(), f.env, f.call(gc, nil), tasks.ImportArgs{LookupKwargs: lookup()},
		)
		if msg := tasks.MessageOf(err); msg != `Unable to register "`+doi+`". Server returned 400: Invalid DOI` {
			t.Errorf("unexpected message: %s", msg)
		}
	})

	t.Run("unsupported source is user error", func(t *testing.T) {
		f := newFixture(t, nil, map[string]string{})
		gc := gmock.New(t)
		gc.Impl.LookupRepository = func(ctx context.Context, query url.Values) ([]map[string]any, error) {
			return []map[string]any{}, nil
		}

		_, err := tasks.ImportTale(
			context.Background(), f.env, f.call(gc, nil), tasks.ImportArgs{LookupKwargs: lookup()},
		)
		if msg := tasks.MessageOf(err); msg != `Unable to register "`+doi+`". Source is not supported` {
			t.Errorf("unexpected message: %s", msg)
		}
		if len(gc.Calls.RegisterDataset) != 0 {
			t.Error("nothing should be registered")
		}
	})

	t.Run("when registered dataset is not found, it aborts", func(t *testing.T) {
		f := newFixture(t, nil, map[string]string{})
		gc := importable(t)
		gc.Impl.ListFolders = func(ctx context.Context, parentType string, parentId string, name string) ([]girder.Folder, error) {
			return nil, nil
		}
		gc.Impl.ListItems = func(ctx context.Context, folderId string, name string) ([]girder.Item, error) {
			return nil, nil
		}

		_, err := tasks.ImportTale(
			context.Background(), f.env, f.call(gc, nil), tasks.ImportArgs{LookupKwargs: lookup()},
		)
		if msg := tasks.MessageOf(err); msg != "Registration failed. Aborting!" {
			t.Errorf("unexpected message: %s", msg)
		}
		if len(gc.Calls.CreateTale) != 0 {
			t.Error("tale should not be created")
		}
	})

	t.Run("instance failure tells the server message", func(t *testing.T) {
		f := newFixture(t, nil, map[string]string{})
		gc := importable(t)
		gc.Impl.CreateInstance = func(ctx context.Context, taleId string) (girder.Instance, error) {
			return girder.Instance{}, &girder.HttpError{Status: 403, Message: "Too many instances"}
		}

		_, err := tasks.ImportTale(
			context.Background(), f.env, f.call(gc, nil),
			tasks.ImportArgs{LookupKwargs: lookup(), TaleKwargs: map[string]any{"imageId": "image-1"}},
		)
		if msg := tasks.MessageOf(err); msg != "Unable to create instance. Server returned 403: Too many instances" {
			t.Errorf("unexpected message: %s", msg)
		}
		if ue := new(tasks.UserError); !errors.As(err, &ue) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("missing dataId is user error", func(t *testing.T) {
		f := newFixture(t, nil, map[string]string{})
		gc := gmock.New(t)

		_, err := tasks.ImportTale(
			context.Background(), f.env, f.call(gc, nil), tasks.ImportArgs{LookupKwargs: map[string]any{}},
		)
		if ue := new(tasks.UserError); !errors.As(err, &ue) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
