package girder_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/whole-tale/gwvolman/pkg/girder"
	"github.com/whole-tale/gwvolman/pkg/utils/cmp"
	"github.com/whole-tale/gwvolman/pkg/utils/try"
)

type recorded struct {
	method string
	path   string
	query  map[string]string
	token  string
	body   []byte
}

// server replies with the response registered for "METHOD /path".
func server(t *testing.T, responses map[string]any) (*httptest.Server, *[]recorded) {
	t.Helper()
	reqs := []recorded{}
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := map[string]string{}
		for k := range r.URL.Query() {
			q[k] = r.URL.Query().Get(k)
		}
		rec := recorded{
			method: r.Method,
			path:   r.URL.Path,
			query:  q,
			token:  r.Header.Get(girder.TokenHeader),
		}
		if r.Body != nil {
			rec.body = try.To(io.ReadAll(r.Body)).OrFatal(t)
		}
		reqs = append(reqs, rec)

		resp, ok := responses[r.Method+" "+r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message": "not found: ` + r.URL.Path + `", "type": "rest"}`))
			return
		}
		switch v := resp.(type) {
		case []byte:
			w.WriteHeader(http.StatusOK)
			w.Write(v)
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			if err := json.NewEncoder(w).Encode(v); err != nil {
				t.Fatal(err)
			}
		}
	})
	svr := httptest.NewServer(h)
	t.Cleanup(svr.Close)
	return svr, &reqs
}

func TestMe(t *testing.T) {
	t.Run("it returns the user of the token", func(t *testing.T) {
		svr, reqs := server(t, map[string]any{
			"GET /api/v1/user/me": girder.User{ID: "u1", Login: "alice", FirstName: "Alice", LastName: "Liddell"},
		})
		testee := girder.New(svr.URL+"/api/v1/", "tok", nil)

		actual := try.To(testee.Me(context.Background())).OrFatal(t)
		if actual == nil || actual.ID != "u1" || actual.FullName() != "Alice Liddell" {
			t.Errorf("unexpected user: %+v", actual)
		}
		if got := (*reqs)[0].token; got != "tok" {
			t.Errorf("token is not sent: %q", got)
		}
	})

	t.Run("when the server returns null, it returns nil", func(t *testing.T) {
		svr, _ := server(t, map[string]any{
			"GET /api/v1/user/me": []byte("null"),
		})
		testee := girder.New(svr.URL+"/api/v1", "bad", nil)

		actual, err := testee.Me(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if actual != nil {
			t.Errorf("unexpected user: %+v", actual)
		}
	})
}

func TestHttpError(t *testing.T) {
	svr, _ := server(t, map[string]any{})
	testee := girder.New(svr.URL+"/api/v1", "tok", nil)

	_, err := testee.GetInstance(context.Background(), "missing")
	herr, ok := girder.AsHttpError(err)
	if !ok {
		t.Fatalf("error is not HttpError: %v", err)
	}
	if herr.Status != http.StatusNotFound {
		t.Errorf("unexpected status: %d", herr.Status)
	}
	if herr.Message != "not found: /api/v1/instance/missing" {
		t.Errorf("unexpected message: %s", herr.Message)
	}
	if herr.Method != http.MethodGet {
		t.Errorf("unexpected method: %s", herr.Method)
	}
	if !girder.IsNotFound(err) {
		t.Error("IsNotFound should be true")
	}
	if girder.IsNotFound(errors.New("other")) {
		t.Error("IsNotFound should be false for other errors")
	}
}

func TestCreateSession(t *testing.T) {
	t.Run("with taleId, it sends taleId", func(t *testing.T) {
		svr, reqs := server(t, map[string]any{
			"POST /api/v1/dm/session": girder.DMSession{ID: "s1"},
		})
		testee := girder.New(svr.URL+"/api/v1", "tok", nil)

		actual := try.To(testee.CreateSession(
			context.Background(), girder.SessionRequest{TaleID: "tale-1"},
		)).OrFatal(t)
		if actual.ID != "s1" {
			t.Errorf("unexpected session: %+v", actual)
		}
		expected := map[string]string{"taleId": "tale-1"}
		if got := (*reqs)[0].query; !cmp.MapEq(got, expected) {
			t.Errorf("unexpected query: (actual, expected) = (%v, %v)", got, expected)
		}
	})

	t.Run("with dataSet, it sends dataSet as json", func(t *testing.T) {
		svr, reqs := server(t, map[string]any{
			"POST /api/v1/dm/session": girder.DMSession{ID: "s2"},
		})
		testee := girder.New(svr.URL+"/api/v1", "tok", nil)

		try.To(testee.CreateSession(
			context.Background(),
			girder.SessionRequest{DataSet: []girder.DataSetEntry{
				{ItemID: "i1", MountPath: "/a"},
			}},
		)).OrFatal(t)

		expected := map[string]string{"dataSet": `[{"itemId":"i1","mountPath":"/a"}]`}
		if got := (*reqs)[0].query; !cmp.MapEq(got, expected) {
			t.Errorf("unexpected query: (actual, expected) = (%v, %v)", got, expected)
		}
	})
}

func TestUpdateJob(t *testing.T) {
	svr, reqs := server(t, map[string]any{
		"PUT /api/v1/job/j1": map[string]any{"_id": "j1"},
	})
	testee := girder.New(svr.URL+"/api/v1", "tok", nil)

	if err := testee.UpdateJob(context.Background(), "j1", girder.JobUpdate{
		Status:          girder.JobRunning,
		ProgressTotal:   4,
		ProgressCurrent: 1,
		ProgressMessage: "Gathering basic info about the dataset",
		Notify:          true,
	}); err != nil {
		t.Fatal(err)
	}

	expected := map[string]string{
		"status":          "2",
		"progressTotal":   "4",
		"progressCurrent": "1",
		"progressMessage": "Gathering basic info about the dataset",
		"notify":          "true",
	}
	if got := (*reqs)[0].query; !cmp.MapEq(got, expected) {
		t.Errorf("unexpected query: (actual, expected) = (%v, %v)", got, expected)
	}
}

func TestLoadOrCreateFolder(t *testing.T) {
	svr, reqs := server(t, map[string]any{
		"POST /api/v1/folder": girder.Folder{ID: "home", Name: "Home"},
	})
	testee := girder.New(svr.URL+"/api/v1", "tok", nil)

	actual := try.To(testee.LoadOrCreateFolder(context.Background(), "Home", "u1", girder.ParentUser)).OrFatal(t)
	if actual.ID != "home" {
		t.Errorf("unexpected folder: %+v", actual)
	}
	expected := map[string]string{
		"name": "Home", "parentId": "u1", "parentType": "user", "reuseExisting": "true",
	}
	if got := (*reqs)[0].query; !cmp.MapEq(got, expected) {
		t.Errorf("unexpected query: (actual, expected) = (%v, %v)", got, expected)
	}
}

func TestPutTaleDocument(t *testing.T) {
	svr, reqs := server(t, map[string]any{
		"PUT /api/v1/tale/t1": map[string]any{"_id": "t1", "published": true},
	})
	testee := girder.New(svr.URL+"/api/v1", "tok", nil)

	doc := map[string]any{"_id": "t1", "published": true, "unknownField": "kept"}
	try.To(testee.PutTaleDocument(context.Background(), "t1", doc)).OrFatal(t)

	sent := map[string]any{}
	if err := json.Unmarshal((*reqs)[0].body, &sent); err != nil {
		t.Fatal(err)
	}
	if sent["unknownField"] != "kept" || sent["published"] != true {
		t.Errorf("unexpected body: %s", (*reqs)[0].body)
	}
}

func TestDownloadFolderRecursive(t *testing.T) {
	svr, _ := server(t, map[string]any{
		"GET /api/v1/folder": []girder.Folder{},
		"GET /api/v1/item": []girder.Item{
			{ID: "i1", Name: "README.md"},
			{ID: "i2", Name: "bundle"},
		},
		"GET /api/v1/item/i1/files": []girder.File{{ID: "f1", Name: "README.md"}},
		"GET /api/v1/item/i2/files": []girder.File{
			{ID: "f2", Name: "a.txt"}, {ID: "f3", Name: "b.txt"},
		},
		"GET /api/v1/file/f1/download": []byte("# readme"),
		"GET /api/v1/file/f2/download": []byte("a"),
		"GET /api/v1/file/f3/download": []byte("b"),
	})
	testee := girder.New(svr.URL+"/api/v1", "tok", nil)

	dest := filepath.Join(t.TempDir(), "narrative")
	if err := testee.DownloadFolderRecursive(context.Background(), "root", dest); err != nil {
		t.Fatal(err)
	}

	for name, content := range map[string]string{
		"README.md":    "# readme",
		"bundle/a.txt": "a",
		"bundle/b.txt": "b",
	} {
		got := try.To(os.ReadFile(filepath.Join(dest, name))).OrFatal(t)
		if string(got) != content {
			t.Errorf("%s: unexpected content: %q", name, got)
		}
	}
}

func TestGetImage(t *testing.T) {
	for name, testcase := range map[string]struct {
		when []byte
		then girder.Quantity
	}{
		"memLimit in size notation": {
			when: []byte(`{"_id": "image-1", "config": {"memLimit": "2g", "cpuShares": "512"}}`),
			then: "2g",
		},
		"memLimit in bytes": {
			when: []byte(`{"_id": "image-1", "config": {"memLimit": 1073741824, "cpuShares": 512}}`),
			then: "1073741824",
		},
	} {
		t.Run(name, func(t *testing.T) {
			svr, _ := server(t, map[string]any{
				"GET /api/v1/image/image-1": testcase.when,
			})
			testee := girder.New(svr.URL+"/api/v1", "tok", nil)

			actual := try.To(testee.GetImage(context.Background(), "image-1")).OrFatal(t)
			if actual.Config == nil || actual.Config.MemLimit == nil || *actual.Config.MemLimit != testcase.then {
				t.Fatalf("unexpected config: %+v", actual.Config)
			}
			if actual.Config.CPUShares == nil || *actual.Config.CPUShares != "512" {
				t.Errorf("unexpected cpuShares: %+v", actual.Config.CPUShares)
			}
		})
	}

	t.Run("memLimit of other types is an error", func(t *testing.T) {
		svr, _ := server(t, map[string]any{
			"GET /api/v1/image/image-1": []byte(`{"_id": "image-1", "config": {"memLimit": [1]}}`),
		})
		testee := girder.New(svr.URL+"/api/v1", "tok", nil)

		if _, err := testee.GetImage(context.Background(), "image-1"); err == nil {
			t.Error("expected error")
		}
	})
}
