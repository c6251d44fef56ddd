// Package girder is a client of the Girder REST API as used by Whole Tale.
//
// Requests are authenticated with a Girder token. Non-2xx responses are
// returned as *HttpError.
package girder

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	xe "github.com/whole-tale/gwvolman/pkg/errors"
)

// TokenHeader is the header which Girder reads its token from.
const TokenHeader = "Girder-Token"

type Client interface {
	// Me returns the user of the token.
	//
	// When the token does not belong to any user, it returns (nil, nil).
	Me(ctx context.Context) (*User, error)
	GetUser(ctx context.Context, userId string) (User, error)

	GetInstance(ctx context.Context, instanceId string) (Instance, error)

	// CreateInstance spawns a new Instance of the Tale.
	CreateInstance(ctx context.Context, taleId string) (Instance, error)

	GetTale(ctx context.Context, taleId string) (Tale, error)

	// GetTaleDocument returns the Tale as it is, including fields Tale does not know.
	GetTaleDocument(ctx context.Context, taleId string) (map[string]any, error)

	// PutTaleDocument replaces the Tale with doc.
	PutTaleDocument(ctx context.Context, taleId string, doc map[string]any) (map[string]any, error)

	CreateTale(ctx context.Context, doc map[string]any) (map[string]any, error)

	// GetTaleManifest returns the manifest (json-ld) of the Tale.
	GetTaleManifest(ctx context.Context, taleId string) ([]byte, error)

	GetImage(ctx context.Context, imageId string) (Image, error)
	GetRecipe(ctx context.Context, recipeId string) (Recipe, error)

	GetFolder(ctx context.Context, folderId string) (Folder, error)

	// ListFolders returns child folders of a parent. Empty name matches any.
	ListFolders(ctx context.Context, parentType string, parentId string, name string) ([]Folder, error)

	// ListItems returns items in a folder. Empty name matches any.
	ListItems(ctx context.Context, folderId string, name string) ([]Item, error)

	// LoadOrCreateFolder returns the folder named so under the parent, creating it when missing.
	LoadOrCreateFolder(ctx context.Context, name string, parentId string, parentType string) (Folder, error)

	GetItem(ctx context.Context, itemId string) (Item, error)
	ListFiles(ctx context.Context, itemId string) ([]File, error)

	// DownloadFile streams the content of a file to handler.
	DownloadFile(ctx context.Context, fileId string, handler func(io.Reader) error) error

	// DownloadFolderRecursive writes the folder tree into dest.
	DownloadFolderRecursive(ctx context.Context, folderId string, dest string) error

	ListApiKeys(ctx context.Context) ([]ApiKey, error)
	CreateApiKey(ctx context.Context, name string, active bool) (ApiKey, error)

	// CreateSession starts a data-management session.
	CreateSession(ctx context.Context, req SessionRequest) (DMSession, error)
	DeleteSession(ctx context.Context, sessionId string) error

	// LookupRepository resolves external data ids into a data map.
	LookupRepository(ctx context.Context, query url.Values) ([]map[string]any, error)
	RegisterDataset(ctx context.Context, dataMap []map[string]any) error

	// LookupResource finds a resource by its Girder path.
	LookupResource(ctx context.Context, path string) (Resource, error)

	UpdateJob(ctx context.Context, jobId string, update JobUpdate) error
}

// SessionRequest is either of TaleID or DataSet.
type SessionRequest struct {
	TaleID  string
	DataSet []DataSetEntry
}

type client struct {
	httpclient *http.Client
	api        string
	token      string
}

// New creates a Girder client.
//
// # Args
//
// - apiUrl: base url of the Girder API, like "https://girder.example.com/api/v1".
//
// - token: Girder token.
//
// - httpclient: optional. When nil, http.DefaultClient is used.
func New(apiUrl string, token string, httpclient *http.Client) Client {
	if httpclient == nil {
		httpclient = http.DefaultClient
	}
	return &client{
		httpclient: httpclient,
		api:        strings.TrimSuffix(apiUrl, "/"),
		token:      token,
	}
}

func (c *client) apipath(p ...string) string {
	elems := make([]string, 0, len(p))
	for _, e := range p {
		elems = append(elems, url.PathEscape(strings.Trim(e, "/")))
	}
	return c.api + "/" + strings.Join(elems, "/")
}

func (c *client) request(
	ctx context.Context, method string, path string, query url.Values, body any,
) (*http.Response, error) {
	u := path
	if len(query) != 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, xe.Wrap(err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set(TokenHeader, c.token)
	}

	resp, err := c.httpclient.Do(req)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return resp, nil
}

func doJson[T any](
	ctx context.Context, c *client, method string, path string, query url.Values, body any,
) (T, error) {
	var v T
	resp, err := c.request(ctx, method, path, query, body)
	if err != nil {
		return v, err
	}
	defer resp.Body.Close()
	if err := unmarshalJsonResponse(resp, &v); err != nil {
		return v, xe.Wrap(err)
	}
	return v, nil
}

func doDiscard(
	ctx context.Context, c *client, method string, path string, query url.Values,
) error {
	resp, err := c.request(ctx, method, path, query, nil)
	if err != nil {
		return err
	}
	return xe.Wrap(unmarshalResponseDiscardingPayload(resp))
}

func (c *client) Me(ctx context.Context) (*User, error) {
	return doJson[*User](ctx, c, http.MethodGet, c.apipath("user", "me"), nil, nil)
}

func (c *client) GetUser(ctx context.Context, userId string) (User, error) {
	return doJson[User](ctx, c, http.MethodGet, c.apipath("user", userId), nil, nil)
}

func (c *client) GetInstance(ctx context.Context, instanceId string) (Instance, error) {
	return doJson[Instance](ctx, c, http.MethodGet, c.apipath("instance", instanceId), nil, nil)
}

func (c *client) CreateInstance(ctx context.Context, taleId string) (Instance, error) {
	return doJson[Instance](
		ctx, c, http.MethodPost, c.apipath("instance"),
		url.Values{"taleId": {taleId}}, nil,
	)
}

func (c *client) GetTale(ctx context.Context, taleId string) (Tale, error) {
	return doJson[Tale](ctx, c, http.MethodGet, c.apipath("tale", taleId), nil, nil)
}

func (c *client) GetTaleDocument(ctx context.Context, taleId string) (map[string]any, error) {
	return doJson[map[string]any](ctx, c, http.MethodGet, c.apipath("tale", taleId), nil, nil)
}

func (c *client) PutTaleDocument(ctx context.Context, taleId string, doc map[string]any) (map[string]any, error) {
	return doJson[map[string]any](ctx, c, http.MethodPut, c.apipath("tale", taleId), nil, doc)
}

func (c *client) CreateTale(ctx context.Context, doc map[string]any) (map[string]any, error) {
	return doJson[map[string]any](ctx, c, http.MethodPost, c.apipath("tale"), nil, doc)
}

func (c *client) GetTaleManifest(ctx context.Context, taleId string) ([]byte, error) {
	raw, err := doJson[json.RawMessage](
		ctx, c, http.MethodGet, c.apipath("tale", taleId, "manifest"), nil, nil,
	)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *client) GetImage(ctx context.Context, imageId string) (Image, error) {
	return doJson[Image](ctx, c, http.MethodGet, c.apipath("image", imageId), nil, nil)
}

func (c *client) GetRecipe(ctx context.Context, recipeId string) (Recipe, error) {
	return doJson[Recipe](ctx, c, http.MethodGet, c.apipath("recipe", recipeId), nil, nil)
}

func (c *client) GetFolder(ctx context.Context, folderId string) (Folder, error) {
	return doJson[Folder](ctx, c, http.MethodGet, c.apipath("folder", folderId), nil, nil)
}

func (c *client) ListFolders(ctx context.Context, parentType string, parentId string, name string) ([]Folder, error) {
	q := url.Values{
		"parentType": {parentType},
		"parentId":   {parentId},
		"limit":      {"0"},
	}
	if name != "" {
		q.Set("name", name)
	}
	return doJson[[]Folder](ctx, c, http.MethodGet, c.apipath("folder"), q, nil)
}

func (c *client) ListItems(ctx context.Context, folderId string, name string) ([]Item, error) {
	q := url.Values{
		"folderId": {folderId},
		"limit":    {"0"},
	}
	if name != "" {
		q.Set("name", name)
	}
	return doJson[[]Item](ctx, c, http.MethodGet, c.apipath("item"), q, nil)
}

func (c *client) LoadOrCreateFolder(ctx context.Context, name string, parentId string, parentType string) (Folder, error) {
	return doJson[Folder](
		ctx, c, http.MethodPost, c.apipath("folder"),
		url.Values{
			"name":          {name},
			"parentId":      {parentId},
			"parentType":    {parentType},
			"reuseExisting": {"true"},
		},
		nil,
	)
}

func (c *client) GetItem(ctx context.Context, itemId string) (Item, error) {
	return doJson[Item](ctx, c, http.MethodGet, c.apipath("item", itemId), nil, nil)
}

func (c *client) ListFiles(ctx context.Context, itemId string) ([]File, error) {
	return doJson[[]File](
		ctx, c, http.MethodGet, c.apipath("item", itemId, "files"),
		url.Values{"limit": {"0"}}, nil,
	)
}

func (c *client) DownloadFile(ctx context.Context, fileId string, handler func(io.Reader) error) error {
	resp, err := c.request(ctx, http.MethodGet, c.apipath("file", fileId, "download"), nil, nil)
	if err != nil {
		return err
	}
	body, err := unmarshalStreamResponse(resp)
	if err != nil {
		return xe.Wrap(err)
	}
	defer body.Close()
	return handler(body)
}

func (c *client) ListApiKeys(ctx context.Context) ([]ApiKey, error) {
	return doJson[[]ApiKey](
		ctx, c, http.MethodGet, c.apipath("api_key"),
		url.Values{"limit": {"0"}}, nil,
	)
}

func (c *client) CreateApiKey(ctx context.Context, name string, active bool) (ApiKey, error) {
	a := "false"
	if active {
		a = "true"
	}
	return doJson[ApiKey](
		ctx, c, http.MethodPost, c.apipath("api_key"),
		url.Values{"name": {name}, "active": {a}}, nil,
	)
}

func (c *client) CreateSession(ctx context.Context, req SessionRequest) (DMSession, error) {
	q := url.Values{}
	if req.TaleID != "" {
		q.Set("taleId", req.TaleID)
	} else {
		ds := req.DataSet
		if ds == nil {
			ds = []DataSetEntry{}
		}
		buf, err := json.Marshal(ds)
		if err != nil {
			return DMSession{}, xe.Wrap(err)
		}
		q.Set("dataSet", string(buf))
	}
	return doJson[DMSession](ctx, c, http.MethodPost, c.apipath("dm", "session"), q, nil)
}

func (c *client) DeleteSession(ctx context.Context, sessionId string) error {
	return doDiscard(ctx, c, http.MethodDelete, c.apipath("dm", "session", sessionId), nil)
}

func (c *client) LookupRepository(ctx context.Context, query url.Values) ([]map[string]any, error) {
	return doJson[[]map[string]any](
		ctx, c, http.MethodGet, c.apipath("repository", "lookup"), query, nil,
	)
}

func (c *client) RegisterDataset(ctx context.Context, dataMap []map[string]any) error {
	buf, err := json.Marshal(dataMap)
	if err != nil {
		return xe.Wrap(err)
	}
	return doDiscard(
		ctx, c, http.MethodPost, c.apipath("dataset", "register"),
		url.Values{"dataMap": {string(buf)}},
	)
}

func (c *client) LookupResource(ctx context.Context, path string) (Resource, error) {
	return doJson[Resource](
		ctx, c, http.MethodGet, c.apipath("resource", "lookup"),
		url.Values{"path": {path}}, nil,
	)
}
