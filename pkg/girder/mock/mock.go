package mock

import (
	"context"
	"io"
	"net/url"
	"testing"

	"github.com/whole-tale/gwvolman/pkg/girder"
)

type ListFoldersArgs struct {
	ParentType string
	ParentId   string
	Name       string
}

type ListItemsArgs struct {
	FolderId string
	Name     string
}

type LoadOrCreateFolderArgs struct {
	Name       string
	ParentId   string
	ParentType string
}

type DownloadFolderRecursiveArgs struct {
	FolderId string
	Dest     string
}

type PutTaleDocumentArgs struct {
	TaleId string
	Doc    map[string]any
}

type CreateApiKeyArgs struct {
	Name   string
	Active bool
}

type UpdateJobArgs struct {
	JobId  string
	Update girder.JobUpdate
}

func New(t *testing.T) *MockClient {
	return &MockClient{t: t}
}

type MockClient struct {
	t    *testing.T
	Impl struct {
		Me                      func(ctx context.Context) (*girder.User, error)
		GetUser                 func(ctx context.Context, userId string) (girder.User, error)
		GetInstance             func(ctx context.Context, instanceId string) (girder.Instance, error)
		CreateInstance          func(ctx context.Context, taleId string) (girder.Instance, error)
		GetTale                 func(ctx context.Context, taleId string) (girder.Tale, error)
		GetTaleDocument         func(ctx context.Context, taleId string) (map[string]any, error)
		PutTaleDocument         func(ctx context.Context, taleId string, doc map[string]any) (map[string]any, error)
		CreateTale              func(ctx context.Context, doc map[string]any) (map[string]any, error)
		GetTaleManifest         func(ctx context.Context, taleId string) ([]byte, error)
		GetImage                func(ctx context.Context, imageId string) (girder.Image, error)
		GetRecipe               func(ctx context.Context, recipeId string) (girder.Recipe, error)
		GetFolder               func(ctx context.Context, folderId string) (girder.Folder, error)
		ListFolders             func(ctx context.Context, parentType string, parentId string, name string) ([]girder.Folder, error)
		ListItems               func(ctx context.Context, folderId string, name string) ([]girder.Item, error)
		LoadOrCreateFolder      func(ctx context.Context, name string, parentId string, parentType string) (girder.Folder, error)
		GetItem                 func(ctx context.Context, itemId string) (girder.Item, error)
		ListFiles               func(ctx context.Context, itemId string) ([]girder.File, error)
		DownloadFile            func(ctx context.Context, fileId string, handler func(io.Reader) error) error
		DownloadFolderRecursive func(ctx context.Context, folderId string, dest string) error
		ListApiKeys             func(ctx context.Context) ([]girder.ApiKey, error)
		CreateApiKey            func(ctx context.Context, name string, active bool) (girder.ApiKey, error)
		CreateSession           func(ctx context.Context, req girder.SessionRequest) (girder.DMSession, error)
		DeleteSession           func(ctx context.Context, sessionId string) error
		LookupRepository        func(ctx context.Context, query url.Values) ([]map[string]any, error)
		RegisterDataset         func(ctx context.Context, dataMap []map[string]any) error
		LookupResource          func(ctx context.Context, path string) (girder.Resource, error)
		UpdateJob               func(ctx context.Context, jobId string, update girder.JobUpdate) error
	}
	Calls struct {
		Me                      int
		GetUser                 []string
		GetInstance             []string
		CreateInstance          []string
		GetTale                 []string
		GetTaleDocument         []string
		PutTaleDocument         []PutTaleDocumentArgs
		CreateTale              []map[string]any
		GetTaleManifest         []string
		GetImage                []string
		GetRecipe               []string
		GetFolder               []string
		ListFolders             []ListFoldersArgs
		ListItems               []ListItemsArgs
		LoadOrCreateFolder      []LoadOrCreateFolderArgs
		GetItem                 []string
		ListFiles               []string
		DownloadFile            []string
		DownloadFolderRecursive []DownloadFolderRecursiveArgs
		ListApiKeys             int
		CreateApiKey            []CreateApiKeyArgs
		CreateSession           []girder.SessionRequest
		DeleteSession           []string
		LookupRepository        []url.Values
		RegisterDataset         [][]map[string]any
		LookupResource          []string
		UpdateJob               []UpdateJobArgs
	}
}

var _ girder.Client = &MockClient{}

func (m *MockClient) Me(ctx context.Context) (*girder.User, error) {
	m.t.Helper()
	m.Calls.Me += 1
	if m.Impl.Me == nil {
		m.t.Fatal("Me is not ready to be called")
	}
	return m.Impl.Me(ctx)
}

func (m *MockClient) GetUser(ctx context.Context, userId string) (girder.User, error) {
	m.t.Helper()
	m.Calls.GetUser = append(m.Calls.GetUser, userId)
	if m.Impl.GetUser == nil {
		m.t.Fatal("GetUser is not ready to be called")
	}
	return m.Impl.GetUser(ctx, userId)
}

func (m *MockClient) GetInstance(ctx context.Context, instanceId string) (girder.Instance, error) {
	m.t.Helper()
	m.Calls.GetInstance = append(m.Calls.GetInstance, instanceId)
	if m.Impl.GetInstance == nil {
		m.t.Fatal("GetInstance is not ready to be called")
	}
	return m.Impl.GetInstance(ctx, instanceId)
}

func (m *MockClient) CreateInstance(ctx context.Context, taleId string) (girder.Instance, error) {
	m.t.Helper()
	m.Calls.CreateInstance = append(m.Calls.CreateInstance, taleId)
	if m.Impl.CreateInstance == nil {
		m.t.Fatal("CreateInstance is not ready to be called")
	}
	return m.Impl.CreateInstance(ctx, taleId)
}

func (m *MockClient) GetTale(ctx context.Context, taleId string) (girder.Tale, error) {
	m.t.Helper()
	m.Calls.GetTale = append(m.Calls.GetTale, taleId)
	if m.Impl.GetTale == nil {
		m.t.Fatal("GetTale is not ready to be called")
	}
	return m.Impl.GetTale(ctx, taleId)
}

func (m *MockClient) GetTaleDocument(ctx context.Context, taleId string) (map[string]any, error) {
	m.t.Helper()
	m.Calls.GetTaleDocument = append(m.Calls.GetTaleDocument, taleId)
	if m.Impl.GetTaleDocument == nil {
		m.t.Fatal("GetTaleDocument is not ready to be called")
	}
	return m.Impl.GetTaleDocument(ctx, taleId)
}

func (m *MockClient) PutTaleDocument(ctx context.Context, taleId string, doc map[string]any) (map[string]any, error) {
	m.t.Helper()
	m.Calls.PutTaleDocument = append(m.Calls.PutTaleDocument, PutTaleDocumentArgs{TaleId: taleId, Doc: doc})
	if m.Impl.PutTaleDocument == nil {
		m.t.Fatal("PutTaleDocument is not ready to be called")
	}
	return m.Impl.PutTaleDocument(ctx, taleId, doc)
}

func (m *MockClient) CreateTale(ctx context.Context, doc map[string]any) (map[string]any, error) {
	m.t.Helper()
	m.Calls.CreateTale = append(m.Calls.CreateTale, doc)
	if m.Impl.CreateTale == nil {
		m.t.Fatal("CreateTale is not ready to be called")
	}
	return m.Impl.CreateTale(ctx, doc)
}

func (m *MockClient) GetTaleManifest(ctx context.Context, taleId string) ([]byte, error) {
	m.t.Helper()
	m.Calls.GetTaleManifest = append(m.Calls.GetTaleManifest, taleId)
	if m.Impl.GetTaleManifest == nil {
		m.t.Fatal("GetTaleManifest is not ready to be called")
	}
	return m.Impl.GetTaleManifest(ctx, taleId)
}

func (m *MockClient) GetImage(ctx context.Context, imageId string) (girder.Image, error) {
	m.t.Helper()
	m.Calls.GetImage = append(m.Calls.GetImage, imageId)
	if m.Impl.GetImage == nil {
		m.t.Fatal("GetImage is not ready to be called")
	}
	return m.Impl.GetImage(ctx, imageId)
}

func (m *MockClient) GetRecipe(ctx context.Context, recipeId string) (girder.Recipe, error) {
	m.t.Helper()
	m.Calls.GetRecipe = append(m.Calls.GetRecipe, recipeId)
	if m.Impl.GetRecipe == nil {
		m.t.Fatal("GetRecipe is not ready to be called")
	}
	return m.Impl.GetRecipe(ctx, recipeId)
}

func (m *MockClient) GetFolder(ctx context.Context, folderId string) (girder.Folder, error) {
	m.t.Helper()
	m.Calls.GetFolder = append(m.Calls.GetFolder, folderId)
	if m.Impl.GetFolder == nil {
		m.t.Fatal("GetFolder is not ready to be called")
	}
	return m.Impl.GetFolder(ctx, folderId)
}

func (m *MockClient) ListFolders(ctx context.Context, parentType string, parentId string, name string) ([]girder.Folder, error) {
	m.t.Helper()
	m.Calls.ListFolders = append(m.Calls.ListFolders, ListFoldersArgs{ParentType: parentType, ParentId: parentId, Name: name})
	if m.Impl.ListFolders == nil {
		m.t.Fatal("ListFolders is not ready to be called")
	}
	return m.Impl.ListFolders(ctx, parentType, parentId, name)
}

func (m *MockClient) ListItems(ctx context.Context, folderId string, name string) ([]girder.Item, error) {
	m.t.Helper()
	m.Calls.ListItems = append(m.Calls.ListItems, ListItemsArgs{FolderId: folderId, Name: name})
	if m.Impl.ListItems == nil {
		m.t.Fatal("ListItems is not ready to be called")
	}
	return m.Impl.ListItems(ctx, folderId, name)
}

func (m *MockClient) LoadOrCreateFolder(ctx context.Context, name string, parentId string, parentType string) (girder.Folder, error) {
	m.t.Helper()
	m.Calls.LoadOrCreateFolder = append(
		m.Calls.LoadOrCreateFolder,
		LoadOrCreateFolderArgs{Name: name, ParentId: parentId, ParentType: parentType},
	)
	if m.Impl.LoadOrCreateFolder == nil {
		m.t.Fatal("LoadOrCreateFolder is not ready to be called")
	}
	return m.Impl.LoadOrCreateFolder(ctx, name, parentId, parentType)
}

func (m *MockClient) GetItem(ctx context.Context, itemId string) (girder.Item, error) {
	m.t.Helper()
	m.Calls.GetItem = append(m.Calls.GetItem, itemId)
	if m.Impl.GetItem == nil {
		m.t.Fatal("GetItem is not ready to be called")
	}
	return m.Impl.GetItem(ctx, itemId)
}

func (m *MockClient) ListFiles(ctx context.Context, itemId string) ([]girder.File, error) {
	m.t.Helper()
	m.Calls.ListFiles = append(m.Calls.ListFiles, itemId)
	if m.Impl.ListFiles == nil {
		m.t.Fatal("ListFiles is not ready to be called")
	}
	return m.Impl.ListFiles(ctx, itemId)
}

func (m *MockClient) DownloadFile(ctx context.Context, fileId string, handler func(io.Reader) error) error {
	m.t.Helper()
	m.Calls.DownloadFile = append(m.Calls.DownloadFile, fileId)
	if m.Impl.DownloadFile == nil {
		m.t.Fatal("DownloadFile is not ready to be called")
	}
	return m.Impl.DownloadFile(ctx, fileId, handler)
}

func (m *MockClient) DownloadFolderRecursive(ctx context.Context, folderId string, dest string) error {
	m.t.Helper()
	m.Calls.DownloadFolderRecursive = append(
		m.Calls.DownloadFolderRecursive,
		DownloadFolderRecursiveArgs{FolderId: folderId, Dest: dest},
	)
	if m.Impl.DownloadFolderRecursive == nil {
		m.t.Fatal("DownloadFolderRecursive is not ready to be called")
	}
	return m.Impl.DownloadFolderRecursive(ctx, folderId, dest)
}

func (m *MockClient) ListApiKeys(ctx context.Context) ([]girder.ApiKey, error) {
	m.t.Helper()
	m.Calls.ListApiKeys += 1
	if m.Impl.ListApiKeys == nil {
		m.t.Fatal("ListApiKeys is not ready to be called")
	}
	return m.Impl.ListApiKeys(ctx)
}

func (m *MockClient) CreateApiKey(ctx context.Context, name string, active bool) (girder.ApiKey, error) {
	m.t.Helper()
	m.Calls.CreateApiKey = append(m.Calls.CreateApiKey, CreateApiKeyArgs{Name: name, Active: active})
	if m.Impl.CreateApiKey == nil {
		m.t.Fatal("CreateApiKey is not ready to be called")
	}
	return m.Impl.CreateApiKey(ctx, name, active)
}

func (m *MockClient) CreateSession(ctx context.Context, req girder.SessionRequest) (girder.DMSession, error) {
	m.t.Helper()
	m.Calls.CreateSession = append(m.Calls.CreateSession, req)
	if m.Impl.CreateSession == nil {
		m.t.Fatal("CreateSession is not ready to be called")
	}
	return m.Impl.CreateSession(ctx, req)
}

func (m *MockClient) DeleteSession(ctx context.Context, sessionId string) error {
	m.t.Helper()
	m.Calls.DeleteSession = append(m.Calls.DeleteSession, sessionId)
	if m.Impl.DeleteSession == nil {
		m.t.Fatal("DeleteSession is not ready to be called")
	}
	return m.Impl.DeleteSession(ctx, sessionId)
}

func (m *MockClient) LookupRepository(ctx context.Context, query url.Values) ([]map[string]any, error) {
	m.t.Helper()
	m.Calls.LookupRepository = append(m.Calls.LookupRepository, query)
	if m.Impl.LookupRepository == nil {
		m.t.Fatal("LookupRepository is not ready to be called")
	}
	return m.Impl.LookupRepository(ctx, query)
}

func (m *MockClient) RegisterDataset(ctx context.Context, dataMap []map[string]any) error {
	m.t.Helper()
	m.Calls.RegisterDataset = append(m.Calls.RegisterDataset, dataMap)
	if m.Impl.RegisterDataset == nil {
		m.t.Fatal("RegisterDataset is not ready to be called")
	}
	return m.Impl.RegisterDataset(ctx, dataMap)
}

func (m *MockClient) LookupResource(ctx context.Context, path string) (girder.Resource, error) {
	m.t.Helper()
	m.Calls.LookupResource = append(m.Calls.LookupResource, path)
	if m.Impl.LookupResource == nil {
		m.t.Fatal("LookupResource is not ready to be called")
	}
	return m.Impl.LookupResource(ctx, path)
}

func (m *MockClient) UpdateJob(ctx context.Context, jobId string, update girder.JobUpdate) error {
	m.t.Helper()
	m.Calls.UpdateJob = append(m.Calls.UpdateJob, UpdateJobArgs{JobId: jobId, Update: update})
	if m.Impl.UpdateJob == nil {
		m.t.Fatal("UpdateJob is not ready to be called")
	}
	return m.Impl.UpdateJob(ctx, jobId, update)
}
