// Package publish publishes tales to DataONE as packages.
//
// A package is made of the tale's files, its manifest, license and compute
// environment, an EML record describing them, and a resource map which
// aggregates everything.
package publish

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/whole-tale/gwvolman/pkg/dataone"
	xe "github.com/whole-tale/gwvolman/pkg/errors"
	"github.com/whole-tale/gwvolman/pkg/girder"
)

var (
	ErrNoFiles      = errors.New("There are no files in the Tale.")
	ErrTaleNotFound = errors.New("Failed to retrieve Tale.")
	ErrLicense      = errors.New("There was an error processing the license.")
)

// Request is the argument of task "publish".
type Request struct {
	ItemIDs          []string       `json:"itemIds"`
	TaleID           string         `json:"taleId"`
	DataONENode      string         `json:"dataoneNode"`
	DataONEAuthToken string         `json:"dataoneAuthToken"`
	UserID           string         `json:"userId"`
	ProvInfo         map[string]any `json:"provInfo,omitempty"`
	LicenseID        string         `json:"licenseId"`
}

type Result struct {
	ResourceMapPid string `json:"resourceMapPid"`
	EMLPid         string `json:"emlPid"`
	PackageURL     string `json:"packageUrl"`
}

// Progress receives progress of publishing, in percent.
type Progress func(ctx context.Context, current float64, message string)

type Publisher struct {
	Girder girder.Client

	// MemberNode connects to a member node with a DataONE token.
	MemberNode func(url string, token string) dataone.MemberNode

	// Formats lists formats which DataONE supports.
	//
	// When it is nil or fails, mimetypes are used as they are.
	Formats func(ctx context.Context) (dataone.Formats, error)

	// HttpClient downloads remote files and recipes.
	HttpClient *http.Client

	// Resolver is a url prefix of DataONE identifiers.
	Resolver string

	// TmpDir is where files are downloaded before upload. Empty means os.TempDir.
	TmpDir string

	Logger *log.Logger
}

// New returns a Publisher which talks to DataONE through coordinatingNode.
func New(gc girder.Client, coordinatingNode string, httpclient *http.Client, logger *log.Logger) *Publisher {
	if httpclient == nil {
		httpclient = http.DefaultClient
	}
	cn := strings.TrimSuffix(coordinatingNode, "/")
	return &Publisher{
		Girder: gc,
		MemberNode: func(url, token string) dataone.MemberNode {
			return dataone.NewMemberNode(url, token, httpclient)
		},
		Formats: func(ctx context.Context) (dataone.Formats, error) {
			return dataone.ListFormats(ctx, httpclient, cn)
		},
		HttpClient: httpclient,
		Resolver:   cn + "/v2/resolve/",
		Logger:     logger,
	}
}

// publication is a state of a running Publish.
type publication struct {
	*Publisher
	mn           dataone.MemberNode
	formats      dataone.Formats
	rightsHolder string
	progress     Progress
	current      float64
}

func (p *publication) report(ctx context.Context, message string) {
	p.progress(ctx, p.current, message)
}

func (p *publication) format(mimetype string) string {
	if p.formats != nil {
		return p.formats.FormatOf(mimetype)
	}
	if mimetype == "" {
		return dataone.FormatOctetStream
	}
	return mimetype
}

// Publish uploads items of a tale with its metadata to a member node, and
// marks the tale published.
func (p *Publisher) Publish(ctx context.Context, req Request, progress Progress) (Result, error) {
	if len(req.ItemIDs) == 0 {
		return Result{}, ErrNoFiles
	}

	pub := &publication{Publisher: p, progress: progress, current: 5}
	pub.report(ctx, "Establishing external connections")

	doc, err := p.Girder.GetTaleDocument(ctx, req.TaleID)
	if err != nil {
		return Result{}, xe.Wrap(err)
	}
	if len(doc) == 0 {
		return Result{}, ErrTaleNotFound
	}
	tale, err := taleOf(doc)
	if err != nil {
		return Result{}, err
	}
	user, err := p.Girder.GetUser(ctx, req.UserID)
	if err != nil {
		return Result{}, xe.Wrap(err)
	}

	pub.mn = p.MemberNode(req.DataONENode, req.DataONEAuthToken)
	claims, err := dataone.ParseClaims(req.DataONEAuthToken)
	if err != nil {
		return Result{}, err
	}
	pub.rightsHolder = claims.UserID

	license, err := dataone.LicenseOf(req.LicenseID)
	if err != nil {
		return Result{}, errors.Join(ErrLicense, err)
	}

	if p.Formats != nil {
		if f, err := p.Formats(ctx); err != nil {
			p.Logger.Printf("failed to list DataONE formats: %s", err)
		} else {
			pub.formats = f
		}
	}

	pub.current += 10
	pub.report(ctx, "Processing files")
	items, err := classify(ctx, p.Girder, req.ItemIDs)
	if err != nil {
		return Result{}, err
	}

	step := 0.0
	if n := items.uploads(); n > 0 {
		step = 40 / float64(n)
	} else {
		pub.current += 40
	}
	pub.current += 5

	entities := []dataone.Entity{}
	for _, e := range items.DataONE {
		entities = append(entities, pub.entity(e.File))
	}

	localPids := []string{}
	for _, e := range items.Local {
		pid, err := pub.uploadLocal(ctx, e.File)
		if err != nil {
			return Result{}, err
		}
		localPids = append(localPids, pid)
		entities = append(entities, pub.entity(e.File))
		pub.current += step
		pub.report(ctx, dataone.LocalFileProgressMessage(e.File.Name, e.File.Size))
	}

	remotePids := []string{}
	for _, e := range items.Remote {
		pid, err := pub.uploadRemote(ctx, e.File)
		if err != nil {
			return Result{}, err
		}
		remotePids = append(remotePids, pid)
		entities = append(entities, pub.entity(e.File))
		pub.current += step
		pub.report(ctx, dataone.SizeProgressMessage(e.File.Name, e.File.Size))
	}

	pub.report(ctx, "Generating tale metadata")
	manifest, err := p.Girder.GetTaleManifest(ctx, tale.ID)
	if err != nil {
		return Result{}, xe.Wrap(err)
	}
	manifestPid, err := pub.create(ctx, dataone.Object{
		Pid:      dataone.NewPid(),
		FormatID: "application/json",
		Name:     dataone.ManifestFileName,
		Content:  manifest,
	}, pub.rightsHolder)
	if err != nil {
		return Result{}, err
	}
	entities = append(entities, extraEntity(dataone.ManifestFileName, "application/json", int64(len(manifest))))

	pub.current += 5
	pub.report(ctx, "Generating licence information.")
	licenseText, err := license.Text()
	if err != nil {
		return Result{}, errors.Join(ErrLicense, err)
	}
	licensePid, err := pub.create(ctx, dataone.Object{
		Pid:      dataone.NewPid(),
		FormatID: "text/plain",
		Name:     dataone.LicenseFileName,
		Content:  licenseText,
	}, pub.rightsHolder)
	if err != nil {
		return Result{}, err
	}
	entities = append(entities, extraEntity(dataone.LicenseFileName, "text/plain", int64(len(licenseText))))

	pub.current += 10
	pub.report(ctx, "Uploading computing environment information.")
	repositoryPid, repositorySize := pub.uploadRepository(ctx, tale)
	if repositoryPid != "" {
		entities = append(entities, extraEntity(dataone.EnvironmentFileName, "application/x-gzip", repositorySize))
	}

	pub.current += 10
	pub.report(ctx, "Generating EML record.")
	creator := dataone.Person{GivenName: user.FirstName, SurName: user.LastName, UserID: claims.UserID}
	if creator.SurName == "" {
		creator = dataone.PersonOf(claims.FullName, claims.UserID)
	}
	emlPid := dataone.NewPid()
	eml, err := dataone.EML{
		PackageID: emlPid,
		Title:     tale.Title,
		Abstract:  tale.Description,
		Creator:   creator,
		License:   license,
		Entities:  entities,
	}.Marshal()
	if err != nil {
		return Result{}, xe.Wrap(err)
	}
	if _, err := pub.create(ctx, dataone.Object{
		Pid:      emlPid,
		FormatID: dataone.FormatEML,
		Name:     dataone.EMLFileName,
		Content:  eml,
	}, pub.rightsHolder); err != nil {
		return Result{}, err
	}

	objects := []string{}
	objects = append(objects, localPids...)
	objects = append(objects, items.dataonePids()...)
	objects = append(objects, remotePids...)
	objects = append(objects, manifestPid, licensePid, repositoryPid)
	objects = nonEmpty(objects)

	resmapPid := dataone.NewPid()
	pub.current += 10
	pub.report(ctx, "Uploading metadata records.")
	resmap, err := dataone.ResourceMap{
		Pid:         resmapPid,
		MetadataPid: emlPid,
		ObjectPids:  objects,
		Resolver:    p.Resolver,
	}.Marshal()
	if err != nil {
		return Result{}, xe.Wrap(err)
	}
	if _, err := pub.create(ctx, dataone.Object{
		Pid:      resmapPid,
		FormatID: dataone.FormatResourceMap,
		Content:  resmap,
	}, dataone.ResourceMapUser(claims.UserID)); err != nil {
		return Result{}, err
	}

	packageUrl := dataone.PackageURL(req.DataONENode, emlPid)
	pub.current = 100
	pub.report(ctx, "Your Tale has successfully been published to DataONE.")

	doc["published"] = true
	doc["publishedURI"] = packageUrl
	doc["doi"] = emlPid
	if _, err := p.Girder.PutTaleDocument(ctx, tale.ID, doc); err != nil {
		return Result{}, xe.Wrap(err)
	}

	return Result{ResourceMapPid: resmapPid, EMLPid: emlPid, PackageURL: packageUrl}, nil
}

func taleOf(doc map[string]any) (girder.Tale, error) {
	buf, err := json.Marshal(doc)
	if err != nil {
		return girder.Tale{}, xe.Wrap(err)
	}
	tale := girder.Tale{}
	if err := json.Unmarshal(buf, &tale); err != nil {
		return girder.Tale{}, xe.Wrap(err)
	}
	if tale.ID == "" {
		return girder.Tale{}, ErrTaleNotFound
	}
	return tale, nil
}

func nonEmpty(ss []string) []string {
	ret := make([]string, 0, len(ss))
	for _, s := range ss {
		if s != "" {
			ret = append(ret, s)
		}
	}
	return ret
}

func (p *publication) entity(f girder.File) dataone.Entity {
	return dataone.Entity{Name: f.Name, Size: f.Size, Format: p.format(f.MimeType)}
}

func extraEntity(name string, format string, size int64) dataone.Entity {
	return dataone.Entity{
		Name:        name,
		Description: dataone.FileDescriptions[name],
		Size:        size,
		Format:      format,
	}
}

// create uploads an object held in memory, and returns its pid.
func (p *publication) create(ctx context.Context, obj dataone.Object, rightsHolder string) (string, error) {
	if err := p.mn.Create(ctx, obj.Pid, bytes.NewReader(obj.Content), obj.SystemMetadata(rightsHolder)); err != nil {
		return "", xe.WrapWithNote(fmt.Sprintf("uploading %s", obj.Name), err)
	}
	return obj.Pid, nil
}

// createFromTemp spools content written by fill into a temporary file, then uploads it.
//
// It returns the pid and size of the uploaded object.
func (p *publication) createFromTemp(
	ctx context.Context, format string, name string, fill func(io.Writer) error,
) (string, int64, error) {
	tmp, err := os.CreateTemp(p.TmpDir, "publish-*")
	if err != nil {
		return "", 0, xe.Wrap(err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	h := md5.New()
	cw := &countingWriter{w: io.MultiWriter(tmp, h)}
	if err := fill(cw); err != nil {
		return "", 0, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", 0, xe.Wrap(err)
	}

	pid := dataone.NewPid()
	sysmeta := dataone.NewSystemMetadata(
		pid, format, cw.n, hex.EncodeToString(h.Sum(nil)), name, p.rightsHolder,
	)
	if err := p.mn.Create(ctx, pid, tmp, sysmeta); err != nil {
		return "", 0, xe.WrapWithNote(fmt.Sprintf("uploading %s", name), err)
	}
	return pid, cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	c.n += int64(n)
	return n, err
}

func (p *publication) uploadLocal(ctx context.Context, f girder.File) (string, error) {
	pid, _, err := p.createFromTemp(ctx, p.format(f.MimeType), f.Name, func(w io.Writer) error {
		return p.Girder.DownloadFile(ctx, f.ID, func(r io.Reader) error {
			_, err := io.Copy(w, r)
			return err
		})
	})
	return pid, err
}

func (p *publication) download(ctx context.Context, url string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return xe.Wrap(err)
	}
	resp, err := p.HttpClient.Do(req)
	if err != nil {
		return xe.Wrap(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || 300 <= resp.StatusCode {
		return xe.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return xe.Wrap(err)
	}
	return nil
}

func (p *publication) uploadRemote(ctx context.Context, f girder.File) (string, error) {
	pid, _, err := p.createFromTemp(ctx, p.format(f.MimeType), f.Name, func(w io.Writer) error {
		if err := p.download(ctx, f.LinkURL, w); err != nil {
			return xe.WrapWithNote("Failed to process repository.", err)
		}
		return nil
	})
	return pid, err
}

// uploadRepository uploads the tarball of the tale's recipe.
//
// Failures are logged and result in an empty pid.
func (p *publication) uploadRepository(ctx context.Context, tale girder.Tale) (string, int64) {
	image, err := p.Girder.GetImage(ctx, tale.ImageID)
	if err != nil {
		p.Logger.Printf("Failed to process repository: %s", err)
		return "", 0
	}
	recipe, err := p.Girder.GetRecipe(ctx, image.RecipeID)
	if err != nil {
		p.Logger.Printf("Failed to process repository: %s", err)
		return "", 0
	}
	url := strings.TrimSuffix(recipe.URL, "/") + "/tarball/" + recipe.CommitID

	pid, size, err := p.createFromTemp(
		ctx, "application/x-gzip", dataone.EnvironmentFileName,
		func(w io.Writer) error { return p.download(ctx, url, w) },
	)
	if err != nil {
		p.Logger.Printf("Failed to process repository: %s", err)
		return "", 0
	}
	return pid, size
}
