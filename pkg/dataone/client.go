package dataone

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	xe "github.com/whole-tale/gwvolman/pkg/errors"
)

// MemberNode is a client of DataONE member node API (v2).
type MemberNode interface {
	// URL is the base url of the member node.
	URL() string

	// Create creates an object with its system metadata.
	//
	// object is read once while the request is sent.
	Create(ctx context.Context, pid string, object io.Reader, sysmeta SystemMetadata) error
}

// Error is an error returned by DataONE services.
type Error struct {
	Status      int    `xml:"-"`
	Name        string `xml:"name,attr"`
	ErrorCode   string `xml:"errorCode,attr"`
	DetailCode  string `xml:"detailCode,attr"`
	Description string `xml:"description"`
}

func (e *Error) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("DataONE error (status %d): %s", e.Status, e.Description)
	}
	return fmt.Sprintf(
		"DataONE error (status %d): %s (%s/%s): %s",
		e.Status, e.Name, e.ErrorCode, e.DetailCode, e.Description,
	)
}

func parseError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return xe.Wrap(err)
	}
	e := &Error{}
	if err := xml.Unmarshal(body, e); err != nil || e.Description == "" {
		e.Description = strings.TrimSpace(string(body))
	}
	e.Status = resp.StatusCode
	return e
}

type memberNode struct {
	httpclient *http.Client
	url        string
	token      string
}

// NewMemberNode returns a client of a member node at url.
//
// token is a DataONE authentication token.
func NewMemberNode(url string, token string, httpclient *http.Client) MemberNode {
	if httpclient == nil {
		httpclient = http.DefaultClient
	}
	return &memberNode{
		httpclient: httpclient,
		url:        strings.TrimSuffix(url, "/"),
		token:      token,
	}
}

func (m *memberNode) URL() string {
	return m.url
}

func (m *memberNode) Create(ctx context.Context, pid string, object io.Reader, sysmeta SystemMetadata) error {
	meta, err := sysmeta.Marshal()
	if err != nil {
		return xe.Wrap(err)
	}

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(func() error {
			if err := form.WriteField("pid", pid); err != nil {
				return err
			}
			o, err := form.CreateFormFile("object", pid)
			if err != nil {
				return err
			}
			if _, err := io.Copy(o, object); err != nil {
				return err
			}
			s, err := form.CreateFormFile("sysmeta", "sysmeta.xml")
			if err != nil {
				return err
			}
			if _, err := s.Write(meta); err != nil {
				return err
			}
			return form.Close()
		}())
	}()
	defer pr.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url+"/v2/object", pr)
	if err != nil {
		return xe.Wrap(err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+m.token)
	req.Header.Set("Connection", "close")
	req.Close = true

	resp, err := m.httpclient.Do(req)
	if err != nil {
		return xe.Wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || 300 <= resp.StatusCode {
		return parseError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
