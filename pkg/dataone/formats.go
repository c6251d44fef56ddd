package dataone

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"strings"

	xe "github.com/whole-tale/gwvolman/pkg/errors"
)

// Formats is a set of media types which DataONE supports as format id.
type Formats map[string]struct{}

// FormatOf returns mimetype if it is supported, or application/octet-stream.
func (f Formats) FormatOf(mimetype string) string {
	if _, ok := f[mimetype]; ok {
		return mimetype
	}
	return FormatOctetStream
}

// ListFormats queries the coordinating node for supported formats.
func ListFormats(ctx context.Context, httpclient *http.Client, coordinatingNode string) (Formats, error) {
	if httpclient == nil {
		httpclient = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, strings.TrimSuffix(coordinatingNode, "/")+"/v2/formats", nil,
	)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	resp, err := httpclient.Do(req)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, parseError(resp)
	}
	return parseFormats(resp.Body)
}

// parseFormats collects attribute "name" of each mediaType element.
func parseFormats(r io.Reader) (Formats, error) {
	formats := Formats{}
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return formats, nil
		}
		if err != nil {
			return nil, xe.Wrap(err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "mediaType" {
			continue
		}
		for _, attr := range start.Attr {
			if attr.Name.Local == "name" && attr.Value != "" {
				formats[attr.Value] = struct{}{}
			}
		}
	}
}
