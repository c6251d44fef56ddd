package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	cfg_hook "github.com/whole-tale/gwvolman/pkg/configs/hook"
	"github.com/whole-tale/gwvolman/pkg/domain/job"
)

// Web is a Hook posting the value as JSON to URLs.
//
// URLs are called in order. A hook succeeds if and only if all of them
// respond with 2xx. It stops at the first failure.
type Web[T any] struct {
	BeforeURL []*url.URL
	AfterURL  []*url.URL

	// Client sends requests. When nil, http.DefaultClient is used.
	Client *http.Client
}

// Build makes a Web hook for jobs from the config.
func Build(cfg cfg_hook.WebHook) Web[job.Job] {
	return Web[job.Job]{BeforeURL: cfg.Before, AfterURL: cfg.After}
}

func (w Web[T]) Before(ctx context.Context, value T) error {
	return w.post(ctx, w.BeforeURL, value)
}

func (w Web[T]) After(ctx context.Context, value T) error {
	return w.post(ctx, w.AfterURL, value)
}

func (w Web[T]) post(ctx context.Context, urls []*url.URL, value T) error {
	if len(urls) == 0 {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	for _, u := range urls {
		if err := send(ctx, client, u.String(), payload); err != nil {
			return err
		}
	}
	return nil
}

func send(ctx context.Context, client *http.Client, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHookFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHookFailed, err)
	}
	defer resp.Body.Close()

	if 200 <= resp.StatusCode && resp.StatusCode < 300 {
		return nil
	}

	ctype := resp.Header.Get("Content-Type")
	if strings.HasPrefix(ctype, "text/") || strings.Contains(ctype, "json") {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w (%s %d): %s", ErrHookFailed, url, resp.StatusCode, string(body))
	}
	return fmt.Errorf("%w (%s %d, Content-Type: %s)", ErrHookFailed, url, resp.StatusCode, ctype)
}
