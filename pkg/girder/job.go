package girder

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

func (c *client) UpdateJob(ctx context.Context, jobId string, update JobUpdate) error {
	q := url.Values{}
	if update.Status != JobInactive {
		q.Set("status", strconv.Itoa(int(update.Status)))
	}
	if update.ProgressTotal != 0 {
		q.Set("progressTotal", strconv.FormatFloat(update.ProgressTotal, 'f', -1, 64))
	}
	if update.ProgressCurrent != 0 || update.ProgressTotal != 0 {
		q.Set("progressCurrent", strconv.FormatFloat(update.ProgressCurrent, 'f', -1, 64))
	}
	if update.ProgressMessage != "" {
		q.Set("progressMessage", update.ProgressMessage)
	}
	if update.Log != "" {
		q.Set("log", update.Log)
	}
	if update.Notify {
		q.Set("notify", "true")
	}
	return doDiscard(ctx, c, http.MethodPut, c.apipath("job", jobId), q)
}
