package girder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// HttpError is a non-2xx response of Girder.
type HttpError struct {
	Method string
	URL    string
	Status int

	// Message is "message" of the response body, or the whole body when it is not json.
	Message string
}

func (e *HttpError) Error() string {
	return fmt.Sprintf(
		"HTTP error %d: %s %s\nResponse text: %s",
		e.Status, e.Method, e.URL, e.Message,
	)
}

// AsHttpError finds *HttpError in the chain of err.
func AsHttpError(err error) (*HttpError, bool) {
	herr := new(HttpError)
	if errors.As(err, &herr) {
		return herr, true
	}
	return nil, false
}

// IsNotFound is true when err is caused by 404 Not Found.
func IsNotFound(err error) bool {
	herr, ok := AsHttpError(err)
	return ok && herr.Status == http.StatusNotFound
}

// unmarshal http response which has json content.
//
// return:
//
//	error if...
//	- status code is not 2xx (*HttpError)
//	- response body is not shaped of v
func unmarshalJsonResponse[T any](resp *http.Response, v *T) error {
	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf(
			"unexpected response: %w (status code = %d)", err, resp.StatusCode,
		)
	}
	return nil
}

func unmarshalStreamResponse(resp *http.Response) (io.ReadCloser, error) {
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func unmarshalResponseDiscardingPayload(resp *http.Response) error {
	rc, err := unmarshalStreamResponse(resp)
	if rc != nil {
		io.Copy(io.Discard, rc)
		rc.Close()
	}
	return err
}

func checkStatus(resp *http.Response) error {
	if 200 <= resp.StatusCode && resp.StatusCode < 300 {
		return nil
	}

	herr := &HttpError{Status: resp.StatusCode}
	if req := resp.Request; req != nil {
		herr.Method = req.Method
		if req.URL != nil {
			herr.URL = req.URL.String()
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		herr.Message = fmt.Sprintf("cannot read server message: %s", err)
		return herr
	}
	herr.Message = parseErrorMessage(body)
	return herr
}

func parseErrorMessage(body []byte) string {
	msg := struct {
		Message *string `json:"message"`
	}{}
	if err := json.Unmarshal(body, &msg); err == nil && msg.Message != nil {
		return *msg.Message
	}
	return string(body)
}
