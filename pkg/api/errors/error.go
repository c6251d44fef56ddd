// Package errors builds error responses of the job API.
//
// Bodies of error responses look like
//
//	{"reason": "bad request", "advice": "\"task\" is required"}
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrorMessage is the body of error responses.
//
// Cause is for server logs. It is not sent to clients.
type ErrorMessage struct {
	Reason string
	Advice string
	Cause  error
}

type body struct {
	Reason *string `json:"reason"`
	Advice string  `json:"advice,omitempty"`
}

func (e ErrorMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(body{Reason: &e.Reason, Advice: e.Advice})
}

func (e *ErrorMessage) UnmarshalJSON(b []byte) error {
	var v body
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if v.Reason == nil {
		return fmt.Errorf(`error message without "reason": %s`, b)
	}
	*e = ErrorMessage{Reason: *v.Reason, Advice: v.Advice}
	return nil
}

func (e ErrorMessage) Error() string {
	msg := e.Reason
	if e.Advice != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Advice)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Cause)
	}
	return msg
}

func (e ErrorMessage) Unwrap() error {
	return e.Cause
}

// Option sets optional fields of ErrorMessage.
type Option func(*ErrorMessage)

func WithAdvice(advice string) Option {
	return func(e *ErrorMessage) { e.Advice = advice }
}

func WithError(err error) Option {
	return func(e *ErrorMessage) { e.Cause = err }
}

// New is an HTTP error with status code and an ErrorMessage body.
func New(code int, reason string, opts ...Option) *echo.HTTPError {
	msg := ErrorMessage{Reason: reason}
	for _, o := range opts {
		o(&msg)
	}
	return echo.NewHTTPError(code, msg).SetInternal(msg)
}

func NotFound() *echo.HTTPError {
	return New(http.StatusNotFound, "not found")
}

func BadRequest(advice string, err error) *echo.HTTPError {
	return New(http.StatusBadRequest, "bad request", WithAdvice(advice), WithError(err))
}

func Conflict(reason string, opts ...Option) *echo.HTTPError {
	return New(http.StatusConflict, reason, opts...)
}

func InternalServerError(err error) *echo.HTTPError {
	return New(http.StatusInternalServerError, "unexpected error", WithError(err))
}
