// Package k8serrors classifies errors of the kubernetes api by what they mean to tasks.
package k8serrors

import (
	"errors"
	"fmt"

	xe "github.com/whole-tale/gwvolman/pkg/errors"
	kubeerr "k8s.io/apimachinery/pkg/api/errors"
)

// ErrMissing tells the requested resource does not exist.
type ErrMissing struct {
	message  string
	causedBy error
}

func (e *ErrMissing) Error() string {
	return describe("resource is missing", e.message, e.causedBy)
}

func (e *ErrMissing) Unwrap() error {
	return e.causedBy
}

func AsMissingError(err error) bool {
	var m *ErrMissing
	return errors.As(err, &m)
}

// ErrConflict tells the resource is already created, or modified by someone else.
type ErrConflict struct {
	message  string
	causedBy error
}

func NewConflictCausedBy(message string, err error) error {
	return xe.WrapAsOuter(&ErrConflict{message: message, causedBy: err}, 1)
}

func (e *ErrConflict) Error() string {
	return describe("resource is in conflict", e.message, e.causedBy)
}

func (e *ErrConflict) Unwrap() error {
	return e.causedBy
}

func AsConflict(err error) bool {
	var c *ErrConflict
	return errors.As(err, &c)
}

// ErrDeadlineExceeded tells a resource did not get ready in time.
var ErrDeadlineExceeded = errors.New("deadline exceeded")

func describe(kind string, message string, cause error) string {
	if message != "" {
		kind = message
	}
	if cause == nil {
		return kind
	}
	return fmt.Sprintf("%s / caused by: %+v", kind, cause)
}

// Classify converts errors from k8s api into ErrMissing or ErrConflict.
//
// Other errors are returned as they are.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case kubeerr.IsNotFound(err):
		return xe.WrapAsOuter(&ErrMissing{causedBy: err}, 1)
	case kubeerr.IsAlreadyExists(err), kubeerr.IsConflict(err):
		return xe.WrapAsOuter(&ErrConflict{causedBy: err}, 1)
	default:
		return err
	}
}
