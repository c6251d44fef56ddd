// Package errors attaches the call site to errors as they travel up.
//
//	wrapped := xe.Wrap(err)
//
// The message of a wrapped error reads as a chain of call sites:
//
//	@ pkg.Func "file.go" l42 <- @ pkg.Inner "inner.go" l10 <- cause
//
// Replace `<-` with newlines and you get a stack of the points you marked.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrWithCaller is an error tagged with the location where it was wrapped.
type ErrWithCaller struct {
	file     string
	line     int
	funcname string
	note     string
	err      error
}

func (e *ErrWithCaller) File() string {
	return e.file
}

func (e *ErrWithCaller) Line() int {
	return e.line
}

func (e *ErrWithCaller) Func() string {
	return e.funcname
}

func (e *ErrWithCaller) Error() string {
	if e.note == "" {
		return fmt.Sprintf(`@ %s "%s" l%d <- %s`, e.funcname, e.file, e.line, e.err.Error())
	}
	return fmt.Sprintf(`@ %s "%s" l%d (%s) <- %s`, e.funcname, e.file, e.line, e.note, e.err.Error())
}

func (e *ErrWithCaller) Unwrap() error {
	return e.err
}

func New(text string) error {
	return wrap("", errors.New(text), 1)
}

// Errorf is fmt.Errorf with the call site attached.
func Errorf(format string, args ...any) error {
	return wrap("", fmt.Errorf(format, args...), 1)
}

// Wrap attaches the caller's location to err.
//
// Wrap(nil) is nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return wrap("", err, 1)
}

// WrapAsOuter attaches the location of the caller `depth` frames above.
//
// Use this from helper constructors so that the error points to their caller.
func WrapAsOuter(err error, depth int) error {
	if err == nil {
		return nil
	}
	return wrap("", err, depth+1)
}

func WrapWithNote(note string, err error) error {
	if err == nil {
		return nil
	}
	return wrap(note, err, 1)
}

func wrap(note string, err error, depth int) error {
	pc, file, line, ok := runtime.Caller(depth + 1)
	funcname := "(unknown func)"
	if !ok {
		file = "?"
		line = -1
	}
	if fn := runtime.FuncForPC(pc); fn != nil {
		funcname = fn.Name()
	}

	return &ErrWithCaller{
		funcname: funcname,
		file:     file,
		line:     line,
		note:     note,
		err:      err,
	}
}

// Message returns the message of err without call sites.
//
// Notes of wrapping errors are kept, joined with ": ".
func Message(err error) string {
	if err == nil {
		return ""
	}
	notes := []string{}
	for {
		e, ok := err.(*ErrWithCaller)
		if !ok {
			break
		}
		if e.note != "" {
			notes = append(notes, e.note)
		}
		err = e.err
	}
	return strings.Join(append(notes, err.Error()), ": ")
}
