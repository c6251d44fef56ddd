// Package recurring decides when a loop turn runs again.
package recurring

import (
	"fmt"
	"strings"
	"time"

	"github.com/whole-tale/gwvolman/pkg/loop"
)

// ParsePolicy reads a policy written as "forever[:COOLDOWN]" or "backlog".
func ParsePolicy(s string) (Policy, error) {
	name, param, hasParam := strings.Cut(s, ":")
	switch name {
	case "forever":
		if param == "" {
			return Forever(0), nil
		}
		cooldown, err := time.ParseDuration(param)
		if err != nil {
			return nil, fmt.Errorf(`%s: COOLDOWN of "forever:COOLDOWN" should be a duration: %w`, s, err)
		}
		return Forever(cooldown), nil
	case "backlog":
		if hasParam {
			return nil, fmt.Errorf("%s: backlog takes no parameters", s)
		}
		return Backlog(), nil
	}
	return nil, fmt.Errorf("unknown policy: %q (should be forever[:COOLDOWN] or backlog)", s)
}

// Policy maps the outcome of a turn to what the loop does next.
type Policy interface {
	// Next decides by whether the turn did something and its error.
	Next(worked bool, err error) loop.Next
	String() string
}

// Forever runs again at once after a turn which did something, or after
// cooldown otherwise.
func Forever(cooldown time.Duration) Policy {
	return forever(cooldown)
}

type forever time.Duration

func (f forever) String() string {
	return "forever:" + time.Duration(f).String()
}

func (f forever) Next(worked bool, _ error) loop.Next {
	if worked {
		return loop.Continue(0)
	}
	return loop.Continue(time.Duration(f))
}

// Backlog runs again while turns do something, and stops at the first idle turn.
func Backlog() Policy {
	return backlog{}
}

type backlog struct{}

func (backlog) String() string {
	return "backlog"
}

func (backlog) Next(worked bool, _ error) loop.Next {
	if worked {
		return loop.Continue(0)
	}
	return loop.Break(nil)
}

// UntilError stops the loop with the error of a turn, and follows p otherwise.
func UntilError(p Policy) Policy {
	return untilError{base: p}
}

type untilError struct {
	base Policy
}

func (u untilError) String() string {
	return u.base.String() + " (until error)"
}

func (u untilError) Next(worked bool, err error) loop.Next {
	if err != nil {
		return loop.Break(err)
	}
	return u.base.Next(worked, nil)
}
