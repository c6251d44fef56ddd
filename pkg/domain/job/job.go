// Package job defines jobs: requests to run a task, queued in the database
// until a worker claims them.
package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrMissing is returned when the job is not found.
	ErrMissing = errors.New("job is not found")

	// ErrFinished is returned when the job is already done, failed or cancelled.
	ErrFinished = errors.New("job is already finished")

	// ErrNotRunning is returned when a job not running is finished.
	ErrNotRunning = errors.New("job is not running")
)

type Status string

const (
	Queued    Status = "queued"
	Running   Status = "running"
	Done      Status = "done"
	Failed    Status = "failed"
	Cancelled Status = "cancelled"
)

// Statuses lists every Status.
var Statuses = []Status{Queued, Running, Done, Failed, Cancelled}

func AsStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if strings.EqualFold(string(st), s) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown job status: %q", s)
}

func (s Status) String() string {
	return string(s)
}

// Finished tells whether the status is one of the terminal statuses.
func (s Status) Finished() bool {
	switch s {
	case Done, Failed, Cancelled:
		return true
	}
	return false
}

// Spec is a request to enqueue a job.
type Spec struct {
	// Task is the name of the task to run.
	Task string `json:"task"`

	// Args is a JSON object passed to the task.
	Args json.RawMessage `json:"args,omitempty"`

	// GirderToken is the token the task acts with.
	GirderToken string `json:"girderToken"`

	// GirderJobID is the Girder job receiving progress. Optional.
	GirderJobID string `json:"girderJobId,omitempty"`

	// Then is a task to be enqueued when this job is done.
	//
	// The follow-up takes the result of this job as its args.
	Then string `json:"then,omitempty"`
}

type Job struct {
	ID          string          `json:"jobId"`
	Task        string          `json:"task"`
	Args        json.RawMessage `json:"args"`
	GirderToken string          `json:"-"`
	GirderJobID string          `json:"girderJobId,omitempty"`
	Then        string          `json:"then,omitempty"`

	Status          Status          `json:"status"`
	CancelRequested bool            `json:"cancelRequested"`
	Worker          string          `json:"worker,omitempty"`
	Result          json.RawMessage `json:"result,omitempty"`
	Message         string          `json:"message,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SecretArgs are keys of Args whose values are masked when a Job is marshalled.
var SecretArgs = []string{"dataoneAuthToken", "girderToken", "apiKey"}

const masked = "***"

// MarshalJSON marshals the job with SecretArgs in Args masked.
//
// Jobs are shown through the API and hooks in this form. Workers read Args from the queue.
func (j Job) MarshalJSON() ([]byte, error) {
	type plain Job
	p := plain(j)
	p.Args = maskArgs(j.Args)
	return json.Marshal(p)
}

// maskArgs masks SecretArgs of a JSON object. Other values are returned as they are.
func maskArgs(args json.RawMessage) json.RawMessage {
	obj := map[string]json.RawMessage{}
	if err := json.Unmarshal(args, &obj); err != nil || obj == nil {
		return args
	}
	found := false
	for _, k := range SecretArgs {
		if v, ok := obj[k]; ok && string(v) != "null" {
			obj[k] = json.RawMessage(`"` + masked + `"`)
			found = true
		}
	}
	if !found {
		return args
	}
	buf, err := json.Marshal(obj)
	if err != nil {
		return args
	}
	return buf
}

// FollowUp is the Spec of the job to be enqueued after this job.
//
// It returns false when there is no follow-up.
func (j Job) FollowUp() (Spec, bool) {
	if j.Then == "" || j.Status != Done {
		return Spec{}, false
	}
	return Spec{
		Task:        j.Then,
		Args:        j.Result,
		GirderToken: j.GirderToken,
		GirderJobID: j.GirderJobID,
	}, true
}

// Query selects jobs. Empty fields match anything.
type Query struct {
	Status []Status
	Task   []string
}

// Outcome is how a running job ends.
type Outcome struct {
	Status  Status
	Result  json.RawMessage
	Message string
}

// Succeeded is an Outcome of a job completed with result.
func Succeeded(result json.RawMessage) Outcome {
	return Outcome{Status: Done, Result: result}
}

// FailedWith is an Outcome of a job aborted by an error.
func FailedWith(message string) Outcome {
	return Outcome{Status: Failed, Message: message}
}

// CancelledWith is an Outcome of a job stopped by cancellation.
func CancelledWith(message string) Outcome {
	return Outcome{Status: Cancelled, Message: message}
}
