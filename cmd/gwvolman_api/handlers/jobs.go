package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	apierr "github.com/whole-tale/gwvolman/pkg/api/errors"
	"github.com/whole-tale/gwvolman/pkg/domain/job"
	jobdb "github.com/whole-tale/gwvolman/pkg/domain/job/db"
	"github.com/whole-tale/gwvolman/pkg/tasks"
	kstrings "github.com/whole-tale/gwvolman/pkg/utils/strings"
)

// HeaderGirderToken is the header carrying a Girder token.
//
// It is used when the request body has no "girderToken".
const HeaderGirderToken = "Girder-Token"

func statusList() string {
	names := make([]string, 0, len(job.Statuses))
	for _, s := range job.Statuses {
		names = append(names, fmt.Sprintf("%q", s))
	}
	return strings.Join(names, ", ")
}

func SubmitJobHandler(dbjob jobdb.Interface) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")

		spec := job.Spec{}
		if err := json.NewDecoder(c.Request().Body).Decode(&spec); err != nil {
			return apierr.BadRequest("request body should be a JSON object", err)
		}

		if spec.Task == "" {
			return apierr.BadRequest(`"task" is required`, nil)
		}
		if _, ok := tasks.Lookup(spec.Task); !ok {
			return apierr.BadRequest(
				fmt.Sprintf(`unknown task: %q. see GET /api/tasks/`, spec.Task), nil,
			)
		}
		if spec.Then != "" {
			if _, ok := tasks.Lookup(spec.Then); !ok {
				return apierr.BadRequest(
					fmt.Sprintf(`unknown task in "then": %q. see GET /api/tasks/`, spec.Then), nil,
				)
			}
		}
		if args := bytes.TrimSpace(spec.Args); len(args) != 0 && !bytes.Equal(args, []byte("null")) {
			if args[0] != '{' {
				return apierr.BadRequest(`"args" should be a JSON object`, nil)
			}
		}

		if spec.GirderToken == "" {
			spec.GirderToken = c.Request().Header.Get(HeaderGirderToken)
		}
		if spec.GirderToken == "" {
			return apierr.BadRequest(
				fmt.Sprintf(`"girderToken" or header %s is required`, HeaderGirderToken), nil,
			)
		}

		ctx := c.Request().Context()
		j, err := dbjob.Enqueue(ctx, spec)
		if err != nil {
			return apierr.InternalServerError(err)
		}

		c.Response().Header().Set("Location", fmt.Sprintf("/api/jobs/%s/", j.ID))
		return c.JSON(http.StatusCreated, j)
	}
}

func FindJobHandler(dbjob jobdb.Interface) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")

		query := job.Query{
			Status: []job.Status{},
			Task:   kstrings.SplitFields(c.QueryParam("task"), ","),
		}
		for _, p := range kstrings.SplitFields(c.QueryParam("status"), ",") {
			s, err := job.AsStatus(p)
			if err != nil {
				return apierr.BadRequest(
					fmt.Sprintf(`"status" should be one of %s`, statusList()), err,
				)
			}
			query.Status = append(query.Status, s)
		}
		for _, t := range query.Task {
			if _, ok := tasks.Lookup(t); !ok {
				return apierr.BadRequest(
					fmt.Sprintf(`unknown task: %q. see GET /api/tasks/`, t), nil,
				)
			}
		}

		ctx := c.Request().Context()
		jobs, err := dbjob.Find(ctx, query)
		if err != nil {
			return apierr.InternalServerError(err)
		}
		if jobs == nil {
			jobs = []job.Job{}
		}
		return c.JSON(http.StatusOK, jobs)
	}
}

func GetJobHandler(dbjob jobdb.Interface, paramJobId string) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")
		jobId := c.Param(paramJobId)
		ctx := c.Request().Context()

		j, err := dbjob.Get(ctx, jobId)
		if err != nil {
			if errors.Is(err, job.ErrMissing) {
				return apierr.NotFound()
			}
			return apierr.InternalServerError(err)
		}
		return c.JSON(http.StatusOK, j)
	}
}

// CancelJobHandler requests cancellation of a job.
//
// Queued jobs are cancelled at once. Running jobs are stopped by their worker.
func CancelJobHandler(dbjob jobdb.Interface, paramJobId string) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")
		jobId := c.Param(paramJobId)
		ctx := c.Request().Context()

		j, err := dbjob.RequestCancel(ctx, jobId)
		if err != nil {
			if errors.Is(err, job.ErrMissing) {
				return apierr.NotFound()
			} else if errors.Is(err, job.ErrFinished) {
				return apierr.Conflict("job is already finished", apierr.WithError(err))
			}
			return apierr.InternalServerError(err)
		}
		return c.JSON(http.StatusOK, j)
	}
}
