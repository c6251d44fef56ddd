package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/whole-tale/gwvolman/cmd/gwvolman_api/handlers"
	jobdb "github.com/whole-tale/gwvolman/pkg/domain/job/db"
	"github.com/whole-tale/gwvolman/pkg/utils/echoutil"
)

var API_ROOT = "/api"

func api(subpath string) string {
	if !strings.HasSuffix(subpath, "/") {
		subpath += "/"
	}
	return fmt.Sprintf("%s/%s", API_ROOT, subpath)
}

func BuildServer(dbjob jobdb.Interface, ping func(context.Context) error, loglevel string) *echo.Echo {

	e := echo.New()

	echoutil.SetLevel(e, loglevel)

	e.HTTPErrorHandler = func(err error, ctx echo.Context) {
		e.DefaultHTTPErrorHandler(err, ctx)
		e.Logger.Error(err)
	}

	e.Pre(middleware.AddTrailingSlash())

	// logging for server-side latency.
	e.Use(echoutil.LogHandlerFunc)

	e.POST(api("jobs"), handlers.SubmitJobHandler(dbjob))
	e.GET(api("jobs"), handlers.FindJobHandler(dbjob))
	e.GET(api("jobs/:jobId"), handlers.GetJobHandler(dbjob, "jobId"))
	e.DELETE(api("jobs/:jobId"), handlers.CancelJobHandler(dbjob, "jobId"))

	e.GET(api("tasks"), handlers.ListTasksHandler())
	e.GET(api("health"), handlers.HealthHandler(ping))

	return e
}
