package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/whole-tale/gwvolman/pkg/tasks"
)

// ListTasksHandler responds names and titles of tasks which can be submitted.
func ListTasksHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")
		return c.JSON(http.StatusOK, tasks.All())
	}
}
