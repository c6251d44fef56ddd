package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	apierr "github.com/whole-tale/gwvolman/pkg/api/errors"
)

// HealthHandler responds 200 when ping succeeds, otherwise 503.
func HealthHandler(ping func(context.Context) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := ping(c.Request().Context()); err != nil {
			return apierr.New(
				http.StatusServiceUnavailable, "database is not available",
				apierr.WithError(err),
			)
		}
		return c.NoContent(http.StatusOK)
	}
}
