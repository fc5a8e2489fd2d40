package routes

import (
	"errors"
	"net/http"

	"github.com/OFFIS-RIT/trailgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/trailgraph/pkg/graph"
	"github.com/OFFIS-RIT/trailgraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Errors are returned as *echo.HTTPError, which the default error handler
// renders as {"message": "..."} like messageResponse.
type messageResponse struct {
	Message string `json:"message"`
}

func invalidParams() error {
	return echo.NewHTTPError(http.StatusBadRequest, "Invalid request params")
}

type sessionParams struct {
	SessionID string `param:"id" validate:"required"`
}

func app(c echo.Context) *middleware.App {
	return c.(*middleware.AppContext).App
}

// bindValid binds the request into v and validates it.
func bindValid(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return invalidParams()
	}
	if err := c.Validate(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request params: "+err.Error())
	}
	return nil
}

// sessionFor binds the session id path parameter and returns the session.
func sessionFor(c echo.Context) (*graph.Session, error) {
	params := new(sessionParams)
	if err := c.Bind(params); err != nil {
		return nil, invalidParams()
	}
	if err := c.Validate(params); err != nil {
		return nil, invalidParams()
	}

	return loadSession(c, params.SessionID)
}

// loadSession is sessionFor for handlers that bind the path parameter
// together with a request body. The body can only be read once.
func loadSession(c echo.Context, id string) (*graph.Session, error) {
	s, err := app(c).Manager.Get(c.Request().Context(), id)
	if err != nil {
		return nil, httpError(c, err)
	}
	return s, nil
}

// snapshotFor returns the latest committed snapshot of the session named
// by the path.
func snapshotFor(c echo.Context) (*graph.Snapshot, error) {
	s, err := sessionFor(c)
	if err != nil {
		return nil, err
	}
	return s.Snapshot(), nil
}

// httpError maps pipeline errors to status codes.
func httpError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, graph.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, graph.ErrSessionClosed):
		return echo.NewHTTPError(http.StatusConflict, "Session is closed")
	case errors.Is(err, graph.ErrReferentialIntegrity):
		logger.Error("[Server] Batch rejected", "path", c.Path(), "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Batch rejected")
	}
	logger.Error("[Server] Request failed", "path", c.Path(), "err", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
}
