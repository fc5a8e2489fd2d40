package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/trailgraph/internal/storage"
	"github.com/OFFIS-RIT/trailgraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

// DeleteSessionHandler removes a session, its stored state and any
// exported snapshots.
func DeleteSessionHandler(c echo.Context) error {
	s, err := sessionFor(c)
	if err != nil {
		return err
	}

	a := app(c)
	ctx := c.Request().Context()
	if err := a.Manager.Delete(ctx, s.ID); err != nil {
		return httpError(c, err)
	}

	if a.S3 != nil && a.Bucket != "" {
		if err := storage.DeleteExports(ctx, a.S3, a.Bucket, s.ID); err != nil {
			logger.Warn("[Server] Failed to delete session exports", "session", s.ID, "err", err)
		}
	}

	logger.Info("[Server] Session deleted", "session", s.ID)
	return c.JSON(http.StatusOK, messageResponse{Message: "Session deleted"})
}
