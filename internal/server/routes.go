package server

import (
	"github.com/OFFIS-RIT/trailgraph/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Session routes
	apiRoutes.GET("/sessions", routes.ListSessionsHandler)
	apiRoutes.POST("/sessions", routes.CreateSessionHandler)
	apiRoutes.GET("/sessions/:id", routes.GetSessionHandler)
	apiRoutes.DELETE("/sessions/:id", routes.DeleteSessionHandler)
	apiRoutes.POST("/sessions/:id/close", routes.CloseSessionHandler)
	apiRoutes.POST("/sessions/:id/export", routes.ExportSessionHandler)

	// Ingestion routes
	apiRoutes.POST("/sessions/:id/evidence", routes.AddEvidenceHandler)
	apiRoutes.POST("/sessions/:id/run", routes.RunCollectorHandler)
	apiRoutes.POST("/sessions/:id/merge", routes.MergeNodesHandler)

	// Query routes
	apiRoutes.GET("/sessions/:id/nodes/:node_id", routes.GetNodeHandler)
	apiRoutes.GET("/sessions/:id/edge", routes.GetEdgeHandler)
	apiRoutes.GET("/sessions/:id/paths", routes.GetPathsHandler)
	apiRoutes.GET("/sessions/:id/paths/:path_id", routes.GetPathHandler)
	apiRoutes.POST("/sessions/:id/selection", routes.SelectionHandler)
	apiRoutes.GET("/sessions/:id/briefing", routes.GetBriefingHandler)
	apiRoutes.GET("/sessions/:id/timeline", routes.GetTimelineHandler)
	apiRoutes.GET("/sessions/:id/sources", routes.GetSourcesHandler)
}
