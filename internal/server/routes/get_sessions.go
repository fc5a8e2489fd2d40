package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/trailgraph/pkg/common"
	"github.com/OFFIS-RIT/trailgraph/pkg/graph"

	"github.com/labstack/echo/v4"
)

type sessionResponse struct {
	*common.SessionState
	InsufficientEvidence bool `json:"insufficient_evidence"`
}

// ListSessionsHandler returns the ids of the sessions loaded in this process.
func ListSessionsHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{
		"sessions": app(c).Manager.Sessions(),
	})
}

// GetSessionHandler returns the full committed state of a session.
func GetSessionHandler(c echo.Context) error {
	snap, err := snapshotFor(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sessionResponse{
		SessionState:         snap.State(),
		InsufficientEvidence: snap.InsufficientEvidence(),
	})
}

func GetNodeHandler(c echo.Context) error {
	type getNodeParams struct {
		NodeID string `param:"node_id" validate:"required"`
	}
	type getNodeResponse struct {
		Node  common.Node   `json:"node"`
		Edges []common.Edge `json:"edges"`
	}

	params := new(getNodeParams)
	if err := bindValid(c, params); err != nil {
		return err
	}
	snap, err := snapshotFor(c)
	if err != nil {
		return err
	}

	node, err := snap.GetNode(params.NodeID)
	if err != nil {
		return httpError(c, err)
	}
	edges, err := snap.GetEdgesFor(node.ID)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, getNodeResponse{Node: node, Edges: edges})
}

// GetEdgeHandler resolves an edge by id or by its from|type|to key.
func GetEdgeHandler(c echo.Context) error {
	type getEdgeParams struct {
		Ref string `query:"ref" validate:"required"`
	}

	params := new(getEdgeParams)
	if err := bindValid(c, params); err != nil {
		return err
	}
	snap, err := snapshotFor(c)
	if err != nil {
		return err
	}

	edge, err := snap.GetEdge(params.Ref)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, edge)
}

// GetPathsHandler lists the paths of a session. Dead paths are hidden
// unless show_dead is set.
func GetPathsHandler(c echo.Context) error {
	type getPathsParams struct {
		ShowDead bool `query:"show_dead"`
	}
	type getPathsResponse struct {
		Paths                []common.Path `json:"paths"`
		InsufficientEvidence bool          `json:"insufficient_evidence"`
	}

	params := new(getPathsParams)
	if err := bindValid(c, params); err != nil {
		return err
	}
	snap, err := snapshotFor(c)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, getPathsResponse{
		Paths:                snap.ListVisiblePaths(params.ShowDead),
		InsufficientEvidence: snap.InsufficientEvidence(),
	})
}

func GetPathHandler(c echo.Context) error {
	type getPathParams struct {
		PathID string `param:"path_id" validate:"required"`
	}

	params := new(getPathParams)
	if err := bindValid(c, params); err != nil {
		return err
	}
	snap, err := snapshotFor(c)
	if err != nil {
		return err
	}

	sel, err := snap.Selection(graph.SelectionRef{Kind: graph.SelectPath, ID: params.PathID})
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, sel)
}

func GetBriefingHandler(c echo.Context) error {
	snap, err := snapshotFor(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap.Briefing)
}

func GetTimelineHandler(c echo.Context) error {
	snap, err := snapshotFor(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string][]graph.TimelineEntry{
		"timeline": snap.Timeline(),
	})
}

func GetSourcesHandler(c echo.Context) error {
	snap, err := snapshotFor(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string][]graph.SourceEntry{
		"sources": snap.Sources(),
	})
}
