package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/OFFIS-RIT/trailgraph/internal/collect"
	"github.com/OFFIS-RIT/trailgraph/internal/queue"
	"github.com/OFFIS-RIT/trailgraph/internal/storage"
	"github.com/OFFIS-RIT/trailgraph/pkg/common"
	"github.com/OFFIS-RIT/trailgraph/pkg/graph"
	"github.com/OFFIS-RIT/trailgraph/pkg/logger"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type queuedResponse struct {
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id"`
}

// CreateSessionHandler opens a new investigation for a query.
func CreateSessionHandler(c echo.Context) error {
	type createSessionBody struct {
		Query string `json:"query" validate:"required"`
	}

	data := new(createSessionBody)
	if err := bindValid(c, data); err != nil {
		return err
	}

	s, err := app(c).Manager.Open(c.Request().Context(), data.Query)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, s.Snapshot().State())
}

// AddEvidenceHandler ingests an evidence batch. With async set the batch
// is queued for the worker and 202 is returned.
func AddEvidenceHandler(c echo.Context) error {
	type addEvidenceBody struct {
		SessionID string            `param:"id" validate:"required"`
		Evidence  []common.Evidence `json:"evidence" validate:"required,min=1"`
		Async     bool              `json:"async"`
	}
	type addEvidenceResponse struct {
		*graph.BatchReport
		FailedEvidence []string `json:"failed_evidence"`
	}

	data := new(addEvidenceBody)
	if err := bindValid(c, data); err != nil {
		return err
	}
	for _, ev := range data.Evidence {
		if ev.ID == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "Every evidence item needs an id")
		}
	}

	ctx := c.Request().Context()
	s, err := loadSession(c, data.SessionID)
	if err != nil {
		return err
	}

	if data.Async {
		if s.Closed() {
			return httpError(c, graph.ErrSessionClosed)
		}
		return enqueue(c, queue.EvidenceQueue, func(correlationID string) any {
			return queue.EvidenceMsg{
				SessionID:     data.SessionID,
				CorrelationID: correlationID,
				Evidence:      data.Evidence,
			}
		})
	}

	report, err := app(c).Manager.Ingest(ctx, data.SessionID, data.Evidence)
	if err != nil {
		return httpError(c, err)
	}
	failed := make([]string, 0, len(report.Failures))
	for _, f := range report.Failures {
		failed = append(failed, f.EvidenceID)
	}
	return c.JSON(http.StatusOK, addEvidenceResponse{BatchReport: report, FailedEvidence: failed})
}

// MergeNodesHandler folds the drop nodes into keep.
func MergeNodesHandler(c echo.Context) error {
	type mergeNodesBody struct {
		SessionID string   `param:"id" validate:"required"`
		Keep      string   `json:"keep" validate:"required"`
		Drop      []string `json:"drop" validate:"required,min=1,dive,required"`
	}

	data := new(mergeNodesBody)
	if err := bindValid(c, data); err != nil {
		return err
	}

	snap, err := app(c).Manager.MergeNodes(c.Request().Context(), data.SessionID, data.Keep, data.Drop...)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, snap.State())
}

// RunCollectorHandler collects evidence for the session query and ingests
// it batch by batch. With async set the run is queued for the worker.
func RunCollectorHandler(c echo.Context) error {
	type runCollectorBody struct {
		SessionID      string       `param:"id" validate:"required"`
		Collector      collect.Spec `json:"collector"`
		CollectTimeout string       `json:"collect_timeout"`
		Async          bool         `json:"async"`
	}
	type runCollectorResponse struct {
		Version         int                  `json:"version"`
		Batches         []*graph.BatchReport `json:"batches"`
		CollectTimedOut bool                 `json:"collect_timed_out"`
	}

	data := new(runCollectorBody)
	if err := bindValid(c, data); err != nil {
		return err
	}

	a := app(c)
	opts := graph.RunOptions{CollectTimeout: a.CollectTimeout}
	if data.CollectTimeout != "" {
		d, err := time.ParseDuration(data.CollectTimeout)
		if err != nil || d < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid collect timeout")
		}
		opts.CollectTimeout = d
	}

	collector, err := a.Collectors.New(data.Collector)
	if errors.Is(err, collect.ErrUnavailable) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	s, err := loadSession(c, data.SessionID)
	if err != nil {
		return err
	}

	if data.Async {
		if s.Closed() {
			return httpError(c, graph.ErrSessionClosed)
		}
		return enqueue(c, queue.CollectQueue, func(correlationID string) any {
			return queue.CollectMsg{
				SessionID:      data.SessionID,
				CorrelationID:  correlationID,
				Collector:      data.Collector,
				CollectTimeout: data.CollectTimeout,
			}
		})
	}

	report, err := a.Manager.Run(ctx, data.SessionID, collector, opts)
	if err != nil {
		return httpError(c, err)
	}

	version := s.Snapshot().Version
	if n := len(report.Batches); n > 0 {
		version = report.Batches[n-1].Version
	}
	return c.JSON(http.StatusOK, runCollectorResponse{
		Version:         version,
		Batches:         report.Batches,
		CollectTimedOut: report.CollectTimedOut,
	})
}

// SelectionHandler returns the subgraph relevant to a selected node, edge
// or path.
func SelectionHandler(c echo.Context) error {
	type selectionBody struct {
		SessionID string `param:"id" validate:"required"`
		graph.SelectionRef
	}

	data := new(selectionBody)
	if err := bindValid(c, data); err != nil {
		return err
	}
	s, err := loadSession(c, data.SessionID)
	if err != nil {
		return err
	}

	sel, err := s.Snapshot().Selection(data.SelectionRef)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, sel)
}

// CloseSessionHandler cancels the session. Its state stays readable but
// later evidence, runs and merges are rejected with 409.
func CloseSessionHandler(c echo.Context) error {
	params := new(sessionParams)
	if err := bindValid(c, params); err != nil {
		return err
	}
	if err := app(c).Manager.Close(c.Request().Context(), params.SessionID); err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Session closed"})
}

// ExportSessionHandler uploads the current snapshot to S3. A download link
// is included when a public endpoint is configured.
func ExportSessionHandler(c echo.Context) error {
	type exportSessionResponse struct {
		Key     string `json:"key"`
		Version int    `json:"version"`
		URL     string `json:"url,omitempty"`
	}

	a := app(c)
	if a.S3 == nil || a.Bucket == "" {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Export storage not configured")
	}
	snap, err := snapshotFor(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	key, err := storage.ExportSnapshot(ctx, a.S3, a.Bucket, snap.State())
	if err != nil {
		return httpError(c, err)
	}

	res := exportSessionResponse{Key: key, Version: snap.Version}
	if a.PublicS3URL != "" {
		link, err := storage.GenerateDownloadLink(ctx, a.S3, a.Bucket, key, a.PublicS3URL)
		if err != nil {
			logger.Warn("[Server] Failed to generate download link", "key", key, "err", err)
		} else {
			res.URL = link
		}
	}
	return c.JSON(http.StatusOK, res)
}

// enqueue publishes the message built by msg to queueName under a fresh
// correlation id.
func enqueue(c echo.Context, queueName string, msg func(correlationID string) any) error {
	ch := app(c).Queue
	if ch == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Queue not configured")
	}

	correlationID, err := gonanoid.New()
	if err != nil {
		return httpError(c, err)
	}
	body, err := json.Marshal(msg(correlationID))
	if err != nil {
		return httpError(c, err)
	}
	if err := queue.PublishFIFO(ch, queueName, body); err != nil {
		return httpError(c, err)
	}

	logger.Info("[Server] Request queued", "queue", queueName, "correlation_id", correlationID)
	return c.JSON(http.StatusAccepted, queuedResponse{
		Message:       "Request queued",
		CorrelationID: correlationID,
	})
}
