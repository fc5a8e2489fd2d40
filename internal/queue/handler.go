package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/trailgraph/internal/collect"
	"github.com/OFFIS-RIT/trailgraph/pkg/common"
	"github.com/OFFIS-RIT/trailgraph/pkg/graph"
	"github.com/OFFIS-RIT/trailgraph/pkg/logger"
)

// EvidenceMsg asks the worker to ingest one evidence batch into a session.
type EvidenceMsg struct {
	SessionID     string            `json:"session_id"`
	CorrelationID string            `json:"correlation_id"`
	Evidence      []common.Evidence `json:"evidence"`
}

// CollectMsg asks the worker to run a collector for a session.
type CollectMsg struct {
	SessionID      string       `json:"session_id"`
	CorrelationID  string       `json:"correlation_id"`
	Collector      collect.Spec `json:"collector"`
	CollectTimeout string       `json:"collect_timeout,omitempty"`
}

// BatchEvent is published on the events exchange after a batch commits.
type BatchEvent struct {
	SessionID     string             `json:"session_id"`
	CorrelationID string             `json:"correlation_id"`
	Report        *graph.BatchReport `json:"report"`
}

// SessionLocker serializes work on one session across workers.
// *leaselock.Client implements it.
type SessionLocker interface {
	WithSession(ctx context.Context, sessionID string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// Handler processes queue messages against a session manager.
type Handler struct {
	manager    *graph.Manager
	locker     SessionLocker
	events     Channel
	collectors *collect.Factory
	leaseTTL   time.Duration
	timeout    time.Duration
}

// NewHandlerParams configures a Handler. Locker and Events are optional;
// without a locker batches are only serialized within this process.
// CollectTimeout is the default bound for collection runs.
type NewHandlerParams struct {
	Manager        *graph.Manager
	Locker         SessionLocker
	Events         Channel
	Collectors     *collect.Factory
	LeaseTTL       time.Duration
	CollectTimeout time.Duration
}

func NewHandler(params NewHandlerParams) *Handler {
	ttl := params.LeaseTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	collectors := params.Collectors
	if collectors == nil {
		collectors = &collect.Factory{}
	}
	return &Handler{
		manager:    params.Manager,
		locker:     params.Locker,
		events:     params.Events,
		collectors: collectors,
		leaseTTL:   ttl,
		timeout:    params.CollectTimeout,
	}
}

// Process dispatches a message body by queue name.
func (h *Handler) Process(ctx context.Context, queueName string, body []byte) error {
	switch queueName {
	case EvidenceQueue:
		return h.ProcessEvidenceMessage(ctx, body)
	case CollectQueue:
		return h.ProcessCollectMessage(ctx, body)
	}
	return Permanent(fmt.Errorf("unknown queue %s", queueName))
}

// ProcessEvidenceMessage ingests the batch of an EvidenceMsg. Malformed
// messages and unknown or closed sessions are permanent failures.
func (h *Handler) ProcessEvidenceMessage(ctx context.Context, body []byte) error {
	var data EvidenceMsg
	if err := json.Unmarshal(body, &data); err != nil {
		return Permanent(fmt.Errorf("failed to decode evidence message: %w", err))
	}
	if data.SessionID == "" {
		return Permanent(errors.New("evidence message has no session id"))
	}
	if len(data.Evidence) == 0 {
		logger.Debug("[Queue] Empty evidence batch", "session", data.SessionID, "correlation_id", data.CorrelationID)
		return nil
	}

	var report *graph.BatchReport
	err := h.withSession(ctx, data.SessionID, func(ctx context.Context) error {
		var err error
		report, err = h.manager.Ingest(ctx, data.SessionID, data.Evidence)
		return err
	})
	if err != nil {
		return classify(err)
	}

	logger.Info("[Queue] Evidence batch ingested",
		"session", data.SessionID,
		"correlation_id", data.CorrelationID,
		"version", report.Version,
		"paths", report.PathCount,
	)
	h.publishBatch(data.SessionID, data.CorrelationID, report)
	return nil
}

// ProcessCollectMessage runs the collector of a CollectMsg. The session
// lease is held for the whole run.
func (h *Handler) ProcessCollectMessage(ctx context.Context, body []byte) error {
	var data CollectMsg
	if err := json.Unmarshal(body, &data); err != nil {
		return Permanent(fmt.Errorf("failed to decode collect message: %w", err))
	}
	if data.SessionID == "" {
		return Permanent(errors.New("collect message has no session id"))
	}
	collector, err := h.collectors.New(data.Collector)
	if err != nil {
		return Permanent(fmt.Errorf("failed to create collector: %w", err))
	}

	opts := graph.RunOptions{CollectTimeout: h.timeout}
	if data.CollectTimeout != "" {
		d, err := time.ParseDuration(data.CollectTimeout)
		if err != nil || d < 0 {
			return Permanent(fmt.Errorf("invalid collect timeout %q", data.CollectTimeout))
		}
		opts.CollectTimeout = d
	}

	var report *graph.RunReport
	err = h.withSession(ctx, data.SessionID, func(ctx context.Context) error {
		var err error
		report, err = h.manager.Run(ctx, data.SessionID, collector, opts)
		return err
	})
	if report != nil {
		for _, batch := range report.Batches {
			h.publishBatch(data.SessionID, data.CorrelationID, batch)
		}
	}
	if err != nil {
		return classify(err)
	}

	logger.Info("[Queue] Collection finished",
		"session", data.SessionID,
		"correlation_id", data.CorrelationID,
		"batches", len(report.Batches),
		"timed_out", report.CollectTimedOut,
	)
	return nil
}

func (h *Handler) withSession(ctx context.Context, sessionID string, fn func(ctx context.Context) error) error {
	if h.locker == nil {
		return fn(ctx)
	}
	return h.locker.WithSession(ctx, sessionID, h.leaseTTL, fn)
}

func (h *Handler) publishBatch(sessionID, correlationID string, report *graph.BatchReport) {
	if h.events == nil || report == nil {
		return
	}
	data, err := json.Marshal(BatchEvent{SessionID: sessionID, CorrelationID: correlationID, Report: report})
	if err != nil {
		logger.Warn("[Queue] Failed to encode batch event", "session", sessionID, "err", err)
		return
	}
	if err := PublishTopic(h.events, BatchTopic(sessionID), data); err != nil {
		logger.Warn("[Queue] Failed to publish batch event", "session", sessionID, "err", err)
	}
}

// BatchTopic is the routing key of batch events of one session.
func BatchTopic(sessionID string) string {
	return "session." + sessionID + ".batch"
}

func classify(err error) error {
	if errors.Is(err, graph.ErrNotFound) ||
		errors.Is(err, graph.ErrSessionClosed) ||
		errors.Is(err, graph.ErrReferentialIntegrity) {
		return Permanent(err)
	}
	return err
}
