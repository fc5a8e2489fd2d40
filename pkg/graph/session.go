package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OFFIS-RIT/trailgraph/pkg/briefing"
	"github.com/OFFIS-RIT/trailgraph/pkg/common"
	"github.com/OFFIS-RIT/trailgraph/pkg/evidence"
	"github.com/OFFIS-RIT/trailgraph/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Session owns the graph of one investigation. Evidence batches and
// explicit mutations are applied one at a time to a private copy of the
// graph, which replaces the published snapshot only once every stage has
// finished. Readers always see a complete, immutable snapshot.
type Session struct {
	ID    string
	Query string

	client  *GraphClient
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]

	ctx    context.Context
	cancel context.CancelFunc
}

// BatchReport summarizes one committed batch.
type BatchReport struct {
	Version    int                  `json:"version"`
	Received   int                  `json:"received"`
	Duplicates int                  `json:"duplicates"`
	Extracted  int                  `json:"extracted"`
	Failures   []*ExtractionFailure `json:"-"`
	NewPaths   []string             `json:"new_paths"`
	Merged     []string             `json:"merged_paths"`
	PathCount  int                  `json:"path_count"`
}

// NewSession starts an empty investigation for query.
func (c *GraphClient) NewSession(query string) (*Session, error) {
	id, err := c.newID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}
	return c.RestoreSession(&common.SessionState{
		ID:        id,
		Query:     strings.TrimSpace(query),
		Graph:     &common.Graph{},
		UpdatedAt: time.Now().UTC(),
	})
}

// RestoreSession continues an investigation from a persisted state. The
// state is validated before use. A state that was closed restores as a
// closed session.
func (c *GraphClient) RestoreSession(state *common.SessionState) (*Session, error) {
	if state == nil || state.ID == "" {
		return nil, errors.New("session state has no id")
	}
	g := state.Graph
	if g == nil {
		g = &common.Graph{}
	}
	g = g.Clone()
	if err := validateGraph(g); err != nil {
		return nil, fmt.Errorf("failed to restore session %s: %w", state.ID, err)
	}

	b := briefing.Compose(briefing.Input{Query: state.Query, Graph: g})
	if state.Briefing != nil {
		b = *state.Briefing
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:     state.ID,
		Query:  state.Query,
		client: c,
		ctx:    ctx,
		cancel: cancel,
	}
	snap := newSnapshot(s.ID, s.Query, state.Version, state.NextPath, g, b, state.UpdatedAt)
	snap.Closed = state.Closed
	s.current.Store(snap)
	if state.Closed {
		cancel()
	}
	return s, nil
}

// Snapshot returns the latest committed state. It never blocks on a batch
// in progress.
func (s *Session) Snapshot() *Snapshot {
	return s.current.Load()
}

// Close stops the session and commits a closed snapshot of the last
// committed graph. Batches in progress are abandoned and later calls to
// Ingest, MergeNodes or Run return ErrSessionClosed. Committed state stays
// readable. Closing twice returns the same snapshot.
func (s *Session) Close() *Snapshot {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current.Load()
	if prev.Closed {
		return prev
	}
	snap := newSnapshot(s.ID, s.Query, prev.Version+1, prev.nextPath, prev.Graph, prev.Briefing, time.Now().UTC())
	snap.Closed = true
	s.current.Store(snap)
	return snap
}

// release stops work on this copy of the session without marking it
// closed, e.g. when a newer copy was restored or the process shuts down.
func (s *Session) release() {
	s.cancel()
}

// Closed reports whether the session no longer accepts changes.
func (s *Session) Closed() bool {
	return s.ctx.Err() != nil
}

// Ingest runs one evidence batch through extraction, path building,
// scoring and briefing synthesis and commits the result.
//
// Items that cannot be extracted are recorded as failures and skipped. When
// ctx expires during extraction the items still pending are recorded as
// failures and the batch is committed with what was extracted. Evidence
// ids already present in the session are ignored unless their extraction
// failed, in which case they are extracted again.
func (s *Session) Ingest(ctx context.Context, batch []common.Evidence) (*BatchReport, error) {
	if s.Closed() {
		return nil, ErrSessionClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Closed() {
		return nil, ErrSessionClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	prev := s.current.Load()
	g := prev.Graph.Clone()
	nextPath := prev.nextPath

	report := &BatchReport{Received: len(batch)}
	fresh := s.freshEvidence(g, batch)
	report.Duplicates = len(batch) - len(fresh)

	exts, failures := s.client.extractBatch(ctx, fresh)
	if s.Closed() {
		return nil, ErrSessionClosed
	}
	report.Extracted = len(exts)
	report.Failures = failures

	addEvidence(g, fresh)
	retried := make(map[string]struct{}, len(fresh))
	for _, ev := range fresh {
		retried[ev.ID] = struct{}{}
	}
	g.Failures = slices.DeleteFunc(g.Failures, func(f common.FailureRecord) bool {
		_, ok := retried[f.EvidenceID]
		return ok
	})
	idx := indexGraph(g)
	for _, ext := range exts {
		if err := s.client.mergeExtraction(g, idx, ext); err != nil {
			return nil, fmt.Errorf("failed to merge evidence %s: %w", ext.EvidenceID, err)
		}
	}
	for _, f := range failures {
		g.Failures = append(g.Failures, common.FailureRecord{EvidenceID: f.EvidenceID, Reason: f.Err.Error()})
	}

	if ctx.Err() == nil && len(exts) > 0 {
		if err := s.client.resolveAliases(ctx, g); err != nil {
			return nil, fmt.Errorf("failed to resolve aliases: %w", err)
		}
	}

	before := pathIDSet(g.Paths)
	b, err := s.rebuild(ctx, g, &nextPath)
	if err != nil {
		return nil, err
	}
	for _, p := range g.Paths {
		if _, ok := before[p.ID]; !ok {
			report.NewPaths = append(report.NewPaths, p.ID)
		}
		for _, id := range p.MergedFrom {
			if _, ok := before[id]; ok {
				report.Merged = append(report.Merged, id)
			}
		}
	}

	snap := s.commit(prev, g, b, nextPath)
	report.Version = snap.Version
	report.PathCount = len(g.Paths)

	logger.Info("[Session] Batch committed",
		"session", s.ID,
		"version", snap.Version,
		"evidence", len(fresh),
		"failures", len(failures),
		"nodes", len(g.Nodes),
		"edges", len(g.Edges),
		"paths", len(g.Paths),
	)
	return report, nil
}

// MergeNodes folds the nodes in drop into keep, then rebuilds, rescores and
// commits the graph. Later mentions of a dropped label resolve to keep.
func (s *Session) MergeNodes(ctx context.Context, keep string, drop ...string) (*Snapshot, error) {
	if s.Closed() {
		return nil, ErrSessionClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Closed() {
		return nil, ErrSessionClosed
	}

	prev := s.current.Load()
	g := prev.Graph.Clone()
	nextPath := prev.nextPath

	if err := s.client.mergeNodes(g, keep, drop); err != nil {
		return nil, err
	}
	b, err := s.rebuild(ctx, g, &nextPath)
	if err != nil {
		return nil, err
	}
	snap := s.commit(prev, g, b, nextPath)
	logger.Info("[Session] Nodes merged", "session", s.ID, "keep", keep, "dropped", len(drop), "version", snap.Version)
	return snap, nil
}

// rebuild runs path building, validation, scoring and synthesis on g.
func (s *Session) rebuild(ctx context.Context, g *common.Graph, nextPath *int) (common.Briefing, error) {
	if err := s.client.buildPaths(g, nextPath); err != nil {
		logger.Error("[Session] Path building violated graph invariants", "session", s.ID, "err", err)
		return common.Briefing{}, err
	}
	if err := validateGraph(g); err != nil {
		logger.Error("[Session] Graph failed validation", "session", s.ID, "err", err)
		return common.Briefing{}, err
	}
	s.client.scorer.ScoreGraph(g)
	return s.client.synthesize(ctx, s.Query, g), nil
}

func (s *Session) commit(prev *Snapshot, g *common.Graph, b common.Briefing, nextPath int) *Snapshot {
	snap := newSnapshot(s.ID, s.Query, prev.Version+1, nextPath, g, b, time.Now().UTC())
	s.current.Store(snap)
	return snap
}

func (s *Session) freshEvidence(g *common.Graph, batch []common.Evidence) []common.Evidence {
	failed := make(map[string]struct{}, len(g.Failures))
	for _, f := range g.Failures {
		failed[f.EvidenceID] = struct{}{}
	}
	seen := make(map[string]struct{}, len(g.Evidence)+len(batch))
	for _, ev := range g.Evidence {
		if _, retry := failed[ev.ID]; !retry {
			seen[ev.ID] = struct{}{}
		}
	}
	fresh := make([]common.Evidence, 0, len(batch))
	for _, ev := range batch {
		ev, err := evidence.Normalize(ev)
		if err != nil {
			logger.Warn("[Session] Dropping evidence without id", "session", s.ID, "title", ev.Title)
			continue
		}
		if _, dup := seen[ev.ID]; dup {
			continue
		}
		seen[ev.ID] = struct{}{}
		fresh = append(fresh, ev)
	}
	return fresh
}

// synthesize writes the briefing for g. Once ctx has expired, or when the
// configured synthesizer fails, the deterministic template is used.
func (c *GraphClient) synthesize(ctx context.Context, query string, g *common.Graph) common.Briefing {
	in := briefing.Input{Query: query, Graph: g}
	if ctx.Err() != nil {
		return briefing.Compose(in)
	}
	b, err := c.synthesizer.Synthesize(ctx, in)
	if err != nil {
		logger.Warn("[Session] Briefing synthesis failed, using template", "err", err)
		return briefing.Compose(in)
	}
	return b
}

func pathIDSet(paths []common.Path) map[string]struct{} {
	out := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		out[p.ID] = struct{}{}
	}
	return out
}

// RunOptions bounds a collection run. CollectTimeout limits the collector
// only; evidence received before it expires is still ingested.
type RunOptions struct {
	CollectTimeout time.Duration
	BatchBuffer    int
}

// RunReport summarizes a collection run.
type RunReport struct {
	Batches         []*BatchReport
	CollectTimedOut bool
}

// Run collects evidence for the session query and ingests every batch as it
// arrives. Collection and ingestion overlap; batches are ingested in
// arrival order, one at a time.
//
// Example:
//
//	report, err := session.Run(ctx, fixture.NewCollector(items, 2), graph.RunOptions{
//		CollectTimeout: 30 * time.Second,
//	})
func (s *Session) Run(ctx context.Context, collector evidence.Collector, opts RunOptions) (*RunReport, error) {
	if s.Closed() {
		return nil, ErrSessionClosed
	}
	buffer := opts.BatchBuffer
	if buffer <= 0 {
		buffer = 4
	}

	report := &RunReport{}
	batches := make(chan []common.Evidence, buffer)
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		defer close(batches)

		var collectCtx context.Context
		var cancel context.CancelFunc
		if opts.CollectTimeout > 0 {
			collectCtx, cancel = context.WithTimeout(egCtx, opts.CollectTimeout)
		} else {
			collectCtx, cancel = context.WithCancel(egCtx)
		}
		defer cancel()
		stop := context.AfterFunc(s.ctx, cancel)
		defer stop()

		err := collector.Collect(collectCtx, s.Query, func(batch []common.Evidence) error {
			select {
			case batches <- batch:
				return nil
			case <-collectCtx.Done():
				return collectCtx.Err()
			}
		})
		if err != nil && errors.Is(collectCtx.Err(), context.DeadlineExceeded) && egCtx.Err() == nil {
			logger.Warn("[Session] Evidence collection timed out, continuing with collected evidence", "session", s.ID)
			report.CollectTimedOut = true
			return nil
		}
		if err != nil && s.Closed() {
			return ErrSessionClosed
		}
		return err
	})

	eg.Go(func() error {
		for batch := range batches {
			rep, err := s.Ingest(ctx, batch)
			if err != nil {
				return err
			}
			report.Batches = append(report.Batches, rep)
		}
		return nil
	})

	err := eg.Wait()
	return report, err
}
