package graph

import (
	"fmt"
	"slices"
	"time"

	"github.com/OFFIS-RIT/trailgraph/pkg/common"
)

// Snapshot is an immutable, committed state of a session together with
// the read operations the presentation layer uses. Values returned by its
// methods share memory with the snapshot and must not be modified.
type Snapshot struct {
	SessionID string
	Query     string
	Version   int
	UpdatedAt time.Time
	Graph     *common.Graph
	Briefing  common.Briefing
	Closed    bool

	nextPath int
	nodes    map[string]int
	labels   map[string]int
	edges    map[string]int
	edgeIDs  map[string]int
	paths    map[string]int
	absorbed map[string]string
}

func newSnapshot(
	sessionID, query string,
	version, nextPath int,
	g *common.Graph,
	b common.Briefing,
	updatedAt time.Time,
) *Snapshot {
	s := &Snapshot{
		SessionID: sessionID,
		Query:     query,
		Version:   version,
		UpdatedAt: updatedAt,
		Graph:     g,
		Briefing:  b,
		nextPath:  nextPath,
		nodes:     make(map[string]int, len(g.Nodes)),
		labels:    make(map[string]int, len(g.Nodes)),
		edges:     make(map[string]int, len(g.Edges)),
		edgeIDs:   make(map[string]int, len(g.Edges)),
		paths:     make(map[string]int, len(g.Paths)),
		absorbed:  make(map[string]string),
	}
	for i, n := range g.Nodes {
		s.nodes[n.ID] = i
		s.labels[labelKey(n.Label)] = i
	}
	for alias, id := range g.Aliases {
		if i, ok := s.nodes[id]; ok {
			if _, taken := s.labels[alias]; !taken {
				s.labels[alias] = i
			}
		}
	}
	for i, e := range g.Edges {
		s.edges[e.Key()] = i
		s.edgeIDs[e.ID] = i
	}
	for i, p := range g.Paths {
		s.paths[p.ID] = i
		for _, old := range p.MergedFrom {
			s.absorbed[old] = p.ID
		}
	}
	return s
}

// State returns the persistable form of the snapshot.
func (s *Snapshot) State() *common.SessionState {
	b := s.Briefing
	return &common.SessionState{
		ID:        s.SessionID,
		Query:     s.Query,
		Version:   s.Version,
		Graph:     s.Graph,
		Briefing:  &b,
		NextPath:  s.nextPath,
		Closed:    s.Closed,
		UpdatedAt: s.UpdatedAt,
	}
}

// GetNode returns the node with the given id.
func (s *Snapshot) GetNode(id string) (common.Node, error) {
	i, ok := s.nodes[id]
	if !ok {
		return common.Node{}, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return s.Graph.Nodes[i], nil
}

// FindNode returns the node a label resolves to, following merged aliases.
func (s *Snapshot) FindNode(label string) (common.Node, error) {
	i, ok := s.labels[labelKey(label)]
	if !ok {
		return common.Node{}, fmt.Errorf("node labelled %q: %w", label, ErrNotFound)
	}
	return s.Graph.Nodes[i], nil
}

// GetEdgesFor returns every edge starting or ending at nodeID in insertion
// order.
func (s *Snapshot) GetEdgesFor(nodeID string) ([]common.Edge, error) {
	if _, ok := s.nodes[nodeID]; !ok {
		return nil, fmt.Errorf("node %s: %w", nodeID, ErrNotFound)
	}
	edges := []common.Edge{}
	for _, e := range s.Graph.Edges {
		if e.From == nodeID || e.To == nodeID {
			edges = append(edges, e)
		}
	}
	return edges, nil
}

// GetEdge resolves an edge by key (from|type|to) or by id.
func (s *Snapshot) GetEdge(ref string) (common.Edge, error) {
	if i, ok := s.edges[ref]; ok {
		return s.Graph.Edges[i], nil
	}
	if i, ok := s.edgeIDs[ref]; ok {
		return s.Graph.Edges[i], nil
	}
	return common.Edge{}, fmt.Errorf("edge %s: %w", ref, ErrNotFound)
}

// GetPath returns the path with the given id. Ids of paths that were
// absorbed by a merge resolve to the path that absorbed them.
func (s *Snapshot) GetPath(id string) (common.Path, error) {
	if survivor, ok := s.absorbed[id]; ok {
		id = survivor
	}
	i, ok := s.paths[id]
	if !ok {
		return common.Path{}, fmt.Errorf("path %s: %w", id, ErrNotFound)
	}
	return s.Graph.Paths[i], nil
}

// ListVisiblePaths returns the paths in creation order. Dead paths are only
// included when showDead is set.
func (s *Snapshot) ListVisiblePaths(showDead bool) []common.Path {
	paths := make([]common.Path, 0, len(s.Graph.Paths))
	for _, p := range s.Graph.Paths {
		if p.Status == common.StatusDead && !showDead {
			continue
		}
		paths = append(paths, p)
	}
	return paths
}

// InsufficientEvidence reports whether no path is active or weak. Callers
// should present this state instead of an empty graph.
func (s *Snapshot) InsufficientEvidence() bool {
	return !slices.ContainsFunc(s.Graph.Paths, func(p common.Path) bool {
		return p.Status != common.StatusDead
	})
}

// SelectionKind names what a selection refers to.
type SelectionKind string

const (
	SelectNode SelectionKind = "node"
	SelectEdge SelectionKind = "edge"
	SelectPath SelectionKind = "path"
)

// SelectionRef is a UI selection: a node id, an edge id or key, or a path
// id.
type SelectionRef struct {
	Kind SelectionKind `json:"kind" validate:"required,oneof=node edge path"`
	ID   string        `json:"ref" validate:"required"`
}

// SelectionResult is the selected object plus its immediate neighborhood.
//
// For a node: its edges, the nodes on their other ends and the paths it
// belongs to. For an edge: its two endpoint nodes and their paths. For a
// path: its member nodes and the edges between them.
type SelectionResult struct {
	Kind  SelectionKind `json:"kind"`
	Node  *common.Node  `json:"node,omitempty"`
	Edge  *common.Edge  `json:"edge,omitempty"`
	Path  *common.Path  `json:"path,omitempty"`
	Nodes []common.Node `json:"nodes"`
	Edges []common.Edge `json:"edges"`
	Paths []common.Path `json:"paths"`
}

// Selection resolves ref into a SelectionResult.
func (s *Snapshot) Selection(ref SelectionRef) (*SelectionResult, error) {
	switch ref.Kind {
	case SelectNode:
		return s.selectNode(ref.ID)
	case SelectEdge:
		return s.selectEdge(ref.ID)
	case SelectPath:
		return s.selectPath(ref.ID)
	}
	return nil, fmt.Errorf("unknown selection kind %q", ref.Kind)
}

func (s *Snapshot) selectNode(id string) (*SelectionResult, error) {
	node, err := s.GetNode(id)
	if err != nil {
		return nil, err
	}
	edges, err := s.GetEdgesFor(id)
	if err != nil {
		return nil, err
	}

	res := &SelectionResult{Kind: SelectNode, Node: &node, Edges: edges, Nodes: []common.Node{}}
	seen := map[string]bool{id: true}
	for _, e := range edges {
		other := e.To
		if other == id {
			other = e.From
		}
		if seen[other] {
			continue
		}
		seen[other] = true
		res.Nodes = append(res.Nodes, s.Graph.Nodes[s.nodes[other]])
	}
	res.Paths = s.pathsContaining(id)
	return res, nil
}

func (s *Snapshot) selectEdge(ref string) (*SelectionResult, error) {
	edge, err := s.GetEdge(ref)
	if err != nil {
		return nil, err
	}
	from, err := s.GetNode(edge.From)
	if err != nil {
		return nil, integrityError("edge %s starts at unknown node %s", edge.ID, edge.From)
	}
	to, err := s.GetNode(edge.To)
	if err != nil {
		return nil, integrityError("edge %s ends at unknown node %s", edge.ID, edge.To)
	}

	res := &SelectionResult{
		Kind:  SelectEdge,
		Edge:  &edge,
		Nodes: []common.Node{from},
		Edges: []common.Edge{},
	}
	if to.ID != from.ID {
		res.Nodes = append(res.Nodes, to)
	}
	res.Paths = s.pathsContaining(edge.From, edge.To)
	return res, nil
}

func (s *Snapshot) selectPath(id string) (*SelectionResult, error) {
	path, err := s.GetPath(id)
	if err != nil {
		return nil, err
	}

	res := &SelectionResult{
		Kind:  SelectPath,
		Path:  &path,
		Nodes: make([]common.Node, 0, len(path.Nodes)),
		Edges: []common.Edge{},
		Paths: []common.Path{},
	}
	members := make(map[string]struct{}, len(path.Nodes))
	for _, nid := range path.Nodes {
		members[nid] = struct{}{}
		res.Nodes = append(res.Nodes, s.Graph.Nodes[s.nodes[nid]])
	}
	for _, e := range s.Graph.Edges {
		_, fromIn := members[e.From]
		_, toIn := members[e.To]
		if fromIn && toIn {
			res.Edges = append(res.Edges, e)
		}
	}
	return res, nil
}

func (s *Snapshot) pathsContaining(ids ...string) []common.Path {
	paths := []common.Path{}
	for _, p := range s.Graph.Paths {
		if slices.ContainsFunc(ids, func(id string) bool { return slices.Contains(p.Nodes, id) }) {
			paths = append(paths, p)
		}
	}
	return paths
}

// TimelineEntry is one event node with the paths it belongs to.
type TimelineEntry struct {
	Node  common.Node `json:"node"`
	Paths []string    `json:"paths"`
}

// Timeline lists event nodes by timestamp. Undated events come last in
// insertion order.
func (s *Snapshot) Timeline() []TimelineEntry {
	var events []int
	for i, n := range s.Graph.Nodes {
		if n.Type == common.NodeEvent {
			events = append(events, i)
		}
	}
	slices.SortStableFunc(events, func(a, b int) int {
		return compareTimeline(s.Graph.Nodes[a], s.Graph.Nodes[b], a, b)
	})

	entries := make([]TimelineEntry, 0, len(events))
	for _, i := range events {
		n := s.Graph.Nodes[i]
		ids := []string{}
		for _, p := range s.pathsContaining(n.ID) {
			ids = append(ids, p.ID)
		}
		entries = append(entries, TimelineEntry{Node: n, Paths: ids})
	}
	return entries
}

// SourceEntry is one evidence item with the nodes it supports.
type SourceEntry struct {
	Evidence common.Evidence `json:"evidence"`
	NodeIDs  []string        `json:"node_ids"`
	Failed   bool            `json:"failed"`
}

// Sources lists the evidence of the session in arrival order.
func (s *Snapshot) Sources() []SourceEntry {
	failed := make(map[string]bool, len(s.Graph.Failures))
	for _, f := range s.Graph.Failures {
		failed[f.EvidenceID] = true
	}

	entries := make([]SourceEntry, 0, len(s.Graph.Evidence))
	for _, ev := range s.Graph.Evidence {
		ids := []string{}
		for _, n := range s.Graph.Nodes {
			if slices.Contains(n.Sources, ev.ID) {
				ids = append(ids, n.ID)
			}
		}
		entries = append(entries, SourceEntry{Evidence: ev, NodeIDs: ids, Failed: failed[ev.ID]})
	}
	return entries
}
