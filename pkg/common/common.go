package common

import (
	"maps"
	"slices"
	"time"
)

// Evidence is one retrieved document or excerpt handed to the engine by an
// evidence collector. IDs are expected to be unique within one session.
type Evidence struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Excerpt     string    `json:"excerpt"`
	PublishedAt time.Time `json:"publishedAt"`
}

// Text returns the title and excerpt joined into one extraction input.
func (e Evidence) Text() string {
	switch {
	case e.Title == "":
		return e.Excerpt
	case e.Excerpt == "":
		return e.Title
	default:
		return e.Title + ". " + e.Excerpt
	}
}

// NodeType classifies a node.
type NodeType string

const (
	NodeEntity       NodeType = "entity"
	NodeActor        NodeType = "actor"
	NodeLocation     NodeType = "location"
	NodeAsset        NodeType = "asset"
	NodeEvent        NodeType = "event"
	NodeOrganization NodeType = "organization"
)

// NodeTypes lists every valid node type.
var NodeTypes = []NodeType{NodeEntity, NodeActor, NodeLocation, NodeAsset, NodeEvent, NodeOrganization}

// ParseNodeType maps a free-form type name onto a known node type.
// Unknown names fall back to NodeEntity.
func ParseNodeType(s string) NodeType {
	for _, t := range NodeTypes {
		if string(t) == s {
			return t
		}
	}
	switch s {
	case "person", "people", "individual":
		return NodeActor
	case "company", "bank", "institution", "government", "agency":
		return NodeOrganization
	case "place", "country", "city", "region":
		return NodeLocation
	case "fund", "security", "commodity", "currency", "account":
		return NodeAsset
	case "incident", "transaction", "announcement":
		return NodeEvent
	}
	return NodeEntity
}

// DefaultExtractionConfidence is used wherever a node carries no extraction
// confidence of its own.
const DefaultExtractionConfidence = 0.5

// Node represents an entity, actor, location, asset, organization or
// discrete event in an investigation graph.
//
// Sources holds the ids of every evidence item that mentions the node. It is
// kept sorted and free of duplicates. Timestamp is only set on event nodes
// and drives timeline ordering.
type Node struct {
	ID         string     `json:"id"`
	Type       NodeType   `json:"type"`
	Label      string     `json:"label"`
	Sources    []string   `json:"sources"`
	Confidence *float64   `json:"confidence,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

// ExtractionConfidence returns the node's extraction confidence or the
// default when none was reported.
func (n Node) ExtractionConfidence() float64 {
	if n.Confidence == nil {
		return DefaultExtractionConfidence
	}
	return *n.Confidence
}

// Edge is a directed, typed relation between two nodes.
type Edge struct {
	ID      string   `json:"id"`
	From    string   `json:"from"`
	To      string   `json:"to"`
	Type    string   `json:"type"`
	Sources []string `json:"sources"`
}

// Key identifies an edge by its endpoints and relation type.
func (e Edge) Key() string {
	return EdgeKey(e.From, e.Type, e.To)
}

// EdgeKey builds the key used to address an edge in selections.
func EdgeKey(from, relation, to string) string {
	return from + "|" + relation + "|" + to
}

// PathStatus classifies a path by its confidence.
type PathStatus string

const (
	StatusActive PathStatus = "active"
	StatusWeak   PathStatus = "weak"
	StatusDead   PathStatus = "dead"
)

// StatusFor derives the status of a path from its confidence.
func StatusFor(confidence int) PathStatus {
	switch {
	case confidence >= 60:
		return StatusActive
	case confidence >= 30:
		return StatusWeak
	default:
		return StatusDead
	}
}

// Path is one hypothesis: a connected set of nodes that together tell one
// explanatory story.
//
// Nodes is ordered so that every prefix forms a connected subgraph.
// MergedFrom lists the ids of paths that were absorbed into this one when
// new evidence bridged their components.
type Path struct {
	ID              string     `json:"id"`
	Nodes           []string   `json:"nodes"`
	HypothesisLabel string     `json:"hypothesis_label"`
	Confidence      int        `json:"confidence"`
	Status          PathStatus `json:"status"`
	MergedFrom      []string   `json:"merged_from,omitempty"`
	Signals         []Signal   `json:"signals,omitempty"`
}

// Signal explains one component of a path's confidence.
type Signal struct {
	Type        string         `json:"type"`
	Severity    string         `json:"severity"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
}

// Flag records a structural anomaly that was kept rather than dropped.
type Flag struct {
	Kind    string `json:"kind"`
	EdgeID  string `json:"edge_id,omitempty"`
	NodeID  string `json:"node_id,omitempty"`
	Message string `json:"message"`
}

// FailureRecord is the persisted form of an extraction failure.
type FailureRecord struct {
	EvidenceID string `json:"evidence_id"`
	Reason     string `json:"reason"`
}

// Graph is the aggregate root of an investigation session.
type Graph struct {
	Nodes    []Node          `json:"nodes"`
	Edges    []Edge          `json:"edges"`
	Paths    []Path          `json:"paths"`
	Evidence []Evidence      `json:"evidence"`
	Flags    []Flag          `json:"flags,omitempty"`
	Failures []FailureRecord `json:"failures,omitempty"`
	// Aliases maps the normalized labels of merged-away nodes to the node
	// that absorbed them.
	Aliases map[string]string `json:"aliases,omitempty"`
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		Nodes:    make([]Node, len(g.Nodes)),
		Edges:    make([]Edge, len(g.Edges)),
		Paths:    make([]Path, len(g.Paths)),
		Evidence: slices.Clone(g.Evidence),
		Flags:    slices.Clone(g.Flags),
		Failures: slices.Clone(g.Failures),
		Aliases:  maps.Clone(g.Aliases),
	}
	for i, n := range g.Nodes {
		n.Sources = slices.Clone(n.Sources)
		if n.Confidence != nil {
			c := *n.Confidence
			n.Confidence = &c
		}
		if n.Timestamp != nil {
			ts := *n.Timestamp
			n.Timestamp = &ts
		}
		out.Nodes[i] = n
	}
	for i, e := range g.Edges {
		e.Sources = slices.Clone(e.Sources)
		out.Edges[i] = e
	}
	for i, p := range g.Paths {
		p.Nodes = slices.Clone(p.Nodes)
		p.MergedFrom = slices.Clone(p.MergedFrom)
		p.Signals = slices.Clone(p.Signals)
		out.Paths[i] = p
	}
	return out
}

// Claim ties one sentence of a briefing to the paths supporting it.
type Claim struct {
	Field   string   `json:"field"`
	Text    string   `json:"text"`
	PathIDs []string `json:"path_ids"`
}

// Briefing is the condensed narrative produced for an investigation.
//
// Every claim references at least one active or weak path. LowConfidence is
// set whenever no path reached active status.
type Briefing struct {
	WhatChanged     string   `json:"what_changed"`
	WhyItMatters    string   `json:"why_it_matters"`
	WhatToWatchNext string   `json:"what_to_watch_next"`
	KeyThemes       []string `json:"key_themes"`
	PathReferences  []string `json:"path_references"`
	LowConfidence   bool     `json:"low_confidence"`
	Claims          []Claim  `json:"claims"`
}

// SourceSet merges ids into a sorted set without duplicates.
func SourceSet(sets ...[]string) []string {
	var out []string
	for _, s := range sets {
		out = append(out, s...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// SessionState is the persisted form of an investigation session.
// Version increases by one with every committed batch or mutation. A closed
// session accepts no further changes.
type SessionState struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Version   int       `json:"version"`
	Graph     *Graph    `json:"graph"`
	Briefing  *Briefing `json:"briefing,omitempty"`
	NextPath  int       `json:"next_path"`
	Closed    bool      `json:"closed,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
