// Package briefing condenses an investigation graph into a short structured
// narrative whose claims all cite active or weak hypothesis paths.
package briefing

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/trailgraph/pkg/common"
)

// Briefing fields as named in claims.
const (
	FieldWhatChanged     = "what_changed"
	FieldWhyItMatters    = "why_it_matters"
	FieldWhatToWatchNext = "what_to_watch_next"
)

// LowConfidencePrefix opens what_changed whenever no path is active.
const LowConfidencePrefix = "Low confidence:"

// InsufficientEvidence opens what_changed when no path is active or weak.
const InsufficientEvidence = "Insufficient evidence:"

const maxThemes = 5

// Input is everything a synthesizer may read. Graph must not be modified.
type Input struct {
	Query string
	Graph *common.Graph
}

// Synthesizer produces a briefing from a graph and its scored paths.
type Synthesizer interface {
	Synthesize(ctx context.Context, in Input) (common.Briefing, error)
}

// Supported returns the active and weak paths of g, strongest first. Paths
// with equal confidence keep their creation order.
func Supported(g *common.Graph) []common.Path {
	var out []common.Path
	for _, p := range g.Paths {
		if p.Status == common.StatusActive || p.Status == common.StatusWeak {
			out = append(out, p)
		}
	}
	slices.SortStableFunc(out, func(a, b common.Path) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})
	return out
}

// HasActive reports whether any path of g is active.
func HasActive(g *common.Graph) bool {
	return slices.ContainsFunc(g.Paths, func(p common.Path) bool {
		return p.Status == common.StatusActive
	})
}

// composer collects cited sentences per field.
type composer struct {
	fields map[string][]string
	claims []common.Claim
	refs   []string
}

func newComposer() *composer {
	return &composer{fields: make(map[string][]string)}
}

// add records one claim. Claims without path ids are ignored.
func (c *composer) add(field, text string, pathIDs ...string) {
	text = strings.TrimSpace(text)
	if text == "" || len(pathIDs) == 0 {
		return
	}
	ids := slices.Clone(pathIDs)
	c.claims = append(c.claims, common.Claim{Field: field, Text: text, PathIDs: ids})

	var b strings.Builder
	b.WriteString(strings.TrimRight(text, "."))
	for _, id := range ids {
		fmt.Fprintf(&b, " [[%s]]", id)
		if !slices.Contains(c.refs, id) {
			c.refs = append(c.refs, id)
		}
	}
	b.WriteString(".")
	c.fields[field] = append(c.fields[field], b.String())
}

func (c *composer) briefing(themes []string, lowConfidence bool) common.Briefing {
	return common.Briefing{
		WhatChanged:     strings.Join(c.fields[FieldWhatChanged], " "),
		WhyItMatters:    strings.Join(c.fields[FieldWhyItMatters], " "),
		WhatToWatchNext: strings.Join(c.fields[FieldWhatToWatchNext], " "),
		KeyThemes:       themes,
		PathReferences:  c.refs,
		LowConfidence:   lowConfidence,
		Claims:          c.claims,
	}
}

// Themes returns the most frequent relation types among the given paths,
// humanized, falling back to the labels of their non-event nodes.
func Themes(g *common.Graph, paths []common.Path) []string {
	inPaths := make(map[string]struct{})
	for _, p := range paths {
		for _, id := range p.Nodes {
			inPaths[id] = struct{}{}
		}
	}

	counts := make(map[string]int)
	var order []string
	for _, e := range g.Edges {
		_, fromIn := inPaths[e.From]
		_, toIn := inPaths[e.To]
		if !fromIn || !toIn || e.Type == "involves" {
			continue
		}
		theme := strings.ReplaceAll(e.Type, "_", " ")
		if counts[theme] == 0 {
			order = append(order, theme)
		}
		counts[theme]++
	}
	slices.SortStableFunc(order, func(a, b string) int {
		return cmp.Compare(counts[b], counts[a])
	})
	if len(order) > 0 {
		return order[:min(maxThemes, len(order))]
	}

	labels := []string{}
	for _, n := range g.Nodes {
		if _, ok := inPaths[n.ID]; ok && n.Type != common.NodeEvent {
			labels = append(labels, n.Label)
		}
	}
	return labels[:min(maxThemes, len(labels))]
}

func nodeLabels(g *common.Graph, p common.Path, skip common.NodeType, limit int) []string {
	byID := make(map[string]common.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		byID[n.ID] = n
	}
	var out []string
	for _, id := range p.Nodes {
		if n, ok := byID[id]; ok && n.Type != skip {
			out = append(out, n.Label)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

func pathSources(g *common.Graph, p common.Path) []string {
	var sources []string
	for _, n := range g.Nodes {
		if slices.Contains(p.Nodes, n.ID) {
			sources = append(sources, n.Sources...)
		}
	}
	return common.SourceSet(sources)
}

func pathIDs(paths []common.Path) []string {
	ids := make([]string, 0, len(paths))
	for _, p := range paths {
		ids = append(ids, p.ID)
	}
	return ids
}
