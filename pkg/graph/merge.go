package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/trailgraph/pkg/common"
	"github.com/OFFIS-RIT/trailgraph/pkg/logger"
)

// labelKey is the node identity: the label case-folded with whitespace
// collapsed.
func labelKey(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), " "))
}

// graphIndex addresses the nodes and edges of a graph by identity. It is
// rebuilt for every working copy and kept in sync while merging.
type graphIndex struct {
	byLabel map[string]int
	byID    map[string]int
	edges   map[string]int
}

func indexGraph(g *common.Graph) *graphIndex {
	idx := &graphIndex{
		byLabel: make(map[string]int, len(g.Nodes)),
		byID:    make(map[string]int, len(g.Nodes)),
		edges:   make(map[string]int, len(g.Edges)),
	}
	for i, n := range g.Nodes {
		idx.byLabel[labelKey(n.Label)] = i
		idx.byID[n.ID] = i
	}
	for alias, id := range g.Aliases {
		if i, ok := idx.byID[id]; ok {
			if _, taken := idx.byLabel[alias]; !taken {
				idx.byLabel[alias] = i
			}
		}
	}
	for i, e := range g.Edges {
		idx.edges[e.Key()] = i
	}
	return idx
}

// mergeExtraction folds one extraction into g. Mentions of an already known
// label extend the existing node; relations between known labels extend the
// existing edge of the same type and direction.
func (c *GraphClient) mergeExtraction(g *common.Graph, idx *graphIndex, ext Extraction) error {
	source := []string{ext.EvidenceID}

	for _, m := range ext.Mentions {
		label := strings.TrimSpace(strings.Join(strings.Fields(m.Label), " "))
		if label == "" {
			continue
		}
		key := labelKey(label)

		if i, ok := idx.byLabel[key]; ok {
			mergeMention(&g.Nodes[i], m, source)
			continue
		}

		id, err := c.newID()
		if err != nil {
			return fmt.Errorf("failed to generate node id: %w", err)
		}
		node := common.Node{
			ID:      id,
			Type:    m.Type,
			Label:   label,
			Sources: source,
		}
		if node.Type == "" {
			node.Type = common.NodeEntity
		}
		if m.Confidence != nil {
			conf := *m.Confidence
			node.Confidence = &conf
		}
		if node.Type == common.NodeEvent && m.Timestamp != nil {
			ts := *m.Timestamp
			node.Timestamp = &ts
		}
		g.Nodes = append(g.Nodes, node)
		idx.byLabel[key] = len(g.Nodes) - 1
		idx.byID[id] = len(g.Nodes) - 1
	}

	for _, r := range ext.Relations {
		relation := normalizeRelation(r.Type)
		fromIdx, okFrom := idx.byLabel[labelKey(r.From)]
		toIdx, okTo := idx.byLabel[labelKey(r.To)]
		if relation == "" || !okFrom || !okTo {
			logger.Debug("[Merge] Skipping relation without known endpoints", "evidence_id", ext.EvidenceID, "from", r.From, "to", r.To)
			continue
		}
		from, to := g.Nodes[fromIdx].ID, g.Nodes[toIdx].ID

		if _, err := c.addEdge(g, idx, from, relation, to, source); err != nil {
			return err
		}
	}
	return nil
}

// addEdge merges sources into the edge from|relation|to, creating it when it
// does not exist yet. Newly created self-loops are kept and flagged.
func (c *GraphClient) addEdge(
	g *common.Graph,
	idx *graphIndex,
	from, relation, to string,
	sources []string,
) (*common.Edge, error) {
	key := common.EdgeKey(from, relation, to)
	if i, ok := idx.edges[key]; ok {
		g.Edges[i].Sources = common.SourceSet(g.Edges[i].Sources, sources)
		return &g.Edges[i], nil
	}

	id, err := c.newID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate edge id: %w", err)
	}
	g.Edges = append(g.Edges, common.Edge{
		ID:      id,
		From:    from,
		To:      to,
		Type:    relation,
		Sources: common.SourceSet(sources),
	})
	idx.edges[key] = len(g.Edges) - 1

	if from == to {
		label := g.Nodes[idx.byID[from]].Label
		logger.Warn("[Merge] Self-loop relation kept", "node", label, "relation", relation)
		g.Flags = append(g.Flags, common.Flag{
			Kind:    "self_loop",
			EdgeID:  id,
			NodeID:  from,
			Message: fmt.Sprintf("%s %s itself", label, relation),
		})
	}
	return &g.Edges[len(g.Edges)-1], nil
}

// mergeMention extends an existing node with a repeated mention.
//
// The generic entity type is replaced by any specific type. Event
// timestamps keep the earliest stated point in time. Confidence keeps the
// highest reported value.
func mergeMention(n *common.Node, m Mention, sources []string) {
	n.Sources = common.SourceSet(n.Sources, sources)

	if n.Type == common.NodeEntity && m.Type != "" && m.Type != common.NodeEntity {
		n.Type = m.Type
	}
	if m.Confidence != nil && (n.Confidence == nil || *m.Confidence > *n.Confidence) {
		conf := *m.Confidence
		n.Confidence = &conf
	}
	if n.Type == common.NodeEvent && m.Timestamp != nil {
		if n.Timestamp == nil || m.Timestamp.Before(*n.Timestamp) {
			ts := *m.Timestamp
			n.Timestamp = &ts
		}
	}
}

// addEvidence records evidence items in the graph, ignoring ids that are
// already present.
func addEvidence(g *common.Graph, batch []common.Evidence) {
	known := make(map[string]struct{}, len(g.Evidence))
	for _, ev := range g.Evidence {
		known[ev.ID] = struct{}{}
	}
	for _, ev := range batch {
		if _, ok := known[ev.ID]; ok {
			continue
		}
		known[ev.ID] = struct{}{}
		g.Evidence = append(g.Evidence, ev)
	}
}

// mergeNodes folds the nodes in drop into keep. Edges are rewired onto keep
// and deduplicated, and path membership is rewritten so that the path
// builder carries every affected path forward.
func (c *GraphClient) mergeNodes(g *common.Graph, keep string, drop []string) error {
	idx := indexGraph(g)
	ki, ok := idx.byID[keep]
	if !ok {
		return fmt.Errorf("node %s: %w", keep, ErrNotFound)
	}

	dropped := make(map[string]struct{}, len(drop))
	for _, id := range drop {
		if id == keep {
			continue
		}
		di, ok := idx.byID[id]
		if !ok {
			return fmt.Errorf("node %s: %w", id, ErrNotFound)
		}
		dropped[id] = struct{}{}
		d := g.Nodes[di]
		if g.Aliases == nil {
			g.Aliases = map[string]string{}
		}
		g.Aliases[labelKey(d.Label)] = keep
		mergeMention(&g.Nodes[ki], Mention{
			Type:       d.Type,
			Confidence: d.Confidence,
			Timestamp:  d.Timestamp,
		}, d.Sources)
	}
	if len(dropped) == 0 {
		return nil
	}

	rewire := func(id string) string {
		if _, ok := dropped[id]; ok {
			return keep
		}
		return id
	}

	nodes := g.Nodes[:0:0]
	for _, n := range g.Nodes {
		if _, ok := dropped[n.ID]; !ok {
			nodes = append(nodes, n)
		}
	}
	edges := g.Edges
	g.Nodes = nodes
	g.Edges = nil
	idx = indexGraph(g)
	for _, e := range edges {
		wasLoop := e.From == e.To
		e.From, e.To = rewire(e.From), rewire(e.To)
		if i, ok := idx.edges[e.Key()]; ok {
			g.Edges[i].Sources = common.SourceSet(g.Edges[i].Sources, e.Sources)
			continue
		}
		g.Edges = append(g.Edges, e)
		idx.edges[e.Key()] = len(g.Edges) - 1

		if !wasLoop && e.From == e.To {
			g.Flags = append(g.Flags, common.Flag{
				Kind:    "self_loop",
				EdgeID:  e.ID,
				NodeID:  e.From,
				Message: fmt.Sprintf("%s %s itself after merge", g.Nodes[idx.byID[keep]].Label, e.Type),
			})
		}
	}

	for i := range g.Paths {
		members := make([]string, 0, len(g.Paths[i].Nodes))
		for _, id := range g.Paths[i].Nodes {
			members = append(members, rewire(id))
		}
		g.Paths[i].Nodes = compactStable(members)
	}
	for i := range g.Flags {
		g.Flags[i].NodeID = rewire(g.Flags[i].NodeID)
	}
	for alias, id := range g.Aliases {
		g.Aliases[alias] = rewire(id)
	}
	return nil
}

func compactStable(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return slices.Clip(out)
}
