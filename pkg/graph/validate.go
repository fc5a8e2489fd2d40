package graph

import (
	"github.com/OFFIS-RIT/trailgraph/pkg/common"
)

// validateGraph checks the construction invariants of g. Any violation is a
// pipeline bug and is reported as ErrReferentialIntegrity.
func validateGraph(g *common.Graph) error {
	nodes := make(map[string]struct{}, len(g.Nodes))
	labels := make(map[string]string, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			return integrityError("node %q has no id", n.Label)
		}
		if _, dup := nodes[n.ID]; dup {
			return integrityError("duplicate node id %s", n.ID)
		}
		nodes[n.ID] = struct{}{}

		key := labelKey(n.Label)
		if other, dup := labels[key]; dup {
			return integrityError("nodes %s and %s share label %q", other, n.ID, n.Label)
		}
		labels[key] = n.ID

		if len(n.Sources) == 0 {
			return integrityError("node %s has no sources", n.ID)
		}
	}

	edges := make(map[string]struct{}, len(g.Edges))
	keys := make(map[string]struct{}, len(g.Edges))
	for _, e := range g.Edges {
		if _, dup := edges[e.ID]; dup {
			return integrityError("duplicate edge id %s", e.ID)
		}
		edges[e.ID] = struct{}{}
		if _, dup := keys[e.Key()]; dup {
			return integrityError("duplicate edge %s", e.Key())
		}
		keys[e.Key()] = struct{}{}

		if _, ok := nodes[e.From]; !ok {
			return integrityError("edge %s starts at unknown node %s", e.ID, e.From)
		}
		if _, ok := nodes[e.To]; !ok {
			return integrityError("edge %s ends at unknown node %s", e.ID, e.To)
		}
	}

	paths := make(map[string]struct{}, len(g.Paths))
	owner := make(map[string]string)
	for _, p := range g.Paths {
		if _, dup := paths[p.ID]; dup {
			return integrityError("duplicate path id %s", p.ID)
		}
		paths[p.ID] = struct{}{}
		for _, id := range p.Nodes {
			if _, ok := nodes[id]; !ok {
				return integrityError("path %s references unknown node %s", p.ID, id)
			}
			if other, taken := owner[id]; taken {
				return integrityError("node %s belongs to paths %s and %s", id, other, p.ID)
			}
			owner[id] = p.ID
		}
	}
	return nil
}
