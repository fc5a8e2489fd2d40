package graph

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/trailgraph/pkg/common"
	"github.com/OFFIS-RIT/trailgraph/pkg/logger"
)

const maxLabelEvents = 3

// unionFind groups node positions into connected components.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	u := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range u.parent {
		u.parent[i] = i
	}
	return u
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}

// component is one maximal connected set of nodes, listed in insertion order.
type component struct {
	members []int
}

// buildPaths recomputes g.Paths from the current nodes and edges.
//
// Every previous path is carried into the component that now contains its
// nodes. A component holding several previous paths merges them into the
// path with the most distinct sources (earliest created on a tie); the
// absorbed ids are recorded in merged_from. A component without a previous
// path becomes a new path once it contains an event node and at least two
// distinct sources. Paths are never dropped otherwise.
func (c *GraphClient) buildPaths(g *common.Graph, nextPath *int) error {
	idx := indexGraph(g)
	uf := newUnionFind(len(g.Nodes))
	for _, e := range g.Edges {
		fi, okFrom := idx.byID[e.From]
		ti, okTo := idx.byID[e.To]
		if !okFrom || !okTo {
			return integrityError("edge %s references unknown node", e.ID)
		}
		if c.isContradiction(e.Type) {
			continue
		}
		uf.union(fi, ti)
	}

	// components ordered by their earliest node
	byRoot := make(map[int]*component)
	var components []*component
	for i := range g.Nodes {
		root := uf.find(i)
		comp, ok := byRoot[root]
		if !ok {
			comp = &component{}
			byRoot[root] = comp
			components = append(components, comp)
		}
		comp.members = append(comp.members, i)
	}

	previous := make(map[*component][]int)
	for pi, p := range g.Paths {
		if len(p.Nodes) == 0 {
			return integrityError("path %s has no nodes", p.ID)
		}
		ni, ok := idx.byID[p.Nodes[0]]
		if !ok {
			return integrityError("path %s references unknown node %s", p.ID, p.Nodes[0])
		}
		comp := byRoot[uf.find(ni)]
		previous[comp] = append(previous[comp], pi)
	}

	survivors := make(map[int]*component)
	absorbed := make(map[int]bool)
	var created []common.Path

	for _, comp := range components {
		carried := previous[comp]
		switch {
		case len(carried) == 0:
			if !c.qualifies(g, comp) {
				continue
			}
			*nextPath++
			created = append(created, common.Path{
				ID:     fmt.Sprintf("path-%d", *nextPath),
				Status: common.StatusDead,
			})
			survivors[-len(created)] = comp
		case len(carried) == 1:
			survivors[carried[0]] = comp
		default:
			keep := c.pickSurvivor(g, idx, carried)
			survivors[keep] = comp
			for _, pi := range carried {
				if pi == keep {
					continue
				}
				absorbed[pi] = true
				merged := append(g.Paths[keep].MergedFrom, g.Paths[pi].ID)
				g.Paths[keep].MergedFrom = append(merged, g.Paths[pi].MergedFrom...)
				logger.Info("[Paths] Merged bridged hypotheses", "into", g.Paths[keep].ID, "from", g.Paths[pi].ID)
			}
		}
	}

	paths := make([]common.Path, 0, len(g.Paths)+len(created))
	for pi, p := range g.Paths {
		if absorbed[pi] {
			continue
		}
		if err := c.shapePath(g, idx, &p, survivors[pi]); err != nil {
			return err
		}
		paths = append(paths, p)
	}
	for i, p := range created {
		if err := c.shapePath(g, idx, &p, survivors[-(i+1)]); err != nil {
			return err
		}
		logger.Debug("[Paths] New hypothesis", "path", p.ID, "nodes", len(p.Nodes))
		paths = append(paths, p)
	}
	g.Paths = paths
	return nil
}

// qualifies reports whether a component is a corroborated hypothesis.
func (c *GraphClient) qualifies(g *common.Graph, comp *component) bool {
	hasEvent := false
	var sources []string
	for _, i := range comp.members {
		if g.Nodes[i].Type == common.NodeEvent {
			hasEvent = true
		}
		sources = append(sources, g.Nodes[i].Sources...)
	}
	return hasEvent && len(common.SourceSet(sources)) >= 2
}

func (c *GraphClient) pickSurvivor(g *common.Graph, idx *graphIndex, carried []int) int {
	best, bestSources := carried[0], -1
	for _, pi := range carried {
		var sources []string
		for _, id := range g.Paths[pi].Nodes {
			if ni, ok := idx.byID[id]; ok {
				sources = append(sources, g.Nodes[ni].Sources...)
			}
		}
		// carried is in creation order, so ties keep the earlier path
		if n := len(common.SourceSet(sources)); n > bestSources {
			best, bestSources = pi, n
		}
	}
	return best
}

// shapePath sets the node order and hypothesis label of p from comp.
func (c *GraphClient) shapePath(g *common.Graph, idx *graphIndex, p *common.Path, comp *component) error {
	if comp == nil {
		return integrityError("path %s lost its component", p.ID)
	}
	order, err := c.connectedOrder(g, idx, comp)
	if err != nil {
		return fmt.Errorf("path %s: %w", p.ID, err)
	}
	p.Nodes = order
	p.HypothesisLabel = hypothesisLabel(g, idx, order)
	return nil
}

// connectedOrder lists the members of comp breadth-first, starting at the
// earliest inserted node and following edges in insertion order, so every
// prefix of the result is connected.
func (c *GraphClient) connectedOrder(g *common.Graph, idx *graphIndex, comp *component) ([]string, error) {
	members := make(map[int]struct{}, len(comp.members))
	for _, i := range comp.members {
		members[i] = struct{}{}
	}

	adjacent := make(map[int][]int, len(comp.members))
	for _, e := range g.Edges {
		if c.isContradiction(e.Type) {
			continue
		}
		fi, ti := idx.byID[e.From], idx.byID[e.To]
		if _, ok := members[fi]; !ok {
			continue
		}
		adjacent[fi] = append(adjacent[fi], ti)
		adjacent[ti] = append(adjacent[ti], fi)
	}

	start := comp.members[0]
	visited := map[int]bool{start: true}
	queue := []int{start}
	order := make([]string, 0, len(comp.members))
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, g.Nodes[cur].ID)
		for _, next := range adjacent[cur] {
			if visited[next] {
				continue
			}
			visited[next] = true
			queue = append(queue, next)
		}
	}

	if len(order) != len(comp.members) {
		return nil, integrityError("component is not connected (%d of %d nodes reachable)", len(order), len(comp.members))
	}
	return order, nil
}

// hypothesisLabel names a path after its events in timeline order.
func hypothesisLabel(g *common.Graph, idx *graphIndex, order []string) string {
	var events []int
	for _, id := range order {
		if i := idx.byID[id]; g.Nodes[i].Type == common.NodeEvent {
			events = append(events, i)
		}
	}
	if len(events) == 0 {
		labels := make([]string, 0, 2)
		for _, id := range order[:min(2, len(order))] {
			labels = append(labels, g.Nodes[idx.byID[id]].Label)
		}
		return strings.Join(labels, " – ")
	}

	slices.SortStableFunc(events, func(a, b int) int {
		return compareTimeline(g.Nodes[a], g.Nodes[b], a, b)
	})

	labels := make([]string, 0, maxLabelEvents)
	for _, i := range events[:min(maxLabelEvents, len(events))] {
		labels = append(labels, g.Nodes[i].Label)
	}
	label := strings.Join(labels, " → ")
	if extra := len(events) - maxLabelEvents; extra > 0 {
		label += fmt.Sprintf(" (+%d more)", extra)
	}
	return label
}

// compareTimeline orders events by timestamp, undated events last, then by
// insertion position.
func compareTimeline(a, b common.Node, posA, posB int) int {
	switch {
	case a.Timestamp != nil && b.Timestamp != nil:
		if d := a.Timestamp.Compare(*b.Timestamp); d != 0 {
			return d
		}
	case a.Timestamp != nil:
		return -1
	case b.Timestamp != nil:
		return 1
	}
	return cmp.Compare(posA, posB)
}
