package graph

import (
	"context"
	"slices"

	"github.com/OFFIS-RIT/trailgraph/pkg/ai"
	"github.com/OFFIS-RIT/trailgraph/pkg/common"
	"github.com/OFFIS-RIT/trailgraph/pkg/logger"
)

// resolveAliases asks the alias model which nodes name the same thing and
// merges each group into its canonical node. Events are never offered, and
// groups mixing node types are ignored. Model failures are logged and leave
// the graph as it was; only merge errors are returned.
func (c *GraphClient) resolveAliases(ctx context.Context, g *common.Graph) error {
	if c.aliasClient == nil {
		return nil
	}

	byType := make(map[common.NodeType][]ai.AliasCandidate)
	var types []common.NodeType
	for _, n := range g.Nodes {
		if n.Type == common.NodeEvent {
			continue
		}
		if _, ok := byType[n.Type]; !ok {
			types = append(types, n.Type)
		}
		byType[n.Type] = append(byType[n.Type], ai.AliasCandidate{Label: n.Label, Type: string(n.Type)})
	}

	merged := 0
	for _, t := range types {
		candidates := byType[t]
		for start := 0; start < len(candidates); start += ai.AliasBatchSize {
			batch := candidates[start:min(start+ai.AliasBatchSize, len(candidates))]
			if len(batch) < 2 {
				continue
			}

			res, err := ai.CallAliasAI(ctx, batch, c.aliasClient, c.maxRetries)
			if err != nil {
				logger.Warn("[Dedupe] Alias resolution failed, keeping nodes apart", "type", t, "err", err)
				continue
			}

			for _, group := range res.Aliases {
				n, err := c.applyAliasGroup(g, t, group)
				if err != nil {
					return err
				}
				merged += n
			}
		}
	}

	if merged > 0 {
		logger.Debug("[Dedupe] Merged alias nodes", "count", merged)
	}
	return nil
}

func (c *GraphClient) applyAliasGroup(g *common.Graph, t common.NodeType, group ai.AliasGroup) (int, error) {
	idx := indexGraph(g)

	var ids []string
	keep := ""
	for _, label := range group.Labels {
		i, ok := idx.byLabel[labelKey(label)]
		if !ok || g.Nodes[i].Type != t {
			continue
		}
		id := g.Nodes[i].ID
		if slices.Contains(ids, id) {
			continue
		}
		ids = append(ids, id)
		if labelKey(label) == labelKey(group.Canonical) {
			keep = id
		}
	}
	if len(ids) < 2 {
		return 0, nil
	}
	if keep == "" {
		keep = ids[0]
	}

	if err := c.mergeNodes(g, keep, ids); err != nil {
		return 0, err
	}
	return len(ids) - 1, nil
}
