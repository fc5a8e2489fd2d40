package graph

import (
	"fmt"
	"slices"
	"time"

	"github.com/OFFIS-RIT/trailgraph/pkg/ai"
	"github.com/OFFIS-RIT/trailgraph/pkg/briefing"
	"github.com/OFFIS-RIT/trailgraph/pkg/score"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// DefaultContradictionRelations are the relation types that mark competing
// hypotheses instead of joining them.
var DefaultContradictionRelations = []string{"contradicts", "denies", "refutes", "disputes"}

// GraphClient holds the pipeline configuration shared by all sessions: the
// extractor, scorer and synthesizer plus the limits used while ingesting
// evidence. It carries no per-session state and is safe for concurrent use.
//
// A GraphClient should be created using NewGraphClient.
type GraphClient struct {
	extractor           Extractor
	aliasClient         ai.GraphAIClient
	scorer              *score.Scorer
	synthesizer         briefing.Synthesizer
	parallelExtractions int
	maxRetries          int
	extractTimeout      time.Duration
	contradictions      []string
	newID               func() (string, error)
}

// NewGraphClientParams defines the configuration parameters for creating
// a new GraphClient.
//
// Extractor turns evidence into mentions; it defaults to a RuleExtractor.
// A RuleExtractor is given the configured contradiction relations.
// AliasClient enables AI alias resolution after every batch when set.
// Synthesizer defaults to the deterministic briefing synthesizer.
// ParallelExtractions controls how many evidence items are extracted at once.
// ExtractTimeout bounds every single extraction call.
type NewGraphClientParams struct {
	Extractor              Extractor
	AliasClient            ai.GraphAIClient
	Weights                *score.Weights
	Synthesizer            briefing.Synthesizer
	ParallelExtractions    int
	MaxRetries             int
	ExtractTimeout         time.Duration
	ContradictionRelations []string
}

// NewGraphClient creates and returns a new GraphClient configured with
// the provided parameters.
//
// Example:
//
//	client, err := graph.NewGraphClient(graph.NewGraphClientParams{
//		Extractor:           extractor,
//		ParallelExtractions: 8,
//		ExtractTimeout:      30 * time.Second,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	session, err := client.NewSession("who funds Y?")
func NewGraphClient(params NewGraphClientParams) (*GraphClient, error) {
	weights := score.DefaultWeights()
	if params.Weights != nil {
		weights = *params.Weights
	}
	contradictions := params.ContradictionRelations
	if len(contradictions) == 0 {
		contradictions = DefaultContradictionRelations
	}
	normalized := make([]string, 0, len(contradictions))
	for _, rel := range contradictions {
		if rel = normalizeRelation(rel); rel != "" {
			normalized = append(normalized, rel)
		}
	}
	slices.Sort(normalized)
	normalized = slices.Compact(normalized)

	extractor := params.Extractor
	if extractor == nil {
		extractor = NewRuleExtractor(nil)
	}
	if r, ok := extractor.(*RuleExtractor); ok {
		extractor = r.WithContradictions(normalized)
	}

	scorer, err := score.NewScorer(score.NewScorerParams{
		Weights:                weights,
		ContradictionRelations: normalized,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create scorer: %w", err)
	}

	synthesizer := params.Synthesizer
	if synthesizer == nil {
		synthesizer = briefing.NewDeterministic()
	}

	parallel := params.ParallelExtractions
	if parallel <= 0 {
		parallel = 4
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &GraphClient{
		extractor:           extractor,
		aliasClient:         params.AliasClient,
		scorer:              scorer,
		synthesizer:         synthesizer,
		parallelExtractions: parallel,
		maxRetries:          maxRetries,
		extractTimeout:      params.ExtractTimeout,
		contradictions:      normalized,
		newID:               func() (string, error) { return gonanoid.New() },
	}, nil
}

func (c *GraphClient) isContradiction(relation string) bool {
	_, found := slices.BinarySearch(c.contradictions, relation)
	return found
}
