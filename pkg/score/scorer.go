package score

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/trailgraph/pkg/common"

	"golang.org/x/net/publicsuffix"
)

// Signal types reported for every scored path.
const (
	SignalEvidenceDensity  = "evidence_density"
	SignalSourceDiversity  = "source_diversity"
	SignalContradiction    = "contradiction"
	SignalExtractionWeight = "extraction_confidence"
)

// Signal severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// unknownOrigin groups every source without a parsable URL host.
const unknownOrigin = "unknown"

// Weights configures the bands of the confidence formula.
//
// Density and diversity bands grow linearly until their saturation point
// and are capped at their maximum. The contradiction penalty grows by
// ContradictionPerEdge and is capped at ContradictionMax.
type Weights struct {
	DensityMax           float64 `json:"density_max"`
	DensitySaturation    float64 `json:"density_saturation"`
	DiversityMax         float64 `json:"diversity_max"`
	DiversitySaturation  int     `json:"diversity_saturation"`
	ContradictionMax     float64 `json:"contradiction_max"`
	ContradictionPerEdge float64 `json:"contradiction_per_edge"`
	ExtractionMax        float64 `json:"extraction_max"`
}

// DefaultWeights returns the default weights: density up to 40 points,
// diversity up to 30 and a contradiction penalty of up to 30.
func DefaultWeights() Weights {
	return Weights{
		DensityMax:           40,
		DensitySaturation:    0.4,
		DiversityMax:         30,
		DiversitySaturation:  3,
		ContradictionMax:     30,
		ContradictionPerEdge: 10,
		ExtractionMax:        0,
	}
}

// Validate checks that the weights describe a usable formula.
func (w Weights) Validate() error {
	var errs []error
	if w.DensityMax < 0 || w.DiversityMax < 0 || w.ContradictionMax < 0 || w.ContradictionPerEdge < 0 || w.ExtractionMax < 0 {
		errs = append(errs, errors.New("weights must not be negative"))
	}
	if w.DensitySaturation <= 0 {
		errs = append(errs, errors.New("density saturation must be positive"))
	}
	if w.DiversitySaturation <= 0 {
		errs = append(errs, errors.New("diversity saturation must be positive"))
	}
	return errors.Join(errs...)
}

// Scorer computes path confidence values. It is stateless apart from its
// configuration and safe for concurrent use.
type Scorer struct {
	weights        Weights
	contradictions []string
}

// NewScorerParams configures a Scorer. ContradictionRelations lists the
// normalized relation types that count against a path.
type NewScorerParams struct {
	Weights                Weights
	ContradictionRelations []string
}

// NewScorer creates a Scorer.
func NewScorer(params NewScorerParams) (*Scorer, error) {
	if err := params.Weights.Validate(); err != nil {
		return nil, fmt.Errorf("invalid weights: %w", err)
	}
	return &Scorer{
		weights:        params.Weights,
		contradictions: slices.Clone(params.ContradictionRelations),
	}, nil
}

// Weights returns the configured weights.
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Result is the outcome of scoring one path.
type Result struct {
	Confidence int
	Status     common.PathStatus
	Density    float64
	Diversity  float64
	Extraction float64
	Penalty    float64
	Signals    []common.Signal
}

// ScoreGraph scores every path of g in place.
func (s *Scorer) ScoreGraph(g *common.Graph) {
	membership := pathMembership(g)
	origins := evidenceOrigins(g)
	for i := range g.Paths {
		res := s.score(g, g.Paths[i], membership, origins)
		g.Paths[i].Confidence = res.Confidence
		g.Paths[i].Status = res.Status
		g.Paths[i].Signals = res.Signals
	}
}

// Score computes the confidence of p within g without modifying either.
func (s *Scorer) Score(g *common.Graph, p common.Path) Result {
	return s.score(g, p, pathMembership(g), evidenceOrigins(g))
}

func (s *Scorer) score(
	g *common.Graph,
	p common.Path,
	membership map[string]string,
	origins map[string]string,
) Result {
	nodes := make(map[string]common.Node, len(p.Nodes))
	var sources []string
	var confSum float64
	for _, n := range g.Nodes {
		if !slices.Contains(p.Nodes, n.ID) {
			continue
		}
		nodes[n.ID] = n
		sources = append(sources, n.Sources...)
		confSum += n.ExtractionConfidence()
	}
	sources = common.SourceSet(sources)

	density, densitySignal := s.density(len(sources), len(nodes))
	diversity, diversitySignal := s.diversity(sources, origins)
	extraction, extractionSignal := s.extraction(confSum, len(nodes))
	penalty, contradictionSignal := s.contradiction(g, p.ID, nodes, membership)

	total := density + diversity + extraction - penalty
	confidence := int(math.Round(total))
	confidence = max(0, min(100, confidence))

	signals := []common.Signal{densitySignal, diversitySignal}
	if s.weights.ExtractionMax > 0 {
		signals = append(signals, extractionSignal)
	}
	if penalty > 0 {
		signals = append(signals, contradictionSignal)
	}

	return Result{
		Confidence: confidence,
		Status:     common.StatusFor(confidence),
		Density:    density,
		Diversity:  diversity,
		Extraction: extraction,
		Penalty:    penalty,
		Signals:    signals,
	}
}

// density scores distinct sources per node.
func (s *Scorer) density(sourceCount, nodeCount int) (float64, common.Signal) {
	if nodeCount == 0 {
		return 0, common.Signal{
			Type:        SignalEvidenceDensity,
			Severity:    SeverityCritical,
			Description: "Path has no nodes",
			Data:        map[string]any{"nodes": 0, "sources": sourceCount},
		}
	}

	ratio := float64(sourceCount) / float64(nodeCount)
	score := math.Min(ratio/s.weights.DensitySaturation, 1) * s.weights.DensityMax

	severity := SeverityInfo
	if ratio < s.weights.DensitySaturation/2 {
		severity = SeverityCritical
	} else if ratio < s.weights.DensitySaturation {
		severity = SeverityWarning
	}

	return score, common.Signal{
		Type:        SignalEvidenceDensity,
		Severity:    severity,
		Description: fmt.Sprintf("%d distinct sources across %d nodes (ratio %.2f)", sourceCount, nodeCount, ratio),
		Data: map[string]any{
			"sources": sourceCount,
			"nodes":   nodeCount,
			"ratio":   ratio,
			"score":   score,
			"formula": fmt.Sprintf("min(sources / nodes / %g, 1) * %g", s.weights.DensitySaturation, s.weights.DensityMax),
		},
	}
}

// diversity scores the number of independent origins among the sources.
func (s *Scorer) diversity(sources []string, origins map[string]string) (float64, common.Signal) {
	domains := make([]string, 0, len(sources))
	for _, id := range sources {
		origin, ok := origins[id]
		if !ok {
			origin = unknownOrigin
		}
		domains = append(domains, origin)
	}
	domains = common.SourceSet(domains)

	score := math.Min(float64(len(domains))/float64(s.weights.DiversitySaturation), 1) * s.weights.DiversityMax

	severity := SeverityInfo
	if len(domains) <= 1 {
		severity = SeverityWarning
	}

	return score, common.Signal{
		Type:        SignalSourceDiversity,
		Severity:    severity,
		Description: fmt.Sprintf("%d independent origins: %s", len(domains), strings.Join(domains, ", ")),
		Data: map[string]any{
			"domains": domains,
			"count":   len(domains),
			"score":   score,
			"formula": fmt.Sprintf("min(domains / %d, 1) * %g", s.weights.DiversitySaturation, s.weights.DiversityMax),
		},
	}
}

// extraction scores the mean extraction confidence of the path's nodes.
func (s *Scorer) extraction(confSum float64, nodeCount int) (float64, common.Signal) {
	mean := common.DefaultExtractionConfidence
	if nodeCount > 0 {
		mean = confSum / float64(nodeCount)
	}
	score := mean * s.weights.ExtractionMax
	return score, common.Signal{
		Type:        SignalExtractionWeight,
		Severity:    SeverityInfo,
		Description: fmt.Sprintf("Mean extraction confidence %.2f", mean),
		Data: map[string]any{
			"mean":    mean,
			"score":   score,
			"formula": fmt.Sprintf("mean(confidence) * %g", s.weights.ExtractionMax),
		},
	}
}

// contradiction counts edges touching the path that either carry a
// contradicting relation or lead into a different path.
func (s *Scorer) contradiction(
	g *common.Graph,
	pathID string,
	nodes map[string]common.Node,
	membership map[string]string,
) (float64, common.Signal) {
	count := 0
	for _, e := range g.Edges {
		_, fromIn := nodes[e.From]
		_, toIn := nodes[e.To]
		if !fromIn && !toIn {
			continue
		}
		if slices.Contains(s.contradictions, e.Type) {
			count++
			continue
		}
		other := e.To
		if !fromIn {
			other = e.From
		}
		if owner, ok := membership[other]; ok && owner != pathID {
			count++
		}
	}

	penalty := math.Min(float64(count)*s.weights.ContradictionPerEdge, s.weights.ContradictionMax)

	severity := SeverityWarning
	if penalty >= s.weights.ContradictionMax && count > 0 {
		severity = SeverityCritical
	}

	return penalty, common.Signal{
		Type:        SignalContradiction,
		Severity:    severity,
		Description: fmt.Sprintf("%d contradicting relations", count),
		Data: map[string]any{
			"edges":   count,
			"penalty": penalty,
			"formula": fmt.Sprintf("min(edges * %g, %g)", s.weights.ContradictionPerEdge, s.weights.ContradictionMax),
		},
	}
}

func pathMembership(g *common.Graph) map[string]string {
	out := make(map[string]string)
	for _, p := range g.Paths {
		for _, id := range p.Nodes {
			out[id] = p.ID
		}
	}
	return out
}

func evidenceOrigins(g *common.Graph) map[string]string {
	out := make(map[string]string, len(g.Evidence))
	for _, ev := range g.Evidence {
		out[ev.ID] = Origin(ev.URL)
	}
	return out
}

// Origin returns the registrable domain (eTLD+1) of rawURL. Hosts without a
// public suffix fall back to the bare host; unparsable URLs share one
// "unknown" origin.
func Origin(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return unknownOrigin
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return unknownOrigin
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return unknownOrigin
	}
	if domain, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return domain
	}
	return host
}
