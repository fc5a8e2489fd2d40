package score

import (
	"reflect"
	"testing"

	"github.com/OFFIS-RIT/trailgraph/pkg/common"
)

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := NewScorer(NewScorerParams{
		Weights:                DefaultWeights(),
		ContradictionRelations: []string{"contradicts", "denies"},
	})
	if err != nil {
		t.Fatalf("NewScorer() error = %v", err)
	}
	return s
}

// corroboratedGraph is X funds Y (e1) and Y supplies Z (e2) with one event
// node per statement.
func corroboratedGraph() *common.Graph {
	return &common.Graph{
		Nodes: []common.Node{
			{ID: "x", Type: common.NodeEntity, Label: "X", Sources: []string{"e1"}},
			{ID: "y", Type: common.NodeEntity, Label: "Y", Sources: []string{"e1", "e2"}},
			{ID: "ev1", Type: common.NodeEvent, Label: "X funds Y", Sources: []string{"e1"}},
			{ID: "z", Type: common.NodeEntity, Label: "Z", Sources: []string{"e2"}},
			{ID: "ev2", Type: common.NodeEvent, Label: "Y supplies Z", Sources: []string{"e2"}},
		},
		Edges: []common.Edge{
			{ID: "a", From: "x", To: "y", Type: "funds", Sources: []string{"e1"}},
			{ID: "b", From: "ev1", To: "x", Type: "involves", Sources: []string{"e1"}},
			{ID: "c", From: "ev1", To: "y", Type: "involves", Sources: []string{"e1"}},
			{ID: "d", From: "y", To: "z", Type: "supplies", Sources: []string{"e2"}},
			{ID: "e", From: "ev2", To: "y", Type: "involves", Sources: []string{"e2"}},
			{ID: "f", From: "ev2", To: "z", Type: "involves", Sources: []string{"e2"}},
		},
		Paths: []common.Path{
			{ID: "path-1", Nodes: []string{"x", "y", "ev1", "z", "ev2"}},
		},
		Evidence: []common.Evidence{
			{ID: "e1", URL: "https://www.reuters.com/a"},
			{ID: "e2", URL: "https://news.bbc.co.uk/b"},
		},
	}
}

func TestStatusThresholds(t *testing.T) {
	tests := []struct {
		confidence int
		want       common.PathStatus
	}{
		{100, common.StatusActive},
		{60, common.StatusActive},
		{59, common.StatusWeak},
		{30, common.StatusWeak},
		{29, common.StatusDead},
		{0, common.StatusDead},
	}

	for _, tt := range tests {
		if got := common.StatusFor(tt.confidence); got != tt.want {
			t.Errorf("StatusFor(%d) = %v, want %v", tt.confidence, got, tt.want)
		}
	}
}

func TestScoreCorroboratedPath(t *testing.T) {
	s := newTestScorer(t)
	g := corroboratedGraph()

	res := s.Score(g, g.Paths[0])

	if res.Density != 40 {
		t.Errorf("Density = %v, want 40", res.Density)
	}
	if res.Penalty != 0 {
		t.Errorf("Penalty = %v, want 0", res.Penalty)
	}
	if res.Confidence != 60 {
		t.Errorf("Confidence = %d, want 60", res.Confidence)
	}
	if res.Status != common.StatusActive {
		t.Errorf("Status = %v, want %v", res.Status, common.StatusActive)
	}
}

func TestScoreGraphIsIdempotent(t *testing.T) {
	s := newTestScorer(t)
	g := corroboratedGraph()

	s.ScoreGraph(g)
	first := g.Clone()
	s.ScoreGraph(g)

	if !reflect.DeepEqual(first.Paths, g.Paths) {
		t.Errorf("ScoreGraph() second run = %+v, want %+v", g.Paths, first.Paths)
	}
}

func TestContradictionPenalty(t *testing.T) {
	tests := []struct {
		name        string
		relations   []string
		wantPenalty float64
	}{
		{name: "none", relations: nil, wantPenalty: 0},
		{name: "one", relations: []string{"contradicts"}, wantPenalty: 10},
		{name: "capped", relations: []string{"contradicts", "denies", "contradicts", "denies"}, wantPenalty: 30},
		{name: "unflagged relation", relations: []string{"owns"}, wantPenalty: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestScorer(t)
			g := corroboratedGraph()
			for i, rel := range tt.relations {
				id := "w" + string(rune('0'+i))
				g.Nodes = append(g.Nodes, common.Node{ID: id, Type: common.NodeActor, Label: id, Sources: []string{"e3"}})
				g.Edges = append(g.Edges, common.Edge{ID: "c" + id, From: id, To: "y", Type: rel, Sources: []string{"e3"}})
			}

			res := s.Score(g, g.Paths[0])
			if res.Penalty != tt.wantPenalty {
				t.Errorf("Penalty = %v, want %v", res.Penalty, tt.wantPenalty)
			}
			if res.Confidence != 60-int(tt.wantPenalty) {
				t.Errorf("Confidence = %d, want %d", res.Confidence, 60-int(tt.wantPenalty))
			}
		})
	}
}

func TestEdgesIntoOtherPathsCount(t *testing.T) {
	s := newTestScorer(t)
	g := corroboratedGraph()
	g.Nodes = append(g.Nodes, common.Node{ID: "q", Type: common.NodeEvent, Label: "Q", Sources: []string{"e3"}})
	g.Paths = append(g.Paths, common.Path{ID: "path-2", Nodes: []string{"q"}})
	g.Edges = append(g.Edges, common.Edge{ID: "g", From: "q", To: "x", Type: "owns", Sources: []string{"e3"}})

	res := s.Score(g, g.Paths[0])
	if res.Penalty != 10 {
		t.Errorf("Penalty = %v, want 10", res.Penalty)
	}
}

func TestSingleOriginScoresWeak(t *testing.T) {
	s := newTestScorer(t)
	g := corroboratedGraph()
	g.Evidence[1].URL = "https://reuters.com/other"

	res := s.Score(g, g.Paths[0])
	// 40 density + 10 diversity
	if res.Confidence != 50 {
		t.Errorf("Confidence = %d, want 50", res.Confidence)
	}
	if res.Status != common.StatusWeak {
		t.Errorf("Status = %v, want %v", res.Status, common.StatusWeak)
	}
}

func TestExtractionBand(t *testing.T) {
	w := DefaultWeights()
	w.ExtractionMax = 20
	s, err := NewScorer(NewScorerParams{Weights: w})
	if err != nil {
		t.Fatalf("NewScorer() error = %v", err)
	}
	g := corroboratedGraph()
	high := 1.0
	for i := range g.Nodes {
		g.Nodes[i].Confidence = &high
	}
	g.Nodes[0].Confidence = nil

	res := s.Score(g, g.Paths[0])
	// mean of 1,1,1,1 and the 0.5 default
	if res.Extraction != 18 {
		t.Errorf("Extraction = %v, want 18", res.Extraction)
	}
	if res.Confidence != 78 {
		t.Errorf("Confidence = %d, want 78", res.Confidence)
	}
}

func TestNewScorerRejectsInvalidWeights(t *testing.T) {
	w := DefaultWeights()
	w.DensitySaturation = 0
	if _, err := NewScorer(NewScorerParams{Weights: w}); err == nil {
		t.Error("NewScorer() error = nil, want error")
	}
}

func TestOrigin(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.reuters.com/world/x", "reuters.com"},
		{"https://news.bbc.co.uk/a", "bbc.co.uk"},
		{"example.org/path", "example.org"},
		{"http://localhost:8080/a", "localhost"},
		{"", "unknown"},
		{"://", "unknown"},
	}

	for _, tt := range tests {
		if got := Origin(tt.url); got != tt.want {
			t.Errorf("Origin(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
