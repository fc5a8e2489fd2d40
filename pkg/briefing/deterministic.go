package briefing

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/trailgraph/pkg/common"
)

// Deterministic writes template briefings from the scored paths alone. It
// never fails and is the fallback of every other synthesizer.
type Deterministic struct{}

// NewDeterministic creates a Deterministic synthesizer.
func NewDeterministic() *Deterministic {
	return &Deterministic{}
}

// Synthesize implements Synthesizer.
func (d *Deterministic) Synthesize(_ context.Context, in Input) (common.Briefing, error) {
	return Compose(in), nil
}

// Compose builds the template briefing for in.
func Compose(in Input) common.Briefing {
	g := in.Graph
	supported := Supported(g)
	lowConfidence := !HasActive(g)

	if len(supported) == 0 {
		subject := "this investigation"
		if q := strings.TrimSpace(in.Query); q != "" {
			subject = fmt.Sprintf("%q", q)
		}
		return common.Briefing{
			WhatChanged:     fmt.Sprintf("%s no hypothesis about %s is corroborated by two or more independent sources yet.", InsufficientEvidence, subject),
			WhyItMatters:    "",
			WhatToWatchNext: "",
			KeyThemes:       []string{},
			PathReferences:  []string{},
			LowConfidence:   true,
			Claims:          []common.Claim{},
		}
	}

	c := newComposer()
	lead := supported[0]
	others := supported[1:]

	if lowConfidence {
		c.add(FieldWhatChanged, fmt.Sprintf(
			"%s no hypothesis is active yet; the strongest lead is %q at confidence %d",
			LowConfidencePrefix, lead.HypothesisLabel, lead.Confidence,
		), lead.ID)
	} else {
		c.add(FieldWhatChanged, fmt.Sprintf(
			"The leading hypothesis is %q at confidence %d",
			lead.HypothesisLabel, lead.Confidence,
		), lead.ID)
	}
	if len(others) > 0 {
		noun := "hypothesis remains"
		if len(others) > 1 {
			noun = "hypotheses remain"
		}
		c.add(FieldWhatChanged, fmt.Sprintf("%d competing %s open", len(others), noun), pathIDs(others)...)
	}

	actors := nodeLabels(g, lead, common.NodeEvent, 3)
	sources := pathSources(g, lead)
	if len(actors) > 0 {
		c.add(FieldWhyItMatters, fmt.Sprintf(
			"It connects %s across %d independent sources",
			joinLabels(actors), len(sources),
		), lead.ID)
	}
	for _, p := range others {
		if p.Status != common.StatusActive {
			continue
		}
		c.add(FieldWhyItMatters, fmt.Sprintf(
			"%q is equally supported, so the explanations are not yet separable",
			p.HypothesisLabel,
		), p.ID)
		break
	}

	watched := 0
	for _, p := range supported {
		if p.Status != common.StatusWeak || watched == 2 {
			continue
		}
		c.add(FieldWhatToWatchNext, fmt.Sprintf(
			"Independent corroboration of %q would move it above the active threshold",
			p.HypothesisLabel,
		), p.ID)
		watched++
	}
	if watched == 0 {
		c.add(FieldWhatToWatchNext, fmt.Sprintf(
			"Watch for reporting that contradicts %q", lead.HypothesisLabel,
		), lead.ID)
	}

	return c.briefing(Themes(g, supported), lowConfidence)
}

func joinLabels(labels []string) string {
	switch len(labels) {
	case 0:
		return ""
	case 1:
		return labels[0]
	case 2:
		return labels[0] + " and " + labels[1]
	}
	return strings.Join(labels[:len(labels)-1], ", ") + " and " + labels[len(labels)-1]
}
