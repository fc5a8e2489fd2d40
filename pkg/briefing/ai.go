package briefing

import (
	"context"
	"fmt"
	"slices"
	"strings"

	gUtil "github.com/OFFIS-RIT/trailgraph/internal/util"
	"github.com/OFFIS-RIT/trailgraph/pkg/ai"
	"github.com/OFFIS-RIT/trailgraph/pkg/common"
	"github.com/OFFIS-RIT/trailgraph/pkg/logger"
)

type briefingResponse struct {
	WhatChanged     string   `json:"what_changed" jsonschema_description:"One to three sentences, each ending with [[path-id]] citations."`
	WhyItMatters    string   `json:"why_it_matters" jsonschema_description:"One to three sentences, each ending with [[path-id]] citations."`
	WhatToWatchNext string   `json:"what_to_watch_next" jsonschema_description:"One to three sentences, each ending with [[path-id]] citations."`
	KeyThemes       []string `json:"key_themes" jsonschema_description:"Two to five short noun phrases."`
}

// AI writes briefings with a text-completion model. Every sentence of the
// model output is checked against the allowlist of active and weak path
// ids; sentences without a valid citation are dropped. When the model fails
// or nothing survives validation the deterministic briefing is returned.
type AI struct {
	client     ai.GraphAIClient
	fallback   *Deterministic
	maxRetries int
	maxPaths   int
	options    []ai.GenerateOption
}

// NewAIParams configures an AI synthesizer. MaxPaths bounds the number of
// hypotheses described in the prompt.
type NewAIParams struct {
	Client     ai.GraphAIClient
	MaxRetries int
	MaxPaths   int
	Options    []ai.GenerateOption
}

// NewAI creates an AI synthesizer.
func NewAI(params NewAIParams) (*AI, error) {
	if params.Client == nil {
		return nil, fmt.Errorf("ai client is nil")
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	maxPaths := params.MaxPaths
	if maxPaths <= 0 {
		maxPaths = 12
	}
	return &AI{
		client:     params.Client,
		fallback:   NewDeterministic(),
		maxRetries: maxRetries,
		maxPaths:   maxPaths,
		options:    params.Options,
	}, nil
}

// Synthesize implements Synthesizer.
func (s *AI) Synthesize(ctx context.Context, in Input) (common.Briefing, error) {
	supported := Supported(in.Graph)
	if len(supported) == 0 {
		return s.fallback.Synthesize(ctx, in)
	}
	supported = supported[:min(s.maxPaths, len(supported))]
	lowConfidence := !HasActive(in.Graph)

	note := ai.BriefingConfidentNote
	if lowConfidence {
		note = ai.BriefingLowConfidenceNote
	}
	prompt := fmt.Sprintf(ai.BriefingPrompt, in.Query, describePaths(in.Graph, supported), note)

	res, err := gUtil.RetryWithContext(ctx, s.maxRetries, func(ctx context.Context) (briefingResponse, error) {
		var res briefingResponse
		err := s.client.GenerateCompletionWithFormat(
			ctx,
			"write_briefing",
			"Write a cited investigation briefing.",
			prompt,
			&res,
			s.options...,
		)
		return res, err
	})
	if err != nil {
		logger.Warn("[Briefing] Model briefing failed, using template", "err", err)
		return s.fallback.Synthesize(ctx, in)
	}

	b, ok := validate(res, supported, lowConfidence)
	if !ok {
		logger.Warn("[Briefing] Model briefing had no traceable claims, using template")
		return s.fallback.Synthesize(ctx, in)
	}
	if len(b.KeyThemes) == 0 {
		b.KeyThemes = Themes(in.Graph, supported)
	}
	return b, nil
}

// validate keeps only sentences that cite at least one allowed path and
// rebuilds the briefing from them.
func validate(res briefingResponse, supported []common.Path, lowConfidence bool) (common.Briefing, bool) {
	allowed := pathIDs(supported)
	c := newComposer()

	fields := []struct {
		name string
		text string
	}{
		{FieldWhatChanged, res.WhatChanged},
		{FieldWhyItMatters, res.WhyItMatters},
		{FieldWhatToWatchNext, res.WhatToWatchNext},
	}
	for _, f := range fields {
		for _, sentence := range gUtil.SplitSentences(gUtil.NormalizeCitations(f.text)) {
			var ids []string
			for _, id := range gUtil.ExtractCitations(sentence) {
				if slices.Contains(allowed, id) {
					ids = append(ids, id)
				}
			}
			if len(ids) == 0 {
				logger.Debug("[Briefing] Dropping uncited sentence", "field", f.name, "sentence", sentence)
				continue
			}
			c.add(f.name, gUtil.StripCitations(sentence), ids...)
		}
	}

	if len(c.fields[FieldWhatChanged]) == 0 {
		return common.Briefing{}, false
	}

	if lowConfidence && !strings.HasPrefix(c.claims[0].Text, LowConfidencePrefix) {
		c.claims[0].Text = LowConfidencePrefix + " " + c.claims[0].Text
		c.fields[FieldWhatChanged][0] = LowConfidencePrefix + " " + c.fields[FieldWhatChanged][0]
	}

	themes := make([]string, 0, maxThemes)
	for _, theme := range res.KeyThemes {
		theme = gUtil.StripCitations(theme)
		if theme == "" || slices.Contains(themes, theme) {
			continue
		}
		themes = append(themes, theme)
		if len(themes) == maxThemes {
			break
		}
	}

	return c.briefing(themes, lowConfidence), true
}

func describePaths(g *common.Graph, paths []common.Path) string {
	var b strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&b, "- [[%s]] %s (confidence %d): %s\n", p.ID, p.Status, p.Confidence, p.HypothesisLabel)
		if members := nodeLabels(g, p, "", 8); len(members) > 0 {
			fmt.Fprintf(&b, "  Members: %s\n", strings.Join(members, "; "))
		}
		fmt.Fprintf(&b, "  Sources: %d\n", len(pathSources(g, p)))
	}
	return b.String()
}
