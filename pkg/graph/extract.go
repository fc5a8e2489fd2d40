package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	gUtil "github.com/OFFIS-RIT/trailgraph/internal/util"
	"github.com/OFFIS-RIT/trailgraph/pkg/ai"
	"github.com/OFFIS-RIT/trailgraph/pkg/common"
	"github.com/OFFIS-RIT/trailgraph/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Mention is a node candidate found in one evidence item.
type Mention struct {
	Label      string
	Type       common.NodeType
	Confidence *float64
	Timestamp  *time.Time
}

// RelationMention is a directed relation between two mentions of the same
// evidence item, addressed by label.
type RelationMention struct {
	From string
	To   string
	Type string
}

// Extraction is everything an extractor found in one evidence item.
type Extraction struct {
	EvidenceID string
	Mentions   []Mention
	Relations  []RelationMention
}

// Extractor turns a single evidence item into mentions and relations.
// Implementations must be safe for concurrent use.
type Extractor interface {
	Extract(ctx context.Context, ev common.Evidence) (Extraction, error)
}

type extractMention struct {
	Label      string  `json:"label" jsonschema_description:"Name of the entity or short clause describing the event."`
	Type       string  `json:"type" jsonschema:"enum=entity,enum=actor,enum=location,enum=asset,enum=event,enum=organization" jsonschema_description:"Kind of the mention."`
	Confidence float64 `json:"confidence" jsonschema_description:"How clearly the text states this mention, between 0 and 1."`
	Timestamp  string  `json:"timestamp" jsonschema_description:"RFC 3339 date of the event, empty when unknown or not an event."`
}

type extractRelation struct {
	From string `json:"from" jsonschema_description:"Label of the source mention."`
	To   string `json:"to" jsonschema_description:"Label of the target mention."`
	Type string `json:"type" jsonschema_description:"Lower-case verb phrase naming the relation, e.g. funds, supplies, located_in, involves, contradicts."`
}

type extractResponse struct {
	Mentions  []extractMention  `json:"mentions" jsonschema_description:"Entities, actors, locations, assets, organizations and events stated in the text."`
	Relations []extractRelation `json:"relations" jsonschema_description:"Relations between the extracted mentions."`
}

// AIExtractor extracts mentions with a text-completion model that answers in
// the JSON structure of extractResponse.
type AIExtractor struct {
	client       ai.GraphAIClient
	tokenEncoder string
	maxTokens    int
	maxRetries   int
	options      []ai.GenerateOption
}

// NewAIExtractorParams configures an AIExtractor. MaxTokens bounds the
// evidence text sent per request; longer excerpts are cut at a sentence
// boundary.
type NewAIExtractorParams struct {
	Client       ai.GraphAIClient
	TokenEncoder string
	MaxTokens    int
	MaxRetries   int
	Options      []ai.GenerateOption
}

// NewAIExtractor creates an AIExtractor.
//
// Example:
//
//	ext, err := graph.NewAIExtractor(graph.NewAIExtractorParams{
//		Client:       aiClient,
//		TokenEncoder: "o200k_base",
//		MaxTokens:    2000,
//	})
func NewAIExtractor(params NewAIExtractorParams) (*AIExtractor, error) {
	if params.Client == nil {
		return nil, fmt.Errorf("ai client is nil")
	}
	encoder := params.TokenEncoder
	if encoder == "" {
		encoder = "o200k_base"
	}
	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &AIExtractor{
		client:       params.Client,
		tokenEncoder: encoder,
		maxTokens:    maxTokens,
		maxRetries:   maxRetries,
		options:      params.Options,
	}, nil
}

// Extract implements Extractor.
func (e *AIExtractor) Extract(ctx context.Context, ev common.Evidence) (Extraction, error) {
	text := strings.TrimSpace(gUtil.SanitizeText(ev.Excerpt))
	if text == "" && strings.TrimSpace(ev.Title) == "" {
		return Extraction{}, errEmptyEvidence
	}

	text, err := fitToTokenBudget(text, e.tokenEncoder, e.maxTokens)
	if err != nil {
		return Extraction{}, fmt.Errorf("failed to fit evidence into token budget: %w", err)
	}

	published := "unknown"
	if !ev.PublishedAt.IsZero() {
		published = ev.PublishedAt.UTC().Format(time.RFC3339)
	}
	prompt := fmt.Sprintf(ai.ExtractPrompt, gUtil.SanitizeText(ev.Title), published, text)

	opts := append([]ai.GenerateOption{ai.WithTemperature(0)}, e.options...)
	res, err := gUtil.RetryWithContext(ctx, e.maxRetries, func(ctx context.Context) (extractResponse, error) {
		var res extractResponse
		err := e.client.GenerateCompletionWithFormat(
			ctx,
			"extract_mentions_and_relations",
			"Extract mentions and relations from one evidence item.",
			prompt,
			&res,
			opts...,
		)
		return res, err
	})
	if err != nil {
		return Extraction{}, err
	}

	return convertResponse(ev, res), nil
}

func convertResponse(ev common.Evidence, res extractResponse) Extraction {
	out := Extraction{EvidenceID: ev.ID}
	known := make(map[string]struct{}, len(res.Mentions))

	for _, m := range res.Mentions {
		label := ai.NormalizeLabel(m.Label)
		if label == "" {
			continue
		}
		key := labelKey(label)
		if _, dup := known[key]; dup {
			continue
		}
		known[key] = struct{}{}

		mention := Mention{
			Label: label,
			Type:  common.ParseNodeType(strings.ToLower(strings.TrimSpace(m.Type))),
		}
		if m.Confidence > 0 {
			c := min(m.Confidence, 1)
			mention.Confidence = &c
		}
		if mention.Type == common.NodeEvent {
			mention.Timestamp = eventTime(m.Timestamp, ev.PublishedAt)
		}
		out.Mentions = append(out.Mentions, mention)
	}

	for _, r := range res.Relations {
		from := ai.NormalizeLabel(r.From)
		to := ai.NormalizeLabel(r.To)
		relation := normalizeRelation(r.Type)
		if relation == "" {
			continue
		}
		_, okFrom := known[labelKey(from)]
		_, okTo := known[labelKey(to)]
		if !okFrom || !okTo {
			logger.Debug("[Extract] Dropping relation with unknown endpoint", "evidence_id", ev.ID, "from", from, "to", to)
			continue
		}
		out.Relations = append(out.Relations, RelationMention{From: from, To: to, Type: relation})
	}

	return out
}

func eventTime(stated string, published time.Time) *time.Time {
	if stated = strings.TrimSpace(stated); stated != "" {
		for _, layout := range []string{time.RFC3339, time.DateOnly} {
			if ts, err := time.Parse(layout, stated); err == nil {
				return &ts
			}
		}
	}
	if published.IsZero() {
		return nil
	}
	ts := published
	return &ts
}

// normalizeRelation lower-cases a relation label and joins its words with
// underscores, so "Located In" and "located_in" address the same edge.
func normalizeRelation(relation string) string {
	fields := strings.Fields(strings.ToLower(strings.ReplaceAll(relation, "_", " ")))
	return strings.Join(fields, "_")
}

// extractBatch runs the extractor over every evidence item of a batch with
// bounded parallelism. Results keep batch order. Items that fail, including
// items whose turn never came because ctx expired, are reported as failures.
func (c *GraphClient) extractBatch(
	ctx context.Context,
	batch []common.Evidence,
) ([]Extraction, []*ExtractionFailure) {
	results := make([]*Extraction, len(batch))
	failures := make([]*ExtractionFailure, len(batch))

	g := new(errgroup.Group)
	g.SetLimit(c.parallelExtractions)

	for i, ev := range batch {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				failures[i] = &ExtractionFailure{EvidenceID: ev.ID, Err: err}
				return nil
			}
			if strings.TrimSpace(gUtil.SanitizeText(ev.Text())) == "" {
				failures[i] = &ExtractionFailure{EvidenceID: ev.ID, Err: errEmptyEvidence}
				return nil
			}

			itemCtx := ctx
			if c.extractTimeout > 0 {
				var cancel context.CancelFunc
				itemCtx, cancel = context.WithTimeout(ctx, c.extractTimeout)
				defer cancel()
			}

			ext, err := c.extractor.Extract(itemCtx, ev)
			if err != nil {
				failures[i] = &ExtractionFailure{EvidenceID: ev.ID, Err: err}
				return nil
			}
			ext.EvidenceID = ev.ID
			results[i] = &ext
			return nil
		})
	}
	_ = g.Wait()

	var out []Extraction
	var failed []*ExtractionFailure
	for i := range batch {
		if failures[i] != nil {
			logger.Warn("[Extract] Skipping evidence", "evidence_id", failures[i].EvidenceID, "err", failures[i].Err)
			failed = append(failed, failures[i])
			continue
		}
		out = append(out, *results[i])
	}
	return out, failed
}
