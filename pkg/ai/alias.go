package ai

import (
	"context"
	"fmt"
	"strings"

	gUtil "github.com/OFFIS-RIT/trailgraph/internal/util"
)

const AliasBatchSize = 300

// AliasCandidate is a node label offered to the alias resolver.
type AliasCandidate struct {
	Label string
	Type  string
}

// AliasGroup represents a group of labels that name the same thing.
type AliasGroup struct {
	Canonical string   `json:"canonicalLabel" jsonschema_description:"The label to keep. Must be one of the labels in the group."`
	Labels    []string `json:"labels" jsonschema_description:"Labels that refer to the same real-world thing."`
}

// AliasResponse is the response from the AI alias call.
type AliasResponse struct {
	Aliases []AliasGroup `json:"aliases" jsonschema_description:"Groups of labels naming the same thing."`
}

// CallAliasAI asks the AI to group node labels that are aliases of each other.
func CallAliasAI(
	ctx context.Context,
	candidates []AliasCandidate,
	aiClient GraphAIClient,
	maxRetries int,
) (*AliasResponse, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if aiClient == nil {
		return nil, fmt.Errorf("ai client is nil")
	}

	cleaned := make([]AliasCandidate, 0, len(candidates))
	for _, c := range candidates {
		label := NormalizeLabel(c.Label)
		typeName := NormalizeLabel(c.Type)
		if label == "" || typeName == "" {
			continue
		}
		cleaned = append(cleaned, AliasCandidate{Label: label, Type: typeName})
	}
	if len(cleaned) < 2 {
		return &AliasResponse{Aliases: []AliasGroup{}}, nil
	}
	if len(cleaned) > AliasBatchSize {
		return nil, fmt.Errorf("alias batch size exceeded: %d > %d", len(cleaned), AliasBatchSize)
	}

	var data strings.Builder
	data.WriteString("Nodes:\n")
	for _, c := range cleaned {
		fmt.Fprintf(&data, "- Label: %s, Type: %s\n", c.Label, c.Type)
	}
	prompt := fmt.Sprintf(AliasPrompt, data.String())

	var res AliasResponse
	err := gUtil.RetryErrWithContext(ctx, maxRetries, func(ctx context.Context) error {
		return aiClient.GenerateCompletionWithFormat(
			ctx, "resolve_aliases", "Group node labels that name the same thing.", prompt, &res,
			WithTemperature(0),
		)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// NormalizeLabel trims a label and collapses inner whitespace.
func NormalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return strings.Join(strings.Fields(value), " ")
}
