package graph

import (
	"strings"
	"testing"
)

func TestFitToTokenBudget(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		maxTokens int
		check     func(t *testing.T, got string)
	}{
		{
			name:      "text under budget is unchanged",
			text:      "Acme Corp funds Borealis Ltd.",
			maxTokens: 100,
			check: func(t *testing.T, got string) {
				if got != "Acme Corp funds Borealis Ltd." {
					t.Errorf("fitToTokenBudget() = %q", got)
				}
			},
		},
		{
			name:      "cut at sentence boundary",
			text:      "Acme funds Borealis. " + strings.Repeat("Borealis supplies Carrow with grain. ", 50),
			maxTokens: 20,
			check: func(t *testing.T, got string) {
				if !strings.HasPrefix(got, "Acme funds Borealis.") {
					t.Errorf("fitToTokenBudget() = %q, want prefix of first sentence", got)
				}
				if !strings.HasSuffix(got, ".") {
					t.Errorf("fitToTokenBudget() = %q, want whole sentences", got)
				}
			},
		},
		{
			name:      "single long sentence is hard cut",
			text:      strings.Repeat("word ", 200),
			maxTokens: 10,
			check: func(t *testing.T, got string) {
				if got == "" || len(got) >= len(strings.Repeat("word ", 200)) {
					t.Errorf("fitToTokenBudget() returned %d bytes", len(got))
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fitToTokenBudget(tt.text, "o200k_base", tt.maxTokens)
			if err != nil {
				t.Fatalf("fitToTokenBudget() error = %v", err)
			}
			tt.check(t, got)
		})
	}
}
