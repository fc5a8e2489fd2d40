package util

import (
	"reflect"
	"testing"
)

func TestNormalizeCitations(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"Canonical", "Funds moved [[path-1]].", "Funds moved [[path-1]]."},
		{"Single", "Funds moved [path-1].", "Funds moved [[path-1]]."},
		{"Bold", "Funds moved **[[path-1]]**.", "Funds moved [[path-1]]."},
		{"BoldSingle", "Funds moved **[path-1]**.", "Funds moved [[path-1]]."},
		{"AdjacentSingles", "Moved [path-1][path-2].", "Moved [[path-1]][[path-2]]."},
		{"MarkdownLinkUntouched", "See [report](https://example.com).", "See [report](https://example.com)."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeCitations(tc.in); got != tc.want {
				t.Fatalf("NormalizeCitations(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestExtractCitations(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"None", "No citation here.", nil},
		{"One", "Acme funds Borealis [[path-1]].", []string{"path-1"}},
		{"Dedupe", "A [[path-1]]. B [[path-2]] [[path-1]].", []string{"path-1", "path-2"}},
		{"CommaList", "A [[path-1, path-3]].", []string{"path-1", "path-3"}},
		{"SingleBracket", "A [path-4].", []string{"path-4"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractCitations(tc.in); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ExtractCitations(%q) = %#v, want %#v", tc.in, got, tc.want)
			}
		})
	}
}

func TestStripCitations(t *testing.T) {
	got := StripCitations("Acme funds Borealis [[path-1]] [[path-2]].")
	if got != "Acme funds Borealis." {
		t.Fatalf("StripCitations() = %q", got)
	}
}
