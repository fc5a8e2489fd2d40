package util

import (
	"regexp"
	"slices"
	"strings"
)

var (
	reBoldCitation   = regexp.MustCompile(`\*\*\s*\[\[?([^][]+)\]\]?\s*\*\*`)
	reSingleCitation = regexp.MustCompile(`(^|[^\[])\[([A-Za-z0-9_-]+)\]([^\](]|$)`)
	reCitation       = regexp.MustCompile(`\[\[([^][]+)\]\]`)
	reSpaceBefore    = regexp.MustCompile(`\s+(\[\[)`)
)

// NormalizeCitations rewrites the citation variants models tend to produce
// (bold, single brackets) into the canonical [[id]] form. Markdown links are
// left alone.
func NormalizeCitations(s string) string {
	s = reBoldCitation.ReplaceAllString(s, "[[$1]]")
	// run twice so adjacent single-bracket citations sharing a boundary character are both rewritten
	for range 2 {
		s = reSingleCitation.ReplaceAllString(s, "$1[[$2]]$3")
	}
	return s
}

// ExtractCitations returns the distinct ids cited in s in order of first appearance.
func ExtractCitations(s string) []string {
	var ids []string
	for _, m := range reCitation.FindAllStringSubmatch(NormalizeCitations(s), -1) {
		for part := range strings.SplitSeq(m[1], ",") {
			id := strings.TrimSpace(part)
			if id != "" && !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// StripCitations removes every [[id]] token from s.
func StripCitations(s string) string {
	s = NormalizeCitations(s)
	s = reSpaceBefore.ReplaceAllString(s, "$1")
	s = reCitation.ReplaceAllString(s, "")
	return strings.TrimSpace(CollapseWhitespace(s))
}
