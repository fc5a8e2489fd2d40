package util

import (
	"strings"
	"unicode"
)

// abbreviations that end with a period without ending the sentence.
var abbreviations = map[string]struct{}{
	"corp": {}, "inc": {}, "ltd": {}, "co": {}, "plc": {}, "llc": {},
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "st": {}, "no": {},
	"jan": {}, "feb": {}, "mar": {}, "apr": {}, "jun": {}, "jul": {},
	"aug": {}, "sep": {}, "sept": {}, "oct": {}, "nov": {}, "dec": {},
	"e.g": {}, "i.e": {}, "u.s": {}, "u.k": {}, "vs": {},
}

// SplitSentences splits text into sentences. Blank lines always end a
// sentence; single line breaks inside a paragraph do not. Numbered list
// markers ("1. ") and common abbreviations ("Corp.", "Mr.") are not treated
// as sentence ends.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		s := strings.TrimSpace(current.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	for line := range strings.SplitSeq(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		for _, part := range splitLine(trimmed) {
			if current.Len() > 0 {
				current.WriteString(" ")
			}
			current.WriteString(part)
			if endsSentence(part) {
				flush()
			}
		}
	}
	flush()

	return sentences
}

func endsSentence(s string) bool {
	s = strings.TrimRight(strings.TrimSpace(s), `"')]}`)
	return strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?")
}

func splitLine(line string) []string {
	var parts []string
	var current strings.Builder

	for i := 0; i < len(line); i++ {
		current.WriteByte(line[i])

		if line[i] != '.' && line[i] != '!' && line[i] != '?' {
			continue
		}
		if line[i] == '.' && !isSentencePeriod(line, i) {
			continue
		}

		j := i + 1
		for j < len(line) && (line[j] == '.' || line[j] == '!' || line[j] == '?') {
			current.WriteByte(line[j])
			j++
		}
		for j < len(line) && (line[j] == '"' || line[j] == '\'' || line[j] == ')' ||
			line[j] == ']' || line[j] == '}') {
			current.WriteByte(line[j])
			j++
		}

		if s := strings.TrimSpace(current.String()); s != "" {
			parts = append(parts, s)
		}
		current.Reset()
		i = j - 1
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		parts = append(parts, s)
	}
	return parts
}

// isSentencePeriod reports whether the period at line[i] ends a sentence.
func isSentencePeriod(line string, i int) bool {
	// decimals and numbered listings: "3.5", "1. "
	if i > 0 && unicode.IsDigit(rune(line[i-1])) {
		if i+1 < len(line) && (unicode.IsDigit(rune(line[i+1])) || line[i+1] == ' ') {
			return false
		}
	}
	// a period glued to the next word is part of a token ("U.S", "acme.com")
	if i+1 < len(line) && line[i+1] != ' ' && line[i+1] != '"' && line[i+1] != '\'' && line[i+1] != ')' {
		return false
	}

	start := i
	for start > 0 && line[start-1] != ' ' {
		start--
	}
	word := strings.ToLower(strings.TrimLeft(line[start:i], `"'([{`))
	if _, ok := abbreviations[word]; ok {
		return false
	}
	return true
}
