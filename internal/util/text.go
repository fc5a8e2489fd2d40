package util

import "strings"

// SanitizeText drops invalid UTF-8 sequences and NUL bytes. Postgres rejects
// both in text and jsonb columns, and extraction prompts gain nothing from them.
func SanitizeText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

// CollapseWhitespace trims value and replaces every run of whitespace with a
// single space.
func CollapseWhitespace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
