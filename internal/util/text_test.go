package util

import "testing"

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain utf8",
			input: "Acme Corp funds Borealis",
			want:  "Acme Corp funds Borealis",
		},
		{
			name:  "contains null byte",
			input: "Ac\x00me",
			want:  "Acme",
		},
		{
			name:  "contains invalid utf8",
			input: string([]byte{'a', 0xff, 'b'}),
			want:  "ab",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeText(tt.input)
			if got != tt.want {
				t.Fatalf("SanitizeText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCollapseWhitespace(t *testing.T) {
	got := CollapseWhitespace("  Acme\n\tCorp   funds  ")
	if got != "Acme Corp funds" {
		t.Fatalf("CollapseWhitespace() = %q", got)
	}
}
