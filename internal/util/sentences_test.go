package util

import (
	"reflect"
	"testing"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "empty input",
			text: "",
			want: []string(nil),
		},
		{
			name: "single sentence",
			text: "X funds Y.",
			want: []string{"X funds Y."},
		},
		{
			name: "multiple sentences",
			text: "X funds Y. Y supplies Z! Who pays?",
			want: []string{"X funds Y.", "Y supplies Z!", "Who pays?"},
		},
		{
			name: "sentences with empty lines",
			text: "First sentence.\n\nSecond sentence",
			want: []string{"First sentence.", "Second sentence"},
		},
		{
			name: "multi-line sentence",
			text: "Acme Corp funds\nBorealis Ltd.",
			want: []string{"Acme Corp funds Borealis Ltd."},
		},
		{
			name: "abbreviation does not split",
			text: "Acme Corp. funds Borealis. Mr. Smith denies it.",
			want: []string{"Acme Corp. funds Borealis.", "Mr. Smith denies it."},
		},
		{
			name: "decimal and numbered listing",
			text: "1. Acme pays 3.5 million. 2. Borealis owns Tanker Nine.",
			want: []string{"1. Acme pays 3.5 million.", "2. Borealis owns Tanker Nine."},
		},
		{
			name: "domain names stay intact",
			text: "Reported by example.com today. More later.",
			want: []string{"Reported by example.com today.", "More later."},
		},
		{
			name: "closing quote after terminator",
			text: `He said "Acme funds Borealis." Then left.`,
			want: []string{`He said "Acme funds Borealis."`, "Then left."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitSentences(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitSentences() = %#v, want %#v", got, tt.want)
			}
		})
	}
}
