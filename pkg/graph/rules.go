package graph

import (
	"context"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	gUtil "github.com/OFFIS-RIT/trailgraph/internal/util"
	"github.com/OFFIS-RIT/trailgraph/pkg/common"
)

// RelationInvolves connects an event node to its participants.
const RelationInvolves = "involves"

// DefaultRelationLexicon maps verb phrases to relation types for the
// RuleExtractor.
var DefaultRelationLexicon = map[string]string{
	"funds":                "funds",
	"funded":               "funds",
	"finances":             "funds",
	"financed":             "funds",
	"supplies":             "supplies",
	"supplied":             "supplies",
	"owns":                 "owns",
	"owned":                "owns",
	"acquires":             "acquires",
	"acquired":             "acquires",
	"controls":             "controls",
	"controlled":           "controls",
	"pays":                 "pays",
	"paid":                 "pays",
	"sanctions":            "sanctions",
	"sanctioned":           "sanctions",
	"causes":               "causes",
	"caused":               "causes",
	"invests in":           "invests_in",
	"invested in":          "invests_in",
	"transfers funds to":   "transfers_to",
	"transferred funds to": "transfers_to",
	"is located in":        "located_in",
	"located in":           "located_in",
	"is based in":          "located_in",
	"based in":             "located_in",
	"partners with":        "partners_with",
	"ships to":             "ships_to",
	"shipped to":           "ships_to",
	"contradicts":          "contradicts",
	"denies":               "denies",
	"denied":               "denies",
	"refutes":              "refutes",
	"disputes":             "disputes",
}

var (
	organizationMarkers = []string{
		"corp", "corporation", "inc", "ltd", "llc", "gmbh", "ag", "sa", "plc",
		"bank", "group", "holdings", "ministry", "agency", "authority",
		"company", "co", "partners", "capital", "trust", "foundation",
	}
	actorTitles = []string{
		"mr", "mrs", "ms", "dr", "minister", "president", "ceo", "chairman", "senator",
	}
	assetMarkers = []string{
		"bonds", "shares", "account", "vessel", "tanker", "token", "coin",
		"fund", "securities", "cargo", "property",
	}
	connectorWords = []string{"of", "and", "&", "de", "van", "von", "al"}
)

// RuleExtractor is a deterministic extractor for statements of the form
// "<Subject> <relation> <Object>". It needs no model and is used for tests,
// fixture data and as a fallback when no AI adapter is configured.
//
// Subjects and objects are runs of capitalized words directly before and
// after the relation phrase. Every non-contradicting statement also yields
// an event node labelled with the statement itself, dated by the evidence.
type RuleExtractor struct {
	phrases        []string
	relations      map[string]string
	contradictions []string
}

// NewRuleExtractor creates a RuleExtractor. A nil lexicon uses
// DefaultRelationLexicon.
func NewRuleExtractor(lexicon map[string]string) *RuleExtractor {
	if lexicon == nil {
		lexicon = DefaultRelationLexicon
	}
	r := &RuleExtractor{
		relations:      make(map[string]string, len(lexicon)),
		contradictions: DefaultContradictionRelations,
	}
	for phrase, relation := range lexicon {
		phrase = strings.ToLower(gUtil.CollapseWhitespace(phrase))
		r.relations[phrase] = normalizeRelation(relation)
		r.phrases = append(r.phrases, phrase)
	}
	// longest phrase first so "transfers funds to" wins over "funds"
	slices.SortFunc(r.phrases, func(a, b string) int {
		if d := len(strings.Fields(b)) - len(strings.Fields(a)); d != 0 {
			return d
		}
		return strings.Compare(a, b)
	})
	return r
}

// WithContradictions returns a copy of r that treats relations as
// contradicting statements. Those yield no event node.
func (r *RuleExtractor) WithContradictions(relations []string) *RuleExtractor {
	out := *r
	out.contradictions = make([]string, 0, len(relations))
	for _, rel := range relations {
		if rel = normalizeRelation(rel); rel != "" {
			out.contradictions = append(out.contradictions, rel)
		}
	}
	return &out
}

// Extract implements Extractor.
func (r *RuleExtractor) Extract(ctx context.Context, ev common.Evidence) (Extraction, error) {
	text := ev.Text()
	if !utf8.ValidString(text) {
		text = gUtil.SanitizeText(text)
	}
	if strings.TrimSpace(text) == "" {
		return Extraction{}, errEmptyEvidence
	}

	out := Extraction{EvidenceID: ev.ID}
	seen := map[string]struct{}{}
	addMention := func(m Mention) {
		key := labelKey(m.Label)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out.Mentions = append(out.Mentions, m)
	}

	for _, sentence := range gUtil.SplitSentences(text) {
		if err := ctx.Err(); err != nil {
			return Extraction{}, err
		}

		st, ok := r.match(sentence)
		if !ok {
			continue
		}

		subject := Mention{Label: st.subject, Type: inferType(st.subject, false)}
		object := Mention{Label: st.object, Type: inferType(st.object, st.relation == "located_in")}
		addMention(subject)
		addMention(object)
		out.Relations = append(out.Relations, RelationMention{From: st.subject, To: st.object, Type: st.relation})

		if slices.Contains(r.contradictions, st.relation) {
			continue
		}

		event := Mention{
			Label:     st.subject + " " + st.phrase + " " + st.object,
			Type:      common.NodeEvent,
			Timestamp: publishedAt(ev.PublishedAt),
		}
		addMention(event)
		out.Relations = append(out.Relations,
			RelationMention{From: event.Label, To: st.subject, Type: RelationInvolves},
			RelationMention{From: event.Label, To: st.object, Type: RelationInvolves},
		)
	}

	return out, nil
}

type statement struct {
	subject  string
	phrase   string
	relation string
	object   string
}

func (r *RuleExtractor) match(sentence string) (statement, bool) {
	words := strings.Fields(sentence)
	lower := make([]string, len(words))
	for i, w := range words {
		lower[i] = strings.ToLower(trimPunct(w))
	}

	for i := 1; i < len(words); i++ {
		for _, phrase := range r.phrases {
			parts := strings.Fields(phrase)
			if i+len(parts) > len(lower) || !slices.Equal(lower[i:i+len(parts)], parts) {
				continue
			}
			subject := capitalizedRun(words[:i], true)
			object := capitalizedRun(words[i+len(parts):], false)
			if subject == "" || object == "" {
				continue
			}
			return statement{
				subject:  subject,
				phrase:   phrase,
				relation: r.relations[phrase],
				object:   object,
			}, true
		}
	}
	return statement{}, false
}

// capitalizedRun returns the run of capitalized words at the end (backwards)
// or the start (forwards) of words. Connector words such as "of" are allowed
// inside a run but never at its edges.
func capitalizedRun(words []string, backwards bool) string {
	var run []string
	take := func(w string) bool {
		clean := trimPunct(w)
		if clean == "" {
			return false
		}
		if isCapitalized(clean) {
			run = append(run, clean)
			return true
		}
		if len(run) > 0 && slices.Contains(connectorWords, strings.ToLower(clean)) {
			run = append(run, clean)
			return true
		}
		return false
	}

	if backwards {
		for i := len(words) - 1; i >= 0; i-- {
			if !take(words[i]) {
				break
			}
			// punctuation before a word ends the run
			if i > 0 && strings.ContainsAny(words[i-1][len(words[i-1])-1:], ",;:") {
				break
			}
		}
		slices.Reverse(run)
	} else {
		for i := 0; i < len(words); i++ {
			if !take(words[i]) {
				break
			}
			if strings.ContainsAny(words[i][len(words[i])-1:], ",;:.!?") {
				break
			}
		}
	}

	for len(run) > 0 && slices.Contains(connectorWords, strings.ToLower(run[len(run)-1])) {
		run = run[:len(run)-1]
	}
	for len(run) > 0 && slices.Contains(connectorWords, strings.ToLower(run[0])) {
		run = run[1:]
	}
	// sentence-initial articles are capitalized but are not names
	if len(run) > 1 && slices.Contains([]string{"The", "A", "An"}, run[0]) {
		run = run[1:]
	}
	return strings.Join(run, " ")
}

func isCapitalized(w string) bool {
	r, _ := utf8.DecodeRuneInString(w)
	return unicode.IsUpper(r) || unicode.IsDigit(r)
}

func trimPunct(w string) string {
	return strings.TrimFunc(w, func(r rune) bool {
		return unicode.IsPunct(r) && r != '&' && r != '-'
	})
}

func inferType(label string, locationHint bool) common.NodeType {
	words := strings.Fields(strings.ToLower(label))
	if len(words) == 0 {
		return common.NodeEntity
	}
	last := strings.TrimSuffix(words[len(words)-1], ".")
	first := strings.TrimSuffix(words[0], ".")

	switch {
	case slices.Contains(actorTitles, first):
		return common.NodeActor
	case slices.Contains(organizationMarkers, last):
		return common.NodeOrganization
	case slices.Contains(assetMarkers, last):
		return common.NodeAsset
	case locationHint:
		return common.NodeLocation
	}
	return common.NodeEntity
}

func publishedAt(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	ts := t
	return &ts
}
