// Package evidence defines how investigation sessions receive evidence.
// Collectors turn a query into batches of evidence items and hand them to
// an emit callback as soon as they are available.
package evidence

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/trailgraph/pkg/common"
)

// EmitFunc receives one batch of evidence. A returned error stops the
// collector, which must then return that error.
type EmitFunc func(batch []common.Evidence) error

// Collector retrieves evidence for a query. Collect blocks until every
// batch has been emitted, ctx is done or emit fails. Evidence ids must be
// unique for the lifetime of one session.
type Collector interface {
	Collect(ctx context.Context, query string, emit EmitFunc) error
}

// CollectorFunc adapts a function to the Collector interface.
type CollectorFunc func(ctx context.Context, query string, emit EmitFunc) error

// Collect implements Collector.
func (f CollectorFunc) Collect(ctx context.Context, query string, emit EmitFunc) error {
	return f(ctx, query, emit)
}

// Normalize trims the text fields of ev and rejects items without an id.
func Normalize(ev common.Evidence) (common.Evidence, error) {
	ev.ID = strings.TrimSpace(ev.ID)
	if ev.ID == "" {
		return ev, fmt.Errorf("evidence %q has no id", ev.Title)
	}
	ev.Title = strings.TrimSpace(ev.Title)
	ev.URL = strings.TrimSpace(ev.URL)
	ev.Excerpt = strings.TrimSpace(ev.Excerpt)
	return ev, nil
}

// Chunk splits items into batches of at most size items.
func Chunk(items []common.Evidence, size int) [][]common.Evidence {
	if size <= 0 {
		size = len(items)
	}
	var out [][]common.Evidence
	for start := 0; start < len(items); start += size {
		out = append(out, items[start:min(start+size, len(items))])
	}
	return out
}

// MatchesQuery reports whether ev mentions any word of query longer than
// two characters. A query without such words matches everything.
func MatchesQuery(ev common.Evidence, query string) bool {
	text := strings.ToLower(ev.Title + " " + ev.Excerpt)
	significant := 0
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, `?!.,;:"'()`)
		if len(w) <= 2 {
			continue
		}
		significant++
		if strings.Contains(text, w) {
			return true
		}
	}
	return significant == 0
}
