// Package fixture serves a fixed list of evidence items as a collector. It
// backs tests, demos and replays of recorded investigations.
package fixture

import (
	"context"
	"time"

	"github.com/OFFIS-RIT/trailgraph/pkg/common"
	"github.com/OFFIS-RIT/trailgraph/pkg/evidence"
)

type Collector struct {
	items       []common.Evidence
	batchSize   int
	delay       time.Duration
	filterQuery bool
}

type Option func(*Collector)

// WithDelay waits d before every batch, simulating a slow source.
func WithDelay(d time.Duration) Option {
	return func(c *Collector) {
		c.delay = d
	}
}

// WithQueryFilter only emits items that mention a word of the query.
func WithQueryFilter() Option {
	return func(c *Collector) {
		c.filterQuery = true
	}
}

// NewCollector emits items in order, batchSize at a time. A batchSize of
// zero emits everything in one batch.
func NewCollector(items []common.Evidence, batchSize int, opts ...Option) *Collector {
	c := &Collector{items: items, batchSize: batchSize}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c
}

// Collect implements evidence.Collector.
func (c *Collector) Collect(ctx context.Context, query string, emit evidence.EmitFunc) error {
	items := c.items
	if c.filterQuery {
		items = make([]common.Evidence, 0, len(c.items))
		for _, ev := range c.items {
			if evidence.MatchesQuery(ev, query) {
				items = append(items, ev)
			}
		}
	}

	for _, batch := range evidence.Chunk(items, c.batchSize) {
		if c.delay > 0 {
			t := time.NewTimer(c.delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(batch); err != nil {
			return err
		}
	}
	return nil
}
