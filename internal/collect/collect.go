// Package collect turns a serialized collection request into an evidence
// collector. The server and the worker share it so that a run requested
// over HTTP behaves the same when it is queued.
package collect

import (
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/trailgraph/pkg/common"
	"github.com/OFFIS-RIT/trailgraph/pkg/evidence"
	"github.com/OFFIS-RIT/trailgraph/pkg/evidence/fixture"
	s3ev "github.com/OFFIS-RIT/trailgraph/pkg/evidence/s3"
	"github.com/OFFIS-RIT/trailgraph/pkg/evidence/web"
)

const (
	KindDemo    = "demo"
	KindFixture = "fixture"
	KindWeb     = "web"
	KindS3      = "s3"
)

var ErrUnavailable = errors.New("collector not configured")

// Spec describes one collection run. QueryFilter limits demo and fixture
// runs to items that mention a word of the session query.
type Spec struct {
	Kind        string            `json:"kind" validate:"required,oneof=demo fixture web s3"`
	Items       []common.Evidence `json:"items,omitempty"`
	Seeds       []web.Seed        `json:"seeds,omitempty" validate:"dive"`
	Prefix      string            `json:"prefix,omitempty"`
	BatchSize   int               `json:"batch_size,omitempty" validate:"gte=0,lte=100"`
	QueryFilter bool              `json:"query_filter,omitempty"`
}

// Factory builds collectors. S3 may be nil when no bucket is configured.
type Factory struct {
	S3     s3ev.ObjectAPI
	Bucket string
	Web    web.NewCollectorParams
}

// New returns the collector described by spec.
func (f *Factory) New(spec Spec) (evidence.Collector, error) {
	var opts []fixture.Option
	if spec.QueryFilter {
		opts = append(opts, fixture.WithQueryFilter())
	}

	switch spec.Kind {
	case KindDemo:
		return fixture.NewCollector(fixture.Demo(), spec.BatchSize, opts...), nil
	case KindFixture:
		if len(spec.Items) == 0 {
			return nil, fmt.Errorf("fixture collection needs items")
		}
		return fixture.NewCollector(spec.Items, spec.BatchSize, opts...), nil
	case KindWeb:
		if len(spec.Seeds) == 0 {
			return nil, fmt.Errorf("web collection needs seeds")
		}
		params := f.Web
		params.Seeds = spec.Seeds
		if spec.BatchSize > 0 {
			params.BatchSize = spec.BatchSize
		}
		return web.NewCollector(params), nil
	case KindS3:
		if f.S3 == nil || f.Bucket == "" {
			return nil, fmt.Errorf("s3 collection: %w", ErrUnavailable)
		}
		return s3ev.NewCollectorWithClient(f.S3, f.Bucket, spec.Prefix, spec.BatchSize), nil
	}
	return nil, fmt.Errorf("unknown collector kind %q", spec.Kind)
}
