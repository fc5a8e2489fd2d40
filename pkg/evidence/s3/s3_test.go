package s3

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/trailgraph/pkg/common"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeBucket serves objects in two listing pages.
type fakeBucket struct {
	keys    []string
	objects map[string]string
}

func (f *fakeBucket) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	start := 0
	if in.ContinuationToken != nil {
		start = 2
	}
	end := min(start+2, len(f.keys))
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(f.keys))}
	for _, k := range f.keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(f.keys) {
		out.NextContinuationToken = aws.String("page-2")
	}
	return out, nil
}

func (f *fakeBucket) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("no such key")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestCollect(t *testing.T) {
	bucket := &fakeBucket{
		keys: []string{"case/a.jsonl", "case/readme.md", "case/b.json", "case/missing.jsonl"},
		objects: map[string]string{
			"case/a.jsonl": `{"id":"a1","excerpt":"Orion funds Bexley."}
{"id":"a2","excerpt":"Unrelated weather."}
{"excerpt":"Bexley pays Carver."}`,
			"case/b.json":    `[{"id":"b1","excerpt":"Carver supplies Bexley."}]`,
			"case/readme.md": "Bexley",
		},
	}

	var got [][]string
	c := NewCollectorWithClient(bucket, "bucket", "case/", 2)
	err := c.Collect(context.Background(), "bexley", func(batch []common.Evidence) error {
		var ids []string
		for _, ev := range batch {
			ids = append(ids, ev.ID)
		}
		got = append(got, ids)
		return nil
	})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	want := [][]string{{"a1", "case/a.jsonl#3"}, {"b1"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Collect() batches = %v, want %v", got, want)
	}
}

func TestCollectStopsOnEmitError(t *testing.T) {
	bucket := &fakeBucket{
		keys:    []string{"a.jsonl"},
		objects: map[string]string{"a.jsonl": `{"id":"a1","excerpt":"x"}`},
	}
	stop := errors.New("stop")
	c := NewCollectorWithClient(bucket, "bucket", "", 1)
	err := c.Collect(context.Background(), "", func([]common.Evidence) error { return stop })
	if !errors.Is(err, stop) {
		t.Errorf("Collect() error = %v, want %v", err, stop)
	}
}
