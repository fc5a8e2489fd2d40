// Package s3 replays evidence dumps stored in an S3 bucket. Every object
// under the prefix ending in .jsonl or .json holds evidence items, either
// one JSON object per line or a JSON array.
package s3

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/OFFIS-RIT/trailgraph/pkg/common"
	"github.com/OFFIS-RIT/trailgraph/pkg/evidence"
	"github.com/OFFIS-RIT/trailgraph/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectAPI is the part of the S3 client the collector uses.
type ObjectAPI interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Collector struct {
	client    ObjectAPI
	bucket    string
	prefix    string
	batchSize int
}

// NewCollectorWithClient creates a collector on an existing client.
func NewCollectorWithClient(client ObjectAPI, bucket, prefix string, batchSize int) *Collector {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Collector{
		client:    client,
		bucket:    bucket,
		prefix:    prefix,
		batchSize: batchSize,
	}
}

// NewCollectorParams configures a collector with static credentials.
// Endpoint allows S3-compatible storage such as MinIO.
type NewCollectorParams struct {
	Bucket    string
	Prefix    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	BatchSize int
}

// NewCollector creates a collector with its own S3 client.
//
// Example:
//
//	collector, err := s3.NewCollector(ctx, s3.NewCollectorParams{
//		Bucket:    "evidence",
//		Prefix:    "case-17/",
//		Endpoint:  "http://localhost:9000",
//		Region:    "us-east-1",
//		AccessKey: "minio",
//		SecretKey: "minio123",
//	})
func NewCollector(ctx context.Context, params NewCollectorParams) (*Collector, error) {
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(params.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			params.AccessKey,
			params.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if params.Endpoint != "" {
			o.BaseEndpoint = aws.String(params.Endpoint)
		}
		o.UsePathStyle = true
	})
	return NewCollectorWithClient(client, params.Bucket, params.Prefix, params.BatchSize), nil
}

// Collect implements evidence.Collector. Objects are read in listing
// order and items not mentioning the query are skipped. Unreadable objects
// are logged and skipped.
func (c *Collector) Collect(ctx context.Context, query string, emit evidence.EmitFunc) error {
	var pending []common.Evidence
	flush := func(all bool) error {
		for len(pending) >= c.batchSize || (all && len(pending) > 0) {
			n := min(c.batchSize, len(pending))
			if err := emit(pending[:n:n]); err != nil {
				return err
			}
			pending = pending[n:]
		}
		return nil
	}

	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(c.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list objects with prefix %s: %w", c.prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if ext := path.Ext(key); ext != ".jsonl" && ext != ".json" {
				continue
			}

			items, err := c.readObject(ctx, key)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Warn("[S3] Skipping evidence object", "key", key, "err", err)
				continue
			}
			for _, ev := range items {
				if evidence.MatchesQuery(ev, query) {
					pending = append(pending, ev)
				}
			}
			if err := flush(false); err != nil {
				return err
			}
		}
	}
	return flush(true)
}

func (c *Collector) readObject(ctx context.Context, key string) ([]common.Evidence, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer out.Body.Close()

	items, err := evidence.DecodeJSONL(out.Body)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if strings.TrimSpace(items[i].ID) == "" {
			items[i].ID = fmt.Sprintf("%s#%d", key, i+1)
		}
	}
	return items, nil
}
