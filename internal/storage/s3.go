package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/OFFIS-RIT/trailgraph/internal/util"
	"github.com/OFFIS-RIT/trailgraph/pkg/common"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ExportPrefix is the key prefix under which session snapshots are exported.
const ExportPrefix = "sessions"

// ObjectAPI is the part of the S3 client used for snapshot exports.
type ObjectAPI interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// NewS3Client builds a client from the AWS_* environment variables.
func NewS3Client(ctx context.Context) (*s3.Client, error) {
	region := util.GetEnvString("AWS_REGION", "us-east-1")
	endpoint := util.GetEnv("AWS_ENDPOINT")
	accessKey := util.GetEnv("AWS_ACCESS_KEY")
	secretKey := util.GetEnv("AWS_SECRET_KEY")

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)),
	}
	if endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(endpoint))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return client, nil
}

// ExportKey is the object key of one exported snapshot version.
func ExportKey(sessionID string, version int) string {
	return fmt.Sprintf("%s/%s/v%06d.json", ExportPrefix, sessionID, version)
}

// ExportSnapshot uploads state as JSON and returns its key. Versions are
// zero-padded so listing order is version order.
func ExportSnapshot(ctx context.Context, client ObjectAPI, bucket string, state *common.SessionState) (string, error) {
	if state == nil || state.ID == "" {
		return "", fmt.Errorf("session state has no id")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("failed to encode session %s: %w", state.ID, err)
	}

	key := ExportKey(state.ID, state.Version)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload snapshot to S3: %w", err)
	}
	return key, nil
}

// ListExports returns the keys of every exported snapshot of a session.
func ListExports(ctx context.Context, client ObjectAPI, bucket, sessionID string) ([]string, error) {
	prefix := fmt.Sprintf("%s/%s/", ExportPrefix, sessionID)
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	keys := []string{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects with prefix %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}
	return keys, nil
}

// DeleteExports removes every exported snapshot of a session.
func DeleteExports(ctx context.Context, client ObjectAPI, bucket, sessionID string) error {
	keys, err := ListExports(ctx, client, bucket, sessionID)
	if err != nil {
		return err
	}

	// DeleteObjects takes at most 1000 keys per call
	for start := 0; start < len(keys); start += 1000 {
		chunk := keys[start:min(start+1000, len(keys))]
		objects := make([]types.ObjectIdentifier, 0, len(chunk))
		for _, k := range chunk {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(k)})
		}
		_, err := client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete exports of session %s: %w", sessionID, err)
		}
	}
	return nil
}

// GenerateDownloadLink presigns a GET for key against publicEndpoint, the
// address clients reach the bucket under.
func GenerateDownloadLink(ctx context.Context, baseClient *s3.Client, bucket, key, publicEndpoint string) (string, error) {
	publicURL, err := url.Parse(publicEndpoint)
	if err != nil || publicURL.Scheme == "" || publicURL.Host == "" {
		return "", fmt.Errorf("invalid public endpoint: %s", publicEndpoint)
	}
	prefix := strings.TrimSuffix(publicURL.Path, "/")
	publicBaseEndpoint := fmt.Sprintf("%s://%s", publicURL.Scheme, publicURL.Host)

	// the signature must match the Host header the client sends
	presignClient := s3.NewFromConfig(
		aws.Config{
			Region:      baseClient.Options().Region,
			Credentials: baseClient.Options().Credentials,
			HTTPClient:  baseClient.Options().HTTPClient,
		},
		func(o *s3.Options) {
			o.BaseEndpoint = aws.String(publicBaseEndpoint)
			o.UsePathStyle = true
		},
	)

	out, err := s3.NewPresignClient(presignClient).PresignGetObject(
		ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		},
		s3.WithPresignExpires(15*time.Minute),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate download link: %w", err)
	}

	if prefix != "" {
		signedURL, err := url.Parse(out.URL)
		if err != nil {
			return "", fmt.Errorf("failed to parse presigned url: %w", err)
		}
		signedURL.Path = prefix + signedURL.Path
		return signedURL.String(), nil
	}
	return out.URL, nil
}
