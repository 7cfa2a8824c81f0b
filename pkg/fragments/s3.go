package fragments

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Fetcher fetches s3://bucket/key entry URLs. Fragments deployed as
// static artifacts publish their remote entries next to their bundles.
type S3Fetcher struct {
	client *s3.Client
}

// S3Config configures the S3 fetcher.
type S3Config struct {
	Region string

	// Endpoint overrides the AWS endpoint, for MinIO or localstack.
	Endpoint string

	// UsePathStyle forces path-style addressing, required by MinIO.
	UsePathStyle bool
}

// NewS3Fetcher creates a fetcher using the default credential chain.
func NewS3Fetcher(ctx context.Context, cfg S3Config) (*S3Fetcher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})
	return &S3Fetcher{client: client}, nil
}

func (f *S3Fetcher) Fetch(ctx context.Context, entryURL string) ([]byte, error) {
	u, err := url.Parse(entryURL)
	if err != nil {
		return nil, fmt.Errorf("parsing entry URL: %w", err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return nil, fmt.Errorf("invalid s3 entry URL %q", entryURL)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return nil, fmt.Errorf("s3 entry URL %q has no key", entryURL)
	}

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.Host),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching s3://%s/%s: %w", u.Host, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxEntrySize))
	if err != nil {
		return nil, fmt.Errorf("reading s3://%s/%s: %w", u.Host, key, err)
	}
	return data, nil
}
