// Package s3lister lists S3 and S3-compatible buckets.
package s3lister

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"BucketCatalog/internal/config"
	"BucketCatalog/internal/domain"
	"BucketCatalog/internal/ports"
)

// Lister streams ListObjectsV2 pages into the ingestion loop.
type Lister struct {
	client   s3.ListObjectsV2APIClient
	pageSize int32
	logger   *slog.Logger
}

var _ ports.ObjectLister = (*Lister)(nil)

// New builds a Lister from configuration.
func New(ctx context.Context, cfg config.S3Config, logger *slog.Logger) (*Lister, error) {
	awsCfg, err := buildAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewWithClient(client, cfg.PageSize, logger), nil
}

// NewWithClient wraps an existing ListObjectsV2 client.
func NewWithClient(client s3.ListObjectsV2APIClient, pageSize int32, logger *slog.Logger) *Lister {
	if pageSize <= 0 || pageSize > 1000 {
		pageSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Lister{client: client, pageSize: pageSize, logger: logger}
}

// Name identifies the lister inside the registry.
func (l *Lister) Name() string {
	return "s3"
}

// List walks every page for bucket/prefix. S3 listings carry no creation or
// custom time, so LastModified doubles as the creation time.
func (l *Lister) List(ctx context.Context, bucket, prefix string, yield func(domain.Object) error) error {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		MaxKeys: aws.Int32(l.pageSize),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	paginator := s3.NewListObjectsV2Paginator(l.client, input)
	pages := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list objects page %d: %w", pages+1, err)
		}
		pages++

		for _, item := range page.Contents {
			modified := aws.ToTime(item.LastModified).UTC()
			created := modified
			obj := domain.Object{
				Name:        aws.ToString(item.Key),
				Size:        aws.ToInt64(item.Size),
				Updated:     modified,
				TimeCreated: &created,
			}
			if err := yield(obj); err != nil {
				return err
			}
		}
		l.logger.Debug("listed page", "bucket", bucket, "page", pages, "objects", len(page.Contents))
	}
	return nil
}

func buildAWSConfig(ctx context.Context, cfg config.S3Config) (aws.Config, error) {
	var optFns []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	if cfg.Anonymous {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}))
	}
	if cfg.MaxRetries > 0 {
		optFns = append(optFns, awsconfig.WithRetryMaxAttempts(cfg.MaxRetries))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	optFns = append(optFns, awsconfig.WithHTTPClient(&http.Client{Timeout: timeout}))

	return awsconfig.LoadDefaultConfig(ctx, optFns...)
}
