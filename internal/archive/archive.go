// Package archive stores rendered receipts in an object store.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

type ReceiptArchive interface {
	Put(ctx context.Context, key string, contentType string, body []byte) error
}

type NoopReceiptArchive struct{}

func (NoopReceiptArchive) Put(_ context.Context, _ string, _ string, _ []byte) error {
	return nil
}

type S3Config struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// S3ReceiptArchive works against AWS S3 or any S3-compatible store such as MinIO.
type S3ReceiptArchive struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
}

type Option func(*S3ReceiptArchive)

func WithLogger(logger *zap.Logger) Option {
	return func(a *S3ReceiptArchive) {
		a.logger = logger
	}
}

// WithKeyPrefix namespaces every object key, e.g. "receipts/".
func WithKeyPrefix(prefix string) Option {
	return func(a *S3ReceiptArchive) {
		a.prefix = prefix
	}
}

func NewS3ReceiptArchive(ctx context.Context, cfg S3Config, opts ...Option) (*S3ReceiptArchive, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("archive bucket is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("archive credentials are required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	a := &S3ReceiptArchive{
		client: client,
		bucket: cfg.Bucket,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *S3ReceiptArchive) Put(ctx context.Context, key string, contentType string, body []byte) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("archive key is required")
	}
	objectKey := a.prefix + key

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("put receipt %s: %w", objectKey, err)
	}

	a.logger.Debug("receipt archived",
		zap.String("bucket", a.bucket),
		zap.String("key", objectKey),
		zap.Int("bytes", len(body)),
	)
	return nil
}
