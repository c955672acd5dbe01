// Package s3 provides an S3-compatible blob store implementation
// (AWS S3, MinIO).
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/docdepot/docdepot/pkg/docdepot"
)

// Config holds configuration for the S3 backend.
type Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string

	// Endpoint overrides the AWS endpoint for MinIO and other
	// S3-compatible stores. UsePathStyle is usually required with it.
	Endpoint     string
	UsePathStyle bool

	// Server-side encryption. SSEAlgorithm is AES256 or aws:kms.
	EnableSSE    bool
	SSEAlgorithm string
	SSEKMSKeyID  string

	// CreateBucketIfNotExist creates the bucket at startup, which is
	// convenient against a local MinIO.
	CreateBucketIfNotExist bool
}

type s3Backend struct {
	client *s3.Client
	config Config
}

// New creates a new S3-backed blob store.
func New(cfg Config) (docdepot.BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	ctx := context.Background()
	var awsCfg aws.Config
	var err error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		}
	})

	backend := &s3Backend{client: client, config: cfg}
	if cfg.CreateBucketIfNotExist {
		if err := backend.createBucketIfNotExists(ctx); err != nil {
			return nil, err
		}
	}
	return backend, nil
}

func (b *s3Backend) createBucketIfNotExists(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.config.Bucket),
	})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("head bucket: %w", err)
	}
	if _, err := b.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(b.config.Bucket),
	}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

func (b *s3Backend) Upload(ctx context.Context, key string, reader io.Reader) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(key),
		Body:   reader,
	}
	if b.config.EnableSSE {
		switch b.config.SSEAlgorithm {
		case "aws:kms":
			input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			if b.config.SSEKMSKeyID != "" {
				input.SSEKMSKeyId = aws.String(b.config.SSEKMSKeyID)
			}
		default:
			input.ServerSideEncryption = types.ServerSideEncryptionAes256
		}
	}

	uploader := manager.NewUploader(b.client)
	if _, err := uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("upload object: %w", err)
	}
	return nil
}

func (b *s3Backend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, docdepot.ErrBlobNotFound
		}
		return nil, fmt.Errorf("get object: %w", err)
	}
	return out.Body, nil
}

func (b *s3Backend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("head object: %w", err)
	}
	return true, nil
}

func (b *s3Backend) Delete(ctx context.Context, key string) error {
	// S3 DeleteObject succeeds for missing keys, which matches the
	// idempotent delete contract.
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// isNotFound recognizes the several shapes S3-compatible stores use for
// "no such object" and "no such bucket".
func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	return false
}
