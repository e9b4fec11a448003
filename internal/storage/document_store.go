// Package storage holds the S3-backed object store for workflow
// supporting documents — compliance packets, KYC evidence, signed
// approval forms — referenced by WorkflowStepRecord.SupportingDocuments
// as opaque object-store keys.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	cfg "github.com/meridianledger/core/internal/config"
)

// DocumentStore persists workflow supporting documents to an
// S3-compatible bucket.
type DocumentStore struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
}

// NewDocumentStore creates a new DocumentStore, verifying bucket access
// and creating the bucket if absent.
func NewDocumentStore(ctx context.Context, storeCfg cfg.DocumentStoreConfig) (*DocumentStore, error) {
	opts := []func(*config.LoadOptions) error{}

	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(storeCfg.AccessKeyID, storeCfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var client *s3.Client
	if storeCfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(storeCfg.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	store := &DocumentStore{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    storeCfg.BucketName,
	}

	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *DocumentStore) ensureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check document bucket (may be permission denied): %w", err)
	}

	if _, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("failed to create document bucket: %w", err)
	}
	return nil
}

// Put uploads a supporting document under objectKey, returning the
// opaque key recorded on the WorkflowStepRecord.
func (s *DocumentStore) Put(ctx context.Context, objectKey string, data io.Reader, contentType string, size int64) (string, error) {
	var body io.Reader = data
	if size < 0 {
		buf, err := io.ReadAll(data)
		if err != nil {
			return "", fmt.Errorf("failed to read document: %w", err)
		}
		size = int64(len(buf))
		body = bytes.NewReader(buf)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload document: %w", err)
	}
	return objectKey, nil
}

// Get retrieves a stored document's bytes.
func (s *DocumentStore) Get(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	return out.Body, nil
}

// PresignedURL returns a time-limited GET URL for a document, used by
// the handler layer instead of proxying document bytes through the API.
func (s *DocumentStore) PresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return req.URL, nil
}
