// Package mirror provides an S3-compatible source for survey data archives.
//
// Several releases are mirrored on S3-compatible object stores alongside
// their primary HTTP hosts; this adapter lets the download layer fetch
// s3:// resources through the same batch interface. It supports AWS S3,
// MinIO, and other S3-compatible endpoints.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// ErrNotFound indicates a requested object does not exist in the mirror.
var ErrNotFound = errors.New("mirror: object not found")

// API is the subset of the S3 client interface used by the source.
// This enables testing with mock implementations.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Config holds connection settings for an S3-compatible mirror.
type Config struct {
	// Region is the region of the mirror bucket (required for AWS).
	Region string

	// Endpoint is an optional custom endpoint URL for S3-compatible
	// services (e.g., "http://localhost:9000" for MinIO).
	Endpoint string

	// UsePathStyle enables path-style addressing, required by some
	// S3-compatible services.
	UsePathStyle bool

	// AccessKey and SecretKey select static credentials. When empty, the
	// default credential chain applies; public mirrors work with
	// anonymous access through a custom endpoint.
	AccessKey string
	SecretKey string
}

// Source opens objects in S3-compatible mirrors. It satisfies the download
// layer's BlobOpener.
type Source struct {
	client API
}

// New wraps an existing client.
func New(client API) *Source {
	return &Source{client: client}
}

// Connect creates a source from connection settings.
func Connect(ctx context.Context, cfg Config) (*Source, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("mirror: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &Source{client: client}, nil
}

// Open returns the object's body. Missing objects map to ErrNotFound.
func (s *Source) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("mirror: get s3://%s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

// Exists reports whether the object is present in the mirror.
func (s *Source) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("mirror: head s3://%s/%s: %w", bucket, key, err)
	}
	return true, nil
}

// isNotFound maps S3 API error codes to the missing-object condition.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	return false
}
