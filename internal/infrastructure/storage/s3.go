package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/phonebook/contacts-api/internal/core/ports"
	"github.com/phonebook/contacts-api/internal/pkg/config"
)

// s3API is the subset of *s3.Client the sink needs.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Sink uploads photos to an S3 (or S3-compatible) bucket and returns their
// public URL.
type S3Sink struct {
	client  s3API
	bucket  string
	prefix  string
	baseURL string
}

// NewS3Sink builds a client from the default AWS credential chain.
// A non-empty cfg.Endpoint targets an S3-compatible service with path-style
// addressing.
func NewS3Sink(ctx context.Context, cfg config.S3Config) (*S3Sink, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Sink(client, cfg), nil
}

func newS3Sink(client s3API, cfg config.S3Config) *S3Sink {
	base := cfg.PublicBaseURL
	if base == "" {
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
	return &S3Sink{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		baseURL: strings.TrimRight(base, "/"),
	}
}

func (s *S3Sink) Backend() string { return BackendS3 }

func (s *S3Sink) Store(ctx context.Context, file ports.Upload) (string, error) {
	key := objectName(file)
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}

	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   file.Body,
	}
	if file.ContentType != "" {
		in.ContentType = aws.String(file.ContentType)
	}
	if file.Size > 0 {
		in.ContentLength = aws.Int64(file.Size)
	}

	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", storageErr("s3 put object", err)
	}
	return joinURL(s.baseURL, key), nil
}

// Remove deletes the object behind url. URLs outside this bucket's public
// base are ignored.
func (s *S3Sink) Remove(ctx context.Context, url string) error {
	key, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok || key == "" {
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete object: %w", err)
	}
	return nil
}
