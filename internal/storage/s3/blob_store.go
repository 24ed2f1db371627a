// Package s3 provides a BlobStore backed by any S3-compatible object store.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/JakeFAU/board-archiver/internal/archive"
	blobs "github.com/JakeFAU/board-archiver/internal/storage"
)

// Config captures the parameters required to reach the bucket.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PathStyle bool
	Prefix    string
}

// BlobStore keeps blobs in an S3 bucket using the sharded object layout.
type BlobStore struct {
	client *awss3.Client
	bucket string
	prefix string
}

var _ archive.BlobStore = (*BlobStore)(nil)

// New loads the AWS configuration and builds a BlobStore. Static credentials
// are used when both keys are set; otherwise the default chain applies.
func New(ctx context.Context, cfg Config) (*BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, archive.ErrConfiguration.New("bucket name is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, archive.ErrConfiguration.Wrap(fmt.Errorf("load aws config: %w", err))
	}
	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return NewWithClient(client, cfg.Bucket, cfg.Prefix)
}

// NewWithClient wraps an existing client.
func NewWithClient(client *awss3.Client, bucket, prefix string) (*BlobStore, error) {
	if client == nil {
		return nil, archive.ErrConfiguration.New("s3 client is required")
	}
	if bucket == "" {
		return nil, archive.ErrConfiguration.New("bucket name is required")
	}
	return &BlobStore{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

// Exists reports whether the object for key is present.
func (s *BlobStore) Exists(ctx context.Context, key, namespace string) (bool, error) {
	name, err := s.objectName(key, namespace)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, archive.ErrStorage.Wrap(fmt.Errorf("head s3://%s/%s: %w", s.bucket, name, err))
	}
}

// Put uploads data.
func (s *BlobStore) Put(ctx context.Context, key, namespace string, data []byte) error {
	name, err := s.objectName(key, namespace)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(name),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return archive.ErrStorage.Wrap(fmt.Errorf("put s3://%s/%s: %w", s.bucket, name, err))
	}
	return nil
}

// Get downloads the object for key.
func (s *BlobStore) Get(ctx context.Context, key, namespace string) ([]byte, error) {
	name, err := s.objectName(key, namespace)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, archive.ErrNotFound.Wrap(fmt.Errorf("s3://%s/%s: %w", s.bucket, name, err))
		}
		return nil, archive.ErrStorage.Wrap(fmt.Errorf("get s3://%s/%s: %w", s.bucket, name, err))
	}
	defer func() { _ = out.Body.Close() }()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, archive.ErrStorage.Wrap(fmt.Errorf("read s3://%s/%s: %w", s.bucket, name, err))
	}
	return data, nil
}

func (s *BlobStore) objectName(key, namespace string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", archive.ErrStorage.New("key is required")
	}
	name := blobs.ObjectName(namespace, key)
	if s.prefix != "" {
		name = s.prefix + "/" + name
	}
	return name, nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NotFound", "NoSuchKey":
		return true
	default:
		return false
	}
}
