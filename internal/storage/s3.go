package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3ClientInterface defines the object operations the S3 sink needs.
type S3ClientInterface interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// S3Adapter adapts the AWS SDK client to S3ClientInterface for one bucket.
type S3Adapter struct {
	client *s3.Client
	bucket string
}

// NewS3Adapter loads the default AWS configuration for region and returns an
// adapter bound to bucket.
func NewS3Adapter(ctx context.Context, region, bucket string) (*S3Adapter, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3Adapter{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

func (a *S3Adapter) GetObject(ctx context.Context, key string) ([]byte, error) {
	result, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer result.Body.Close()
	return io.ReadAll(result.Body)
}

func (a *S3Adapter) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	_, err := a.client.PutObject(ctx, input)
	return err
}

func (a *S3Adapter) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// S3Sink stores output files as objects below Prefix.
type S3Sink struct {
	client S3ClientInterface
	bucket string
	prefix string
}

// NewS3Sink creates a sink writing through client. bucket is only used for
// Location.
func NewS3Sink(client S3ClientInterface, bucket, prefix string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: prefix}
}

// Put uploads data as prefix/key.
func (s *S3Sink) Put(ctx context.Context, key string, data []byte) error {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return err
	}
	if err := s.client.PutObject(ctx, objectKey, data, contentType(objectKey)); err != nil {
		return fmt.Errorf("failed to upload %s: %w", objectKey, err)
	}
	return nil
}

// Location returns the s3:// URL for key. The empty key names the prefix.
func (s *S3Sink) Location(key string) string {
	if key == "" {
		return fmt.Sprintf("s3://%s/%s", s.bucket, s.prefix)
	}
	objectKey, err := s.objectKey(key)
	if err != nil {
		objectKey = key
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, objectKey)
}

// Keys lists the object keys already stored below the sink's prefix.
func (s *S3Sink) Keys(ctx context.Context) ([]string, error) {
	p := s.prefix
	if p != "" {
		p += "/"
	}
	return s.client.ListObjects(ctx, p)
}

func (s *S3Sink) objectKey(key string) (string, error) {
	k, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	if s.prefix == "" {
		return k, nil
	}
	return path.Join(s.prefix, k), nil
}

func contentType(key string) string {
	switch path.Ext(key) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".txt":
		return "text/plain"
	}
	return ""
}
