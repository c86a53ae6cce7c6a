package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"transcript-aggregator/internal/domain"
)

// s3API is the minimal S3 interface required by Client.
// *s3.Client from aws-sdk-go-v2 satisfies this interface.
type s3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Client wraps one S3 bucket and exposes it as a directory tree delimited
// by domain.PathSeparator.
type Client struct {
	api    s3API
	bucket string
}

// New creates a Client for bucket.
func New(api s3API, bucket string) (*Client, error) {
	if api == nil {
		return nil, errors.New("blobstore: api must not be nil")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("blobstore: bucket must not be empty")
	}
	return &Client{api: api, bucket: bucket}, nil
}

// WithEndpoint points the S3 client at an S3-compatible endpoint.
func WithEndpoint(endpoint string, pathStyle bool) func(*s3.Options) {
	return func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = pathStyle
	}
}

// ListDirectories returns the immediate child directories of prefix.
// An empty prefix lists the bucket root.
func (c *Client) ListDirectories(ctx context.Context, prefix string) ([]domain.DirRef, error) {
	prefix = dirPrefix(prefix)
	var dirs []domain.DirRef
	err := c.list(ctx, prefix, func(page *s3.ListObjectsV2Output) {
		for _, cp := range page.CommonPrefixes {
			p := aws.ToString(cp.Prefix)
			name := strings.TrimSuffix(strings.TrimPrefix(p, prefix), domain.PathSeparator)
			// Keys with an empty segment ("a//b") have no directory name.
			if name == "" {
				continue
			}
			dirs = append(dirs, domain.DirRef{Prefix: p, Name: name})
		}
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: list directories %q: %w", prefix, err)
	}
	return dirs, nil
}

// ListFiles returns the immediate child blobs of prefix. Zero-length
// folder markers are not reported.
func (c *Client) ListFiles(ctx context.Context, prefix string) ([]domain.FileRef, error) {
	prefix = dirPrefix(prefix)
	var files []domain.FileRef
	err := c.list(ctx, prefix, func(page *s3.ListObjectsV2Output) {
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == prefix || strings.HasSuffix(key, domain.PathSeparator) {
				continue
			}
			files = append(files, domain.FileRef{
				Key:          key,
				Name:         strings.TrimPrefix(key, prefix),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: list files %q: %w", prefix, err)
	}
	return files, nil
}

func (c *Client) list(ctx context.Context, prefix string, visit func(*s3.ListObjectsV2Output)) error {
	in := &s3.ListObjectsV2Input{
		Bucket:    aws.String(c.bucket),
		Delimiter: aws.String(domain.PathSeparator),
	}
	if prefix != "" {
		in.Prefix = aws.String(prefix)
	}
	p := s3.NewListObjectsV2Paginator(c.api, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return err
		}
		visit(page)
	}
	return nil
}

// Read returns the full content of the blob at key.
func (c *Client) Read(ctx context.Context, key string) ([]byte, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: get %q: %w", key, err)
	}
	if out == nil || out.Body == nil {
		return nil, fmt.Errorf("blobstore: get %q: empty response body", key)
	}
	defer func() { _ = out.Body.Close() }()

	buf, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("blobstore: read %q: %w", key, err)
	}
	return buf, nil
}

// Write creates or replaces the blob at key.
func (c *Client) Write(ctx context.Context, key string, body []byte, contentType string, metadata map[string]string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("blobstore: key is required")
	}
	in := &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		Metadata:      metadata,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := c.api.PutObject(ctx, in); err != nil {
		return fmt.Errorf("blobstore: put %q: %w", key, err)
	}
	return nil
}

func dirPrefix(prefix string) string {
	prefix = strings.TrimPrefix(prefix, domain.PathSeparator)
	if prefix == "" || strings.HasSuffix(prefix, domain.PathSeparator) {
		return prefix
	}
	return prefix + domain.PathSeparator
}
