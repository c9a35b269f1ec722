// Package s3 implements a read-only ContentStore backed by Amazon S3 or any
// S3-compatible object store.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/dittoserve/pkg/content"
)

// Client is the subset of *s3.Client used by the store.
type Client interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3ContentStore serves objects from a single bucket.
//
// Key design:
// The ContentID is root + request path, e.g. "site" + "/index.html". The
// leading "/" is stripped so the key is "site/index.html", and KeyPrefix is
// prepended when configured.
//
// Thread Safety:
// Safe for concurrent use; the AWS client is.
type S3ContentStore struct {
	client    Client
	bucket    string
	keyPrefix string
}

// S3ContentStoreConfig contains configuration for the S3 content store.
type S3ContentStoreConfig struct {
	// Client is the configured S3 client.
	Client Client

	// Bucket is the S3 bucket name.
	Bucket string

	// KeyPrefix is an optional prefix for all object keys.
	// Example: "public/" results in keys like "public/index.html".
	KeyPrefix string

	// SkipBucketCheck disables the HeadBucket probe at construction time.
	SkipBucketCheck bool
}

// NewS3ContentStore creates a store and verifies that the bucket is reachable.
// The bucket must already exist.
func NewS3ContentStore(ctx context.Context, cfg S3ContentStoreConfig) (*S3ContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	if !cfg.SkipBucketCheck {
		_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
			Bucket: aws.String(cfg.Bucket),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
		}
	}

	return &S3ContentStore{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

func (s *S3ContentStore) getObjectKey(id content.ContentID) string {
	return s.keyPrefix + strings.TrimPrefix(string(id), "/")
}

// ReadContent downloads the object. The caller must close the returned body.
func (s *S3ContentStore) ReadContent(ctx context.Context, id content.ContentID) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := s.getObjectKey(id)
	if key == "" || strings.HasSuffix(key, "/") {
		return nil, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}

	return result.Body, nil
}

// GetContentSize issues a HEAD request and returns the object length.
func (s *S3ContentStore) GetContentSize(ctx context.Context, id content.ContentID) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	key := s.getObjectKey(id)
	// Keys ending in "/" are folder placeholders, the S3 analogue of a directory.
	if key == "" || strings.HasSuffix(key, "/") {
		return 0, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
	}

	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
		}
		return 0, fmt.Errorf("failed to head object: %w", err)
	}

	if result.ContentLength == nil {
		return 0, fmt.Errorf("content length not available for %s", id)
	}
	return uint64(*result.ContentLength), nil
}

// ContentExists reports whether the object exists.
func (s *S3ContentStore) ContentExists(ctx context.Context, id content.ContentID) (bool, error) {
	_, err := s.GetContentSize(ctx, id)
	if errors.Is(err, content.ErrContentNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Close is a no-op; the AWS client holds no resources that need releasing.
func (s *S3ContentStore) Close() error {
	return nil
}

// isNotFound matches both error shapes S3 uses for a missing key: GetObject
// returns NoSuchKey, HeadObject (no response body) returns NotFound.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
