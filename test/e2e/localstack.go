package e2e

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// LocalstackHelper manages Localstack S3 integration for tests
type LocalstackHelper struct {
	T        *testing.T
	Endpoint string
	Client   *s3.Client
	Buckets  []string
}

// NewLocalstackHelper creates a new Localstack helper
func NewLocalstackHelper(t *testing.T) *LocalstackHelper {
	t.Helper()

	endpoint := os.Getenv("LOCALSTACK_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:4566"
	}

	helper := &LocalstackHelper{
		T:        t,
		Endpoint: endpoint,
	}
	helper.createClient()

	return helper
}

// createClient creates an S3 client configured for Localstack
func (lh *LocalstackHelper) createClient() {
	lh.T.Helper()

	cfg, err := awsConfig.LoadDefaultConfig(context.Background(),
		awsConfig.WithRegion("us-east-1"),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	if err != nil {
		lh.T.Fatalf("Failed to load AWS config: %v", err)
	}

	// Localstack needs path-style URLs
	lh.Client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(lh.Endpoint)
		o.UsePathStyle = true
	})
}

// CreateBucket creates a new S3 bucket and registers it for cleanup
func (lh *LocalstackHelper) CreateBucket(ctx context.Context, bucketName string) error {
	lh.T.Helper()

	_, err := lh.Client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucketName, err)
	}

	lh.Buckets = append(lh.Buckets, bucketName)
	return nil
}

// Upload stores every site file under its slash-separated relative path.
func (lh *LocalstackHelper) Upload(ctx context.Context, bucketName string, files map[string][]byte) error {
	for key, data := range files {
		_, err := lh.Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucketName),
			Key:    aws.String(key),
			Body:   bytes.NewReader(data),
		})
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", key, err)
		}
	}
	return nil
}

// Cleanup removes all created buckets and their contents
func (lh *LocalstackHelper) Cleanup() {
	lh.T.Helper()

	ctx := context.Background()

	for _, bucketName := range lh.Buckets {
		listResp, err := lh.Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket: aws.String(bucketName),
		})
		if err == nil && listResp != nil {
			for _, obj := range listResp.Contents {
				_, _ = lh.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
					Bucket: aws.String(bucketName),
					Key:    obj.Key,
				})
			}
		}

		_, _ = lh.Client.DeleteBucket(ctx, &s3.DeleteBucketInput{
			Bucket: aws.String(bucketName),
		})
	}
}

// SetupS3Config creates a bucket for config and uploads the site into it.
func SetupS3Config(t *testing.T, config *TestConfig, files map[string][]byte) {
	t.Helper()

	helper := NewLocalstackHelper(t)
	t.Cleanup(helper.Cleanup)

	ctx := context.Background()
	bucketName := fmt.Sprintf("dittoserve-test-%d", time.Now().UnixNano())
	if err := helper.CreateBucket(ctx, bucketName); err != nil {
		t.Fatalf("Failed to create S3 bucket: %v", err)
	}
	if err := helper.Upload(ctx, bucketName, files); err != nil {
		t.Fatalf("Failed to upload site: %v", err)
	}

	config.localstack = helper
	config.s3Bucket = bucketName
}

// CheckLocalstackAvailable checks if Localstack is running and accessible
func CheckLocalstackAvailable(t *testing.T) bool {
	t.Helper()

	if os.Getenv("LOCALSTACK_ENDPOINT") == "" {
		return false
	}

	helper := NewLocalstackHelper(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := helper.Client.ListBuckets(ctx, &s3.ListBucketsInput{})
	return err == nil
}
