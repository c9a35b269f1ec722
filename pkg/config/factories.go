package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittoserve/internal/logger"
	"github.com/marmos91/dittoserve/pkg/content"
	contentBadger "github.com/marmos91/dittoserve/pkg/content/badger"
	contentFs "github.com/marmos91/dittoserve/pkg/content/fs"
	contentS3 "github.com/marmos91/dittoserve/pkg/content/s3"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/afero"
)

// CreateContentStore creates the content backend selected by cfg.Type.
//
// Besides the store it returns the root that the request handler prepends
// to every request path:
//   - "filesystem": the served directory, since ContentIDs are host paths
//   - "s3" and "badger": empty, since keys are the request paths themselves
//     (an S3 key_prefix is applied inside the store)
//
// Returns:
//   - content.ContentStore: Initialized store, to be closed by the caller
//   - string: Content root
//   - error: Configuration or initialization error
func CreateContentStore(ctx context.Context, cfg *ContentConfig) (content.ContentStore, string, error) {
	switch cfg.Type {
	case "filesystem":
		return createFilesystemContentStore(ctx, cfg.Filesystem)
	case "s3":
		store, err := createS3ContentStore(ctx, cfg.S3)
		return store, "", err
	case "badger":
		store, err := createBadgerContentStore(ctx, cfg.Badger)
		return store, "", err
	default:
		return nil, "", fmt.Errorf("unknown content store type: %q", cfg.Type)
	}
}

// decodeOptions decodes a backend option map. Weak typing lets values that
// arrive as strings from environment variables decode into bools and ints.
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(options)
}

func createFilesystemContentStore(ctx context.Context, options map[string]any) (content.ContentStore, string, error) {
	type FilesystemContentStoreConfig struct {
		Path string `mapstructure:"path"`
	}

	var storeCfg FilesystemContentStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, "", fmt.Errorf("failed to decode filesystem content store config: %w", err)
	}

	if storeCfg.Path == "" {
		return nil, "", fmt.Errorf("filesystem content store: path is required")
	}

	store, err := contentFs.NewOSContentStore(ctx, storeCfg.Path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create filesystem content store: %w", err)
	}

	logger.Info("Filesystem content store initialized: path=%s", storeCfg.Path)
	return store, storeCfg.Path, nil
}

func createS3ContentStore(ctx context.Context, options map[string]any) (content.ContentStore, error) {
	type S3ContentStoreConfig struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
		SkipBucketCheck bool   `mapstructure:"skip_bucket_check"`
	}

	var storeCfg S3ContentStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 content store config: %w", err)
	}

	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 content store: bucket is required")
	}
	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 content store: region is required")
	}

	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(storeCfg.Region),
	}

	// Static credentials if provided, otherwise the default credential chain.
	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(storeCfg.AccessKeyID, storeCfg.SecretAccessKey, ""),
		))
	}

	maxRetries := storeCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// MinIO, Localstack and friends want path-style addressing.
		if storeCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(storeCfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	store, err := contentS3.NewS3ContentStore(ctx, contentS3.S3ContentStoreConfig{
		Client:          client,
		Bucket:          storeCfg.Bucket,
		KeyPrefix:       storeCfg.KeyPrefix,
		SkipBucketCheck: storeCfg.SkipBucketCheck,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 content store: %w", err)
	}

	logger.Info("S3 content store initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)

	return store, nil
}

func createBadgerContentStore(ctx context.Context, options map[string]any) (content.ContentStore, error) {
	type BadgerOptions struct {
		DBPath           string `mapstructure:"db_path"`
		InMemory         bool   `mapstructure:"in_memory"`
		ReadOnly         bool   `mapstructure:"read_only"`
		BlockCacheSizeMB int64  `mapstructure:"block_cache_size_mb"`
		ImportFrom       string `mapstructure:"import_from"`
	}

	var opts BadgerOptions
	if err := decodeOptions(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode badger content store config: %w", err)
	}

	if opts.ReadOnly && opts.ImportFrom != "" {
		return nil, fmt.Errorf("badger content store: import_from cannot be used with read_only")
	}

	store, err := contentBadger.NewBadgerContentStore(ctx, contentBadger.BadgerContentStoreConfig{
		DBPath:           opts.DBPath,
		InMemory:         opts.InMemory,
		ReadOnly:         opts.ReadOnly,
		BlockCacheSizeMB: opts.BlockCacheSizeMB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create badger content store: %w", err)
	}

	if opts.ImportFrom != "" {
		n, err := contentBadger.ImportTree(ctx, store, afero.NewOsFs(), opts.ImportFrom, "")
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to import %s into badger content store: %w", opts.ImportFrom, err)
		}
		logger.Info("Imported %d file(s) from %s", n, opts.ImportFrom)
	}

	logger.Info("Badger content store initialized: path=%s, in_memory=%t, read_only=%t",
		opts.DBPath, opts.InMemory, opts.ReadOnly)

	return store, nil
}
