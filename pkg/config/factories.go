package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/dsftp/internal/logger"
	"github.com/marmos91/dsftp/pkg/backend"
	backendBadger "github.com/marmos91/dsftp/pkg/backend/badgerdb"
	backendMemory "github.com/marmos91/dsftp/pkg/backend/memory"
	backendS3 "github.com/marmos91/dsftp/pkg/backend/s3"
)

// CreateBackend creates a storage backend based on configuration.
//
// This factory uses the Type field to pick the implementation, decodes
// the type-specific options from the corresponding map, and passes them
// to the backend's constructor.
//
// Supported types:
//   - "memory": pkg/backend/memory (ephemeral, for development and tests)
//   - "s3": pkg/backend/s3 (Amazon S3 or compatible object storage)
//   - "badger": pkg/backend/badgerdb (embedded persistent storage)
func CreateBackend(ctx context.Context, cfg *BackendConfig) (backend.Backend, error) {
	switch cfg.Type {
	case "memory":
		return createMemoryBackend(ctx, cfg.Memory)
	case "s3":
		return createS3Backend(ctx, cfg.S3)
	case "badger":
		return createBadgerBackend(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown backend type: %q (supported: memory, s3, badger)", cfg.Type)
	}
}

// createMemoryBackend creates an in-memory backend.
func createMemoryBackend(ctx context.Context, options map[string]any) (backend.Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var storeCfg backendMemory.MemoryBackendConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode memory backend config: %w", err)
	}

	logger.Info("Memory backend initialized (contents are lost on shutdown)")
	return backendMemory.NewMemoryBackend(storeCfg), nil
}

// createS3Backend creates an S3-based backend.
func createS3Backend(ctx context.Context, options map[string]any) (backend.Backend, error) {
	type S3Options struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
	}

	var storeCfg S3Options
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 backend config: %w", err)
	}

	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 backend: bucket is required")
	}
	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 backend: region is required")
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	var configOptions []func(*awsConfig.LoadOptions) error

	configOptions = append(configOptions, awsConfig.WithRegion(storeCfg.Region))

	// Custom endpoint for MinIO, Localstack, etc.
	if storeCfg.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
				return aws.Endpoint{
					URL:               storeCfg.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	// Static credentials if provided, otherwise the default chain.
	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeCfg.AccessKeyID,
			storeCfg.SecretAccessKey,
			"", // session token (empty for static credentials)
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	// Retry transient S3 failures (502, 503, timeouts) more aggressively
	// than the AWS default of 3 attempts.
	maxRetries := storeCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	cfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		// Path-style addressing for compatibility with MinIO/Localstack
		if storeCfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	// ========================================================================
	// Step 3: Create S3 Backend
	// ========================================================================

	store, err := backendS3.NewS3Backend(ctx, backendS3.S3BackendConfig{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		KeyPrefix: storeCfg.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 backend: %w", err)
	}

	logger.Info("S3 backend initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)

	return store, nil
}

// createBadgerBackend creates a BadgerDB-based persistent backend.
func createBadgerBackend(ctx context.Context, options map[string]any) (backend.Backend, error) {
	var storeCfg backendBadger.BadgerBackendConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger backend config: %w", err)
	}

	if storeCfg.DBPath == "" {
		return nil, fmt.Errorf("badger backend: db_path is required")
	}

	store, err := backendBadger.NewBadgerBackend(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger backend: %w", err)
	}

	logger.Info("Badger backend initialized: path=%s", storeCfg.DBPath)

	return store, nil
}
