package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	secretsmanagertypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"go.uber.org/zap"
)

// AWSConfig contains configuration for the AWS Secrets Manager store
type AWSConfig struct {
	Region string
	// Endpoint overrides the service endpoint (LocalStack)
	Endpoint string
	CacheTTL time.Duration
}

// AWSStore reads secrets from AWS Secrets Manager
type AWSStore struct {
	client *secretsmanager.Client
	logger *zap.Logger
	cache  *secretCache
}

// NewAWSStore loads the default credential chain and creates the store
func NewAWSStore(ctx context.Context, cfg AWSConfig, logger *zap.Logger) (*AWSStore, error) {
	awsConfig, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var opts []func(*secretsmanager.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *secretsmanager.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	logger.Info("AWS Secrets Manager store initialized",
		zap.String("region", cfg.Region),
		zap.Duration("cache_ttl", cfg.CacheTTL),
	)

	return &AWSStore{
		client: secretsmanager.NewFromConfig(awsConfig, opts...),
		logger: logger,
		cache:  newSecretCache(cfg.CacheTTL),
	}, nil
}

// GetSecret retrieves a secret by name or ARN
func (a *AWSStore) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	if cached := a.cache.get(path); cached != nil {
		return cached, nil
	}

	start := time.Now()
	result, err := a.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(path),
	})
	if err != nil {
		var notFound *secretsmanagertypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil, ports.ErrNotFound
		}
		a.logger.Error("Failed to retrieve secret",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("get secret %s: %w", path, err)
	}

	a.logger.Debug("Secret retrieved",
		zap.String("path", path),
		zap.Duration("elapsed", time.Since(start)),
	)

	secret := &ports.Secret{
		Value:    aws.ToString(result.SecretString),
		Version:  aws.ToString(result.VersionId),
		Metadata: make(map[string]string),
	}
	if result.CreatedDate != nil {
		secret.CreatedAt = result.CreatedDate.UTC().Format(time.RFC3339)
	}
	if result.ARN != nil {
		secret.Metadata["arn"] = *result.ARN
	}
	if result.Name != nil {
		secret.Metadata["name"] = *result.Name
	}

	a.cache.set(path, secret)
	return secret, nil
}

// PutSecret writes a new version, creating the secret when it does not exist
func (a *AWSStore) PutSecret(ctx context.Context, path, value string, metadata map[string]string) (string, error) {
	defer a.cache.invalidate(path)

	result, err := a.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(path),
		SecretString: aws.String(value),
	})
	if err == nil {
		return aws.ToString(result.VersionId), nil
	}

	var notFound *secretsmanagertypes.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return "", fmt.Errorf("put secret %s: %w", path, err)
	}

	input := &secretsmanager.CreateSecretInput{
		Name:         aws.String(path),
		SecretString: aws.String(value),
		Description:  aws.String("Transaction orchestrator credential"),
	}
	for key, val := range metadata {
		input.Tags = append(input.Tags, secretsmanagertypes.Tag{
			Key:   aws.String(key),
			Value: aws.String(val),
		})
	}

	created, err := a.client.CreateSecret(ctx, input)
	if err != nil {
		return "", fmt.Errorf("create secret %s: %w", path, err)
	}
	a.logger.Info("Secret created",
		zap.String("path", path),
		zap.String("version", aws.ToString(created.VersionId)),
	)
	return aws.ToString(created.VersionId), nil
}
