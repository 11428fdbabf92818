// Package secrets resolves collaborator credentials from AWS Secrets Manager,
// Vault or the local filesystem.
package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/kevin07696/transaction-orchestrator/internal/config"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"go.uber.org/zap"
)

// Ensure every backend implements the port
var (
	_ ports.SecretStore = (*AWSStore)(nil)
	_ ports.SecretStore = (*VaultStore)(nil)
	_ ports.SecretStore = (*LocalStore)(nil)
)

// New builds the backend named by cfg.Backend
func New(ctx context.Context, cfg config.SecretsConfig, logger *zap.Logger) (ports.SecretStore, error) {
	switch cfg.Backend {
	case "aws":
		return NewAWSStore(ctx, AWSConfig{Region: cfg.AWSRegion, Endpoint: cfg.AWSEndpoint, CacheTTL: cfg.CacheTTL}, logger)
	case "vault":
		return NewVaultStore(VaultConfig{
			Address:   cfg.VaultAddr,
			Token:     cfg.VaultToken,
			MountPath: cfg.VaultMount,
			CacheTTL:  cfg.CacheTTL,
		}, logger)
	case "local", "":
		return NewLocalStore(cfg.LocalPath, logger), nil
	default:
		return nil, fmt.Errorf("unsupported secrets backend: %s", cfg.Backend)
	}
}

// Value returns the secret value at path, or fallback when it does not exist
func Value(ctx context.Context, store ports.SecretStore, path, fallback string) (string, error) {
	secret, err := store.GetSecret(ctx, path)
	if errors.Is(err, ports.ErrNotFound) {
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	return secret.Value, nil
}
