package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"go.uber.org/zap"
)

// VaultConfig contains configuration for the Vault KV v2 store
type VaultConfig struct {
	Address   string
	Token     string
	MountPath string
	CacheTTL  time.Duration
}

// VaultStore reads secrets from a Vault KV v2 engine
type VaultStore struct {
	client *vault.Client
	mount  string
	logger *zap.Logger
	cache  *secretCache
}

// NewVaultStore creates a token-authenticated Vault store
func NewVaultStore(cfg VaultConfig, logger *zap.Logger) (*VaultStore, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("token is required for vault")
	}
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	mount := strings.Trim(cfg.MountPath, "/")
	if mount == "" {
		mount = "secret"
	}

	logger.Info("Vault store initialized",
		zap.String("address", cfg.Address),
		zap.String("mount_path", mount),
	)

	return &VaultStore{
		client: client,
		mount:  mount,
		logger: logger,
		cache:  newSecretCache(cfg.CacheTTL),
	}, nil
}

// GetSecret reads the "value" key of the secret at path
func (v *VaultStore) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	if cached := v.cache.get(path); cached != nil {
		return cached, nil
	}

	secret, err := v.client.Logical().ReadWithContext(ctx, v.dataPath(path))
	if err != nil {
		v.logger.Error("Failed to retrieve secret from Vault",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("read secret %s: %w", path, err)
	}
	if secret == nil {
		return nil, ports.ErrNotFound
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format at %s", path)
	}
	value, _ := data["value"].(string)
	if value == "" {
		return nil, fmt.Errorf("secret %s has no value", path)
	}

	result := &ports.Secret{Value: value, Metadata: make(map[string]string)}
	if metadata, ok := secret.Data["metadata"].(map[string]interface{}); ok {
		if n, ok := metadata["version"].(json.Number); ok {
			result.Version = n.String()
		}
		if ct, ok := metadata["created_time"].(string); ok {
			result.CreatedAt = ct
		}
	}
	for k, val := range data {
		if str, ok := val.(string); ok && k != "value" {
			result.Metadata[k] = str
		}
	}

	v.cache.set(path, result)
	return result, nil
}

// PutSecret writes a new version of the secret at path
func (v *VaultStore) PutSecret(ctx context.Context, path, value string, metadata map[string]string) (string, error) {
	defer v.cache.invalidate(path)

	data := map[string]interface{}{"value": value}
	for k, val := range metadata {
		data[k] = val
	}

	resp, err := v.client.Logical().WriteWithContext(ctx, v.dataPath(path), map[string]interface{}{"data": data})
	if err != nil {
		return "", fmt.Errorf("write secret %s: %w", path, err)
	}
	version := "1"
	if resp != nil {
		if n, ok := resp.Data["version"].(json.Number); ok {
			version = n.String()
		}
	}
	return version, nil
}

func (v *VaultStore) dataPath(path string) string {
	return fmt.Sprintf("%s/data/%s", v.mount, strings.TrimLeft(path, "/"))
}
