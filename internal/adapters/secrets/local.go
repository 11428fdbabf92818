package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"go.uber.org/zap"
)

// LocalStore keeps secrets as files under a base directory.
// Development only.
type LocalStore struct {
	basePath string
	logger   *zap.Logger
	now      func() time.Time
}

type localSecret struct {
	Value     string            `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
	CreatedAt string            `json:"created_at"`
}

// NewLocalStore creates a filesystem store rooted at basePath
func NewLocalStore(basePath string, logger *zap.Logger) *LocalStore {
	return &LocalStore{basePath: basePath, logger: logger, now: time.Now}
}

// GetSecret reads a JSON secret file, or a plain text one as its value
func (m *LocalStore) GetSecret(_ context.Context, path string) (*ports.Secret, error) {
	filePath, err := m.resolve(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read secret %s: %w", path, err)
	}

	var stored localSecret
	if err := json.Unmarshal(data, &stored); err == nil && stored.Value != "" {
		return &ports.Secret{
			Value:     stored.Value,
			Version:   "v1",
			Metadata:  stored.Tags,
			CreatedAt: stored.CreatedAt,
		}, nil
	}
	return &ports.Secret{Value: strings.TrimSpace(string(data)), Version: "v1"}, nil
}

// PutSecret stores the secret as JSON with mode 0600
func (m *LocalStore) PutSecret(_ context.Context, path, value string, metadata map[string]string) (string, error) {
	filePath, err := m.resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return "", fmt.Errorf("create secret directory: %w", err)
	}

	data, err := json.MarshalIndent(localSecret{
		Value:     value,
		Tags:      metadata,
		CreatedAt: m.now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal secret: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0o600); err != nil {
		return "", fmt.Errorf("write secret %s: %w", path, err)
	}

	m.logger.Info("Stored secret on filesystem", zap.String("path", path))
	return "v1", nil
}

// resolve keeps path inside the base directory
func (m *LocalStore) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + path)
	if clean == "/" {
		return "", fmt.Errorf("empty secret path")
	}
	return filepath.Join(m.basePath, clean), nil
}
