package ports

import "context"

// Secret is a retrieved secret value with its version
type Secret struct {
	Metadata  map[string]string
	Value     string
	Version   string
	CreatedAt string
}

// SecretStore reads collaborator credentials and signing keys.
// GetSecret returns ErrNotFound when the path does not exist.
type SecretStore interface {
	GetSecret(ctx context.Context, path string) (*Secret, error)
	PutSecret(ctx context.Context, path, value string, metadata map[string]string) (version string, err error)
}
