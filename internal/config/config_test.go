package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/transaction-orchestrator/internal/config"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg := config.LoadFromEnv()

	assert.Equal(t, 50051, cfg.Server.GRPCPort)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "local", cfg.Secrets.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Collaborator.MerchantCacheTTL)
	assert.Contains(t, cfg.Collaborator.AggregatorProcessors, config.ProcessorKushkiAcquirer)
	assert.Empty(t, cfg.Collaborator.DirectProcessors)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("GRPC_PORT", "6000")
	t.Setenv("HTTP_PORT", "not-a-number")
	t.Setenv("STORE_DRIVER", "bolt")
	t.Setenv("MERCHANT_CACHE_TTL", "30s")
	t.Setenv("DIRECT_PROCESSORS", "Datafast Processor=10.0.0.5:5000, Niubiz Processor=10.0.0.6:5000,broken")
	t.Setenv("AGGREGATOR_PROCESSORS", "Credimatic Processor, ,Redeban Processor")
	t.Setenv("LOG_DEVELOPMENT", "true")

	cfg := config.LoadFromEnv()

	assert.Equal(t, 6000, cfg.Server.GRPCPort)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "bolt", cfg.Store.Driver)
	assert.Equal(t, 30*time.Second, cfg.Collaborator.MerchantCacheTTL)
	assert.Equal(t, map[string]string{
		"Datafast Processor": "10.0.0.5:5000",
		"Niubiz Processor":   "10.0.0.6:5000",
	}, cfg.Collaborator.DirectProcessors)
	assert.Equal(t, []string{"Credimatic Processor", "Redeban Processor"}, cfg.Collaborator.AggregatorProcessors)
	assert.True(t, cfg.Logger.Development)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{name: "bolt store", mutate: func(c *config.Config) { c.Store.Driver = "bolt" }},
		{name: "postgres with password", mutate: func(c *config.Config) { c.Database.Password = "secret" }},
		{name: "postgres without password", mutate: func(c *config.Config) {}, wantErr: "DB_PASSWORD is required"},
		{name: "unknown driver", mutate: func(c *config.Config) { c.Store.Driver = "mysql" }, wantErr: "unknown STORE_DRIVER"},
		{name: "missing policy", mutate: func(c *config.Config) {
			c.Store.Driver = "bolt"
			c.Policy = nil
		}, wantErr: "policy is required"},
		{name: "bad policy", mutate: func(c *config.Config) {
			c.Store.Driver = "bolt"
			c.Policy.TokenMaxAge = 0
		}, wantErr: "tokenMaxAge must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.LoadFromEnv()
			cfg.Policy = config.DefaultPolicy()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tokenMaxAge: 10m
binDenylist: ["400000"]
voidTimeLimit:
  defaultDays: 180
  countries:
    Peru: 7
timeouts:
  external: 5s
  failoverSafetyThreshold: 10s
  defaultRequestBudget: 20s
`), 0o600))

	policy, err := config.LoadPolicy(path)
	require.NoError(t, err)
	require.NoError(t, policy.Validate())

	assert.Equal(t, 10*time.Minute, policy.TokenMaxAge)
	assert.True(t, policy.IsBinDenied("400000"))
	assert.Equal(t, 5*time.Second, policy.Timeouts.External)

	limit, ok := policy.VoidLimitFor(config.CountryPeru, "Niubiz Processor")
	assert.True(t, ok)
	assert.Equal(t, 7*24*time.Hour, limit)

	// untouched sections keep their defaults
	assert.Equal(t, "transactions", policy.Topics.Transactions)
	assert.True(t, policy.IsAlwaysDeferred(config.CountryMexico))

	_, err = config.LoadPolicy(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("tokenMaxAge: ["), 0o600))
	_, err = config.LoadPolicy(path)
	assert.ErrorContains(t, err, "parse policy file")
}
