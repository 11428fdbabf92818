package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var defaultAggregatorProcessors = []string{
	"Datafast Processor",
	"Credimatic Processor",
	"Niubiz Processor",
	"Transbank Processor",
	"Redeban Processor",
	ProcessorKushkiAcquirer,
}

// Config holds all application configuration. It is built once at start and never re-read.
type Config struct {
	Server       ServerConfig
	Store        StoreConfig
	Database     DatabaseConfig
	Collaborator CollaboratorConfig
	Secrets      SecretsConfig
	Logger       LoggerConfig
	RateLimit    RateLimitConfig
	Policy       *Policy
}

// ServerConfig holds gRPC, REST and ops listener configuration
type ServerConfig struct {
	Host     string
	GRPCPort int
	HTTPPort int
	OpsPort  int
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Driver   string // postgres or bolt
	BoltPath string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// CollaboratorConfig holds the endpoints of external collaborators
type CollaboratorConfig struct {
	AggregatorURL    string
	RuleEngineURL    string
	AntifraudURL     string
	ReceivableURL    string
	ConversionURL    string
	AlertingURL      string
	BinLookupURL     string
	EventBusURL      string
	MerchantCacheTTL time.Duration
	// DirectProcessors maps processor names to ISO 8583 host:port addresses
	DirectProcessors map[string]string
	APIKeySecretPath string
	// EventSecretPath names the secret used to sign published events
	EventSecretPath string

	// AggregatorProcessors are the processors reached through the aggregator
	AggregatorProcessors []string
}

// SecretsConfig selects where collaborator credentials come from
type SecretsConfig struct {
	Backend     string // aws, vault or local
	AWSRegion   string
	AWSEndpoint string
	VaultAddr   string
	VaultToken  string
	VaultMount  string
	LocalPath   string
	CacheTTL    time.Duration
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// RateLimitConfig holds REST rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// Load builds the configuration from environment variables and the policy file
func Load() (*Config, error) {
	cfg := LoadFromEnv()

	policy, err := LoadPolicy(getEnv("POLICY_FILE", ""))
	if err != nil {
		return nil, err
	}
	cfg.Policy = policy

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv loads the non-policy configuration from environment variables
func LoadFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			GRPCPort: getEnvAsInt("GRPC_PORT", 50051),
			HTTPPort: getEnvAsInt("HTTP_PORT", 8080),
			OpsPort:  getEnvAsInt("OPS_PORT", 9090),
		},
		Store: StoreConfig{
			Driver:   getEnv("STORE_DRIVER", "postgres"),
			BoltPath: getEnv("BOLT_PATH", "orchestrator.db"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "transaction_orchestrator"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		},
		Collaborator: CollaboratorConfig{
			AggregatorURL:    getEnv("AGGREGATOR_URL", "http://localhost:8081"),
			RuleEngineURL:    getEnv("RULE_ENGINE_URL", "http://localhost:8082"),
			AntifraudURL:     getEnv("ANTIFRAUD_URL", "http://localhost:8083"),
			ReceivableURL:    getEnv("RECEIVABLE_URL", "http://localhost:8084"),
			ConversionURL:    getEnv("CONVERSION_URL", "http://localhost:8085"),
			AlertingURL:      getEnv("ALERTING_URL", ""),
			BinLookupURL:     getEnv("BIN_LOOKUP_URL", "http://localhost:8086"),
			EventBusURL:      getEnv("EVENT_BUS_URL", "http://localhost:8087"),
			MerchantCacheTTL: getEnvAsDuration("MERCHANT_CACHE_TTL", 5*time.Minute),
			DirectProcessors: getEnvAsMap("DIRECT_PROCESSORS"),
			APIKeySecretPath: getEnv("API_KEY_SECRET_PATH", "transaction-orchestrator/collaborators/api-key"),
			EventSecretPath:  getEnv("EVENT_SECRET_PATH", "transaction-orchestrator/events/signing-key"),

			AggregatorProcessors: getEnvAsSlice("AGGREGATOR_PROCESSORS", defaultAggregatorProcessors),
		},
		Secrets: SecretsConfig{
			Backend:     getEnv("SECRETS_BACKEND", "local"),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			AWSEndpoint: getEnv("AWS_SECRETS_ENDPOINT", ""),
			VaultAddr:   getEnv("VAULT_ADDR", "http://localhost:8200"),
			VaultToken:  getEnv("VAULT_TOKEN", ""),
			VaultMount:  getEnv("VAULT_MOUNT", "secret"),
			LocalPath:   getEnv("SECRETS_LOCAL_PATH", "./secrets"),
			CacheTTL:    getEnvAsDuration("SECRETS_CACHE_TTL", 5*time.Minute),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsInt("RATE_LIMIT_RPS", 100),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 200),
		},
	}
}

// Validate checks required fields
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres":
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required")
		}
	case "bolt":
		if c.Store.BoltPath == "" {
			return fmt.Errorf("BOLT_PATH is required")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Policy == nil {
		return fmt.Errorf("policy is required")
	}
	return c.Policy.Validate()
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsMap parses "name=value,name2=value2"
func getEnvAsMap(key string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(os.Getenv(key), ",") {
		if name, value, ok := strings.Cut(strings.TrimSpace(pair), "="); ok && name != "" {
			out[name] = value
		}
	}
	return out
}

// getEnvAsSlice parses a comma separated list, dropping empty entries
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
