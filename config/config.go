package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"givevault/database"
	"givevault/models"

	"github.com/joho/godotenv"
)

// Storage backends
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Event sinks
const (
	SinkNone  = "none"
	SinkLog   = "log"
	SinkNATS  = "nats"
	SinkKafka = "kafka"
)

// Config holds all application configuration
type Config struct {
	// Environment
	Environment string // "development", "production" or "test"
	LogLevel    string

	// Storage
	Storage      string
	DatabaseURL  string
	DatabaseName string

	// Vault identity and roles
	VaultID            string
	VaultAddress       models.Address
	VaultAsset         string
	AdminAddress       models.Address
	BeneficiaryAddress models.Address
	ForwarderAddress   models.Address
	ModuleAddress      models.Address
	KeeperAddress      models.Address

	// Yield module
	ModuleRateBps   int64
	HarvestInterval time.Duration // zero disables the keeper

	// HTTP
	HTTPAddr      string
	FaucetEnabled bool // exposes POST /faucet for issuing test funds

	// Event sinks
	EventSink    string
	NATSServers  string
	KafkaBrokers []string
	KafkaTopic   string

	// Observability
	OTelEnabled        bool
	OTelServiceName    string
	OTelExportInterval time.Duration
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = Load()
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	})
	return instance
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// Load reads configuration from the environment, after merging a .env file when present
func Load() (*Config, error) {
	// A missing .env file is normal outside local development
	_ = godotenv.Load()

	config := &Config{
		Environment: getEnvWithDefault("ENVIRONMENT", "development"),
		LogLevel:    getEnvWithDefault("LOG_LEVEL", "info"),

		Storage:      getEnvWithDefault("STORAGE", StoragePostgres),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),

		VaultID:            getEnvWithDefault("VAULT_ID", "default"),
		VaultAddress:       models.NewAddress(getEnvWithDefault("VAULT_ADDRESS", "vault")),
		VaultAsset:         getEnvWithDefault("VAULT_ASSET", "usdc"),
		AdminAddress:       models.NewAddress(os.Getenv("ADMIN_ADDRESS")),
		BeneficiaryAddress: models.NewAddress(os.Getenv("BENEFICIARY_ADDRESS")),
		ForwarderAddress:   models.NewAddress(getEnvWithDefault("FORWARDER_ADDRESS", "forwarder")),
		ModuleAddress:      models.NewAddress(getEnvWithDefault("MODULE_ADDRESS", "module")),
		KeeperAddress:      models.NewAddress(getEnvWithDefault("KEEPER_ADDRESS", "keeper")),

		ModuleRateBps:   500,
		HarvestInterval: time.Hour,

		HTTPAddr: getEnvWithDefault("HTTP_ADDR", ":8080"),

		EventSink:   getEnvWithDefault("EVENT_SINK", SinkLog),
		NATSServers: getEnvWithDefault("NATS_SERVERS", "nats://nats:4222"),
		KafkaTopic:  getEnvWithDefault("KAFKA_TOPIC", "vault_records"),

		OTelEnabled:        os.Getenv("OTEL_ENABLED") == "true",
		OTelServiceName:    getEnvWithDefault("OTEL_SERVICE_NAME", "givevault"),
		OTelExportInterval: time.Minute,
	}

	if rate := os.Getenv("MODULE_RATE_BPS"); rate != "" {
		parsed, err := strconv.ParseInt(rate, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid MODULE_RATE_BPS %q: %w", rate, err)
		}
		config.ModuleRateBps = parsed
	}
	if interval := os.Getenv("HARVEST_INTERVAL"); interval != "" {
		parsed, err := time.ParseDuration(interval)
		if err != nil {
			return nil, fmt.Errorf("invalid HARVEST_INTERVAL %q: %w", interval, err)
		}
		config.HarvestInterval = parsed
	}
	if interval := os.Getenv("OTEL_EXPORT_INTERVAL"); interval != "" {
		parsed, err := time.ParseDuration(interval)
		if err != nil {
			return nil, fmt.Errorf("invalid OTEL_EXPORT_INTERVAL %q: %w", interval, err)
		}
		config.OTelExportInterval = parsed
	}
	config.FaucetEnabled = !config.IsProduction()
	if faucet := os.Getenv("FAUCET_ENABLED"); faucet != "" {
		parsed, err := strconv.ParseBool(faucet)
		if err != nil {
			return nil, fmt.Errorf("invalid FAUCET_ENABLED %q: %w", faucet, err)
		}
		config.FaucetEnabled = parsed
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, broker := range strings.Split(brokers, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				config.KafkaBrokers = append(config.KafkaBrokers, broker)
			}
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks required settings and value ranges
func (c *Config) Validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for %s storage", c.Storage)
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE %q", c.Storage)
	}

	roles := map[string]models.Address{
		"VAULT_ADDRESS":       c.VaultAddress,
		"ADMIN_ADDRESS":       c.AdminAddress,
		"BENEFICIARY_ADDRESS": c.BeneficiaryAddress,
		"FORWARDER_ADDRESS":   c.ForwarderAddress,
		"MODULE_ADDRESS":      c.ModuleAddress,
		"KEEPER_ADDRESS":      c.KeeperAddress,
	}
	for key, addr := range roles {
		if addr.IsZero() {
			return fmt.Errorf("%s is required", key)
		}
	}
	if strings.TrimSpace(c.VaultID) == "" {
		return fmt.Errorf("VAULT_ID is required")
	}
	if c.ModuleRateBps < 0 {
		return fmt.Errorf("MODULE_RATE_BPS must not be negative")
	}
	if c.HarvestInterval < 0 {
		return fmt.Errorf("HARVEST_INTERVAL must not be negative")
	}
	if c.OTelEnabled && c.OTelExportInterval <= 0 {
		return fmt.Errorf("OTEL_EXPORT_INTERVAL must be positive")
	}

	switch c.EventSink {
	case SinkNone, SinkLog:
	case SinkNATS:
		if c.NATSServers == "" {
			return fmt.Errorf("NATS_SERVERS is required for the nats sink")
		}
	case SinkKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required for the kafka sink")
		}
	default:
		return fmt.Errorf("unknown EVENT_SINK %q", c.EventSink)
	}

	return nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Test helpers - only use in tests

// SetForTesting overrides the global config instance
func SetForTesting(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetForTesting clears the global config instance and its sync.Once
func ResetForTesting() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a valid in-memory configuration for unit tests
func NewTestConfig() *Config {
	return &Config{
		Environment:        "test",
		LogLevel:           "debug",
		Storage:            StorageMemory,
		VaultID:            "test-vault",
		VaultAddress:       "vault",
		VaultAsset:         "usdc",
		AdminAddress:       "admin",
		BeneficiaryAddress: "charity",
		ForwarderAddress:   "forwarder",
		ModuleAddress:      "module",
		KeeperAddress:      "keeper",
		ModuleRateBps:      500,
		HTTPAddr:           ":0",
		FaucetEnabled:      true,
		EventSink:          SinkNone,
		OTelServiceName:    "givevault-test",
		OTelExportInterval: time.Second,
	}
}
