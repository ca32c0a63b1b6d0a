// Package config provides configuration management for the wallet insight service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	Providers ProvidersConfig
	Policy    PolicyConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string
	Host           string
	RequestTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration. History is disabled when
// Enabled is false.
type ClickHouseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// CacheConfig holds snapshot cache configuration
type CacheConfig struct {
	Backend         string // "postgres" or "redis"
	FreshnessWindow time.Duration
	SpotPriceTTL    time.Duration
}

// ProvidersConfig holds upstream API configuration
type ProvidersConfig struct {
	Etherscan     EtherscanConfig
	Moralis       MoralisConfig
	CryptoCompare CryptoCompareConfig
	RPC           map[string]RPCConfig
}

// EtherscanConfig holds Etherscan API configuration
type EtherscanConfig struct {
	APIKey   string
	BaseURL  string
	PageSize int
}

// MoralisConfig holds Moralis API configuration
type MoralisConfig struct {
	APIKey            string
	BaseURL           string
	RequestsPerSecond float64
}

// CryptoCompareConfig holds CryptoCompare API configuration
type CryptoCompareConfig struct {
	APIKey            string
	BaseURL           string
	RequestsPerSecond float64
}

// RPCConfig holds JSON-RPC endpoints for a chain
type RPCConfig struct {
	Primary   string
	Secondary string
}

// PolicyConfig holds the tunable product policy values
type PolicyConfig struct {
	ValuationTopN           int
	PerformanceTopN         int
	TransferWindow          int
	MaxSymbolLength         int
	HistoricalPriceInterval time.Duration
	SpotBatchSize           int
	TransactionListLimit    int
}

// RateLimitConfig holds inbound API rate limiting configuration and the
// shared per-provider call budgets
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	// ProviderBudgets caps upstream calls per second across replicas, keyed
	// by provider name. Enforced through Redis when non-empty.
	ProviderBudgets map[string]int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			RequestTimeout: getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "wallet_insight"),
				User:           getEnv("POSTGRES_USER", "wallet"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Enabled:  getEnvAsBool("CLICKHOUSE_ENABLED", false),
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "wallet_insight"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Cache: CacheConfig{
			Backend:         strings.ToLower(getEnv("CACHE_BACKEND", "postgres")),
			FreshnessWindow: getEnvAsDuration("CACHE_FRESHNESS_WINDOW", 5*time.Minute),
			SpotPriceTTL:    getEnvAsDuration("CACHE_SPOT_PRICE_TTL", 30*time.Second),
		},
		Providers: ProvidersConfig{
			Etherscan: EtherscanConfig{
				APIKey:   getEnv("ETHERSCAN_API_KEY", ""),
				BaseURL:  getEnv("ETHERSCAN_BASE_URL", "https://api.etherscan.io/v2/api"),
				PageSize: getEnvAsInt("ETHERSCAN_PAGE_SIZE", 10000),
			},
			Moralis: MoralisConfig{
				APIKey:            getEnv("MORALIS_API_KEY", ""),
				BaseURL:           getEnv("MORALIS_BASE_URL", "https://deep-index.moralis.io/api/v2.2"),
				RequestsPerSecond: getEnvAsFloat("MORALIS_RPS", 20),
			},
			CryptoCompare: CryptoCompareConfig{
				APIKey:            getEnv("CRYPTOCOMPARE_API_KEY", ""),
				BaseURL:           getEnv("CRYPTOCOMPARE_BASE_URL", "https://min-api.cryptocompare.com"),
				RequestsPerSecond: getEnvAsFloat("CRYPTOCOMPARE_RPS", 20),
			},
			RPC: loadRPCConfigs(),
		},
		Policy: PolicyConfig{
			ValuationTopN:           getEnvAsInt("POLICY_VALUATION_TOP_N", 15),
			PerformanceTopN:         getEnvAsInt("POLICY_PERFORMANCE_TOP_N", 6),
			TransferWindow:          getEnvAsInt("POLICY_TRANSFER_WINDOW", 100),
			MaxSymbolLength:         getEnvAsInt("POLICY_MAX_SYMBOL_LENGTH", 6),
			HistoricalPriceInterval: getEnvAsDuration("POLICY_HISTORICAL_PRICE_INTERVAL", 75*time.Millisecond),
			SpotBatchSize:           getEnvAsInt("POLICY_SPOT_BATCH_SIZE", 30),
			TransactionListLimit:    getEnvAsInt("POLICY_TRANSACTION_LIST_LIMIT", 50),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 5),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 10),
			ProviderBudgets:   loadProviderBudgets(),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 7),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 7),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks policy values that would make the services misbehave
func (c *Config) Validate() error {
	if c.Cache.Backend != "postgres" && c.Cache.Backend != "redis" {
		return fmt.Errorf("CACHE_BACKEND must be postgres or redis, got %q", c.Cache.Backend)
	}
	if c.Cache.FreshnessWindow <= 0 {
		return fmt.Errorf("CACHE_FRESHNESS_WINDOW must be positive")
	}
	if c.Policy.ValuationTopN <= 0 || c.Policy.PerformanceTopN <= 0 {
		return fmt.Errorf("top-N policy values must be positive")
	}
	if c.Policy.TransferWindow <= 0 {
		return fmt.Errorf("POLICY_TRANSFER_WINDOW must be positive")
	}
	if c.Policy.MaxSymbolLength <= 0 {
		return fmt.Errorf("POLICY_MAX_SYMBOL_LENGTH must be positive")
	}
	return nil
}

// loadRPCConfigs loads JSON-RPC endpoints keyed by chain name
func loadRPCConfigs() map[string]RPCConfig {
	rpcs := make(map[string]RPCConfig)
	for _, chain := range []string{"ethereum", "polygon", "bnb"} {
		prefix := strings.ToUpper(chain)
		primary := getEnv(prefix+"_RPC_PRIMARY", "")
		if primary == "" {
			continue
		}
		rpcs[chain] = RPCConfig{
			Primary:   primary,
			Secondary: getEnv(prefix+"_RPC_SECONDARY", ""),
		}
	}
	return rpcs
}

// loadProviderBudgets reads BUDGET_<PROVIDER>_PER_SECOND for each upstream
func loadProviderBudgets() map[string]int {
	budgets := make(map[string]int)
	for _, provider := range []string{"moralis", "etherscan", "cryptocompare"} {
		if limit := getEnvAsInt("BUDGET_"+strings.ToUpper(provider)+"_PER_SECOND", 0); limit > 0 {
			budgets[provider] = limit
		}
	}
	return budgets
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
