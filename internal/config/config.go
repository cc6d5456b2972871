package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the server
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Auth      AuthConfig
	Logging   LoggingConfig
	RateLimit RateLimitConfig
	Metrics   MetricsConfig
	Protocol  ProtocolConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ReadTimeout    int // seconds
	WriteTimeout   int // seconds
	IdleTimeout    int // seconds
	RequestTimeout int // seconds
	MaxBodySizeKB  int
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type     string // "sqlite" or "postgres"
	Postgres PostgresConfig
	SQLite   SQLiteConfig
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	Type string // "none" or "api-key"
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
	CleanupMinutes int
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled     bool
	Port        int
	ServiceName string
}

// ProtocolConfig holds the settings a fresh pool is created with. They are
// only read when the store has no state yet; afterwards limits and fees
// change through governance calls.
type ProtocolConfig struct {
	WithdrawalQueueAddress string
	BurnerAddress          string
	TreasuryAddress        string
	ModuleAddress          string
	TreasuryFeeBP          uint64
	ModuleFeeBP            uint64
	QueuePaused            bool

	ChurnValidatorsPerDayLimit         uint64
	OneOffCLBalanceDecreaseBPLimit     uint64
	AnnualBalanceIncreaseBPLimit       uint64
	SimulatedShareRateDeviationBPLimit uint64
	MaxPositiveTokenRebase             uint64
	RequestTimestampMargin             uint64 // seconds
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvInt("PORT", 8080),
			Host:           getEnv("HOST", "0.0.0.0"),
			ReadTimeout:    getEnvInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout:   getEnvInt("SERVER_WRITE_TIMEOUT", 60),
			IdleTimeout:    getEnvInt("SERVER_IDLE_TIMEOUT", 120),
			RequestTimeout: getEnvInt("SERVER_REQUEST_TIMEOUT", 30),
			MaxBodySizeKB:  getEnvInt("SERVER_MAX_BODY_SIZE_KB", 1024),
		},
		Storage: StorageConfig{
			Type: getEnv("STORAGE_TYPE", "sqlite"),
			Postgres: PostgresConfig{
				URL: getEnv("DATABASE_URL", ""),
			},
			SQLite: SQLiteConfig{
				Path: getEnv("SQLITE_PATH", "./data/poolkeeper.db"),
			},
		},
		Auth: AuthConfig{
			Type: getEnv("AUTH_TYPE", "api-key"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin: getEnvInt("RATE_LIMIT_RPM", 300),
			BurstSize:      getEnvInt("RATE_LIMIT_BURST", 50),
			CleanupMinutes: getEnvInt("RATE_LIMIT_CLEANUP_MINUTES", 10),
		},
		Metrics: MetricsConfig{
			Enabled:     getEnvBool("METRICS_ENABLED", true),
			Port:        getEnvInt("METRICS_PORT", 9090),
			ServiceName: getEnv("METRICS_SERVICE_NAME", "poolkeeper"),
		},
		Protocol: ProtocolConfig{
			WithdrawalQueueAddress: getEnv("PROTOCOL_WITHDRAWAL_QUEUE_ADDRESS", "0x889edC2eDab5f40e902b864aD4d7AdE8E412F9B1"),
			BurnerAddress:          getEnv("PROTOCOL_BURNER_ADDRESS", "0xD15a672319Cf0352560eE76d9e89eAB0889046D3"),
			TreasuryAddress:        getEnv("PROTOCOL_TREASURY_ADDRESS", "0x3e40D73EB977Dc6a537aF587D48316feE66E9C4c"),
			ModuleAddress:          getEnv("PROTOCOL_MODULE_ADDRESS", "0xFdDf38947aFB03C621C71b06C9C70bce73f12999"),
			TreasuryFeeBP:          getEnvUint64("PROTOCOL_TREASURY_FEE_BP", 500),
			ModuleFeeBP:            getEnvUint64("PROTOCOL_MODULE_FEE_BP", 500),
			QueuePaused:            getEnvBool("PROTOCOL_QUEUE_PAUSED", false),

			ChurnValidatorsPerDayLimit:         getEnvUint64("SANITY_CHURN_VALIDATORS_PER_DAY", 255),
			OneOffCLBalanceDecreaseBPLimit:     getEnvUint64("SANITY_ONE_OFF_CL_DECREASE_BP", 100),
			AnnualBalanceIncreaseBPLimit:       getEnvUint64("SANITY_ANNUAL_INCREASE_BP", 10000),
			SimulatedShareRateDeviationBPLimit: getEnvUint64("SANITY_SHARE_RATE_DEVIATION_BP", 15),
			MaxPositiveTokenRebase:             getEnvUint64("SANITY_MAX_POSITIVE_TOKEN_REBASE", 1_000_000_000),
			RequestTimestampMargin:             getEnvUint64("SANITY_REQUEST_TIMESTAMP_MARGIN", 24),
		},
	}

	// If DATABASE_URL is set, default to postgres
	if cfg.Storage.Postgres.URL != "" && cfg.Storage.Type == "sqlite" {
		cfg.Storage.Type = "postgres"
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if u, err := strconv.ParseUint(value, 10, 64); err == nil {
			return u
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}
