package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Esewa    EsewaConfig
	Ledger   LedgerConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	DBName      string
	SSLMode     string
	AutoMigrate bool

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// EsewaConfig holds merchant credentials and endpoints for the eSewa gateway.
type EsewaConfig struct {
	MerchantCode string
	FormURL      string
	VerifyURL    string
	SuccessURL   string // Empty means derive from the request host.
	FailureURL   string
	HTTPTimeout  time.Duration
}

// LedgerConfig holds payment intent lifecycle settings.
type LedgerConfig struct {
	TransactionPrefix string
	MaxVerifyAttempts int
	IntentTimeout     time.Duration
	VerifyTimeout     time.Duration
	AutoVerify        bool
	SweepInterval     time.Duration
	SweepBatchSize    int
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level       string
	Development bool
}

// Load loads configuration from environment variables, reading a .env file first if present.
func Load() *Config {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnv("DB_PORT", "5432"),
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", "postgres"),
			DBName:      getEnv("DB_NAME", "paygate"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			AutoMigrate: getBoolEnv("DB_AUTO_MIGRATE", true),

			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getDurationEnv("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "paygate"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Esewa: EsewaConfig{
			MerchantCode: getEnv("ESEWA_MERCHANT_ID", "EPAYTEST"),
			FormURL:      getEnv("ESEWA_BASE_URL", "https://uat.esewa.com.np/epay/main"),
			VerifyURL:    getEnv("ESEWA_VERIFY_URL", "https://uat.esewa.com.np/epay/transrec"),
			SuccessURL:   getEnv("ESEWA_SUCCESS_URL", ""),
			FailureURL:   getEnv("ESEWA_FAILURE_URL", ""),
			HTTPTimeout:  getDurationEnv("ESEWA_HTTP_TIMEOUT", 15*time.Second),
		},
		Ledger: LedgerConfig{
			TransactionPrefix: getEnv("LEDGER_TRANSACTION_PREFIX", "PLT"),
			MaxVerifyAttempts: getIntEnv("LEDGER_MAX_VERIFY_ATTEMPTS", 3),
			IntentTimeout:     getDurationEnv("LEDGER_INTENT_TIMEOUT", 15*time.Minute),
			VerifyTimeout:     getDurationEnv("LEDGER_VERIFY_TIMEOUT", 10*time.Second),
			AutoVerify:        getBoolEnv("LEDGER_AUTO_VERIFY", true),
			SweepInterval:     getDurationEnv("LEDGER_SWEEP_INTERVAL", time.Minute),
			SweepBatchSize:    getIntEnv("LEDGER_SWEEP_BATCH_SIZE", 100),
		},
		Log: LogConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnv("ENV", "development") == "development",
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
