package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	LedgerRedis  = "redis"
	LedgerMemory = "memory"

	minTokenSecret = 16
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string

	// Tickets and gates
	TokenSecret        string
	GateAPIKey         string
	LedgerBackend      string
	MaxTicketsPerOrder int

	// Timeout configuration
	PaymentTimeout time.Duration
	StoreTimeout   time.Duration

	// Persistence retries after capacity is granted
	PersistRetries      int
	PersistRetryBackoff time.Duration

	// Scans allowed per gate per minute
	GateRateLimit int

	// Monitoring
	EnableMetrics   bool
	MetricsPort     string
	MetricsInterval time.Duration

	// Bank
	PaymentProvider string
	JDB             JDBConfig
	LDB             LDBConfig
}

type JDBConfig struct {
	BaseURL     string
	PartnerID   string
	ClientID    string
	ClientKey   string
	HMACKey     string
	PNSubKey    string
	PNSecretKey string
	PNUUID      string
	PNChannel   string
	PNCipherKey string
}

type LDBConfig struct {
	BaseURL        string
	AccessTokenURL string
	ClientID       string
	ClientSecret   string
	PartnerID      string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "ticket-inventory"),

		// Tickets and gates
		TokenSecret:        getEnv("TOKEN_SECRET", ""),
		GateAPIKey:         getEnv("GATE_API_KEY", ""),
		LedgerBackend:      getEnv("LEDGER_BACKEND", LedgerRedis),
		MaxTicketsPerOrder: getEnvAsInt("MAX_TICKETS_PER_ORDER", 10),

		// Timeouts
		PaymentTimeout: getEnvAsDuration("PAYMENT_TIMEOUT", "5s"),
		StoreTimeout:   getEnvAsDuration("STORE_TIMEOUT", "2s"),

		PersistRetries:      getEnvAsInt("PERSIST_RETRIES", 3),
		PersistRetryBackoff: getEnvAsDuration("PERSIST_RETRY_BACKOFF", "100ms"),

		GateRateLimit: getEnvAsInt("GATE_RATE_LIMIT", 600),

		// Monitoring
		EnableMetrics:   getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:     getEnv("METRICS_PORT", "9090"),
		MetricsInterval: getEnvAsDuration("METRICS_INTERVAL", "30s"),

		// Bank
		PaymentProvider: getEnv("PAYMENT_PROVIDER", "none"),
		JDB: JDBConfig{
			BaseURL:     getEnv("JDB_BASE_URL", ""),
			PartnerID:   getEnv("JDB_PARTNER_ID", ""),
			ClientID:    getEnv("JDB_CLIENT_ID", ""),
			ClientKey:   getEnv("JDB_CLIENT_KEY", ""),
			HMACKey:     getEnv("JDB_HMAC_KEY", ""),
			PNSubKey:    getEnv("JDB_PN_SUBSCRIBE_KEY", ""),
			PNSecretKey: getEnv("JDB_PN_SECRET_KEY", ""),
			PNUUID:      getEnv("JDB_PN_UUID", ""),
			PNChannel:   getEnv("JDB_PN_CHANNEL", ""),
			PNCipherKey: getEnv("JDB_PN_CIPHER_KEY", ""),
		},
		LDB: LDBConfig{
			BaseURL:        getEnv("LDB_BASE_URL", ""),
			AccessTokenURL: getEnv("LDB_ACCESS_TOKEN_URL", ""),
			ClientID:       getEnv("LDB_CLIENT_ID", ""),
			ClientSecret:   getEnv("LDB_CLIENT_SECRET", ""),
			PartnerID:      getEnv("LDB_PARTNER_ID", ""),
		},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Validate reports configuration that would make the service unsafe to run.
func (c *Config) Validate() error {
	var errs []error

	if len(c.TokenSecret) < minTokenSecret {
		if !c.IsDevelopment() {
			errs = append(errs, fmt.Errorf("TOKEN_SECRET must be at least %d bytes", minTokenSecret))
		}
	}
	if c.GateAPIKey == "" && !c.IsDevelopment() {
		errs = append(errs, errors.New("GATE_API_KEY is required"))
	}
	if c.LedgerBackend != LedgerRedis && c.LedgerBackend != LedgerMemory {
		errs = append(errs, fmt.Errorf("LEDGER_BACKEND must be %q or %q", LedgerRedis, LedgerMemory))
	}
	if c.MaxTicketsPerOrder <= 0 {
		errs = append(errs, errors.New("MAX_TICKETS_PER_ORDER must be positive"))
	}
	if c.PersistRetries < 0 {
		errs = append(errs, errors.New("PERSIST_RETRIES must not be negative"))
	}
	switch c.PaymentProvider {
	case "none", "jdb", "ldb":
	default:
		errs = append(errs, fmt.Errorf("unsupported PAYMENT_PROVIDER %q", c.PaymentProvider))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
