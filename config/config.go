package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"fundledger/database"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// WithdrawalPolicy decides what a close does with a queued withdrawal that the
// live ownership balance no longer covers
type WithdrawalPolicy string

const (
	// WithdrawalPolicyAbort fails the whole close
	WithdrawalPolicyAbort WithdrawalPolicy = "abort"
	// WithdrawalPolicySkip leaves the request pending for a later close
	WithdrawalPolicySkip WithdrawalPolicy = "skip"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL  string
	DatabaseName string

	// Messaging configuration
	NATSURL           string
	NATSSubjectPrefix string

	// Observability
	MetricsAddr    string
	PushgatewayURL string
	LogLevel       string

	// Settlement configuration
	ReconciliationEpsilon decimal.Decimal
	WithdrawalPolicy      WithdrawalPolicy
	DefaultReportLimit    int
	AuditInterval         time.Duration

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the global configuration instance
func Get() *Config {
	once.Do(func() {
		var err error
		instance, err = load()
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

// load loads configuration from environment variables
func load() (*Config, error) {
	// A missing .env file is fine, the environment wins anyway
	_ = godotenv.Load()

	config := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),

		NATSURL:           os.Getenv("NATS_URL"),
		NATSSubjectPrefix: "fund",

		MetricsAddr:    ":9090",
		PushgatewayURL: os.Getenv("PUSHGATEWAY_URL"),
		LogLevel:       "info",

		ReconciliationEpsilon: decimal.New(1, -2), // 0.01
		WithdrawalPolicy:      WithdrawalPolicyAbort,
		DefaultReportLimit:    15,
		AuditInterval:         time.Hour,

		Environment: os.Getenv("ENVIRONMENT"),
	}

	if prefix := os.Getenv("NATS_SUBJECT_PREFIX"); prefix != "" {
		config.NATSSubjectPrefix = strings.TrimSuffix(prefix, ".")
	}
	if addr, ok := os.LookupEnv("METRICS_ADDR"); ok {
		config.MetricsAddr = addr
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.LogLevel = strings.ToLower(level)
	}

	if eps := os.Getenv("RECONCILIATION_EPSILON"); eps != "" {
		parsed, err := decimal.NewFromString(eps)
		if err != nil || parsed.IsNegative() {
			return nil, fmt.Errorf("invalid RECONCILIATION_EPSILON %q", eps)
		}
		config.ReconciliationEpsilon = parsed
	}

	if policy := os.Getenv("WITHDRAWAL_POLICY"); policy != "" {
		p, err := ParseWithdrawalPolicy(policy)
		if err != nil {
			return nil, err
		}
		config.WithdrawalPolicy = p
	}

	if limit := os.Getenv("DEFAULT_REPORT_LIMIT"); limit != "" {
		if parsedLimit, err := strconv.Atoi(limit); err == nil && parsedLimit > 0 {
			config.DefaultReportLimit = parsedLimit
		}
	}

	if interval := os.Getenv("AUDIT_INTERVAL"); interval != "" {
		parsed, err := time.ParseDuration(interval)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("invalid AUDIT_INTERVAL %q", interval)
		}
		config.AuditInterval = parsed
	}

	// Set default environment if not specified
	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	}

	return config, nil
}

// ParseWithdrawalPolicy parses a policy name, case-insensitively
func ParseWithdrawalPolicy(s string) (WithdrawalPolicy, error) {
	switch WithdrawalPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case WithdrawalPolicyAbort:
		return WithdrawalPolicyAbort, nil
	case WithdrawalPolicySkip:
		return WithdrawalPolicySkip, nil
	default:
		return "", fmt.Errorf("unknown withdrawal policy %q (want abort or skip)", s)
	}
}
