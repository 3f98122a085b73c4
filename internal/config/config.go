package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/revshare/pkg/money"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis    RedisConfig
	Billing  BillingConfig
	Intake   IntakeConfig
	Dispatch DispatchConfig
	Stripe   StripeConfig

	SchedulerEnabled     bool
	RoyaltyTriggerSecret string
	SeedDevTenants       bool
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// BillingConfig carries the network-wide rates. Royalty and success fee are
// independent shares of the same recovered amount.
type BillingConfig struct {
	RoyaltyRate    decimal.Decimal
	SuccessFeeRate decimal.Decimal
	Currency       string
}

type IntakeConfig struct {
	SigningSecret      string
	SignatureTolerance time.Duration
	RateLimitEnabled   bool
	RateLimitPerSecond float64
	RateLimitBurst     int
}

type DispatchConfig struct {
	Timeout     time.Duration
	MaxAttempts int
	SweepGrace  time.Duration
}

type StripeConfig struct {
	SecretKey string
}

var ErrInvalidConfig = errors.New("invalid_config")

// Load loads configuration from environment variables and .env file. A
// present but malformed billing rate fails the load instead of defaulting.
func Load() (Config, error) {
	_ = godotenv.Load()

	royaltyRate, err := getenvShare("ROYALTY_RATE", "0.20")
	if err != nil {
		return Config{}, err
	}
	successFeeRate, err := getenvShare("SUCCESS_FEE_RATE", "0.15")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "revshare"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "revshare"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 1800)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 300)),
		Redis: RedisConfig{
			Enabled:  getenvBool("REDIS_ENABLED", false),
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},
		Billing: BillingConfig{
			RoyaltyRate:    royaltyRate,
			SuccessFeeRate: successFeeRate,
			Currency:       strings.ToLower(getenv("BILLING_CURRENCY", "usd")),
		},
		Intake: IntakeConfig{
			SigningSecret:      strings.TrimSpace(getenv("INTAKE_SIGNING_SECRET", "")),
			SignatureTolerance: getenvDuration("INTAKE_SIGNATURE_TOLERANCE", 5*time.Minute),
			RateLimitEnabled:   getenvBool("INTAKE_RATE_LIMIT_ENABLED", false),
			RateLimitPerSecond: getenvFloat("INTAKE_RATE_LIMIT_PER_SECOND", 50),
			RateLimitBurst:     int(getenvInt64("INTAKE_RATE_LIMIT_BURST", 100)),
		},
		Dispatch: DispatchConfig{
			Timeout:     getenvDuration("DISPATCH_TIMEOUT", 10*time.Second),
			MaxAttempts: int(getenvInt64("DISPATCH_MAX_ATTEMPTS", 3)),
			SweepGrace:  getenvDuration("DISPATCH_SWEEP_GRACE", 2*time.Minute),
		},
		Stripe: StripeConfig{
			SecretKey: strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
		},
		SchedulerEnabled:     getenvBool("SCHEDULER_ENABLED", true),
		RoyaltyTriggerSecret: strings.TrimSpace(getenv("ROYALTY_TRIGGER_SECRET", "")),
		SeedDevTenants:       getenvBool("SEED_DEV_TENANTS", false),
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

// getenvShare reads a fraction of the recovered amount, so it must lie in
// [0, 1]. An unset key takes def.
func getenvShare(key, def string) (decimal.Decimal, error) {
	raw := getenv(key, def)
	rate, err := money.ParseRate(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s=%q: %w", ErrInvalidConfig, key, raw, err)
	}
	if rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%w: %s=%q exceeds 1", ErrInvalidConfig, key, raw)
	}
	return rate, nil
}
