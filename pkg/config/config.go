package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	EnvPrefix = "BYTEVAULT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "BYTEVAULT_DB_DSN"
	EnvDBHost = "BYTEVAULT_DB_HOST"
	EnvDBUser = "BYTEVAULT_DB_USER"
	EnvDBName = "BYTEVAULT_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	JWT     JWTConfig
	Billing BillingConfig
	Stripe  StripeConfig
	Webhook WebhookConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Billing.Rate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BYTEVAULT_APP_ENV" required:"true"`
	Port         string `envconfig:"BYTEVAULT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BYTEVAULT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BYTEVAULT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"BYTEVAULT_DB_DSN"`
	Driver string `envconfig:"BYTEVAULT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BYTEVAULT_DB_HOST"`
	LegacyPort     int    `envconfig:"BYTEVAULT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BYTEVAULT_DB_USER"`
	LegacyPassword string `envconfig:"BYTEVAULT_DB_PASSWORD"`
	LegacyName     string `envconfig:"BYTEVAULT_DB_NAME"`
	LegacySSLMode  string `envconfig:"BYTEVAULT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BYTEVAULT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BYTEVAULT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BYTEVAULT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BYTEVAULT_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"BYTEVAULT_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BYTEVAULT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BYTEVAULT_REDIS_ADDR"`
	Password     string        `envconfig:"BYTEVAULT_REDIS_PASSWORD"`
	DB           int           `envconfig:"BYTEVAULT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BYTEVAULT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BYTEVAULT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BYTEVAULT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BYTEVAULT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BYTEVAULT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"BYTEVAULT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"BYTEVAULT_JWT_ISSUER" required:"true"`
}

// BillingConfig carries the metering rate and checkout floor. The rate is a
// decimal string so exaggerated test rates survive without float drift.
type BillingConfig struct {
	RatePerBytePerSecond string `envconfig:"BYTEVAULT_BILLING_RATE" default:"0.000000001"`
	MinimumChargeUSD     string `envconfig:"BYTEVAULT_BILLING_MINIMUM_CHARGE" default:"0.50"`
	Currency             string `envconfig:"BYTEVAULT_BILLING_CURRENCY" default:"usd"`
}

// Rate parses the configured cost-per-byte-per-second.
func (b BillingConfig) Rate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(b.RatePerBytePerSecond))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing billing rate %q: %w", b.RatePerBytePerSecond, err)
	}
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("billing rate must be non-negative, got %s", rate)
	}
	return rate, nil
}

// MinimumCharge parses the configured checkout floor in dollars.
func (b BillingConfig) MinimumCharge() (decimal.Decimal, error) {
	floor, err := decimal.NewFromString(strings.TrimSpace(b.MinimumChargeUSD))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing minimum charge %q: %w", b.MinimumChargeUSD, err)
	}
	if floor.IsNegative() {
		return decimal.Zero, fmt.Errorf("minimum charge must be non-negative, got %s", floor)
	}
	return floor, nil
}

type StripeConfig struct {
	APIKey     string `envconfig:"BYTEVAULT_STRIPE_API_KEY"`
	Secret     string `envconfig:"BYTEVAULT_STRIPE_SECRET"`
	Env        string `envconfig:"BYTEVAULT_STRIPE_ENV" default:"test"`
	SuccessURL string `envconfig:"BYTEVAULT_STRIPE_SUCCESS_URL" default:"http://localhost:8080/success?session_id={CHECKOUT_SESSION_ID}"`
	CancelURL  string `envconfig:"BYTEVAULT_STRIPE_CANCEL_URL" default:"http://localhost:8080/cancel"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"BYTEVAULT_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
	VerifyTimeout  time.Duration `envconfig:"BYTEVAULT_WEBHOOK_VERIFY_TIMEOUT" default:"10s"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
