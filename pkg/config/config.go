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
	EnvPrefix = "FFE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv              = "FFE_APP_ENV"
	EnvPort                = "FFE_APP_PORT"
	EnvDBDSN               = "FFE_DB_DSN"
	EnvDBHost              = "FFE_DB_HOST"
	EnvDBUser              = "FFE_DB_USER"
	EnvDBName              = "FFE_DB_NAME"
	EnvRedisURL            = "FFE_REDIS_URL"
	EnvGCPProjectID        = "FFE_GCP_PROJECT_ID"
	EnvPubSubDomainTopic   = "FFE_PUBSUB_DOMAIN_TOPIC"
	EnvPubSubTriggerSub    = "FFE_PUBSUB_TRIGGER_SUBSCRIPTION"
	EnvPaymentTolerance    = "FFE_PAYMENT_TOLERANCE"
	EnvDefaultCurrency     = "FFE_DEFAULT_CURRENCY"
	EnvPaymentIdempotentTT = "FFE_PAYMENT_IDEMPOTENCY_TTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Procurement  ProcurementConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Procurement.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FFE_APP_ENV" required:"true"`
	Port         string `envconfig:"FFE_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"FFE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FFE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"FFE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"FFE_DB_DSN"`

	LegacyHost     string `envconfig:"FFE_DB_HOST"`
	LegacyPort     int    `envconfig:"FFE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FFE_DB_USER"`
	LegacyPassword string `envconfig:"FFE_DB_PASSWORD"`
	LegacyName     string `envconfig:"FFE_DB_NAME"`
	LegacySSLMode  string `envconfig:"FFE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FFE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FFE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FFE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FFE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"FFE_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FFE_REDIS_URL"`
	Address      string        `envconfig:"FFE_REDIS_ADDR"`
	Password     string        `envconfig:"FFE_REDIS_PASSWORD"`
	DB           int           `envconfig:"FFE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FFE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FFE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FFE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FFE_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"FFE_REDIS_WRITE_TIMEOUT" default:"3s"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"FFE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DomainTopic         string        `envconfig:"FFE_PUBSUB_DOMAIN_TOPIC" default:"ffe-procurement-events"`
	TriggerSubscription string        `envconfig:"FFE_PUBSUB_TRIGGER_SUBSCRIPTION" default:"ffe-procurement-triggers"`
	IdempotencyTTL      time.Duration `envconfig:"FFE_PUBSUB_IDEMPOTENCY_TTL" default:"168h"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FFE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FFE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FFE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// ProcurementConfig carries the money rules of the engine.
type ProcurementConfig struct {
	PaymentTolerance      string        `envconfig:"FFE_PAYMENT_TOLERANCE" default:"0.00"`
	DefaultCurrency       string        `envconfig:"FFE_DEFAULT_CURRENCY" default:"USD"`
	PaymentIdempotencyTTL time.Duration `envconfig:"FFE_PAYMENT_IDEMPOTENCY_TTL" default:"168h"`
}

// Tolerance parses PaymentTolerance. Load has already validated it.
func (p ProcurementConfig) Tolerance() decimal.Decimal {
	tol, err := decimal.NewFromString(strings.TrimSpace(p.PaymentTolerance))
	if err != nil {
		return decimal.Zero
	}
	return tol
}

func (p ProcurementConfig) validate() error {
	tol, err := decimal.NewFromString(strings.TrimSpace(p.PaymentTolerance))
	if err != nil {
		return fmt.Errorf("%s: %w", EnvPaymentTolerance, err)
	}
	if tol.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvPaymentTolerance)
	}
	if strings.TrimSpace(p.DefaultCurrency) == "" {
		return fmt.Errorf("%s is required", EnvDefaultCurrency)
	}
	return nil
}

// CronConfig drives the maintenance worker.
type CronConfig struct {
	Interval            time.Duration `envconfig:"FFE_CRON_INTERVAL" default:"1h"`
	LockTTL             time.Duration `envconfig:"FFE_CRON_LOCK_TTL" default:"30m"`
	JobTimeout          time.Duration `envconfig:"FFE_CRON_JOB_TIMEOUT" default:"10m"`
	OutboxRetentionDays int           `envconfig:"FFE_OUTBOX_RETENTION_DAYS" default:"30"`
	PaymentSweepGrace   time.Duration `envconfig:"FFE_PAYMENT_SWEEP_GRACE" default:"10m"`
	PaymentSweepLimit   int           `envconfig:"FFE_PAYMENT_SWEEP_LIMIT" default:"100"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FFE_AUTO_MIGRATE" default:"false"`
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
