package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/biddart/biddart-backend/pkg/enums"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Square       SquareConfig
	Payments     PaymentsConfig
	Fees         FeesConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	API          APIConfig
}

// Load reads BIDDART_* variables and checks every section, reporting all
// problems at once.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.DB.DSN == "" {
		dsn, err := cfg.DB.legacyDSN()
		if err != nil {
			return nil, err
		}
		cfg.DB.DSN = dsn
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	return multierr.Combine(
		c.Payments.validate(),
		c.Fees.validate(),
		c.Outbox.validate(),
	)
}

type AppConfig struct {
	Env          string `envconfig:"BIDDART_APP_ENV" required:"true"`
	Port         string `envconfig:"BIDDART_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BIDDART_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"BIDDART_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"BIDDART_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"BIDDART_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BIDDART_DB_DSN"`
	Driver string `envconfig:"BIDDART_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BIDDART_DB_HOST"`
	LegacyPort     int    `envconfig:"BIDDART_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BIDDART_DB_USER"`
	LegacyPassword string `envconfig:"BIDDART_DB_PASSWORD"`
	LegacyName     string `envconfig:"BIDDART_DB_NAME"`
	LegacySSLMode  string `envconfig:"BIDDART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BIDDART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BIDDART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BIDDART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BIDDART_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"BIDDART_DB_SLOW_QUERY_THRESHOLD" default:"250ms"`
	TxMaxAttempts      int           `envconfig:"BIDDART_DB_TX_MAX_ATTEMPTS" default:"3"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BIDDART_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BIDDART_REDIS_ADDR"`
	Password     string        `envconfig:"BIDDART_REDIS_PASSWORD"`
	DB           int           `envconfig:"BIDDART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BIDDART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BIDDART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BIDDART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BIDDART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BIDDART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies staff access tokens minted by the identity service.
type JWTConfig struct {
	Secret            string `envconfig:"BIDDART_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BIDDART_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BIDDART_JWT_EXPIRATION_MINUTES" default:"720"`
	// PreviousSecret keeps tokens signed before a secret rotation valid until they expire.
	PreviousSecret string        `envconfig:"BIDDART_JWT_PREVIOUS_SECRET"`
	Leeway         time.Duration `envconfig:"BIDDART_JWT_LEEWAY" default:"30s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate      bool `envconfig:"BIDDART_AUTO_MIGRATE" default:"false"`
	SquareWebhooks   bool `envconfig:"BIDDART_FEATURE_SQUARE_WEBHOOKS" default:"true"`
	AllowBulkMarkPay bool `envconfig:"BIDDART_FEATURE_BULK_MARK_PAID" default:"true"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"BIDDART_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookDedupeTTL     time.Duration `envconfig:"BIDDART_EVENTING_WEBHOOK_DEDUPE_TTL" default:"72h"`
}

type SquareConfig struct {
	Env           string `envconfig:"BIDDART_SQUARE_ENV" default:"sandbox"`
	AccessToken   string `envconfig:"BIDDART_SQUARE_ACCESS_TOKEN"`
	LocationID    string `envconfig:"BIDDART_SQUARE_LOCATION_ID"`
	WebhookSecret string `envconfig:"BIDDART_SQUARE_WEBHOOK_SECRET"`
	WebhookURL    string `envconfig:"BIDDART_SQUARE_WEBHOOK_URL"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// PaymentsConfig holds the gateway-side fee schedule and call limits.
type PaymentsConfig struct {
	Currency                string          `envconfig:"BIDDART_PAYMENTS_CURRENCY" default:"USD"`
	ProcessingFeePercent    decimal.Decimal `envconfig:"BIDDART_PAYMENTS_PROCESSING_FEE_PERCENT" default:"2.6"`
	ProcessingFeeFixedCents int64           `envconfig:"BIDDART_PAYMENTS_PROCESSING_FEE_FIXED_CENTS" default:"10"`
	ChargeTimeout           time.Duration   `envconfig:"BIDDART_PAYMENTS_CHARGE_TIMEOUT" default:"30s"`
	RefundTimeout           time.Duration   `envconfig:"BIDDART_PAYMENTS_REFUND_TIMEOUT" default:"30s"`
}

func (p PaymentsConfig) validate() error {
	var err error
	if p.ProcessingFeePercent.IsNegative() {
		err = multierr.Append(err, fmt.Errorf("%s must be non-negative", EnvProcessingFeePct))
	}
	if p.ProcessingFeeFixedCents < 0 {
		err = multierr.Append(err, fmt.Errorf("%s must be non-negative", EnvProcessingFeeFixed))
	}
	if p.ChargeTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s must be positive", EnvChargeTimeout))
	}
	if _, parseErr := enums.ParseCurrency(p.Currency); parseErr != nil {
		err = multierr.Append(err, fmt.Errorf("%s: %w", EnvPaymentsCurrency, parseErr))
	}
	return err
}

type FeesConfig struct {
	MaxPercentage decimal.Decimal `envconfig:"BIDDART_FEES_MAX_PERCENTAGE" default:"10"`
}

func (f FeesConfig) validate() error {
	if f.MaxPercentage.IsNegative() || f.MaxPercentage.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%s must be between 0 and 100", EnvFeesMaxPercentage)
	}
	return nil
}

type GCPConfig struct {
	ProjectID              string `envconfig:"BIDDART_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"BIDDART_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"BIDDART_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"BIDDART_PUBSUB_DOMAIN_TOPIC" default:"biddart-domain-events"`
	DomainSubscription string `envconfig:"BIDDART_PUBSUB_DOMAIN_SUBSCRIPTION"`
	DLQTopic           string `envconfig:"BIDDART_PUBSUB_DLQ_TOPIC"`
	// MaxOutstandingMessages bounds in-flight deliveries per worker; 0 keeps the client default.
	MaxOutstandingMessages int `envconfig:"BIDDART_PUBSUB_MAX_OUTSTANDING" default:"50"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"BIDDART_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"BIDDART_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"BIDDART_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (o OutboxConfig) validate() error {
	if o.BatchSize <= 0 || o.MaxAttempts <= 0 {
		return fmt.Errorf("%s and %s must be positive", EnvOutboxBatchSize, EnvOutboxMaxAttempts)
	}
	return nil
}

type CronConfig struct {
	Interval                time.Duration `envconfig:"BIDDART_CRON_INTERVAL" default:"1m"`
	ReconciliationBatchSize int           `envconfig:"BIDDART_CRON_RECONCILIATION_BATCH_SIZE" default:"25"`
	OutboxRetention         time.Duration `envconfig:"BIDDART_CRON_OUTBOX_RETENTION" default:"720h"`
	OutboxRetentionEvery    time.Duration `envconfig:"BIDDART_CRON_OUTBOX_RETENTION_EVERY" default:"1h"`
	OutboxRetentionBatch    int           `envconfig:"BIDDART_CRON_OUTBOX_RETENTION_BATCH" default:"1000"`
}

// APIConfig tunes the HTTP surface: browser origins and bid throttling.
type APIConfig struct {
	CORSOrigins        []string      `envconfig:"BIDDART_API_CORS_ORIGINS" default:"http://localhost:3000"`
	BidRateLimitWindow time.Duration `envconfig:"BIDDART_API_BID_RATE_WINDOW" default:"1m"`
	BidRateLimitStaff  int           `envconfig:"BIDDART_API_BID_RATE_STAFF_LIMIT" default:"120"`
	BidRateLimitIP     int           `envconfig:"BIDDART_API_BID_RATE_IP_LIMIT" default:"300"`
}

// legacyDSN assembles a postgres URL from the split BIDDART_DB_* variables
// older deployments still set.
func (db DBConfig) legacyDSN() (string, error) {
	var missing []string
	for env, value := range map[string]string{EnvDBHost: db.LegacyHost, EnvDBUser: db.LegacyUser, EnvDBName: db.LegacyName} {
		if value == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return "", fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.User(db.LegacyUser),
		Host:   net.JoinHostPort(db.LegacyHost, strconv.Itoa(db.LegacyPort)),
		Path:   db.LegacyName,
	}
	if db.LegacyPassword != "" {
		u.User = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}
	if db.LegacySSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {db.LegacySSLMode}}.Encode()
	}
	return u.String(), nil
}
