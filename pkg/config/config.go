package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Engine       EngineConfig
	RateLimit    RateLimitConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"EVENTRENTALS_APP_ENV" required:"true"`
	Port         string `envconfig:"EVENTRENTALS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"EVENTRENTALS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"EVENTRENTALS_LOG_WARN_STACK" default:"false"`
	// MetricsAddr exposes /metrics from the background workers when set.
	MetricsAddr string `envconfig:"EVENTRENTALS_METRICS_ADDR"`

	CORSAllowedOrigins []string `envconfig:"EVENTRENTALS_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"EVENTRENTALS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"EVENTRENTALS_DB_DSN"`
	Driver string `envconfig:"EVENTRENTALS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"EVENTRENTALS_DB_HOST"`
	LegacyPort     int    `envconfig:"EVENTRENTALS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"EVENTRENTALS_DB_USER"`
	LegacyPassword string `envconfig:"EVENTRENTALS_DB_PASSWORD"`
	LegacyName     string `envconfig:"EVENTRENTALS_DB_NAME"`
	LegacySSLMode  string `envconfig:"EVENTRENTALS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"EVENTRENTALS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"EVENTRENTALS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"EVENTRENTALS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"EVENTRENTALS_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQueryThreshold logs statements slower than this at warn. Zero disables it.
	SlowQueryThreshold time.Duration `envconfig:"EVENTRENTALS_DB_SLOW_QUERY_THRESHOLD" default:"250ms"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"EVENTRENTALS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"EVENTRENTALS_REDIS_ADDR"`
	Password     string        `envconfig:"EVENTRENTALS_REDIS_PASSWORD"`
	DB           int           `envconfig:"EVENTRENTALS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"EVENTRENTALS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"EVENTRENTALS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"EVENTRENTALS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"EVENTRENTALS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"EVENTRENTALS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"EVENTRENTALS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"EVENTRENTALS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"EVENTRENTALS_JWT_EXPIRATION_MINUTES" required:"true"`
	// Leeway absorbs clock skew between the token issuer and this service.
	Leeway time.Duration `envconfig:"EVENTRENTALS_JWT_LEEWAY" default:"30s"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"EVENTRENTALS_AUTO_MIGRATE" default:"false"`
}

// EngineConfig bounds the reservation engine's transactions.
type EngineConfig struct {
	TxTimeout      time.Duration `envconfig:"EVENTRENTALS_ENGINE_TX_TIMEOUT" default:"5s"`
	LockTimeout    time.Duration `envconfig:"EVENTRENTALS_ENGINE_LOCK_TIMEOUT" default:"2s"`
	PendingTTL     time.Duration `envconfig:"EVENTRENTALS_ENGINE_PENDING_TTL" default:"72h"`
	IdempotencyTTL time.Duration `envconfig:"EVENTRENTALS_ENGINE_IDEMPOTENCY_TTL" default:"24h"`
}

// RateLimitConfig throttles reservation submissions per requester and per IP.
type RateLimitConfig struct {
	SubmitWindow    time.Duration `envconfig:"EVENTRENTALS_RATE_LIMIT_SUBMIT_WINDOW" default:"1m"`
	SubmitUserLimit int           `envconfig:"EVENTRENTALS_RATE_LIMIT_SUBMIT_USER_LIMIT" default:"10"`
	SubmitIPLimit   int           `envconfig:"EVENTRENTALS_RATE_LIMIT_SUBMIT_IP_LIMIT" default:"30"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"EVENTRENTALS_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"EVENTRENTALS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"EVENTRENTALS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	RentalEventsTopic string `envconfig:"EVENTRENTALS_PUBSUB_RENTAL_EVENTS_TOPIC" default:"eventrentals-rental-events"`
	// InventoryEventsTopic receives stock adjustments. Empty routes them to
	// RentalEventsTopic.
	InventoryEventsTopic string `envconfig:"EVENTRENTALS_PUBSUB_INVENTORY_EVENTS_TOPIC"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"EVENTRENTALS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"EVENTRENTALS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"EVENTRENTALS_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"EVENTRENTALS_OUTBOX_RETENTION" default:"720h"`
	PublishTimeout time.Duration `envconfig:"EVENTRENTALS_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`
	DLQRetention   time.Duration `envconfig:"EVENTRENTALS_OUTBOX_DLQ_RETENTION" default:"2160h"`
}

type CronConfig struct {
	Interval   time.Duration `envconfig:"EVENTRENTALS_CRON_INTERVAL" default:"5m"`
	LockTTL    time.Duration `envconfig:"EVENTRENTALS_CRON_LOCK_TTL" default:"4m"`
	JobTimeout time.Duration `envconfig:"EVENTRENTALS_CRON_JOB_TIMEOUT" default:"1m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required when %s is %s", EnvDBDSN, EnvDBDriver, DBDriverSQLite)
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
