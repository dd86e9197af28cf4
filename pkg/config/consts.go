package config

const EnvPrefix = "EVENTRENTALS"

const (
	AppEnvDev   = "dev"
	AppEnvProd  = "prod"
	AppEnvLocal = "local"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv      = "EVENTRENTALS_APP_ENV"
	EnvPort        = "EVENTRENTALS_APP_PORT"
	EnvLogLevel    = "EVENTRENTALS_LOG_LEVEL"
	EnvServiceKind = "EVENTRENTALS_SERVICE_KIND"

	EnvDBDSN    = "EVENTRENTALS_DB_DSN"
	EnvDBDriver = "EVENTRENTALS_DB_DRIVER"
	EnvDBHost   = "EVENTRENTALS_DB_HOST"
	EnvDBUser   = "EVENTRENTALS_DB_USER"
	EnvDBName   = "EVENTRENTALS_DB_NAME"

	EnvRedisURL = "EVENTRENTALS_REDIS_URL"

	EnvJWTSecret  = "EVENTRENTALS_JWT_SECRET"
	EnvJWTIssuer  = "EVENTRENTALS_JWT_ISSUER"
	EnvJWTExpMins = "EVENTRENTALS_JWT_EXPIRATION_MINUTES"

	EnvEngineTxTimeout   = "EVENTRENTALS_ENGINE_TX_TIMEOUT"
	EnvEngineLockTimeout = "EVENTRENTALS_ENGINE_LOCK_TIMEOUT"
	EnvEnginePendingTTL  = "EVENTRENTALS_ENGINE_PENDING_TTL"

	EnvGCPProjectID      = "EVENTRENTALS_GCP_PROJECT_ID"
	EnvPubSubRentalTopic = "EVENTRENTALS_PUBSUB_RENTAL_EVENTS_TOPIC"
	EnvOutboxMaxAttempts = "EVENTRENTALS_OUTBOX_MAX_ATTEMPTS"
	EnvCronInterval      = "EVENTRENTALS_CRON_INTERVAL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
