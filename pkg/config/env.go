package config

const (
	EnvPrefix = "PLATEFULL"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	EnvAppEnv      = "PLATEFULL_APP_ENV"
	EnvPort        = "PLATEFULL_APP_PORT"
	EnvLogLevel    = "PLATEFULL_LOG_LEVEL"
	EnvDBDSN       = "PLATEFULL_DB_DSN"
	EnvDBHost      = "PLATEFULL_DB_HOST"
	EnvDBUser      = "PLATEFULL_DB_USER"
	EnvDBPassword  = "PLATEFULL_DB_PASSWORD"
	EnvDBName      = "PLATEFULL_DB_NAME"
	EnvUseSQLite   = "PLATEFULL_USE_SQLITE"
	EnvRedisURL    = "PLATEFULL_REDIS_URL"
	EnvDeliveryFee = "PLATEFULL_DELIVERY_FEE"

	EnvUpsellSidesLimit     = "PLATEFULL_UPSELL_SIDES_LIMIT"
	EnvUpsellMainCategories = "PLATEFULL_UPSELL_MAIN_CATEGORIES"
	EnvAbandonedCartTTL     = "PLATEFULL_ABANDONED_CART_TTL"
	EnvSettlementAttempts   = "PLATEFULL_SETTLEMENT_MAX_ATTEMPTS"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
