package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Telegram     TelegramConfig
	OpenAI       OpenAIConfig
	Conversation ConversationConfig
	Upsell       UpsellConfig
	Settlement   SettlementConfig
	Cron         CronConfig
	Eventing     EventingConfig
	Outbox       OutboxConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite, cfg.FeatureFlags.SQLitePath); err != nil {
		return nil, err
	}
	if _, err := cfg.Conversation.DeliveryFee(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"PLATEFULL_APP_ENV" required:"true"`
	Port         string   `envconfig:"PLATEFULL_APP_PORT" default:"8080"`
	LogLevel     string   `envconfig:"PLATEFULL_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"PLATEFULL_LOG_FORMAT" default:"json"`
	LogWarnStack bool     `envconfig:"PLATEFULL_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"PLATEFULL_CORS_ORIGINS" default:"http://localhost:3000"`
	// MetricsAddr is where background workers expose /metrics; empty disables it.
	MetricsAddr  string   `envconfig:"PLATEFULL_METRICS_ADDR"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type DBConfig struct {
	DSN    string `envconfig:"PLATEFULL_DB_DSN"`
	Driver string `envconfig:"PLATEFULL_DB_DRIVER" default:"postgres"` // postgres or sqlite

	Host     string `envconfig:"PLATEFULL_DB_HOST"`
	Port     int    `envconfig:"PLATEFULL_DB_PORT" default:"5432"`
	User     string `envconfig:"PLATEFULL_DB_USER"`
	Password string `envconfig:"PLATEFULL_DB_PASSWORD"`
	Name     string `envconfig:"PLATEFULL_DB_NAME"`
	SSLMode  string `envconfig:"PLATEFULL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PLATEFULL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PLATEFULL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PLATEFULL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PLATEFULL_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PLATEFULL_REDIS_URL"`
	Address      string        `envconfig:"PLATEFULL_REDIS_ADDR"`
	Password     string        `envconfig:"PLATEFULL_REDIS_PASSWORD"`
	DB           int           `envconfig:"PLATEFULL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PLATEFULL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PLATEFULL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PLATEFULL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PLATEFULL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PLATEFULL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint was configured. Without one the
// binaries fall back to in-process locking and skip turn deduplication.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	UseSQLite      bool   `envconfig:"PLATEFULL_USE_SQLITE" default:"false"`
	SQLitePath     string `envconfig:"PLATEFULL_SQLITE_PATH" default:"platefull.db"`
	AutoMigrate    bool   `envconfig:"PLATEFULL_AUTO_MIGRATE" default:"false"`
	TelegramPoller bool   `envconfig:"PLATEFULL_TELEGRAM_POLLER" default:"false"`
}

type TelegramConfig struct {
	BotToken       string `envconfig:"PLATEFULL_TELEGRAM_BOT_TOKEN"`
	PollTimeoutSec int    `envconfig:"PLATEFULL_TELEGRAM_POLL_TIMEOUT_SEC" default:"30"`
	Debug          bool   `envconfig:"PLATEFULL_TELEGRAM_DEBUG" default:"false"`
}

type OpenAIConfig struct {
	APIKey      string        `envconfig:"PLATEFULL_OPENAI_API_KEY"`
	Model       string        `envconfig:"PLATEFULL_OPENAI_MODEL" default:"gpt-4o-mini"`
	BaseURL     string        `envconfig:"PLATEFULL_OPENAI_BASE_URL"`
	Temperature float64       `envconfig:"PLATEFULL_OPENAI_TEMPERATURE" default:"0.2"`
	Timeout     time.Duration `envconfig:"PLATEFULL_OPENAI_TIMEOUT" default:"15s"`
}

type ConversationConfig struct {
	LockTTL             time.Duration `envconfig:"PLATEFULL_CONVERSATION_LOCK_TTL" default:"30s"`
	LockWait            time.Duration `envconfig:"PLATEFULL_CONVERSATION_LOCK_WAIT" default:"10s"`
	DedupeTTL           time.Duration `envconfig:"PLATEFULL_CONVERSATION_DEDUPE_TTL" default:"24h"`
	RecommendationCount int           `envconfig:"PLATEFULL_RECOMMENDATION_COUNT" default:"4"`
	DeliveryFeeRaw      string        `envconfig:"PLATEFULL_DELIVERY_FEE" default:"2.99"`
	Timezone            string        `envconfig:"PLATEFULL_TIMEZONE" default:"UTC"`
}

// DeliveryFee parses the configured flat delivery fee.
func (c ConversationConfig) DeliveryFee() (decimal.Decimal, error) {
	raw := strings.TrimSpace(c.DeliveryFeeRaw)
	if raw == "" {
		return decimal.Zero, nil
	}
	fee, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", EnvDeliveryFee, raw, err)
	}
	if fee.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", EnvDeliveryFee)
	}
	return fee, nil
}

// Location resolves the timezone used for time-of-day analytics.
func (c ConversationConfig) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(c.Timezone))
	if err != nil {
		return time.UTC
	}
	return loc
}

type UpsellConfig struct {
	MainCategories    []string `envconfig:"PLATEFULL_UPSELL_MAIN_CATEGORIES" default:"Pitas,Wraps,Platters,Main Dishes"`
	SidesCategories   []string `envconfig:"PLATEFULL_UPSELL_SIDES_CATEGORIES" default:"Sides,Salads"`
	DrinksCategories  []string `envconfig:"PLATEFULL_UPSELL_DRINKS_CATEGORIES" default:"Drinks,Beverages"`
	DessertCategories []string `envconfig:"PLATEFULL_UPSELL_DESSERT_CATEGORIES" default:"Desserts"`
	SidesLimit        int      `envconfig:"PLATEFULL_UPSELL_SIDES_LIMIT" default:"3"`
	DrinksLimit       int      `envconfig:"PLATEFULL_UPSELL_DRINKS_LIMIT" default:"3"`
	DessertsLimit     int      `envconfig:"PLATEFULL_UPSELL_DESSERTS_LIMIT" default:"2"`
}

type SettlementConfig struct {
	Provider       string        `envconfig:"PLATEFULL_SETTLEMENT_PROVIDER" default:"cash"`
	Endpoint       string        `envconfig:"PLATEFULL_SETTLEMENT_ENDPOINT"`
	APIKey         string        `envconfig:"PLATEFULL_SETTLEMENT_API_KEY"`
	MaxAttempts    int           `envconfig:"PLATEFULL_SETTLEMENT_MAX_ATTEMPTS" default:"3"`
	InitialBackoff time.Duration `envconfig:"PLATEFULL_SETTLEMENT_INITIAL_BACKOFF" default:"200ms"`
	MaxBackoff     time.Duration `envconfig:"PLATEFULL_SETTLEMENT_MAX_BACKOFF" default:"2s"`
	RequestTimeout time.Duration `envconfig:"PLATEFULL_SETTLEMENT_REQUEST_TIMEOUT" default:"10s"`
}

type CronConfig struct {
	Interval         time.Duration `envconfig:"PLATEFULL_CRON_INTERVAL" default:"15m"`
	LockTTL          time.Duration `envconfig:"PLATEFULL_CRON_LOCK_TTL" default:"5m"`
	AbandonedCartTTL time.Duration `envconfig:"PLATEFULL_ABANDONED_CART_TTL" default:"48h"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"PLATEFULL_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PLATEFULL_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PLATEFULL_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PLATEFULL_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"PLATEFULL_OUTBOX_RETENTION_DAYS" default:"30"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PLATEFULL_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"PLATEFULL_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PLATEFULL_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"PLATEFULL_PUBSUB_ORDERS_TOPIC" default:"platefull-order-events"`
}

func (db *DBConfig) ensureDSN(useSQLite bool, sqlitePath string) error {
	if useSQLite {
		db.Driver = DriverSQLite
		if db.DSN == "" {
			db.DSN = sqlitePath
		}
		return nil
	}
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
