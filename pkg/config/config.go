package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App            AppConfig
	Service        ServiceConfig
	DB             DBConfig
	Redis          RedisConfig
	Session        SessionConfig
	FeatureFlags   FeatureFlagsConfig
	Stripe         StripeConfig
	Airtable       AirtableConfig
	Shipping       ShippingConfig
	PaymentMethods PaymentMethodsConfig
	Outbox         OutboxConfig
	Cron           CronConfig
	CORS           CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if !cfg.FeatureFlags.UseSQLite {
		if err := cfg.DB.ensureDSN(); err != nil {
			return nil, err
		}
	}
	if cfg.App.IsProd() {
		if err := cfg.checkProd(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// checkProd rejects settings that only make sense on a developer machine.
func (c *Config) checkProd() error {
	if c.FeatureFlags.UseSQLite {
		return fmt.Errorf("%s cannot be enabled in prod", EnvUseSQLite)
	}
	if c.Stripe.APIKey != "" && c.Stripe.WebhookSecret == "" {
		return fmt.Errorf("%s is required when %s is set in prod", EnvWebhookSecret, EnvStripeAPIKey)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	Currency     string `envconfig:"STOREFRONT_CURRENCY" default:"usd"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"STOREFRONT_DB_HOST"`
	Port     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	User     string `envconfig:"STOREFRONT_DB_USER"`
	Password string `envconfig:"STOREFRONT_DB_PASSWORD"`
	Name     string `envconfig:"STOREFRONT_DB_NAME"`
	SSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"STOREFRONT_SQLITE_PATH" default:"storefront.db"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// SessionConfig controls the signed shopper cookie and the lifetime of the
// checkout state stored behind it.
type SessionConfig struct {
	Secret       string        `envconfig:"STOREFRONT_SESSION_SECRET" required:"true"`
	Issuer       string        `envconfig:"STOREFRONT_SESSION_ISSUER" default:"storefront"`
	CookieName   string        `envconfig:"STOREFRONT_SESSION_COOKIE" default:"sf_session"`
	TTL          time.Duration `envconfig:"STOREFRONT_SESSION_TTL" default:"24h"`
	CookieSecure bool          `envconfig:"STOREFRONT_SESSION_COOKIE_SECURE" default:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOREFRONT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"STOREFRONT_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"STOREFRONT_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"STOREFRONT_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type AirtableConfig struct {
	APIKey          string        `envconfig:"STOREFRONT_AIRTABLE_API_KEY"`
	BaseID          string        `envconfig:"STOREFRONT_AIRTABLE_BASE_ID"`
	BaseURL         string        `envconfig:"STOREFRONT_AIRTABLE_BASE_URL" default:"https://api.airtable.com/v0"`
	OrdersTable     string        `envconfig:"STOREFRONT_AIRTABLE_ORDERS_TABLE" default:"Orders"`
	ProductsTable   string        `envconfig:"STOREFRONT_AIRTABLE_PRODUCTS_TABLE" default:"Products"`
	CheckoutsTable  string        `envconfig:"STOREFRONT_AIRTABLE_CHECKOUTS_TABLE" default:"Checkouts"`
	RequestsPerSec  float64       `envconfig:"STOREFRONT_AIRTABLE_RPS" default:"5"`
	Timeout         time.Duration `envconfig:"STOREFRONT_AIRTABLE_TIMEOUT" default:"10s"`
	CatalogCacheTTL time.Duration `envconfig:"STOREFRONT_CATALOG_CACHE_TTL" default:"5m"`
}

// Enabled reports whether Airtable credentials are configured.
func (a AirtableConfig) Enabled() bool {
	return strings.TrimSpace(a.APIKey) != "" && strings.TrimSpace(a.BaseID) != ""
}

// ShippingConfig prices the shipping methods offered at checkout. Costs are
// decimal strings in major currency units.
type ShippingConfig struct {
	Rates map[string]string `envconfig:"STOREFRONT_SHIPPING_RATES" default:"standard:5.00,express:15.00,pickup:0"`
}

type PaymentMethodsConfig struct {
	ZelleHandle  string `envconfig:"STOREFRONT_ZELLE_HANDLE"`
	VenmoHandle  string `envconfig:"STOREFRONT_VENMO_HANDLE"`
	CashAppTag   string `envconfig:"STOREFRONT_CASHAPP_TAG"`
	Instructions string `envconfig:"STOREFRONT_MANUAL_PAYMENT_NOTE" default:"Include your order reference in the payment note."`
}

type OutboxConfig struct {
	BatchSize      int  `envconfig:"STOREFRONT_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int  `envconfig:"STOREFRONT_OUTBOX_POLL_MS" default:"500"`
	MaxAttempts    int  `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	EmbeddedDrain  bool `envconfig:"STOREFRONT_OUTBOX_EMBEDDED_DRAIN" default:"false"`
}

type CronConfig struct {
	Interval           time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"1h"`
	LockTTL            time.Duration `envconfig:"STOREFRONT_CRON_LOCK_TTL" default:"5m"`
	JobTimeout         time.Duration `envconfig:"STOREFRONT_CRON_JOB_TIMEOUT" default:"2m"`
	OutboxRetentionDay int           `envconfig:"STOREFRONT_OUTBOX_RETENTION_DAYS" default:"30"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"STOREFRONT_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (db *DBConfig) ensureDSN() error {
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
