package config

// EnvPrefix is passed to envconfig; every field carries its full name via tags.
const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv         = "STOREFRONT_APP_ENV"
	EnvPort           = "STOREFRONT_APP_PORT"
	EnvDBDSN          = "STOREFRONT_DB_DSN"
	EnvDBHost         = "STOREFRONT_DB_HOST"
	EnvDBUser         = "STOREFRONT_DB_USER"
	EnvDBName         = "STOREFRONT_DB_NAME"
	EnvRedisURL       = "STOREFRONT_REDIS_URL"
	EnvSessionSecret  = "STOREFRONT_SESSION_SECRET"
	EnvUseSQLite      = "STOREFRONT_USE_SQLITE"
	EnvShippingRates  = "STOREFRONT_SHIPPING_RATES"
	EnvStripeAPIKey   = "STOREFRONT_STRIPE_API_KEY"
	EnvWebhookSecret  = "STOREFRONT_STRIPE_WEBHOOK_SECRET"
	EnvAirtableAPIKey = "STOREFRONT_AIRTABLE_API_KEY"
	EnvAirtableBaseID = "STOREFRONT_AIRTABLE_BASE_ID"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
