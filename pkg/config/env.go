package config

const (
	EnvPrefix = "BIDDART"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "BIDDART_APP_ENV"
	EnvPort     = "BIDDART_APP_PORT"
	EnvLogLevel = "BIDDART_LOG_LEVEL"

	EnvDBDSN  = "BIDDART_DB_DSN"
	EnvDBHost = "BIDDART_DB_HOST"
	EnvDBUser = "BIDDART_DB_USER"
	EnvDBName = "BIDDART_DB_NAME"

	EnvRedisURL = "BIDDART_REDIS_URL"

	EnvJWTSecret = "BIDDART_JWT_SECRET"
	EnvJWTIssuer = "BIDDART_JWT_ISSUER"

	EnvSquareEnv        = "BIDDART_SQUARE_ENV"
	EnvSquareToken      = "BIDDART_SQUARE_ACCESS_TOKEN"
	EnvSquareLocationID = "BIDDART_SQUARE_LOCATION_ID"

	EnvPaymentsCurrency   = "BIDDART_PAYMENTS_CURRENCY"
	EnvProcessingFeePct   = "BIDDART_PAYMENTS_PROCESSING_FEE_PERCENT"
	EnvProcessingFeeFixed = "BIDDART_PAYMENTS_PROCESSING_FEE_FIXED_CENTS"
	EnvChargeTimeout      = "BIDDART_PAYMENTS_CHARGE_TIMEOUT"

	EnvFeesMaxPercentage = "BIDDART_FEES_MAX_PERCENTAGE"

	EnvOutboxBatchSize   = "BIDDART_OUTBOX_PUBLISH_BATCH_SIZE"
	EnvOutboxMaxAttempts = "BIDDART_OUTBOX_MAX_ATTEMPTS"

	EnvGCPProjectID      = "BIDDART_GCP_PROJECT_ID"
	EnvPubSubDomainTopic = "BIDDART_PUBSUB_DOMAIN_TOPIC"
)
