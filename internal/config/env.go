// Package config defines environment variable keys for configuration.
package config

//nolint:gosec,revive // Environment variable keys are not credentials and do not need per-const comments.
const (
	// Core (Required)
	EnvVKAccessToken       = "SNOBOT_VK_ACCESS_TOKEN"
	EnvVKConfirmationToken = "SNOBOT_VK_CONFIRMATION_TOKEN"
	EnvVKSecretKey         = "SNOBOT_VK_SECRET_KEY"
	EnvVKGroupID           = "SNOBOT_VK_GROUP_ID"
	EnvVKAPIVersion        = "SNOBOT_VK_API_VERSION"
	EnvVKAPIBaseURL        = "SNOBOT_VK_API_BASE_URL"

	// Server
	EnvPort            = "SNOBOT_PORT"
	EnvLogLevel        = "SNOBOT_LOG_LEVEL"
	EnvEnvironment     = "SNOBOT_ENVIRONMENT"
	EnvShutdownTimeout = "SNOBOT_SHUTDOWN_TIMEOUT"
	EnvBotName         = "SNOBOT_BOT_NAME"

	// Webhook
	EnvWebhookTimeout = "SNOBOT_WEBHOOK_TIMEOUT"

	// Rate Limits
	EnvSendRateRPS    = "SNOBOT_SEND_RATE_RPS"
	EnvUserRateBurst  = "SNOBOT_USER_RATE_BURST"
	EnvUserRateRefill = "SNOBOT_USER_RATE_REFILL"
	EnvUserRateDaily  = "SNOBOT_USER_RATE_DAILY"

	// AI Feature
	EnvAIEnabled           = "SNOBOT_AI_ENABLED"
	EnvAIProviders         = "SNOBOT_AI_PROVIDERS"
	EnvAITimeout           = "SNOBOT_AI_TIMEOUT"
	EnvGigaChatCredentials = "SNOBOT_GIGACHAT_CREDENTIALS"
	EnvGigaChatScope       = "SNOBOT_GIGACHAT_SCOPE"
	EnvGigaChatModel       = "SNOBOT_GIGACHAT_MODEL"
	EnvGigaChatBaseURL     = "SNOBOT_GIGACHAT_BASE_URL"
	EnvGigaChatAuthURL     = "SNOBOT_GIGACHAT_AUTH_URL"
	EnvOpenAIAPIKey        = "SNOBOT_OPENAI_API_KEY"
	EnvOpenAIBaseURL       = "SNOBOT_OPENAI_BASE_URL"
	EnvOpenAIModel         = "SNOBOT_OPENAI_MODEL"
	EnvGeminiAPIKey        = "SNOBOT_GEMINI_API_KEY"
	EnvGeminiModel         = "SNOBOT_GEMINI_MODEL"

	// Conversation state
	EnvStateBackend   = "SNOBOT_STATE_BACKEND"
	EnvRedisAddr      = "SNOBOT_REDIS_ADDR"
	EnvRedisPassword  = "SNOBOT_REDIS_PASSWORD"
	EnvRedisDB        = "SNOBOT_REDIS_DB"
	EnvRedisKeyPrefix = "SNOBOT_REDIS_KEY_PREFIX"

	// Catalog
	EnvCatalogFile = "SNOBOT_CATALOG_FILE"

	// Media + Object Storage Feature
	EnvMediaDir          = "SNOBOT_MEDIA_DIR"
	EnvS3Enabled         = "SNOBOT_S3_ENABLED"
	EnvS3Endpoint        = "SNOBOT_S3_ENDPOINT"
	EnvS3Region          = "SNOBOT_S3_REGION"
	EnvS3Bucket          = "SNOBOT_S3_BUCKET"
	EnvS3AccessKeyID     = "SNOBOT_S3_ACCESS_KEY_ID"
	EnvS3SecretAccessKey = "SNOBOT_S3_SECRET_ACCESS_KEY"
	EnvS3PublicBaseURL   = "SNOBOT_S3_PUBLIC_BASE_URL"
	EnvS3MediaPrefix     = "SNOBOT_S3_MEDIA_PREFIX"
	EnvS3LockKey         = "SNOBOT_S3_LOCK_KEY"
	EnvS3LockTTL         = "SNOBOT_S3_LOCK_TTL"

	// Log store
	EnvLogStorePath      = "SNOBOT_LOG_STORE_PATH"
	EnvLogRetentionDays  = "SNOBOT_LOG_RETENTION_DAYS"
	EnvLogArchiveEnabled = "SNOBOT_LOG_ARCHIVE_ENABLED"

	// Sentry Feature
	EnvSentryEnabled    = "SNOBOT_SENTRY_ENABLED"
	EnvSentryToken      = "SNOBOT_SENTRY_TOKEN"
	EnvSentryHost       = "SNOBOT_SENTRY_HOST"
	EnvSentryRelease    = "SNOBOT_SENTRY_RELEASE"
	EnvSentrySampleRate = "SNOBOT_SENTRY_SAMPLE_RATE"

	// Better Stack Feature
	EnvBetterStackEnabled  = "SNOBOT_BETTERSTACK_ENABLED"
	EnvBetterStackToken    = "SNOBOT_BETTERSTACK_TOKEN"
	EnvBetterStackEndpoint = "SNOBOT_BETTERSTACK_ENDPOINT"

	// Basic auth for /metrics and /logs
	EnvMetricsAuthEnabled = "SNOBOT_METRICS_AUTH_ENABLED"
	EnvMetricsUsername    = "SNOBOT_METRICS_USERNAME"
	EnvMetricsPassword    = "SNOBOT_METRICS_PASSWORD"
	EnvLogAPIEnabled      = "SNOBOT_LOG_API_ENABLED"
	EnvLogAPIUsername     = "SNOBOT_LOG_API_USERNAME"
	EnvLogAPIPassword     = "SNOBOT_LOG_API_PASSWORD"
)
