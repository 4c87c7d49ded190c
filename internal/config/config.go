// Package config provides application configuration management.
// It loads settings from environment variables (optionally seeded from a .env
// file) and validates them before the application starts.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// State backends for the AI-mode store.
const (
	StateBackendMemory = "memory"
	StateBackendRedis  = "redis"
)

// Known AI provider names accepted in SNOBOT_AI_PROVIDERS.
var knownProviders = []string{"gigachat", "openai", "gemini"}

// Config holds all application configuration
type Config struct {
	// VK community
	VKAccessToken       string
	VKConfirmationToken string
	VKSecretKey         string // Callback API secret; empty disables the check
	VKGroupID           int64  // Community ID; 0 disables the check
	VKAPIVersion        string
	VKAPIBaseURL        string

	// Server
	Port            string
	LogLevel        string
	Environment     string
	BotName         string
	ShutdownTimeout time.Duration
	WebhookTimeout  time.Duration

	// Rate limits
	SendRateRPS    float64 // Global messages.send budget
	UserRateBurst  float64 // Per-user burst of inbound events
	UserRateRefill float64 // Per-user tokens per second
	UserRateDaily  int     // Per-user daily cap, 0 = disabled

	// AI helper
	AIEnabled           bool
	AIProviders         []string // Provider order, first is primary
	AITimeout           time.Duration
	GigaChatCredentials string
	GigaChatScope       string
	GigaChatModel       string
	GigaChatBaseURL     string
	GigaChatAuthURL     string
	OpenAIAPIKey        string
	OpenAIBaseURL       string
	OpenAIModel         string
	GeminiAPIKey        string
	GeminiModel         string

	// Conversation state
	StateBackend   string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	// Response catalog override (YAML or JSON); empty uses the built-in catalog
	CatalogFile string

	// Media and object storage
	MediaDir          string
	S3Enabled         bool
	S3Endpoint        string
	S3Region          string
	S3Bucket          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PublicBaseURL   string
	S3MediaPrefix     string
	S3LockKey         string
	S3LockTTL         time.Duration

	// Persistent log store
	LogStorePath      string
	LogRetentionDays  int
	LogArchiveEnabled bool

	// Error tracking
	SentryEnabled    bool
	SentryToken      string
	SentryHost       string
	SentryRelease    string
	SentrySampleRate float64

	// Remote logs
	BetterStackEnabled  bool
	BetterStackToken    string
	BetterStackEndpoint string

	// Basic auth
	MetricsAuthEnabled bool
	MetricsUsername    string
	MetricsPassword    string
	LogAPIEnabled      bool
	LogAPIUsername     string
	LogAPIPassword     string
}

// Load reads configuration from environment variables.
// It attempts to load a .env file first, then reads from env vars.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		VKAccessToken:       getEnv(EnvVKAccessToken, ""),
		VKConfirmationToken: getEnv(EnvVKConfirmationToken, ""),
		VKSecretKey:         getEnv(EnvVKSecretKey, ""),
		VKGroupID:           getInt64Env(EnvVKGroupID, 0),
		VKAPIVersion:        getEnv(EnvVKAPIVersion, "5.131"),
		VKAPIBaseURL:        getEnv(EnvVKAPIBaseURL, "https://api.vk.com/method"),

		Port:            getEnv(EnvPort, "3000"),
		LogLevel:        getEnv(EnvLogLevel, "info"),
		Environment:     getEnv(EnvEnvironment, "production"),
		BotName:         getEnv(EnvBotName, "Помощник СНО СПбЮИ"),
		ShutdownTimeout: getDurationEnv(EnvShutdownTimeout, GracefulShutdown),
		WebhookTimeout:  getDurationEnv(EnvWebhookTimeout, WebhookProcessing),

		SendRateRPS:    getFloatEnv(EnvSendRateRPS, 20.0),
		UserRateBurst:  getFloatEnv(EnvUserRateBurst, 10.0),
		UserRateRefill: getFloatEnv(EnvUserRateRefill, 0.5),
		UserRateDaily:  getIntEnv(EnvUserRateDaily, 0),

		AIEnabled:           getBoolEnv(EnvAIEnabled, false),
		AIProviders:         getListEnv(EnvAIProviders, []string{"gigachat"}),
		AITimeout:           getDurationEnv(EnvAITimeout, AIAnswer),
		GigaChatCredentials: getEnv(EnvGigaChatCredentials, ""),
		GigaChatScope:       getEnv(EnvGigaChatScope, "GIGACHAT_API_PERS"),
		GigaChatModel:       getEnv(EnvGigaChatModel, "GigaChat"),
		GigaChatBaseURL:     getEnv(EnvGigaChatBaseURL, "https://gigachat.devices.sberbank.ru/api/v1"),
		GigaChatAuthURL:     getEnv(EnvGigaChatAuthURL, "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"),
		OpenAIAPIKey:        getEnv(EnvOpenAIAPIKey, ""),
		OpenAIBaseURL:       getEnv(EnvOpenAIBaseURL, ""),
		OpenAIModel:         getEnv(EnvOpenAIModel, "gpt-4o-mini"),
		GeminiAPIKey:        getEnv(EnvGeminiAPIKey, ""),
		GeminiModel:         getEnv(EnvGeminiModel, "gemini-2.5-flash"),

		StateBackend:   strings.ToLower(getEnv(EnvStateBackend, StateBackendMemory)),
		RedisAddr:      getEnv(EnvRedisAddr, "localhost:6379"),
		RedisPassword:  getEnv(EnvRedisPassword, ""),
		RedisDB:        getIntEnv(EnvRedisDB, 0),
		RedisKeyPrefix: getEnv(EnvRedisKeyPrefix, "snobot"),

		CatalogFile: getEnv(EnvCatalogFile, ""),

		MediaDir:          getEnv(EnvMediaDir, "./images"),
		S3Enabled:         getBoolEnv(EnvS3Enabled, false),
		S3Endpoint:        getEnv(EnvS3Endpoint, "https://storage.yandexcloud.net"),
		S3Region:          getEnv(EnvS3Region, "ru-central1"),
		S3Bucket:          getEnv(EnvS3Bucket, ""),
		S3AccessKeyID:     getEnv(EnvS3AccessKeyID, ""),
		S3SecretAccessKey: getEnv(EnvS3SecretAccessKey, ""),
		S3PublicBaseURL:   getEnv(EnvS3PublicBaseURL, ""),
		S3MediaPrefix:     getEnv(EnvS3MediaPrefix, "images/"),
		S3LockKey:         getEnv(EnvS3LockKey, "locks/log-archive.lock"),
		S3LockTTL:         getDurationEnv(EnvS3LockTTL, 15*time.Minute),

		LogStorePath:      getEnv(EnvLogStorePath, filepath.Join("data", "logs.db")),
		LogRetentionDays:  getIntEnv(EnvLogRetentionDays, 7),
		LogArchiveEnabled: getBoolEnv(EnvLogArchiveEnabled, false),

		SentryEnabled:    getBoolEnv(EnvSentryEnabled, false),
		SentryToken:      getEnv(EnvSentryToken, ""),
		SentryHost:       getEnv(EnvSentryHost, ""),
		SentryRelease:    getEnv(EnvSentryRelease, ""),
		SentrySampleRate: getFloatEnv(EnvSentrySampleRate, 1.0),

		BetterStackEnabled:  getBoolEnv(EnvBetterStackEnabled, false),
		BetterStackToken:    getEnv(EnvBetterStackToken, ""),
		BetterStackEndpoint: getEnv(EnvBetterStackEndpoint, ""),

		MetricsAuthEnabled: getBoolEnv(EnvMetricsAuthEnabled, false),
		MetricsUsername:    getEnv(EnvMetricsUsername, "prometheus"),
		MetricsPassword:    getEnv(EnvMetricsPassword, ""),
		LogAPIEnabled:      getBoolEnv(EnvLogAPIEnabled, true),
		LogAPIUsername:     getEnv(EnvLogAPIUsername, "admin"),
		LogAPIPassword:     getEnv(EnvLogAPIPassword, ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if required configuration values are set
func (c *Config) Validate() error {
	var errs []error

	if c.VKAccessToken == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvVKAccessToken))
	}
	if c.VKConfirmationToken == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvVKConfirmationToken))
	}
	if c.VKGroupID < 0 {
		errs = append(errs, fmt.Errorf("%s cannot be negative, got %d", EnvVKGroupID, c.VKGroupID))
	}
	if c.Port == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvPort))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvShutdownTimeout, c.ShutdownTimeout))
	}
	if c.WebhookTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvWebhookTimeout, c.WebhookTimeout))
	}

	if c.SendRateRPS <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvSendRateRPS, c.SendRateRPS))
	}
	if c.UserRateBurst <= 0 || c.UserRateRefill <= 0 {
		errs = append(errs, fmt.Errorf("%s and %s must be positive", EnvUserRateBurst, EnvUserRateRefill))
	}
	if c.UserRateDaily < 0 {
		errs = append(errs, fmt.Errorf("%s cannot be negative, got %d", EnvUserRateDaily, c.UserRateDaily))
	}

	if c.AIEnabled {
		if c.AITimeout <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvAITimeout, c.AITimeout))
		}
		for _, p := range c.AIProviders {
			if !slices.Contains(knownProviders, p) {
				errs = append(errs, fmt.Errorf("%s: unknown provider %q", EnvAIProviders, p))
			}
		}
	}

	switch c.StateBackend {
	case StateBackendMemory:
	case StateBackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("%s is required when %s=redis", EnvRedisAddr, EnvStateBackend))
		}
	default:
		errs = append(errs, fmt.Errorf("%s must be %q or %q, got %q",
			EnvStateBackend, StateBackendMemory, StateBackendRedis, c.StateBackend))
	}

	if c.S3Enabled {
		if c.S3Bucket == "" {
			errs = append(errs, fmt.Errorf("%s is required when object storage is enabled", EnvS3Bucket))
		}
		if c.S3AccessKeyID == "" || c.S3SecretAccessKey == "" {
			errs = append(errs, fmt.Errorf("%s and %s are required when object storage is enabled",
				EnvS3AccessKeyID, EnvS3SecretAccessKey))
		}
	}
	if c.LogArchiveEnabled && !c.S3Enabled {
		errs = append(errs, fmt.Errorf("%s requires %s", EnvLogArchiveEnabled, EnvS3Enabled))
	}

	if c.LogStorePath == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvLogStorePath))
	}
	if c.LogRetentionDays <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", EnvLogRetentionDays, c.LogRetentionDays))
	}

	if c.SentryEnabled && (c.SentryToken == "" || c.SentryHost == "") {
		errs = append(errs, fmt.Errorf("%s and %s are required when Sentry is enabled", EnvSentryToken, EnvSentryHost))
	}
	if c.SentrySampleRate < 0 || c.SentrySampleRate > 1 {
		errs = append(errs, fmt.Errorf("%s must be within [0, 1], got %v", EnvSentrySampleRate, c.SentrySampleRate))
	}
	if c.BetterStackEnabled && c.BetterStackToken == "" {
		errs = append(errs, fmt.Errorf("%s is required when Better Stack is enabled", EnvBetterStackToken))
	}
	if c.MetricsAuthEnabled && c.MetricsPassword == "" {
		errs = append(errs, fmt.Errorf("%s is required when metrics auth is enabled", EnvMetricsPassword))
	}
	if c.LogAPIEnabled && c.LogAPIPassword == "" {
		errs = append(errs, fmt.Errorf("%s is required when the log API is enabled", EnvLogAPIPassword))
	}

	return errors.Join(errs...)
}

// HasAIProvider returns true if at least one configured provider has credentials.
func (c *Config) HasAIProvider() bool {
	for _, p := range c.AIProviders {
		switch p {
		case "gigachat":
			if c.GigaChatCredentials != "" {
				return true
			}
		case "openai":
			if c.OpenAIAPIKey != "" {
				return true
			}
		case "gemini":
			if c.GeminiAPIKey != "" {
				return true
			}
		}
	}
	return false
}

// ArchiveEnabled reports whether log archives can be uploaded.
func (c *Config) ArchiveEnabled() bool {
	return c.LogArchiveEnabled && c.S3Enabled
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getInt64Env retrieves int64 environment variable with fallback to default value
func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getBoolEnv retrieves boolean environment variable with fallback to default value
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getListEnv splits a comma-separated variable into lowercase trimmed items.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for part := range strings.SplitSeq(value, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			items = append(items, part)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
