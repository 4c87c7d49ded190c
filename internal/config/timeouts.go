// Package config provides centralized timeout constants for the application.
//
// # VK Callback API Constraints
//
// VK expects the callback endpoint to answer "ok" quickly. After several
// slow or failed answers it stops delivering events and marks the server as
// unavailable, so every message is processed after the acknowledgement.
// Processing itself has no platform deadline; the limits below only keep a
// stuck AI provider or VK API call from pinning a goroutine forever.
package config

import "time"

// Webhook timeouts
const (
	// WebhookProcessing bounds the asynchronous handling of a single message_new event,
	// including the AI call and every messages.send request it produces.
	WebhookProcessing = 30 * time.Second

	// WebhookHTTPRead is the HTTP server read timeout. Callback bodies are small.
	WebhookHTTPRead = 10 * time.Second

	// WebhookHTTPWrite is the HTTP server write timeout.
	// Log exports stream up to a few thousand rows, so this is generous.
	WebhookHTTPWrite = 60 * time.Second

	// WebhookHTTPIdle is the HTTP server idle timeout for keep-alive connections.
	WebhookHTTPIdle = 120 * time.Second
)

// AI timeouts
const (
	// AIAnswer is the default upper bound for one AI answer, retries included.
	// Expiry is treated as an unavailable backend and the canned reply is sent.
	AIAnswer = 8 * time.Second

	// AIProviderRequest bounds a single request to one provider.
	AIProviderRequest = 6 * time.Second
)

// VK API timeouts
const (
	// VKRequest is the HTTP client timeout for one VK API method call.
	VKRequest = 10 * time.Second

	// VKPhotoUpload bounds the three-step photo upload flow.
	VKPhotoUpload = 20 * time.Second
)

// Database timeouts
const (
	// DatabaseBusyTimeout is SQLite busy_timeout pragma value.
	// The log sink writes concurrently with API reads and retention cleanup.
	DatabaseBusyTimeout = 30 * time.Second

	// DatabaseConnMaxLifetime is the maximum lifetime of database connections.
	DatabaseConnMaxLifetime = time.Hour
)

// Background job intervals
const (
	// LogCleanupInterval is how often entries past retention are deleted.
	LogCleanupInterval = 24 * time.Hour

	// LogCleanupInitialDelay lets the server settle before the first cleanup.
	LogCleanupInitialDelay = 5 * time.Minute

	// LogArchiveHour is the local hour (UTC) when yesterday's logs are archived.
	LogArchiveHour = 3

	// LogArchiveTimeout bounds one archive run.
	LogArchiveTimeout = 10 * time.Minute

	// MetricsUpdateInterval is how often gauge metrics are refreshed.
	MetricsUpdateInterval = time.Minute

	// RateLimiterCleanupInterval is how often inactive per-user limiters are removed.
	RateLimiterCleanupInterval = 5 * time.Minute
)

// Health checks
const (
	// ReadinessCheckTimeout bounds the dependency pings behind /readyz.
	ReadinessCheckTimeout = 3 * time.Second
)

// Graceful shutdown
const (
	// GracefulShutdown is the default timeout for graceful server shutdown.
	GracefulShutdown = 30 * time.Second
)
