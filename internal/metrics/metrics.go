// Package metrics defines the Prometheus series exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Webhook metrics
	WebhookRequestsTotal   *prometheus.CounterVec
	WebhookDurationSeconds *prometheus.HistogramVec

	// Intent metrics
	IntentsTotal       *prometheus.CounterVec
	IntentUnknownTotal *prometheus.CounterVec

	// Conversation state metrics
	AIModeTransitionsTotal *prometheus.CounterVec
	AIModeUsers            prometheus.Gauge

	// AI backend metrics
	AIRequestsTotal         *prometheus.CounterVec
	AIDurationSeconds       *prometheus.HistogramVec
	AIFallbacksTotal        *prometheus.CounterVec
	AIProviderFallbackTotal *prometheus.CounterVec

	// VK API metrics
	VKRequestsTotal   *prometheus.CounterVec
	VKDurationSeconds *prometheus.HistogramVec

	// Media metrics
	MediaResolveTotal      *prometheus.CounterVec
	SingleflightDedupTotal *prometheus.CounterVec

	// HTTP metrics
	HTTPErrorsTotal *prometheus.CounterVec

	// Rate limiter metrics
	RateLimiterWaitDuration *prometheus.HistogramVec
	RateLimiterDropped      *prometheus.CounterVec
	RateLimiterUsers        *prometheus.GaugeVec

	// Log store metrics
	LogStoreEntries      prometheus.Gauge
	LogStoreDeletedTotal prometheus.Counter
	LogArchiveTotal      *prometheus.CounterVec
	LogSinkDropsTotal    *prometheus.CounterVec

	// Background job metrics
	JobDurationSeconds *prometheus.HistogramVec
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		WebhookRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vkbot_webhook_requests_total",
				Help: "Total number of VK callback requests by event type and status",
			},
			[]string{"event_type", "status"}, // status: ok, forbidden, bad_request, rate_limited, ignored
		),

		WebhookDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vkbot_webhook_duration_seconds",
				Help:    "Asynchronous event processing duration in seconds by event type",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"event_type"},
		),

		IntentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vkbot_intents_total",
				Help: "Total number of dispatched intents by intent and resolution source",
			},
			[]string{"intent", "source"}, // source: payload, greeting_token, text
		),

		IntentUnknownTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vkbot_intent_unknown_total",
				Help: "Intents outside the closed set that were mapped to the default",
			},
			[]string{"source"},
		),

		AIModeTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vkbot_ai_mode_transitions_total",
				Help: "Total number of AI helper mode transitions",
			},
			[]string{"direction"}, // direction: enter, exit
		),

		AIModeUsers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vkbot_ai_mode_users",
				Help: "Number of users currently in AI helper mode",
			},
		),

		AIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vkbot_ai_requests_total",
				Help: "Total number of AI provider requests by provider and status",
			},
			[]string{"provider", "status"}, // status: success, error, empty
		),

		AIDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vkbot_ai_duration_seconds",
				Help:    "AI provider request duration in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2, 4, 6, 8, 12},
			},
			[]string{"provider"},
		),

		AIFallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vkbot_ai_fallbacks_total",
				Help: "Total number of canned replies sent instead of an AI answer",
			},
			[]string{"reason"}, // reason: disabled, unavailable, panic
		),

		AIProviderFallbackTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vkbot_ai_provider_fallback_total",
				Help: "Total number of switches from one AI provider to the next",
			},
			[]string{"from", "to"},
		),

		VKRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vkbot_vk_requests_total",
				Help: "Total number of VK API calls by method and status",
			},
			[]string{"method", "status"}, // status: success, api_error, transport_error
		),

		VKDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vkbot_vk_duration_seconds",
				Help:    "VK API call duration in seconds by method",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method"},
		),

		MediaResolveTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vkbot_media_resolve_total",
				Help: "Total number of image lookups by source",
			},
			[]string{"source"}, // source: local, storage, none
		),

		SingleflightDedupTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vkbot_singleflight_dedup_total",
				Help: "Total number of deduplicated requests (requests that waited instead of executing)",
			},
			[]string{"module"},
		),

		HTTPErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vkbot_http_errors_total",
				Help: "Total HTTP errors by type and module",
			},
			[]string{"error_type", "module"},
		),

		RateLimiterWaitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vkbot_rate_limiter_wait_duration_seconds",
				Help:    "Time spent waiting for rate limiter token by limiter type",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"limiter_type"},
		),

		RateLimiterDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vkbot_rate_limiter_dropped_total",
				Help: "Total number of requests dropped by rate limiter",
			},
			[]string{"limiter_type"},
		),

		RateLimiterUsers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vkbot_rate_limiter_users",
				Help: "Number of users tracked by a keyed rate limiter",
			},
			[]string{"limiter_type"},
		),

		LogStoreEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vkbot_logstore_entries",
				Help: "Number of entries in the persistent log store",
			},
		),

		LogStoreDeletedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vkbot_logstore_deleted_total",
				Help: "Total number of log entries removed by retention cleanup",
			},
		),

		LogArchiveTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vkbot_log_archive_total",
				Help: "Total number of log archive runs by status",
			},
			[]string{"status"}, // status: uploaded, empty, skipped, error
		),

		LogSinkDropsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vkbot_log_sink_drops_total",
				Help: "Total number of log records that did not reach a sink",
			},
			[]string{"sink", "reason"}, // reason: queue_full, write_error, shutdown
		),

		JobDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vkbot_job_duration_seconds",
				Help:    "Background job duration in seconds",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30, 60, 300, 600},
			},
			[]string{"job"},
		),
	}
}

// RecordWebhook records a callback request outcome
func (m *Metrics) RecordWebhook(eventType, status string) {
	m.WebhookRequestsTotal.WithLabelValues(eventType, status).Inc()
}

// RecordEventDuration records asynchronous processing time for one event
func (m *Metrics) RecordEventDuration(eventType string, duration float64) {
	m.WebhookDurationSeconds.WithLabelValues(eventType).Observe(duration)
}

// RecordIntent records a dispatched intent and how it was resolved
func (m *Metrics) RecordIntent(intent, source string) {
	m.IntentsTotal.WithLabelValues(intent, source).Inc()
}

// RecordUnknownIntent records an intent that fell back to the default
func (m *Metrics) RecordUnknownIntent(source string) {
	m.IntentUnknownTotal.WithLabelValues(source).Inc()
}

// RecordAIModeTransition records entering or leaving AI helper mode
func (m *Metrics) RecordAIModeTransition(direction string) {
	m.AIModeTransitionsTotal.WithLabelValues(direction).Inc()
}

// SetAIModeUsers sets the AI helper mode user gauge
func (m *Metrics) SetAIModeUsers(count int) {
	m.AIModeUsers.Set(float64(count))
}

// RecordAIRequest records a single provider request
func (m *Metrics) RecordAIRequest(provider, status string, duration float64) {
	m.AIRequestsTotal.WithLabelValues(provider, status).Inc()
	m.AIDurationSeconds.WithLabelValues(provider).Observe(duration)
}

// RecordAIFallback records a canned reply sent in place of an AI answer
func (m *Metrics) RecordAIFallback(reason string) {
	m.AIFallbacksTotal.WithLabelValues(reason).Inc()
}

// RecordAIProviderFallback records a switch between providers
func (m *Metrics) RecordAIProviderFallback(from, to string) {
	m.AIProviderFallbackTotal.WithLabelValues(from, to).Inc()
}

// RecordVKRequest records a VK API call
func (m *Metrics) RecordVKRequest(method, status string, duration float64) {
	m.VKRequestsTotal.WithLabelValues(method, status).Inc()
	m.VKDurationSeconds.WithLabelValues(method).Observe(duration)
}

// RecordMediaResolve records where an intent image came from
func (m *Metrics) RecordMediaResolve(source string) {
	m.MediaResolveTotal.WithLabelValues(source).Inc()
}

// RecordSingleflightDedup records a deduplicated request
func (m *Metrics) RecordSingleflightDedup(module string) {
	m.SingleflightDedupTotal.WithLabelValues(module).Inc()
}

// RecordHTTPError records HTTP error metrics
func (m *Metrics) RecordHTTPError(errorType, module string) {
	m.HTTPErrorsTotal.WithLabelValues(errorType, module).Inc()
}

// RecordRateLimiterWait records time spent waiting for rate limiter
func (m *Metrics) RecordRateLimiterWait(limiterType string, duration float64) {
	m.RateLimiterWaitDuration.WithLabelValues(limiterType).Observe(duration)
}

// RecordRateLimiterDrop records a request dropped by rate limiter
func (m *Metrics) RecordRateLimiterDrop(limiterType string) {
	m.RateLimiterDropped.WithLabelValues(limiterType).Inc()
}

// SetRateLimiterUsers sets the tracked user count for a keyed limiter
func (m *Metrics) SetRateLimiterUsers(limiterType string, count int) {
	m.RateLimiterUsers.WithLabelValues(limiterType).Set(float64(count))
}

// SetLogStoreEntries sets the log store size gauge
func (m *Metrics) SetLogStoreEntries(count int64) {
	m.LogStoreEntries.Set(float64(count))
}

// RecordLogCleanup records entries removed by retention cleanup
func (m *Metrics) RecordLogCleanup(deleted int64) {
	m.LogStoreDeletedTotal.Add(float64(deleted))
}

// RecordLogArchive records the outcome of an archive run
func (m *Metrics) RecordLogArchive(status string) {
	m.LogArchiveTotal.WithLabelValues(status).Inc()
}

// RecordLogSinkDrop records a log record lost on its way to a sink
func (m *Metrics) RecordLogSinkDrop(sink, reason string) {
	m.LogSinkDropsTotal.WithLabelValues(sink, reason).Inc()
}

// RecordJob records a background job duration
func (m *Metrics) RecordJob(job string, duration float64) {
	m.JobDurationSeconds.WithLabelValues(job).Observe(duration)
}
