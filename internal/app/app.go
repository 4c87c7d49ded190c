// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/snospb/vk-sno-bot/internal/bot"
	"github.com/snospb/vk-sno-bot/internal/catalog"
	"github.com/snospb/vk-sno-bot/internal/config"
	"github.com/snospb/vk-sno-bot/internal/genai"
	"github.com/snospb/vk-sno-bot/internal/logger"
	"github.com/snospb/vk-sno-bot/internal/logstore"
	"github.com/snospb/vk-sno-bot/internal/media"
	"github.com/snospb/vk-sno-bot/internal/metrics"
	"github.com/snospb/vk-sno-bot/internal/objstore"
	"github.com/snospb/vk-sno-bot/internal/ratelimit"
	"github.com/snospb/vk-sno-bot/internal/sentry"
	"github.com/snospb/vk-sno-bot/internal/session"
	"github.com/snospb/vk-sno-bot/internal/vk"
	"github.com/snospb/vk-sno-bot/internal/webhook"
)

// Application manages the application lifecycle and dependencies.
type Application struct {
	cfg            *config.Config
	logger         *logger.Logger
	metrics        *metrics.Metrics
	registry       *prometheus.Registry
	logs           *logstore.Store
	state          session.Store
	ai             *genai.Adapter
	objects        *objstore.Client          // nil when object storage is disabled
	archiveLock    *objstore.DistributedLock // nil unless log archiving is enabled
	media          *media.Resolver
	controller     *bot.Controller
	webhookHandler *webhook.Handler
	userLimiter    *ratelimit.KeyedLimiter
	router         *gin.Engine
	server         *http.Server
	startedAt      time.Time
	wg             sync.WaitGroup // Track background goroutines for graceful shutdown
}

// Initialize creates and initializes a new application with all dependencies.
func Initialize(ctx context.Context, cfg *config.Config) (*Application, error) {
	logs, err := logstore.Open(ctx, cfg.LogStorePath)
	if err != nil {
		return nil, fmt.Errorf("log store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	m := metrics.New(registry)

	logOpts := logger.Options{
		Sinks: []logger.Sink{{Name: "logstore", Handler: logstore.NewHandler(logs)}},
		Async: logger.AsyncOptions{OnDrop: m.RecordLogSinkDrop},
	}
	if cfg.BetterStackEnabled {
		logOpts.BetterStackToken = cfg.BetterStackToken
		logOpts.BetterStackEndpoint = cfg.BetterStackEndpoint
	}
	log := logger.NewWithOptions(cfg.LogLevel, os.Stdout, logOpts)
	log = log.WithField("service", "vk-sno-bot")
	if host, err := os.Hostname(); err == nil && host != "" {
		log = log.WithField("instance_id", host)
	}

	// Package-level slog calls (genai) pick up user and peer IDs through the
	// ContextHandler only when this logger is the default.
	slog.SetDefault(log.Logger)

	log.Info("Initializing application...")

	if cfg.SentryEnabled {
		if err := sentry.Initialize(sentry.Config{
			Token:       cfg.SentryToken,
			Host:        cfg.SentryHost,
			Environment: cfg.Environment,
			Release:     cfg.SentryRelease,
			SampleRate:  cfg.SentrySampleRate,
			Secrets:     []string{cfg.VKAccessToken, cfg.VKSecretKey, cfg.GigaChatCredentials, cfg.OpenAIAPIKey, cfg.GeminiAPIKey},
		}); err != nil {
			log.WithError(err).Warn("Sentry initialization failed")
		} else {
			log.WithField("host", cfg.SentryHost).Info("Error tracking enabled")
		}
	}

	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("response catalog: %w", err)
	}
	if cfg.CatalogFile != "" {
		log.WithField("path", cfg.CatalogFile).Info("Response catalog override loaded")
	}

	state, err := newStateStore(ctx, cfg)
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("state store: %w", err)
	}
	log.WithField("backend", cfg.StateBackend).Info("Conversation state store ready")

	answerer := genai.NewAnswerer(ctx, buildAIConfig(cfg), m)
	ai := genai.NewAdapter(cfg.AIEnabled, cfg.AITimeout, answerer)
	log.WithField("enabled", cfg.AIEnabled).
		WithField("providers", answerer.Len()).
		Info("AI helper configured")

	app := &Application{
		cfg:       cfg,
		logger:    log,
		metrics:   m,
		registry:  registry,
		logs:      logs,
		state:     state,
		ai:        ai,
		startedAt: time.Now(),
	}

	var remote media.RemoteStore
	if cfg.S3Enabled {
		objects, err := objstore.New(ctx, objstore.Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicBaseURL:   cfg.S3PublicBaseURL,
		})
		if err != nil {
			app.closeStores()
			return nil, fmt.Errorf("object storage: %w", err)
		}
		app.objects = objects
		remote = objects
		if cfg.ArchiveEnabled() {
			app.archiveLock = objstore.NewDistributedLock(objects, cfg.S3LockKey, cfg.S3LockTTL)
		}
		log.WithField("bucket", cfg.S3Bucket).Info("Object storage enabled")
	}

	app.media = media.NewResolver(media.Config{
		Dir:          cfg.MediaDir,
		Remote:       remote,
		RemotePrefix: cfg.S3MediaPrefix,
		Logger:       log,
		Metrics:      m,
	})

	sender := vk.NewClient(vk.Config{
		AccessToken:   cfg.VKAccessToken,
		APIVersion:    cfg.VKAPIVersion,
		BaseURL:       cfg.VKAPIBaseURL,
		HTTPClient:    &http.Client{Timeout: config.VKRequest},
		Throttle:      ratelimit.NewThrottle("vk_send", cfg.SendRateRPS, m),
		Metrics:       m,
		UploadTimeout: config.VKPhotoUpload,
	})

	app.controller, err = bot.NewController(bot.Config{
		Catalog: cat,
		Store:   state,
		Locks:   session.NewUserLocks(),
		AI:      ai,
		Sender:  sender,
		Media:   app.media,
		Logger:  log,
		Metrics: m,
		Timeout: cfg.WebhookTimeout,
	})
	if err != nil {
		app.closeStores()
		return nil, fmt.Errorf("controller: %w", err)
	}

	app.userLimiter = ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:          "user",
		Burst:         cfg.UserRateBurst,
		RefillRate:    cfg.UserRateRefill,
		DailyLimit:    cfg.UserRateDaily,
		CleanupPeriod: config.RateLimiterCleanupInterval,
		Metrics:       m,
	})

	app.webhookHandler, err = webhook.NewHandler(webhook.Config{
		ConfirmationToken: cfg.VKConfirmationToken,
		Secret:            cfg.VKSecretKey,
		GroupID:           cfg.VKGroupID,
		Processor:         app.controller,
		Limiter:           app.userLimiter,
		Logger:            log,
		Metrics:           m,
	})
	if err != nil {
		app.userLimiter.Stop()
		app.closeStores()
		return nil, fmt.Errorf("webhook: %w", err)
	}

	app.router = app.newRouter()
	app.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.router,
		ReadHeaderTimeout: config.WebhookHTTPRead,
		ReadTimeout:       config.WebhookHTTPRead,
		WriteTimeout:      config.WebhookHTTPWrite,
		IdleTimeout:       config.WebhookHTTPIdle,
	}

	log.Info("Initialization complete")
	return app, nil
}

func newStateStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	if cfg.StateBackend != config.StateBackendRedis {
		return session.NewMemoryStore(), nil
	}
	return session.NewRedisStore(ctx, session.RedisOptions{
		Addr:      cfg.RedisAddr,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		KeyPrefix: cfg.RedisKeyPrefix,
	})
}

// buildAIConfig creates a genai.Config from the application config.
func buildAIConfig(cfg *config.Config) genai.Config {
	aiCfg := genai.Config{
		Enabled: cfg.AIEnabled,
		Timeout: cfg.AITimeout,
		GigaChat: genai.GigaChatConfig{
			Credentials: cfg.GigaChatCredentials,
			Scope:       cfg.GigaChatScope,
			Model:       cfg.GigaChatModel,
			BaseURL:     cfg.GigaChatBaseURL,
			AuthURL:     cfg.GigaChatAuthURL,
		},
		OpenAI: genai.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		},
		Gemini: genai.GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
		},
		Retry: genai.DefaultRetryConfig(),
	}
	for _, p := range cfg.AIProviders {
		aiCfg.Providers = append(aiCfg.Providers, genai.Provider(p))
	}
	return aiCfg
}

// Handler returns the HTTP handler serving every route.
func (a *Application) Handler() http.Handler {
	return a.router
}

// Run starts the HTTP server and background jobs, then blocks until ctx is
// canceled and shuts everything down.
//
// Shutdown order:
//  1. Cancel background jobs and wait for them
//  2. Stop the HTTP server
//  3. Drain in-flight callback events
//  4. Close the AI adapter, state store and rate limiter
//  5. Flush the logger into the log store, then close it
//  6. Flush Sentry
func (a *Application) Run(ctx context.Context) error {
	jobsCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.startBackgroundJobs(jobsCtx)
	serverErr := a.startHTTPServer()

	select {
	case <-ctx.Done():
		a.logger.Info("Received shutdown signal")
	case err := <-serverErr:
		a.logger.WithError(err).Error("HTTP server stopped unexpectedly")
	}

	cancel()

	a.logger.Info("Waiting for background jobs to finish...")
	start := time.Now()
	a.wg.Wait()
	a.logger.WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("All background jobs completed")

	return a.shutdown()
}

// startHTTPServer starts the HTTP server in a goroutine. The returned channel
// receives the error if the server fails.
func (a *Application) startHTTPServer() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.WithField("port", a.cfg.Port).Info("Starting HTTP server")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

func (a *Application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	a.logger.Info("Stopping HTTP server...")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("HTTP server shutdown error")
	}

	a.logger.Info("Waiting for callback events to complete...")
	if err := a.webhookHandler.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("Webhook handler shutdown timeout")
	}

	a.logger.Info("Closing resources...")
	if err := a.ai.Close(); err != nil {
		a.logger.WithError(err).WithField("component", "ai_adapter").Error("Component close error")
	}
	a.userLimiter.Stop()

	a.logger.Info("Shutdown complete")
	if err := a.logger.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("Logger shutdown timed out")
	}
	a.closeStores()
	sentry.Flush(2 * time.Second)
	return nil
}

// closeStores closes the state and log stores. Safe to call during a failed
// Initialize.
func (a *Application) closeStores() {
	if a.state != nil {
		if err := a.state.Close(); err != nil {
			a.logger.WithError(err).WithField("component", "state_store").Error("Component close error")
		}
	}
	if a.logs != nil {
		if err := a.logs.Close(); err != nil {
			a.logger.WithError(err).WithField("component", "log_store").Error("Component close error")
		}
	}
}
