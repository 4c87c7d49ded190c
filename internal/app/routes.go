package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snospb/vk-sno-bot/internal/buildinfo"
	"github.com/snospb/vk-sno-bot/internal/config"
	"github.com/snospb/vk-sno-bot/internal/logapi"
)

// logsPrefix is the mount point of the log API.
const logsPrefix = "/logs"

func (a *Application) newRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	router.Use(securityHeadersMiddleware())
	router.Use(loggingMiddleware(a.logger))

	router.GET("/health", a.healthCheck)
	router.GET("/livez", a.livenessCheck)
	router.HEAD("/livez", a.livenessCheck)
	router.GET("/readyz", a.readinessCheck)
	router.HEAD("/readyz", a.readinessCheck)
	router.POST("/callback", a.webhookHandler.Handle)
	router.POST("/webhook", a.webhookHandler.Handle)
	router.GET("/metrics",
		basicAuthMiddleware("metrics", a.cfg.MetricsAuthEnabled, a.cfg.MetricsUsername, a.cfg.MetricsPassword),
		gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	if a.cfg.LogAPIEnabled {
		auth := basicAuthMiddleware("logs", true, a.cfg.LogAPIUsername, a.cfg.LogAPIPassword)
		group := router.Group(logsPrefix, auth)
		logapi.NewHandler(a.logs, a.logger, a.metrics, a.startedAt).Register(group)
	}

	router.NoRoute(func(c *gin.Context) {
		if a.cfg.LogAPIEnabled && strings.HasPrefix(c.Request.URL.Path, logsPrefix+"/") {
			logapi.NotFound(c)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}

func version() string {
	if buildinfo.Version != "" {
		return buildinfo.Version
	}
	return "dev"
}

func (a *Application) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "OK",
		"timestamp":   time.Now().UTC().Format(time.RFC3339Nano),
		"version":     version(),
		"bot":         a.cfg.BotName,
		"environment": a.cfg.Environment,
	})
}

func (a *Application) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}

func (a *Application) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), config.ReadinessCheckTimeout)
	defer cancel()

	if err := a.logs.Ping(ctx); err != nil {
		a.logger.WithError(err).Warn("Readiness check failed: log store unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "log store unavailable",
		})
		return
	}

	if err := a.state.Ping(ctx); err != nil {
		a.logger.WithError(err).Warn("Readiness check failed: state store unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "state store unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "ready",
		"log_store":     "connected",
		"state_backend": a.cfg.StateBackend,
		"features": gin.H{
			"ai_helper":      a.ai.Enabled(),
			"object_storage": a.objects != nil,
			"log_archive":    a.archiveLock != nil,
		},
	})
}
