// Package logapi serves the persistent log store over HTTP under /logs.
package logapi

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/snospb/vk-sno-bot/internal/logger"
	"github.com/snospb/vk-sno-bot/internal/logstore"
	"github.com/snospb/vk-sno-bot/internal/metrics"
)

// Export defaults per format.
const (
	jsonExportLevel = logstore.LevelDebug
	jsonExportLimit = 5000
	csvExportLevel  = logstore.LevelInfo
	csvExportLimit  = 1000

	defaultErrorsLimit = 50
	defaultCleanupDays = 7
)

// Store is the log store surface the API reads and cleans.
type Store interface {
	Query(ctx context.Context, f logstore.Filter) ([]logstore.Entry, error)
	Stats(ctx context.Context) (*logstore.Stats, error)
	CountLevel(ctx context.Context, level string) (int64, error)
	Cleanup(ctx context.Context, days int) (int64, error)
}

// Handler serves the log routes.
type Handler struct {
	store     Store
	logger    *logger.Logger
	metrics   *metrics.Metrics
	startedAt time.Time
	now       func() time.Time
}

// NewHandler creates a handler. startedAt is the process start for uptime.
func NewHandler(store Store, log *logger.Logger, m *metrics.Metrics, startedAt time.Time) *Handler {
	return &Handler{
		store:     store,
		logger:    log.WithModule("logapi"),
		metrics:   m,
		startedAt: startedAt,
		now:       time.Now,
	}
}

type route struct {
	method  string
	path    string
	handler gin.HandlerFunc
}

// Register mounts the routes on rg, which is expected to be the /logs group
// with authentication applied. Other methods on a known path answer 405.
func (h *Handler) Register(rg *gin.RouterGroup) {
	routes := []route{
		{http.MethodGet, "", h.list},
		{http.MethodGet, "/stats", h.stats},
		{http.MethodGet, "/export", h.export},
		{http.MethodGet, "/errors", h.errors},
		{http.MethodGet, "/performance", h.performance},
		{http.MethodPost, "/cleanup", h.cleanup},
	}
	allMethods := []string{
		http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}
	for _, r := range routes {
		rg.Handle(r.method, r.path, r.handler)
		for _, m := range allMethods {
			if m != r.method {
				rg.Handle(m, r.path, methodNotAllowed)
			}
		}
	}
}

// NotFound answers unknown /logs paths.
func NotFound(c *gin.Context) {
	fail(c, http.StatusNotFound, "Log endpoint not found")
}

func methodNotAllowed(c *gin.Context) {
	fail(c, http.StatusMethodNotAllowed, "Method not allowed")
}

func respond(c *gin.Context, data gin.H, now time.Time) {
	data["timestamp"] = now.UTC().Format(time.RFC3339Nano)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}

func (h *Handler) internalError(c *gin.Context, op string, err error) {
	h.logger.WithError(err).WithField("endpoint", op).Error("Log API request failed")
	fail(c, http.StatusInternalServerError, "Internal server error")
}

// filterFromQuery reads level, limit, since, and includeMeta.
func filterFromQuery(c *gin.Context, defLevel string, defLimit int, defMeta bool) (logstore.Filter, error) {
	f := logstore.Filter{Level: defLevel, Limit: defLimit, IncludeMeta: defMeta}

	if raw := c.Query("level"); raw != "" {
		level, ok := logstore.ParseLevel(raw)
		if !ok {
			return f, fmt.Errorf("invalid level %q", raw)
		}
		f.Level = level
	}
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			f.Limit = min(n, logstore.MaxLimit)
		}
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, fmt.Errorf("invalid since %q: expected RFC 3339", raw)
		}
		f.Since = since
	}
	if raw := c.Query("includeMeta"); raw != "" {
		f.IncludeMeta = raw != "false"
	}
	return f, nil
}

// list handles GET /logs.
func (h *Handler) list(c *gin.Context) {
	f, err := filterFromQuery(c, logstore.LevelInfo, logstore.DefaultLimit, true)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := h.store.Query(c.Request.Context(), f)
	if err != nil {
		h.internalError(c, "logs", err)
		return
	}

	h.logger.WithField("level", f.Level).
		WithField("limit", f.Limit).
		WithField("count", len(entries)).
		Info("Logs endpoint accessed")

	respond(c, gin.H{
		"logs":  entries,
		"total": len(entries),
		"level": f.Level,
		"limit": f.Limit,
	}, h.now())
}

// stats handles GET /logs/stats.
func (h *Handler) stats(c *gin.Context) {
	st, err := h.store.Stats(c.Request.Context())
	if err != nil {
		h.internalError(c, "stats", err)
		return
	}
	h.logger.WithField("total", st.Total).Debug("Stats endpoint accessed")
	respond(c, gin.H{"stats": st}, h.now())
}

// export handles GET /logs/export?format=json|csv.
func (h *Handler) export(c *gin.Context) {
	format := c.DefaultQuery("format", "json")

	var (
		f   logstore.Filter
		err error
	)
	switch format {
	case "json":
		f, err = filterFromQuery(c, jsonExportLevel, jsonExportLimit, true)
		f.IncludeMeta = true
	case "csv":
		f, err = filterFromQuery(c, csvExportLevel, csvExportLimit, false)
		f.IncludeMeta = false
	default:
		fail(c, http.StatusBadRequest, "Unsupported format. Use json or csv.")
		return
	}
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.store.Query(c.Request.Context(), f)
	if err != nil {
		h.internalError(c, "export", err)
		return
	}

	filename := fmt.Sprintf("vk-bot-logs-%s.%s", h.now().UTC().Format(time.DateOnly), format)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	h.logger.WithField("format", format).
		WithField("level", f.Level).
		WithField("count", len(entries)).
		Info("Export endpoint accessed")

	if format == "json" {
		c.IndentedJSON(http.StatusOK, entries)
		return
	}
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	if err := logstore.WriteCSV(c.Writer, entries); err != nil {
		// Headers are already sent; the truncated body is all we can do.
		h.logger.WithError(err).Warn("CSV export interrupted")
	}
}

// errors handles GET /logs/errors.
func (h *Handler) errors(c *gin.Context) {
	limit := defaultErrorsLimit
	if n, err := strconv.Atoi(c.Query("limit")); err == nil && n > 0 {
		limit = min(n, logstore.MaxLimit)
	}
	ctx := c.Request.Context()

	entries, err := h.store.Query(ctx, logstore.Filter{Level: logstore.LevelError, Limit: limit, IncludeMeta: true})
	if err != nil {
		h.internalError(c, "errors", err)
		return
	}
	total, err := h.store.CountLevel(ctx, logstore.LevelError)
	if err != nil {
		h.internalError(c, "errors", err)
		return
	}

	respond(c, gin.H{
		"errors":   entries,
		"total":    total,
		"returned": len(entries),
	}, h.now())
}

// performance handles GET /logs/performance.
func (h *Handler) performance(c *gin.Context) {
	st, err := h.store.Stats(c.Request.Context())
	if err != nil {
		h.internalError(c, "performance", err)
		return
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	uptime := h.now().Sub(h.startedAt)

	percentage := 0
	if mem.HeapSys > 0 {
		percentage = int(mem.HeapInuse * 100 / mem.HeapSys)
	}

	respond(c, gin.H{
		"performance": gin.H{
			"system": gin.H{
				"uptime":           int64(uptime.Seconds()),
				"uptime_formatted": FormatUptime(uptime),
				"goroutines":       runtime.NumGoroutine(),
				"memory": gin.H{
					"alloc_mb":     toMB(mem.Alloc),
					"heap_used_mb": toMB(mem.HeapInuse),
					"heap_sys_mb":  toMB(mem.HeapSys),
					"sys_mb":       toMB(mem.Sys),
					"percentage":   percentage,
				},
			},
			"logs": gin.H{
				"total":    st.Total,
				"by_level": st.ByLevel,
				"by_hour":  st.ByHour,
				"errors":   st.ByLevel[logstore.LevelError],
				"sinks":    h.logger.SinkStats(),
			},
		},
	}, h.now())
}

// cleanup handles POST /logs/cleanup?days=N.
func (h *Handler) cleanup(c *gin.Context) {
	days := defaultCleanupDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fail(c, http.StatusBadRequest, "days must be a non-negative integer")
			return
		}
		days = n
	}

	deleted, err := h.store.Cleanup(c.Request.Context(), days)
	if err != nil {
		h.internalError(c, "cleanup", err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordLogCleanup(deleted)
	}

	h.logger.WithField("days_to_keep", days).
		WithField("deleted", deleted).
		Info("Cleanup endpoint accessed")

	respond(c, gin.H{
		"deleted":      deleted,
		"days_to_keep": days,
	}, h.now())
}

// FormatUptime renders d as "Xч Yм Zс".
func FormatUptime(d time.Duration) string {
	secs := int64(d.Seconds())
	return fmt.Sprintf("%dч %dм %dс", secs/3600, (secs%3600)/60, secs%60)
}

func toMB(b uint64) int64 {
	return int64(b / (1 << 20))
}
