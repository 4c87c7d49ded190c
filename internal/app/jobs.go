package app

import (
	"context"
	"time"

	"github.com/snospb/vk-sno-bot/internal/config"
)

// Archive outcomes for vkbot_log_archive_total.
const (
	archiveSuccess = "success"
	archiveEmpty   = "empty"
	archiveSkipped = "skipped"
	archiveError   = "error"
)

// startBackgroundJobs starts all background goroutines tracked by WaitGroup.
func (a *Application) startBackgroundJobs(ctx context.Context) {
	a.wg.Go(func() {
		a.logCleanup(ctx)
	})
	a.wg.Go(func() {
		a.refreshMetrics(ctx)
	})
	if a.archiveLock != nil {
		a.wg.Go(func() {
			a.logArchive(ctx)
		})
	}
}

// logCleanup removes entries older than the retention window, first after a
// short delay and then every LogCleanupInterval.
func (a *Application) logCleanup(ctx context.Context) {
	a.logger.Debug("Log cleanup job started")
	defer a.logger.Debug("Log cleanup job stopped")

	select {
	case <-ctx.Done():
		return
	case <-time.After(config.LogCleanupInitialDelay):
		a.runLogCleanup(ctx)
	}

	ticker := time.NewTicker(config.LogCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Debug("Log cleanup received shutdown signal")
			return
		case <-ticker.C:
			a.runLogCleanup(ctx)
		}
	}
}

func (a *Application) runLogCleanup(ctx context.Context) {
	start := time.Now()

	deleted, err := a.logs.Cleanup(ctx, a.cfg.LogRetentionDays)
	if err != nil {
		a.logger.WithError(err).Error("Log cleanup failed")
		return
	}

	duration := time.Since(start)
	a.logger.WithField("deleted", deleted).
		WithField("retention_days", a.cfg.LogRetentionDays).
		WithField("duration_ms", duration.Milliseconds()).
		Info("Log cleanup completed")

	if a.metrics != nil {
		a.metrics.RecordLogCleanup(deleted)
		a.metrics.RecordJob("log_cleanup", duration.Seconds())
	}
}

// nextDailyRun returns the first time at hour:00 UTC strictly after now.
func nextDailyRun(now time.Time, hour int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// logArchive uploads the previous UTC day's logs once a day. Replicas share
// the bucket, so the upload runs under the distributed lock and only one of
// them archives a given day.
func (a *Application) logArchive(ctx context.Context) {
	a.logger.Debug("Log archive job started")
	defer a.logger.Debug("Log archive job stopped")

	for {
		next := nextDailyRun(time.Now(), config.LogArchiveHour)
		a.logger.WithField("next_run", next.Format(time.RFC3339)).
			Info("Scheduled next log archive (UTC)")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Debug("Log archive received shutdown signal")
			return
		case <-timer.C:
			a.runLogArchive(ctx, next.AddDate(0, 0, -1))
		}
	}
}

func (a *Application) runLogArchive(ctx context.Context, day time.Time) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, config.LogArchiveTimeout)
	defer cancel()

	status := archiveSuccess
	ran, err := a.archiveLock.Do(ctx, func(ctx context.Context) error {
		res, err := a.logs.Archive(ctx, a.objects, day)
		if err != nil {
			return err
		}
		if res.Entries == 0 {
			status = archiveEmpty
			a.logger.WithField("day", day.Format(time.DateOnly)).Info("No logs to archive")
			return nil
		}
		a.logger.WithField("day", day.Format(time.DateOnly)).
			WithField("key", res.Key).
			WithField("entries", res.Entries).
			WithField("bytes", res.Bytes).
			Info("Log archive uploaded")
		return nil
	})

	switch {
	case err != nil:
		status = archiveError
		a.logger.WithError(err).WithField("day", day.Format(time.DateOnly)).Error("Log archive failed")
	case !ran:
		status = archiveSkipped
		a.logger.WithField("owner", a.archiveLock.OwnerID()).Info("Log archive lock held by another instance")
	}

	if a.metrics != nil {
		a.metrics.RecordLogArchive(status)
		a.metrics.RecordJob("log_archive", time.Since(start).Seconds())
	}
}

// refreshMetrics periodically records gauge values that have no natural
// update point.
func (a *Application) refreshMetrics(ctx context.Context) {
	a.logger.Debug("Metrics refresh job started")
	defer a.logger.Debug("Metrics refresh job stopped")

	a.recordGauges(ctx)

	ticker := time.NewTicker(config.MetricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Debug("Metrics refresh received shutdown signal")
			return
		case <-ticker.C:
			a.recordGauges(ctx)
		}
	}
}

func (a *Application) recordGauges(ctx context.Context) {
	if a.metrics == nil {
		return
	}

	if n, err := a.state.Count(ctx); err == nil {
		a.metrics.SetAIModeUsers(n)
	} else {
		a.logger.WithError(err).Warn("Failed to count AI mode users")
	}
	if n, err := a.logs.Count(ctx); err == nil {
		a.metrics.SetLogStoreEntries(n)
	} else {
		a.logger.WithError(err).Warn("Failed to count log entries")
	}
	if a.userLimiter != nil {
		a.metrics.SetRateLimiterUsers("user", a.userLimiter.ActiveCount())
	}
}
