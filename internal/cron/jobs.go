package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/trekassist/internal/cache"
	"github.com/flemzord/trekassist/internal/knowledge"
)

// CacheMaintainer is the part of cache.Service the maintenance job drives.
type CacheMaintainer interface {
	Maintain(ctx context.Context) ([]cache.TierStats, error)
}

// CorpusRefresher rebuilds the knowledge corpus.
type CorpusRefresher interface {
	Refresh(ctx context.Context) error
}

// SessionCleaner deletes inactive conversations.
type SessionCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)
}

// CacheMaintenanceJob sweeps expired cache entries and logs per-cache stats.
type CacheMaintenanceJob struct {
	Cache        CacheMaintainer
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/5 * * * *"
}

var _ Job = (*CacheMaintenanceJob)(nil)

// Name implements Job.
func (j *CacheMaintenanceJob) Name() string { return "cache_maintenance" }

// Schedule implements Job.
func (j *CacheMaintenanceJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run implements Job.
func (j *CacheMaintenanceJob) Run(ctx context.Context) error {
	stats, err := j.Cache.Maintain(ctx)
	if err != nil {
		return fmt.Errorf("cron: cache maintenance: %w", err)
	}
	for _, s := range stats {
		j.Logger.Debug("cron: cache stats",
			"cache", s.Name, "size", s.Size, "max", s.MaxSize,
			"hits", s.Hits, "misses", s.Misses, "hit_rate", s.HitRate,
		)
	}
	return nil
}

// KnowledgeRefreshJob rebuilds the corpus on an interval and once at startup.
type KnowledgeRefreshJob struct {
	Corpus   CorpusRefresher
	Interval time.Duration // zero = 2h
	Logger   *slog.Logger
	// SkipStartup disables the run at scheduler start.
	SkipStartup bool
}

var _ StartupJob = (*KnowledgeRefreshJob)(nil)

// Name implements Job.
func (j *KnowledgeRefreshJob) Name() string { return "knowledge_refresh" }

// Schedule implements Job.
func (j *KnowledgeRefreshJob) Schedule() string {
	if j.Interval > 0 {
		return "@every " + j.Interval.String()
	}
	return "@every 2h"
}

// RunOnStart implements StartupJob.
func (j *KnowledgeRefreshJob) RunOnStart() bool { return !j.SkipStartup }

// Run implements Job. A stale corpus keeps serving, so a failed refresh is
// logged rather than reported.
func (j *KnowledgeRefreshJob) Run(ctx context.Context) error {
	err := j.Corpus.Refresh(ctx)
	if errors.Is(err, knowledge.ErrCorpusStale) {
		j.Logger.Warn("cron: knowledge refresh failed, serving previous corpus", "error", err)
		return nil
	}
	return err
}

// SessionCleanupJob deletes conversations idle for longer than MaxIdle.
// Escalated conversations are kept.
type SessionCleanupJob struct {
	Sessions     SessionCleaner
	MaxIdle      time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "0 3 * * *"
}

var _ Job = (*SessionCleanupJob)(nil)

// Name implements Job.
func (j *SessionCleanupJob) Name() string { return "session_cleanup" }

// Schedule implements Job.
func (j *SessionCleanupJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 3 * * *"
}

// Run implements Job.
func (j *SessionCleanupJob) Run(ctx context.Context) error {
	n, err := j.Sessions.Cleanup(ctx, j.MaxIdle)
	if err != nil {
		return fmt.Errorf("cron: session cleanup: %w", err)
	}
	if n > 0 {
		j.Logger.Info("cron: removed inactive sessions", "count", n)
	}
	return nil
}
