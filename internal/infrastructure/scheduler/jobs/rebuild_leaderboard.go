// Package jobs contains the scheduled maintenance jobs.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/campus-progression/internal/domain/leaderboard"
	"github.com/alem-hub/campus-progression/internal/domain/progress"
	"github.com/alem-hub/campus-progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARD JOB
// ══════════════════════════════════════════════════════════════════════════════

// RebuildLeaderboardJob re-projects every avatar into the leaderboard index.
// The event-driven projection is at-least-once and may drop updates while
// the index is unavailable; this job converges the index back to the store.
// Upsert never lowers a value, so running it concurrently with live awards
// is safe.
type RebuildLeaderboardJob struct {
	store progress.Store
	index leaderboard.Index
	log   *logger.Logger
	cfg   RebuildLeaderboardConfig

	last atomic.Pointer[RebuildStats]
}

// RebuildLeaderboardConfig contains configuration for the rebuild job.
type RebuildLeaderboardConfig struct {
	// BatchSize is the number of avatars read per store page.
	BatchSize int

	// Concurrency bounds parallel index writes within a batch.
	Concurrency int
}

// DefaultRebuildLeaderboardConfig returns sensible defaults.
func DefaultRebuildLeaderboardConfig() RebuildLeaderboardConfig {
	return RebuildLeaderboardConfig{
		BatchSize:   500,
		Concurrency: 4,
	}
}

// RebuildStats contains statistics from a rebuild run.
type RebuildStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Avatars     int64
	Batches     int
}

// NewRebuildLeaderboardJob creates the job.
func NewRebuildLeaderboardJob(store progress.Store, index leaderboard.Index, log *logger.Logger, cfg RebuildLeaderboardConfig) *RebuildLeaderboardJob {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &RebuildLeaderboardJob{
		store: store,
		index: index,
		log:   log.Named("rebuild_leaderboard"),
		cfg:   cfg,
	}
}

// Name returns the job name.
func (j *RebuildLeaderboardJob) Name() string {
	return "rebuild_leaderboard"
}

// Description returns a human-readable description.
func (j *RebuildLeaderboardJob) Description() string {
	return "Re-projects every avatar into the overall and per-skill leaderboards"
}

// Run executes the rebuild.
func (j *RebuildLeaderboardJob) Run(ctx context.Context) error {
	stats := &RebuildStats{StartedAt: time.Now()}
	var processed atomic.Int64

	err := j.store.Scan(ctx, j.cfg.BatchSize, func(batch []*progress.Avatar) error {
		stats.Batches++

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(j.cfg.Concurrency)
		for _, a := range batch {
			standing := leaderboard.StandingFromAvatar(a)
			g.Go(func() error {
				if err := j.index.Upsert(gctx, standing); err != nil {
					return fmt.Errorf("upsert %s: %w", standing.UserID, err)
				}
				processed.Add(1)
				return nil
			})
		}
		return g.Wait()
	})

	stats.Avatars = processed.Load()
	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
	j.last.Store(stats)

	if err != nil {
		return fmt.Errorf("rebuild leaderboard: %w", err)
	}
	j.log.Info("leaderboard rebuilt",
		logger.Int64("avatars", stats.Avatars),
		logger.Int("batches", stats.Batches),
		logger.Latency(stats.Duration),
	)
	return nil
}

// LastStats returns statistics of the previous run, or nil.
func (j *RebuildLeaderboardJob) LastStats() *RebuildStats {
	return j.last.Load()
}
