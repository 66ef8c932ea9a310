package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// JanitorConfig controls the stuck-row sweep and published-row retention.
type JanitorConfig struct {
	SweepInterval    time.Duration
	ProcessingLease  time.Duration
	CleanupInterval  time.Duration
	PublishedTTL     time.Duration
}

func DefaultJanitorConfig() JanitorConfig {
	return JanitorConfig{
		SweepInterval:   5 * time.Second,
		ProcessingLease: 30 * time.Second,
		CleanupInterval: time.Hour,
		PublishedTTL:    7 * 24 * time.Hour,
	}
}

// Janitor is the separate periodic task spec §4.2's "Failure semantics"
// requires: it resets rows a crashed publisher left stuck in PROCESSING
// back to PENDING once their lease has expired, and prunes old PUBLISHED
// rows so the outbox table doesn't grow unbounded.
type Janitor struct {
	repo   Repository
	cfg    JanitorConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewJanitor(repo Repository, cfg JanitorConfig, logger *zap.Logger) *Janitor {
	return &Janitor{repo: repo, cfg: cfg, logger: logger, now: time.Now}
}

func (j *Janitor) Run(ctx context.Context) {
	j.logger.Info("starting outbox janitor",
		zap.Duration("sweep_interval", j.cfg.SweepInterval),
		zap.Duration("processing_lease", j.cfg.ProcessingLease),
	)

	sweepTicker := time.NewTicker(j.cfg.SweepInterval)
	defer sweepTicker.Stop()

	cleanupTicker := time.NewTicker(j.cfg.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("stopping outbox janitor")
			return
		case <-sweepTicker.C:
			j.sweepStuck(ctx)
		case <-cleanupTicker.C:
			j.cleanupPublished(ctx)
		}
	}
}

func (j *Janitor) sweepStuck(ctx context.Context) {
	threshold := j.now().UTC().Add(-j.cfg.ProcessingLease)
	reclaimed, err := j.repo.ReclaimStuck(ctx, threshold)
	if err != nil {
		j.logger.Error("outbox stuck-row sweep failed", zap.Error(err))
		return
	}
	if reclaimed > 0 {
		j.logger.Warn("reclaimed stuck outbox rows", zap.Int64("count", reclaimed))
	}
}

func (j *Janitor) cleanupPublished(ctx context.Context) {
	before := j.now().UTC().Add(-j.cfg.PublishedTTL)
	deleted, err := j.repo.DeletePublishedBefore(ctx, before)
	if err != nil {
		j.logger.Error("outbox published cleanup failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		j.logger.Info("purged published outbox rows", zap.Int64("count", deleted))
	}
}
