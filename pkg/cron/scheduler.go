// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mkravets/priceport/internal/domain/catalog"
	"github.com/mkravets/priceport/internal/domain/importer"
)

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron       *cron.Cron
	importer   *importer.Service
	priceStats *catalog.PriceStats
	staleAfter time.Duration
	logger     *slog.Logger
}

// NewScheduler creates a new job scheduler.
func NewScheduler(imp *importer.Service, priceStats *catalog.PriceStats, staleAfter time.Duration, logger *slog.Logger) *Scheduler {
	// Create cron with seconds disabled (standard 5-field format)
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:       c,
		importer:   imp,
		priceStats: priceStats,
		staleAfter: staleAfter,
		logger:     logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	// Abandoned-session sweep: runs daily at 3:00 AM
	if _, err := s.cron.AddFunc("0 3 * * *", s.sweepStaleSessions); err != nil {
		return err
	}
	// Median cache purge: runs hourly
	if _, err := s.cron.AddFunc("0 * * * *", s.purgeMedianCache); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow manually triggers the stale-session sweep (for testing/admin).
func (s *Scheduler) RunNow() {
	go s.sweepStaleSessions()
}

// sweepStaleSessions cancels sessions abandoned before reaching resolution.
func (s *Scheduler) sweepStaleSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	s.logger.Info("starting stale session sweep")

	cancelled, err := s.importer.SweepStale(ctx, s.staleAfter)
	if err != nil {
		s.logger.Error("stale session sweep failed", slog.Any("error", err))
		return
	}
	s.logger.Info("stale session sweep finished", slog.Int("cancelled", cancelled))
}

// purgeMedianCache drops expired median-cache entries.
func (s *Scheduler) purgeMedianCache() {
	removed := s.priceStats.PurgeExpired()
	if removed > 0 {
		s.logger.Debug("median cache purged", slog.Int("removed", removed))
	}
}
