package core

// retention.go runs periodic cleanup of finished jobs:
//  1. Evict terminal jobs from the in-memory run table
//  2. Drop stored rows of finished jobs from the repository, when it supports it
//
// Jobs and their ledger records are kept for audit; only the raw rows,
// which exist to feed the loop, are purged.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionConfig holds configuration for the retention sweeper.
type RetentionConfig struct {
	Schedule string        // cron spec (default: "@every 1h")
	Keep     time.Duration // how long finished jobs stay in memory (default: 24h)
}

// RowPurger is implemented by repositories that can drop stored rows of
// finished jobs.
type RowPurger interface {
	PurgeFinishedRows(ctx context.Context, completedBefore time.Time) (int64, error)
}

// RetentionSweeper evicts and purges finished jobs on a cron schedule.
type RetentionSweeper struct {
	svc  *Service
	cfg  RetentionConfig
	cron *cron.Cron
}

// NewRetentionSweeper creates a sweeper for svc.
func NewRetentionSweeper(svc *Service, cfg RetentionConfig) *RetentionSweeper {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1h"
	}
	if cfg.Keep <= 0 {
		cfg.Keep = 24 * time.Hour
	}
	return &RetentionSweeper{
		svc:  svc,
		cfg:  cfg,
		cron: cron.New(),
	}
}

// Start registers the sweep and starts the scheduler. It stops when ctx is done.
func (r *RetentionSweeper) Start(ctx context.Context) error {
	if _, err := r.cron.AddFunc(r.cfg.Schedule, func() { r.Sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule retention sweep %q: %w", r.cfg.Schedule, err)
	}
	r.cron.Start()
	slog.Info("retention sweeper started", "schedule", r.cfg.Schedule, "keep", r.cfg.Keep.String())

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (r *RetentionSweeper) Stop() {
	<-r.cron.Stop().Done()
	slog.Info("retention sweeper stopped")
}

// Sweep performs one evict + purge cycle.
func (r *RetentionSweeper) Sweep(ctx context.Context) {
	start := time.Now()

	evicted := r.svc.EvictFinished(r.cfg.Keep)

	var purged int64
	if p, ok := r.svc.repo.(RowPurger); ok {
		n, err := p.PurgeFinishedRows(ctx, r.svc.now().Add(-r.cfg.Keep))
		if err != nil {
			slog.Error("purge finished job rows failed", "error", err)
		}
		purged = n
	}

	slog.Info("retention sweep completed",
		"jobs_evicted", evicted,
		"rows_purged", purged,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
