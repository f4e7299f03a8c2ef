package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/JonMunkholm/bulkimport/internal/config"
	"github.com/JonMunkholm/bulkimport/internal/core"
	"github.com/JonMunkholm/bulkimport/internal/progress"
	"github.com/JonMunkholm/bulkimport/internal/store/memory"
	"github.com/JonMunkholm/bulkimport/internal/store/postgres"
	"github.com/JonMunkholm/bulkimport/templates"
)

// app is the wired service plus everything that must be closed with it.
type app struct {
	service *core.Service
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// loadTemplates reads the template directory when configured, else the
// embedded seeds.
func loadTemplates(cfg *config.Config) (*core.TemplateRegistry, error) {
	if dir := cfg.Import.TemplateDir; dir != "" {
		reg, err := core.LoadRegistry(os.DirFS(dir), ".")
		if err != nil {
			return nil, fmt.Errorf("load templates from %s: %w", dir, err)
		}
		return reg, nil
	}
	return core.LoadRegistry(templates.FS, ".")
}

// newApp wires stores, breaker, publisher and service from cfg. Without a
// database URL jobs and content live in memory for the life of the process.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	reg, err := loadTemplates(cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("templates registered", "count", reg.Count())

	var (
		repo    core.JobRepository
		content core.ContentStore
	)
	if cfg.Database.URL == "" {
		slog.Warn("DATABASE_URL not set, using in-memory stores")
		repo = memory.NewJobRepository()
		content = memory.NewContentStore()
	} else {
		pool, err := postgres.Connect(ctx, cfg.Database.URL, int32(cfg.Database.MaxConns), int32(cfg.Database.MinConns))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)

		store := postgres.New(pool)
		if cfg.Database.Migrate {
			if err := store.Migrate(ctx); err != nil {
				a.Close()
				return nil, err
			}
		}
		slog.Info("connected to database", "max_conns", cfg.Database.MaxConns)
		repo, content = store, store
	}

	content = core.NewBreakerStore("content-store", content, core.BreakerSettings{
		MaxRequests:  1,
		Interval:     cfg.Breaker.Interval,
		Timeout:      cfg.Breaker.Timeout,
		MinRequests:  uint32(cfg.Breaker.MinRequests),
		FailureRatio: cfg.Breaker.FailureRatio,
	})

	var opts []core.Option
	if cfg.Redis.URL != "" {
		rdb, err := progress.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { rdb.Close() })
		opts = append(opts, core.WithPublisher(progress.NewRedisPublisher(rdb, cfg.Redis.KeyPrefix, cfg.Redis.ProgressTTL)))
		slog.Info("mirroring job progress to redis", "prefix", cfg.Redis.KeyPrefix)
	}

	a.service = core.NewService(reg, repo, content, core.ServiceConfig{
		MaxConcurrentJobs: cfg.Import.MaxConcurrentJobs,
		MaxWait:           cfg.Import.MaxWaitTime,
		JobTimeout:        cfg.Import.JobTimeout,
		MaxFileSize:       cfg.Import.MaxFileSize,
	}, opts...)
	return a, nil
}
