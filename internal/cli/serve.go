package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/bulkimport/internal/config"
	"github.com/JonMunkholm/bulkimport/internal/core"
	"github.com/JonMunkholm/bulkimport/internal/web"
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	slog.Info("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// Background jobs stop with the signal context.
	sweeper := core.NewRetentionSweeper(a.service, core.RetentionConfig{
		Schedule: cfg.Retention.Schedule,
		Keep:     cfg.Retention.Keep,
	})
	if err := sweeper.Start(ctx); err != nil {
		return err
	}

	server := web.NewServer(a.service, cfg)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	status := a.service.Limiter().Status()
	if status.Active > 0 {
		slog.Info("waiting for import jobs to finish", "active", status.Active)
	}
	if err := a.service.Shutdown(shutdownCtx); err != nil {
		slog.Warn("import jobs did not finish in time", "error", err)
	}
	slog.Info("server stopped")
	return nil
}
