package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ryanbastic/go-docsync/internal/api"
	"github.com/ryanbastic/go-docsync/internal/config"
	"github.com/ryanbastic/go-docsync/internal/hook"
	"github.com/ryanbastic/go-docsync/internal/session"
	"github.com/ryanbastic/go-docsync/internal/table"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), config.Load())
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	var notifier *hook.Notifier
	if len(cfg.HookEndpoints) > 0 {
		client := hook.NewClient(cfg.HookRetryMax, cfg.HookRetryBackoff, cfg.HookRPCTimeout)
		notifier = hook.NewNotifier(cfg.HookEndpoints, client, logger)
		logger.Info("change hooks enabled", "endpoints", len(cfg.HookEndpoints))
	}

	sessions := session.NewManager(st.catalog, sessionOptions(cfg), normalizerOptions(cfg), notifier, logger)
	go sessions.Sweep(ctx, cfg.SessionSweepInterval, cfg.SessionIdleTimeout)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewServer(logger, st.catalog, sessions, st.backends),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}
	notifier.Wait()

	logger.Info("shutdown complete")
	return nil
}

func sessionOptions(cfg config.Config) session.Options {
	return session.Options{
		MaxCount:          cfg.DefaultMaxCount,
		PageSize:          cfg.DefaultPageSize,
		DeleteConcurrency: cfg.DeleteConcurrency,
	}
}

func normalizerOptions(cfg config.Config) []table.NormalizerOption {
	return []table.NormalizerOption{
		table.WithLocation(cfg.Location()),
		table.WithNumericDates(cfg.CoerceNumericDates),
	}
}
