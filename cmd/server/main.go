// Command server runs scheduled COT refreshes and serves the operator API:
// /health, /metrics, /refresh/run, /refresh/status and /ws/progress.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cot-sentiment-lab/internal/app"
	"cot-sentiment-lab/internal/config"
	"cot-sentiment-lab/internal/logger"
	"cot-sentiment-lab/internal/progress"
	"cot-sentiment-lab/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Serve the COT refresh API and run scheduled refreshes",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "config file path (env only when empty)")

	return cmd
}

func serve(parent context.Context, configPath string) error {
	cfg, err := config.Load(configPath, configPath == "")
	if err != nil {
		return err
	}
	if err := cfg.Validate(time.Now()); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := progress.NewHub(log.Named("progress"))
	defer hub.Close()

	a, err := app.New(ctx, cfg, log, hub)
	if err != nil {
		return err
	}
	defer a.Close()

	api := app.NewServer(ctx, a.Backfiller, a.Stores.Runs, hub, log.Named("http"))
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	cron := scheduler.New(ctx, log.Named("scheduler"))
	if cfg.Server.RefreshSchedule != "" {
		id, err := cron.Add(cfg.Server.RefreshSchedule, func(ctx context.Context) {
			_ = api.Refresh(ctx)
		})
		if err != nil {
			return err
		}
		cron.Start()
		defer cron.Stop()
		log.Info("refresh scheduled",
			zap.String("spec", cfg.Server.RefreshSchedule),
			zap.Time("next", cron.Next(id)),
		)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if cfg.Server.RefreshOnStart {
		g.Go(func() error {
			// Failures are recorded in the run log; they do not stop the server
			_ = api.Refresh(gctx)
			return nil
		})
	}

	return g.Wait()
}
