// Command backfill ingests CFTC disaggregated COT reports for a year range,
// derives positioning metrics and records a refresh run.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cot-sentiment-lab/internal/app"
	"cot-sentiment-lab/internal/config"
	"cot-sentiment-lab/internal/domain"
	"cot-sentiment-lab/internal/ingestion"
	"cot-sentiment-lab/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		from, to   int
	)

	cmd := &cobra.Command{
		Use:          "backfill",
		Short:        "Backfill COT weekly positions and sentiment metrics",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("to") && !cmd.Flags().Changed("from") {
				return fmt.Errorf("--to requires --from")
			}
			if cmd.Flags().Changed("from") && !cmd.Flags().Changed("to") {
				to = from
			}
			return run(cmd.Context(), configPath, from, to)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "config file path (env only when empty)")
	cmd.Flags().IntVar(&from, "from", 0, "first report year (default: backfill.start_year)")
	cmd.Flags().IntVar(&to, "to", 0, "last report year (default: --from)")

	return cmd
}

func run(parent context.Context, configPath string, from, to int) error {
	cfg, err := config.Load(configPath, configPath == "")
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if from != 0 {
		cfg.Backfill.StartYear, cfg.Backfill.EndYear = from, to
	}
	if err := cfg.Validate(time.Now()); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	observer := ingestion.ObserverFunc(func(t ingestion.Transition) {
		log.Debug("year transition",
			zap.Int("year", t.Year),
			zap.String("from", string(t.From)),
			zap.String("to", string(t.To)),
			zap.Int("rows", t.Rows),
		)
	})

	a, err := app.New(ctx, cfg, log, observer)
	if err != nil {
		return err
	}
	defer a.Close()

	var result *domain.RefreshRun
	if from == 0 {
		result, err = a.Backfiller.Run(ctx)
	} else {
		result, err = a.Backfiller.RunRange(ctx, from, to)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(app.NewRunView(result)); err != nil {
		return fmt.Errorf("encode run: %w", err)
	}

	log.Info("backfill finished",
		zap.String("run_id", result.ID),
		zap.String("status", result.Status()),
		zap.Int("rows_written", result.RowsWritten()),
		zap.Int("errors", len(result.Errors)),
	)
	return nil
}
