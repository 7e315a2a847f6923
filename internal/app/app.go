// Package app wires configuration, storage, the CFTC source and the
// backfill controller into a runnable application.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cot-sentiment-lab/internal/cftc"
	"cot-sentiment-lab/internal/config"
	"cot-sentiment-lab/internal/domain"
	"cot-sentiment-lab/internal/ingestion"
	"cot-sentiment-lab/internal/storage"
	chstore "cot-sentiment-lab/internal/storage/clickhouse"
	"cot-sentiment-lab/internal/storage/memory"
	"cot-sentiment-lab/internal/storage/migrations"
	pgstore "cot-sentiment-lab/internal/storage/postgres"
)

// Stores holds the four stores the backfill controller writes to.
type Stores struct {
	Contracts storage.ContractStore
	Positions storage.WeeklyPositionStore
	Metrics   storage.MetricStore
	Runs      storage.RefreshRunStore

	closers []func()
}

// Close releases all underlying connections.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// OpenStores creates stores for cfg. MetricRecords go to ClickHouse when a
// ClickHouse DSN is set, regardless of driver.
func OpenStores(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*Stores, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Stores{}

	switch cfg.Driver {
	case config.DriverMemory:
		s.Contracts = memory.NewContractStore()
		s.Positions = memory.NewWeeklyPositionStore()
		s.Metrics = memory.NewMetricStore()
		s.Runs = memory.NewRefreshRunStore()

	case config.DriverPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)

		if cfg.Migrate {
			applied, err := migrations.RunPostgresMigrations(ctx, pool)
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("postgres migrations: %w", err)
			}
			logger.Info("postgres migrations applied", zap.Strings("files", applied))
		}

		s.Contracts = pgstore.NewContractStore(pool)
		s.Positions = pgstore.NewWeeklyPositionStore(pool)
		s.Metrics = pgstore.NewMetricStore(pool)
		s.Runs = pgstore.NewRefreshRunStore(pool)

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}

	if cfg.ClickhouseDSN != "" {
		var (
			conn *chstore.Conn
			err  error
		)
		if cfg.Migrate {
			conn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		} else {
			conn, err = chstore.NewConn(ctx, cfg.ClickhouseDSN)
		}
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		s.closers = append(s.closers, func() { _ = conn.Close() })
		s.Metrics = chstore.NewMetricStore(conn)
		logger.Info("metric records routed to clickhouse")
	}

	return s, nil
}

// App is a fully wired backfill application.
type App struct {
	Config     config.Config
	Logger     *zap.Logger
	Stores     *Stores
	Source     *cftc.BreakerSource
	Backfiller *ingestion.Backfiller
}

// New opens stores and builds the source and controller. observer may be nil.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, observer ingestion.Observer) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	stores, err := OpenStores(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	client := cftc.NewClient(
		cftc.WithURLTemplate(cfg.Source.URLTemplate),
		cftc.WithTimeout(cfg.Source.Timeout),
		cftc.WithLogger(logger.Named("cftc")),
	)
	source := cftc.NewBreakerSource(client, cftc.BreakerSettings{
		MaxRequests:         cfg.Source.Breaker.MaxRequests,
		Interval:            cfg.Source.Breaker.Interval,
		Timeout:             cfg.Source.Breaker.Timeout,
		ConsecutiveFailures: cfg.Source.Breaker.ConsecutiveFailures,
	}, logger)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Stores:     stores,
		Source:     source,
		Backfiller: NewBackfiller(cfg.Backfill, source, stores, observer, logger),
	}, nil
}

// NewBackfiller builds a controller over source and stores.
func NewBackfiller(cfg config.BackfillConfig, source ingestion.ReportSource, stores *Stores, observer ingestion.Observer, logger *zap.Logger) *ingestion.Backfiller {
	return ingestion.NewBackfiller(ingestion.BackfillOptions{
		Source:        source,
		ContractStore: stores.Contracts,
		PositionStore: stores.Positions,
		MetricStore:   stores.Metrics,
		RunStore:      stores.Runs,
		Window:        cfg.Window,
		BatchSize:     cfg.BatchSize,
		StartYear:     cfg.StartYear,
		EndYear:       cfg.EndYear,
		DefaultSector: cfg.DefaultSector,
		Observer:      observer,
		Logger:        logger.Named("backfill"),
	})
}

// Close releases stores.
func (a *App) Close() {
	a.Stores.Close()
}

// RunView is the JSON form of a RefreshRun.
type RunView struct {
	ID          string         `json:"id"`
	RunAt       time.Time      `json:"run_at"`
	StartYear   int            `json:"start_year"`
	EndYear     int            `json:"end_year"`
	Status      string         `json:"status"`
	WeeklyRows  int            `json:"weekly_rows"`
	MetricRows  int            `json:"metric_rows"`
	RowsWritten int            `json:"rows_written"`
	RowsDropped int            `json:"rows_dropped"`
	Error       *string        `json:"error"`
	Errors      []RunErrorView `json:"errors"`
}

// RunErrorView is the JSON form of a RunError.
type RunErrorView struct {
	Year     int    `json:"year"`
	Stage    string `json:"stage"`
	Contract string `json:"contract,omitempty"`
	Batch    int    `json:"batch,omitempty"`
	Message  string `json:"message"`
}

// NewRunView converts r for output.
func NewRunView(r *domain.RefreshRun) RunView {
	errs := make([]RunErrorView, 0, len(r.Errors))
	for _, e := range r.Errors {
		errs = append(errs, RunErrorView{
			Year:     e.Year,
			Stage:    e.Stage,
			Contract: e.Contract,
			Batch:    e.Batch,
			Message:  e.Message,
		})
	}
	return RunView{
		ID:          r.ID,
		RunAt:       r.RunAt,
		StartYear:   r.StartYear,
		EndYear:     r.EndYear,
		Status:      r.Status(),
		WeeklyRows:  r.WeeklyRows,
		MetricRows:  r.MetricRows,
		RowsWritten: r.RowsWritten(),
		RowsDropped: r.RowsDropped,
		Error:       r.ErrorSummary(),
		Errors:      errs,
	}
}
