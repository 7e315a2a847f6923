package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cot-sentiment-lab/internal/domain"
	"cot-sentiment-lab/internal/normalization"
	"cot-sentiment-lab/internal/observability"
	"cot-sentiment-lab/internal/registry"
	"cot-sentiment-lab/internal/storage"
)

// Defaults for BackfillOptions.
const (
	DefaultStartYear = 2008
	DefaultBatchSize = MaxBatchSize
)

// Backfiller drives report years through normalization, derivation and
// batched upserts, and records one RefreshRun per invocation.
// Only one run may be active at a time.
type Backfiller struct {
	source        ReportSource
	contractStore storage.ContractStore
	positionStore storage.WeeklyPositionStore
	metricStore   storage.MetricStore
	runStore      storage.RefreshRunStore
	window        int
	batchSize     int
	startYear     int
	endYear       int // 0 means the current UTC year
	defaultSector string
	observer      Observer
	clock         func() time.Time
	logger        *zap.Logger

	mu      sync.Mutex
	running bool
}

// BackfillOptions contains configuration for creating a Backfiller.
type BackfillOptions struct {
	Source        ReportSource
	ContractStore storage.ContractStore
	PositionStore storage.WeeklyPositionStore
	MetricStore   storage.MetricStore
	RunStore      storage.RefreshRunStore
	Window        int    // Default: 156 reports
	BatchSize     int    // Default: 500, clamped to [1, 500]
	StartYear     int    // Default: 2008
	EndYear       int    // Default: current UTC year
	DefaultSector string // Default: "Unknown"
	Observer      Observer
	Clock         func() time.Time // Default: time.Now
	Logger        *zap.Logger
}

// NewBackfiller creates a new Backfiller.
func NewBackfiller(opts BackfillOptions) *Backfiller {
	window := opts.Window
	if window <= 0 {
		window = normalization.DefaultWindow
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 || batchSize > MaxBatchSize {
		batchSize = DefaultBatchSize
	}

	startYear := opts.StartYear
	if startYear == 0 {
		startYear = DefaultStartYear
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Backfiller{
		source:        opts.Source,
		contractStore: opts.ContractStore,
		positionStore: opts.PositionStore,
		metricStore:   opts.MetricStore,
		runStore:      opts.RunStore,
		window:        window,
		batchSize:     batchSize,
		startYear:     startYear,
		endYear:       opts.EndYear,
		defaultSector: opts.DefaultSector,
		observer:      opts.Observer,
		clock:         clock,
		logger:        logger,
	}
}

// Running reports whether a backfill is in progress.
func (b *Backfiller) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// DefaultRange returns [StartYear, EndYear], where EndYear defaults to the
// current UTC year.
func (b *Backfiller) DefaultRange() (from, to int) {
	to = b.endYear
	if to == 0 {
		to = b.clock().UTC().Year()
	}
	return b.startYear, to
}

// Run backfills DefaultRange.
func (b *Backfiller) Run(ctx context.Context) (*domain.RefreshRun, error) {
	from, to := b.DefaultRange()
	return b.RunRange(ctx, from, to)
}

// RunRange backfills the inclusive year range [from, to] in ascending order.
//
// Year failures never abort the run; they are collected into the returned
// RefreshRun. An error is returned only when the run cannot proceed at all
// (contract registry load) or cannot be recorded; in the first case the
// failure is still recorded before returning.
func (b *Backfiller) RunRange(ctx context.Context, from, to int) (*domain.RefreshRun, error) {
	start, err := b.Begin(from, to)
	if err != nil {
		return nil, err
	}
	return start(ctx)
}

// Begin reserves the backfiller for the range [from, to] and returns the
// function that executes it. Once Begin succeeds, Running reports true and
// later reservations fail with ErrRunInProgress until the returned function
// has completed. The returned function must be called exactly once.
func (b *Backfiller) Begin(from, to int) (func(context.Context) (*domain.RefreshRun, error), error) {
	if from > to {
		return nil, fmt.Errorf("invalid year range %d-%d", from, to)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil, ErrRunInProgress
	}
	b.running = true

	return func(ctx context.Context) (*domain.RefreshRun, error) {
		defer func() {
			b.mu.Lock()
			b.running = false
			b.mu.Unlock()
		}()
		return b.runRange(ctx, from, to)
	}, nil
}

func (b *Backfiller) runRange(ctx context.Context, from, to int) (*domain.RefreshRun, error) {
	started := b.clock()
	run := &domain.RefreshRun{
		ID:        uuid.NewString(),
		RunAt:     started.UTC(),
		StartYear: from,
		EndYear:   to,
	}
	log := b.logger.With(zap.String("run_id", run.ID))
	log.Info("backfill started", zap.Int("from", from), zap.Int("to", to), zap.Int("window", b.window))

	// Identifiers from earlier runs must be visible before the first year
	resolver := registry.NewResolver(b.contractStore, b.defaultSector)
	if err := resolver.Load(ctx); err != nil {
		loadErr := fmt.Errorf("load contracts: %w", err)
		run.Errors = append(run.Errors, domain.RunError{Year: from, Stage: string(StatePending), Message: loadErr.Error()})
		log.Error("backfill aborted", zap.Error(loadErr))
		if recErr := b.record(ctx, run, started); recErr != nil {
			return run, errors.Join(loadErr, recErr)
		}
		return run, loadErr
	}

	for year := from; year <= to; year++ {
		out := b.ingestYear(ctx, run.ID, resolver, year)

		run.WeeklyRows += out.weeklyRows
		run.MetricRows += out.metricRows
		run.RowsDropped += out.dropped
		for _, e := range out.errs {
			run.Errors = append(run.Errors, e.RunError())
		}
	}
	observability.UpdateContractsKnown(resolver.Known())

	if err := b.record(ctx, run, started); err != nil {
		return run, err
	}

	log.Info("backfill finished",
		zap.String("status", run.Status()),
		zap.Int("weekly_rows", run.WeeklyRows),
		zap.Int("metric_rows", run.MetricRows),
		zap.Int("rows_dropped", run.RowsDropped),
		zap.Int("errors", len(run.Errors)),
		zap.Duration("duration", b.clock().Sub(started)),
	)
	return run, nil
}

// recordTimeout bounds the run log write once the run context is detached.
const recordTimeout = 30 * time.Second

// record appends run to the run log and updates run metrics. The write is
// detached from ctx cancellation so a cancelled run is still logged.
func (b *Backfiller) record(ctx context.Context, run *domain.RefreshRun, started time.Time) error {
	finished := b.clock()
	observability.RecordRun(run.Status(), finished.Sub(started).Seconds(), len(run.Errors), finished.Unix())

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := b.runStore.Insert(ctx, run); err != nil {
		return fmt.Errorf("record refresh run: %w", err)
	}
	return nil
}

// yearOutcome is the contribution of one year to the run.
type yearOutcome struct {
	weeklyRows int
	metricRows int
	dropped    int
	errs       []*StageError
}

// ingestYear runs one year through the state machine. It never returns an
// error; every failure is attributed in the outcome.
func (b *Backfiller) ingestYear(ctx context.Context, runID string, resolver *registry.Resolver, year int) yearOutcome {
	var out yearOutcome
	log := b.logger.With(zap.String("run_id", runID), zap.Int("year", year))
	m := newYearMachine(runID, year, ObserverFunc(b.notify), b.clock)

	fail := func(se *StageError) {
		out.errs = append(out.errs, se)
		observability.RecordUnitFailure(string(se.Stage), kindOf(se.Err))
		log.Warn("unit failed",
			zap.String("stage", string(se.Stage)),
			zap.String("contract", se.Contract),
			zap.Int("batch", se.Batch),
			zap.Error(se.Err),
		)
	}

	b.advance(m, StateDownloading, 0, nil)
	rows, err := b.source.Fetch(ctx, year)
	if err != nil {
		if errors.Is(err, ErrReportUnavailable) {
			log.Info("report unavailable, skipping year", zap.Error(err))
			b.advance(m, StateDone, 0, nil)
			observability.RecordYear("unavailable")
			return out
		}
		if !errors.Is(err, ErrRetrieval) {
			err = fmt.Errorf("%w: %w", ErrRetrieval, err)
		}
		se := &StageError{Year: year, Stage: StateDownloading, Err: err}
		fail(se)
		b.advance(m, StateFailed, 0, se)
		observability.RecordYear("failed")
		return out
	}

	b.advance(m, StateNormalizing, len(rows), nil)
	positions, dropped := normalization.NormalizeRows(rows)
	out.dropped = dropped
	observability.RecordRowsDropped(dropped)
	if dropped > 0 {
		log.Info("dropped malformed rows", zap.Int("dropped", dropped))
	}

	var resolved [][]*domain.WeeklyPosition
	for _, group := range groupByContract(positions) {
		name := group[0].ContractName
		id, err := resolver.Resolve(ctx, name)
		if err != nil {
			fail(&StageError{
				Year:     year,
				Stage:    StateNormalizing,
				Contract: name,
				Err:      fmt.Errorf("%w: %w", ErrIdentifierResolution, err),
			})
			continue
		}
		for _, p := range group {
			p.ContractID = id
		}
		resolved = append(resolved, group)
	}

	var weekly []*domain.WeeklyPosition
	names := make(map[string]string, len(resolved)) // contract id -> name
	for _, group := range resolved {
		weekly = append(weekly, group...)
		names[group[0].ContractID] = group[0].ContractName
	}

	b.advance(m, StateDeriving, len(weekly), nil)
	var metrics []*domain.MetricRecord
	for _, group := range resolved {
		seed, err := b.seed(ctx, group)
		if err != nil {
			fail(&StageError{
				Year:     year,
				Stage:    StateDeriving,
				Contract: group[0].ContractName,
				Err:      fmt.Errorf("%w: %w", ErrHistorySeed, err),
			})
			continue
		}
		metrics = append(metrics, normalization.BuildMetrics(seed, group, b.window)...)
	}

	b.advance(m, StateWriting, len(metrics), nil)
	weeklyRes := Upsert(ctx, weekly, b.batchSize, b.positionStore.UpsertBulk)
	for _, f := range weeklyRes.Failures {
		batch := weekly[f.Offset : f.Offset+f.Size]
		fail(&StageError{
			Year:     year,
			Stage:    StateWriting,
			Contract: contractSpan(batch[0].ContractName, batch[len(batch)-1].ContractName),
			Batch:    f.Batch,
			Err:      fmt.Errorf("%w: cot_weekly rows %d-%d: %w", ErrWriteBatch, f.Offset+1, f.Offset+f.Size, f.Err),
		})
	}

	// Metrics over missing raw rows would seed later years from a gap
	if len(weeklyRes.Failures) > 0 {
		incomplete := make(map[string]bool)
		for _, f := range weeklyRes.Failures {
			for _, p := range weekly[f.Offset : f.Offset+f.Size] {
				incomplete[p.ContractID] = true
			}
		}
		kept := make([]*domain.MetricRecord, 0, len(metrics))
		for _, r := range metrics {
			if !incomplete[r.ContractID] {
				kept = append(kept, r)
			}
		}
		metrics = kept
		for _, group := range resolved {
			id := group[0].ContractID
			if !incomplete[id] {
				continue
			}
			fail(&StageError{
				Year:     year,
				Stage:    StateWriting,
				Contract: names[id],
				Err:      fmt.Errorf("%w: cot_metrics skipped, cot_weekly rows not fully written", ErrWriteBatch),
			})
		}
	}

	metricRes := Upsert(ctx, metrics, b.batchSize, b.metricStore.UpsertBulk)
	for _, f := range metricRes.Failures {
		fail(&StageError{
			Year:     year,
			Stage:    StateWriting,
			Contract: contractSpan(names[metrics[f.Offset].ContractID], names[metrics[f.Offset+f.Size-1].ContractID]),
			Batch:    weeklyRes.Batches + f.Batch,
			Err:      fmt.Errorf("%w: cot_metrics rows %d-%d: %w", ErrWriteBatch, f.Offset+1, f.Offset+f.Size, f.Err),
		})
	}

	out.weeklyRows = weeklyRes.Written
	out.metricRows = metricRes.Written
	observability.RecordRowsWritten("cot_weekly", weeklyRes.Written)
	observability.RecordRowsWritten("cot_metrics", metricRes.Written)

	b.advance(m, StateDone, out.weeklyRows+out.metricRows, nil)
	observability.RecordYear("done")
	log.Info("year done",
		zap.Int("weekly_rows", out.weeklyRows),
		zap.Int("metric_rows", out.metricRows),
		zap.Int("contracts", len(resolved)),
		zap.Int("errors", len(out.errs)),
	)
	return out
}

// seed returns the stored history preceding group, enough to fill the window
// for the group's first row.
func (b *Backfiller) seed(ctx context.Context, group []*domain.WeeklyPosition) ([]*domain.WeeklyPosition, error) {
	if b.window <= 1 {
		return nil, nil
	}
	return b.positionStore.LatestBefore(ctx, group[0].ContractID, group[0].ReportDate, b.window-1)
}

// advance applies a transition. The year loop only issues valid transitions,
// so a failure here is a programming error.
func (b *Backfiller) advance(m *yearMachine, to State, rows int, reason error) {
	if err := m.advance(to, rows, reason); err != nil {
		panic(err)
	}
}

func (b *Backfiller) notify(t Transition) {
	observability.RecordTransition(string(t.To))
	if b.observer != nil {
		b.observer.OnTransition(t)
	}
}

// groupByContract splits positions sorted by name into per-contract runs.
func groupByContract(positions []*domain.WeeklyPosition) [][]*domain.WeeklyPosition {
	var groups [][]*domain.WeeklyPosition
	for i := 0; i < len(positions); {
		j := i + 1
		for j < len(positions) && positions[j].ContractName == positions[i].ContractName {
			j++
		}
		groups = append(groups, positions[i:j])
		i = j
	}
	return groups
}

func contractSpan(first, last string) string {
	if first == last {
		return first
	}
	return first + ".." + last
}
