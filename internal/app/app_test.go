package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cot-sentiment-lab/internal/cftc"
	"cot-sentiment-lab/internal/config"
	"cot-sentiment-lab/internal/domain"
	"cot-sentiment-lab/internal/ingestion"
	"cot-sentiment-lab/internal/ingestion/stub"
	"cot-sentiment-lab/internal/storage/memory"
)

func nopLogger() *zap.Logger { return zap.NewNop() }

func TestOpenStores_Memory(t *testing.T) {
	s, err := OpenStores(context.Background(), config.StorageConfig{Driver: config.DriverMemory}, nopLogger())
	require.NoError(t, err)
	defer s.Close()

	assert.IsType(t, &memory.ContractStore{}, s.Contracts)
	assert.IsType(t, &memory.WeeklyPositionStore{}, s.Positions)
	assert.IsType(t, &memory.MetricStore{}, s.Metrics)
	assert.IsType(t, &memory.RefreshRunStore{}, s.Runs)
}

func TestOpenStores_NilLogger(t *testing.T) {
	s, err := OpenStores(context.Background(), config.StorageConfig{Driver: config.DriverMemory}, nil)
	require.NoError(t, err)
	defer s.Close()
	assert.NotNil(t, s.Runs)
}

func TestOpenStores_UnknownDriver(t *testing.T) {
	_, err := OpenStores(context.Background(), config.StorageConfig{Driver: "sqlite"}, nopLogger())
	assert.ErrorContains(t, err, "unknown storage driver")
}

func TestNew_Memory(t *testing.T) {
	cfg, err := config.Load("", true)
	require.NoError(t, err)

	a, err := New(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Backfiller)
	assert.NotNil(t, a.Source)
	assert.False(t, a.Backfiller.Running())
}

func TestBackfill_OpenBreakerDoesNotFailLaterYears(t *testing.T) {
	source := stub.NewReportSource()
	for year := 2010; year <= 2012; year++ {
		source.FailYear(year, fmt.Errorf("%w: HTTP 503", ingestion.ErrRetrieval))
	}
	source.SetYear(2013, []domain.RawReportRow{goldRow("2013-01-08", 100)})

	breaker := cftc.NewBreakerSource(source, cftc.BreakerSettings{
		MaxRequests:         1,
		Timeout:             20 * time.Millisecond,
		ConsecutiveFailures: 3,
	}, nopLogger())

	stores := memoryStores()
	cfg := config.BackfillConfig{Window: 156, BatchSize: 500}
	b := NewBackfiller(cfg, breaker, stores, nil, nopLogger())

	run, err := b.RunRange(context.Background(), 2010, 2013)
	require.NoError(t, err)

	assert.Equal(t, []int{2010, 2011, 2012, 2013}, source.Calls())
	assert.Equal(t, 1, run.WeeklyRows)
	assert.Equal(t, 1, run.MetricRows)
	require.Len(t, run.Errors, 3)
	for i, e := range run.Errors {
		assert.Equal(t, 2010+i, e.Year)
		assert.Equal(t, string(ingestion.StateDownloading), e.Stage)
	}
	assert.Equal(t, 1, stores.Positions.(*memory.WeeklyPositionStore).Count())
}

func TestNewRunView(t *testing.T) {
	run := &domain.RefreshRun{
		ID:          "run-1",
		RunAt:       time.Date(2024, 1, 5, 22, 30, 0, 0, time.UTC),
		StartYear:   2014,
		EndYear:     2016,
		WeeklyRows:  7,
		MetricRows:  7,
		RowsDropped: 2,
		Errors: []domain.RunError{
			{Year: 2015, Stage: "downloading", Message: "retrieval failure: HTTP 503"},
		},
	}

	v := NewRunView(run)
	assert.Equal(t, "run-1", v.ID)
	assert.Equal(t, domain.RunStatusPartial, v.Status)
	assert.Equal(t, 14, v.RowsWritten)
	assert.Equal(t, 2, v.RowsDropped)
	require.NotNil(t, v.Error)
	assert.Equal(t, "2015: downloading: retrieval failure: HTTP 503", *v.Error)
	require.Len(t, v.Errors, 1)
	assert.Equal(t, 2015, v.Errors[0].Year)

	empty := NewRunView(&domain.RefreshRun{ID: "run-2"})
	assert.Equal(t, domain.RunStatusCompleted, empty.Status)
	assert.Nil(t, empty.Error)
	assert.NotNil(t, empty.Errors)
}
