package cftc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"cot-sentiment-lab/internal/domain"
	"cot-sentiment-lab/internal/ingestion"
	"cot-sentiment-lab/internal/observability"
)

// BreakerSettings configures the circuit breaker in front of a source.
type BreakerSettings struct {
	Name                string
	MaxRequests         uint32        // requests allowed while half-open
	Interval            time.Duration // closed-state counter reset period, 0 never resets
	Timeout             time.Duration // open-state duration before half-open
	ConsecutiveFailures uint32        // trips the breaker
}

// gobreaker uses the same value when Settings.Timeout is zero.
const defaultOpenTimeout = 60 * time.Second

// BreakerSource spaces out calls to a failing source. While the breaker is
// open, Fetch waits for the half-open window and then tries the year once,
// so every year still gets its own retrieval outcome.
// Implements ingestion.ReportSource interface.
type BreakerSource struct {
	next    ingestion.ReportSource
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  *zap.Logger

	mu       sync.Mutex
	openedAt time.Time
}

var _ ingestion.ReportSource = (*BreakerSource)(nil)

// NewBreakerSource wraps next in a circuit breaker.
func NewBreakerSource(next ingestion.ReportSource, s BreakerSettings, logger *zap.Logger) *BreakerSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if s.Name == "" {
		s.Name = "cftc"
	}
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 3
	}
	threshold := s.ConsecutiveFailures
	if s.Timeout <= 0 {
		s.Timeout = defaultOpenTimeout
	}

	bs := &BreakerSource{next: next, timeout: s.Timeout, logger: logger}

	settings := gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A missing year is an answer, not a source fault
		IsSuccessful: func(err error) bool {
			return err == nil || isUnavailable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				bs.mu.Lock()
				bs.openedAt = time.Now()
				bs.mu.Unlock()
			}
			observability.UpdateBreakerState(int(to))
			logger.Warn("source circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	bs.cb = gobreaker.NewCircuitBreaker(settings)
	return bs
}

// Fetch calls the wrapped source. An open breaker delays the call until the
// half-open window instead of failing the year unfetched.
func (s *BreakerSource) Fetch(ctx context.Context, year int) ([]domain.RawReportRow, error) {
	rows, err := s.execute(ctx, year)
	if errors.Is(err, gobreaker.ErrOpenState) {
		if werr := s.waitHalfOpen(ctx, year); werr != nil {
			return nil, werr
		}
		rows, err = s.execute(ctx, year)
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: year %d: %w", ingestion.ErrRetrieval, year, err)
	}
	return rows, err
}

func (s *BreakerSource) execute(ctx context.Context, year int) ([]domain.RawReportRow, error) {
	result, err := s.cb.Execute(func() (interface{}, error) {
		return s.next.Fetch(ctx, year)
	})
	if err != nil {
		return nil, err
	}
	rows, _ := result.([]domain.RawReportRow)
	return rows, nil
}

// waitHalfOpen blocks until the open period that started at openedAt ends.
func (s *BreakerSource) waitHalfOpen(ctx context.Context, year int) error {
	s.mu.Lock()
	wait := time.Until(s.openedAt.Add(s.timeout))
	s.mu.Unlock()
	if wait <= 0 {
		return nil
	}

	s.logger.Info("source circuit breaker open, waiting before fetch",
		zap.Int("year", year),
		zap.Duration("wait", wait),
	)

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: year %d: %w: %w", ingestion.ErrRetrieval, year, gobreaker.ErrOpenState, ctx.Err())
	}
}

// State returns the current breaker state.
func (s *BreakerSource) State() gobreaker.State {
	return s.cb.State()
}

func isUnavailable(err error) bool {
	return errors.Is(err, ingestion.ErrReportUnavailable)
}
