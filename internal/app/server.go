package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"cot-sentiment-lab/internal/domain"
	"cot-sentiment-lab/internal/ingestion"
	"cot-sentiment-lab/internal/observability"
	"cot-sentiment-lab/internal/storage"
)

// Refresher runs backfills. Implemented by *ingestion.Backfiller.
type Refresher interface {
	DefaultRange() (from, to int)
	// Begin reserves the refresher; ErrRunInProgress when a run holds it.
	Begin(from, to int) (func(context.Context) (*domain.RefreshRun, error), error)
	Running() bool
}

var _ Refresher = (*ingestion.Backfiller)(nil)

// Server is the operator HTTP surface.
type Server struct {
	baseCtx   context.Context
	refresher Refresher
	runs      storage.RefreshRunStore
	logger    *zap.Logger
	mux       *http.ServeMux

	// done receives the result of every triggered run; nil in production
	done chan<- error
}

// NewServer creates a Server. Triggered runs use baseCtx; progress may be nil.
func NewServer(baseCtx context.Context, refresher Refresher, runs storage.RefreshRunStore, progress http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		baseCtx:   baseCtx,
		refresher: refresher,
		runs:      runs,
		logger:    logger,
		mux:       http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.mux.Handle("GET /metrics", observability.Handler())
	s.mux.HandleFunc("POST /refresh/run", s.handleRun)
	s.mux.HandleFunc("GET /refresh/status", s.handleStatus)
	if progress != nil {
		s.mux.Handle("GET /ws/progress", progress)
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Refresh runs a full backfill and logs the outcome.
func (s *Server) Refresh(ctx context.Context) error {
	from, to := s.refresher.DefaultRange()
	start, err := s.refresher.Begin(from, to)
	if err != nil {
		s.logger.Error("refresh failed", zap.Error(err))
		return err
	}
	return s.finish(start(ctx))
}

func (s *Server) finish(run *domain.RefreshRun, err error) error {
	if err != nil {
		s.logger.Error("refresh failed", zap.Error(err))
		return err
	}

	s.logger.Info("refresh finished",
		zap.String("run_id", run.ID),
		zap.String("status", run.Status()),
		zap.Int("rows_written", run.RowsWritten()),
		zap.Int("rows_dropped", run.RowsDropped),
		zap.Int("errors", len(run.Errors)),
	)
	return nil
}

// handleRun reserves the refresher and runs it in the background. Optional
// from/to query parameters select a year range; to defaults to from.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if from == 0 {
		from, to = s.refresher.DefaultRange()
	}

	// Reserved before responding so a second request sees the conflict
	start, err := s.refresher.Begin(from, to)
	switch {
	case errors.Is(err, ingestion.ErrRunInProgress):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	go func() {
		err := s.finish(start(s.baseCtx))
		if s.done != nil {
			s.done <- err
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

type statusResponse struct {
	Running bool     `json:"running"`
	Latest  *RunView `json:"latest"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Running: s.refresher.Running()}

	run, err := s.runs.Latest(r.Context())
	switch {
	case err == nil:
		view := NewRunView(run)
		resp.Latest = &view
	case errors.Is(err, storage.ErrNotFound):
	default:
		s.logger.Error("read latest refresh run", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "read refresh status"})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func parseRange(r *http.Request) (from, to int, err error) {
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		if from, err = strconv.Atoi(v); err != nil {
			return 0, 0, errors.New("invalid from year")
		}
		to = from
	}
	if v := q.Get("to"); v != "" {
		if from == 0 {
			return 0, 0, errors.New("to requires from")
		}
		if to, err = strconv.Atoi(v); err != nil {
			return 0, 0, errors.New("invalid to year")
		}
	}
	if from > to {
		return 0, 0, errors.New("from after to")
	}
	return from, to, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
