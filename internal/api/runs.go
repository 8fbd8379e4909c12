package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
	"github.com/JakeFAU/event-ingestor/internal/progress/sinks"
	"github.com/JakeFAU/event-ingestor/internal/store"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
	storeTimeout    = 3 * time.Second
)

// RunHandler exposes read-only run endpoints.
type RunHandler struct {
	store   ingest.RunStore
	stats   store.SourceStatsRepository
	tracker *sinks.Tracker
	active  func() string
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunHandler wires the run store, the live progress tracker and logger.
// tracker and active may be nil.
func NewRunHandler(store ingest.RunStore, tracker *sinks.Tracker, active func() string, logger *zap.Logger) *RunHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if active == nil {
		active = func() string { return "" }
	}
	return &RunHandler{
		store:   store,
		tracker: tracker,
		active:  active,
		timeout: storeTimeout,
		logger:  logger,
	}
}

// WithSourceStats enables ListRunSources.
func (h *RunHandler) WithSourceStats(stats store.SourceStatsRepository) *RunHandler {
	h.stats = stats
	return h
}

// ListRuns handles GET /v1/runs?limit=. It returns {"runs": [...], "active":
// id} newest first, 400 for an invalid limit, 503 when the store is missing,
// or 500 if the store call fails.
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run store unavailable")
		return
	}
	limit, err := parseLimit(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	runs, err := h.store.ListRuns(ctx, limit)
	if err != nil {
		h.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []ingest.OperationRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs":   runs,
		"active": h.active(),
	})
}

// GetRun handles GET /v1/runs/{run_id}. It returns {"run": {...}} plus the
// live "progress" when the tracker has seen the run. A run known only to the
// tracker is reported with progress alone; unknown ids are 404.
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run store unavailable")
		return
	}
	runID := strings.TrimSpace(chi.URLParam(r, "run_id"))
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run_id is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	body := map[string]any{}
	if h.tracker != nil {
		if p, ok := h.tracker.Get(runID); ok {
			body["progress"] = p
		}
	}
	run, err := h.store.GetRun(ctx, runID)
	switch {
	case err == nil:
		body["run"] = run
	case errors.Is(err, ingest.ErrNotFound):
		if _, live := body["progress"]; !live && runID != h.active() {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
	default:
		h.logger.Error("get run failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// ListRunSources handles GET /v1/runs/{run_id}/sources?limit=&offset=. It
// returns {"sources": [...]} from the persisted source stats, 400 for bad
// paging, or 503 when no stats repository is configured.
func (h *RunHandler) ListRunSources(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeError(w, http.StatusServiceUnavailable, "source stats unavailable")
		return
	}
	runID := strings.TrimSpace(chi.URLParam(r, "run_id"))
	limit, err := parseLimit(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := parseOffset(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	stats, err := h.stats.ListRunSources(ctx, runID, limit, offset)
	if err != nil {
		h.logger.Error("list run sources failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list run sources")
		return
	}
	if stats == nil {
		stats = []store.SourceStats{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": stats})
}

type triggerRequest struct {
	Sources []string `json:"sources"`
}

// triggerRun handles POST /v1/runs. The body is optional. It answers 202 with
// the run id, 400 for a bad body or configuration, and 409 while another run
// is active.
func (s *Server) triggerRun(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	cfg, err := s.newConfig(req.Sources)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	if s.active != "" {
		active := s.active
		s.mu.Unlock()
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":  "a run is already active",
			"run_id": active,
		})
		return
	}
	runID, err := s.runner.NewRunID()
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("allocate run id failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}
	s.active = runID
	s.wg.Add(1)
	s.mu.Unlock()

	go s.execute(runID, cfg)
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) execute(runID string, cfg ingest.RunConfig) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.active = ""
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(s.baseCtx, s.opts.RunTimeout)
	defer cancel()
	run, err := s.runner.RunWithID(ctx, runID, cfg)
	if err != nil {
		s.logger.Warn("triggered run failed", zap.String("run_id", runID), zap.Error(err))
		return
	}
	s.logger.Info("triggered run completed",
		zap.String("run_id", runID),
		zap.String("status", string(run.Status)),
		zap.Int64("found", run.Counts.Found),
		zap.Int64("inserted", run.Counts.Inserted),
	)
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	limStr := r.URL.Query().Get("limit")
	if limStr == "" {
		return def, nil
	}
	val, err := strconv.Atoi(limStr)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	return min(val, maxLimit), nil
}

func parseOffset(r *http.Request) (int, error) {
	offStr := r.URL.Query().Get("offset")
	if offStr == "" {
		return 0, nil
	}
	val, err := strconv.Atoi(offStr)
	if err != nil || val < 0 {
		return 0, errors.New("invalid offset")
	}
	return val, nil
}
