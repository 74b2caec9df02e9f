package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/salonflow/booking-platform/internal/admin"
	"github.com/salonflow/booking-platform/internal/ledger"
	"github.com/salonflow/booking-platform/internal/lifecycle"
	"github.com/salonflow/booking-platform/internal/schedule"
	"github.com/salonflow/booking-platform/internal/stats"
	"github.com/salonflow/booking-platform/pkg/logging"
)

// BulkRunner executes the admin slot maintenance operations.
type BulkRunner interface {
	RegenerateRange(ctx context.Context, businessID string, from, to time.Time) (*lifecycle.BatchReport, error)
	DeleteAvailable(ctx context.Context, businessID string, from, to time.Time) (*lifecycle.BatchReport, error)
	BackfillDenormalization(ctx context.Context) (*lifecycle.BatchReport, error)
}

// RunRecorder tracks bulk runs for later inspection.
type RunRecorder interface {
	PutPending(ctx context.Context, run *admin.RunRecord) error
	MarkCompleted(ctx context.Context, runID string, report *lifecycle.BatchReport) error
	MarkFailed(ctx context.Context, runID string, errMsg string, report *lifecycle.BatchReport) error
	GetRun(ctx context.Context, runID string) (*admin.RunRecord, error)
}

// ScheduleStore reads and writes per-business schedule configuration.
type ScheduleStore interface {
	Get(ctx context.Context, businessID string) (*schedule.Config, error)
	Set(ctx context.Context, cfg *schedule.Config) error
}

// StatsProvider serves the dashboard summary.
type StatsProvider interface {
	Summarize(ctx context.Context, businessID string, start, end time.Time) (*stats.Summary, error)
}

// AdminSlotsHandler serves the admin slot-maintenance endpoints.
type AdminSlotsHandler struct {
	bulk      BulkRunner
	runs      RunRecorder
	schedules ScheduleStore
	stats     StatsProvider
	logger    *logging.Logger
}

func NewAdminSlotsHandler(bulk BulkRunner, runs RunRecorder, schedules ScheduleStore, stats StatsProvider, logger *logging.Logger) *AdminSlotsHandler {
	if bulk == nil || schedules == nil {
		panic("handlers: bulk runner and schedule store are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminSlotsHandler{bulk: bulk, runs: runs, schedules: schedules, stats: stats, logger: logger}
}

type rangeRequest struct {
	From string `json:"from"` // "2026-03-02"
	To   string `json:"to"`
}

func (req rangeRequest) parse() (from, to time.Time, err error) {
	from, err = parseDay(req.From)
	if err != nil {
		return from, to, errors.New("from must be formatted as 2006-01-02")
	}
	to, err = parseDay(req.To)
	if err != nil {
		return from, to, errors.New("to must be formatted as 2006-01-02")
	}
	if to.Before(from) {
		return from, to, errors.New("to must not precede from")
	}
	return from, to, nil
}

// Regenerate handles POST /admin/businesses/{businessID}/slots/regenerate.
func (h *AdminSlotsHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	h.runRange(w, r, admin.OpRegenerate, h.bulk.RegenerateRange)
}

// DeleteAvailable handles POST /admin/businesses/{businessID}/slots/delete-available.
func (h *AdminSlotsHandler) DeleteAvailable(w http.ResponseWriter, r *http.Request) {
	h.runRange(w, r, admin.OpDelete, h.bulk.DeleteAvailable)
}

func (h *AdminSlotsHandler) runRange(
	w http.ResponseWriter,
	r *http.Request,
	operation string,
	op func(context.Context, string, time.Time, time.Time) (*lifecycle.BatchReport, error),
) {
	businessID := chi.URLParam(r, "businessID")
	if businessID == "" {
		jsonError(w, "missing businessID", http.StatusBadRequest)
		return
	}
	var body rangeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	from, to, err := body.parse()
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	runID := uuid.NewString()
	h.recordPending(r.Context(), &admin.RunRecord{
		RunID:      runID,
		BusinessID: businessID,
		Operation:  operation,
		FromDay:    ledger.DayKey(from),
		ToDay:      ledger.DayKey(to),
	})

	report, err := op(r.Context(), businessID, from, to)
	if err != nil {
		h.recordFailed(r.Context(), runID, err, report)
		h.logger.Error("bulk operation failed",
			"operation", operation, "business_id", businessID, "run_id", runID, "error", err)
		jsonError(w, "bulk operation failed", http.StatusInternalServerError)
		return
	}
	h.recordCompleted(r.Context(), runID, report)

	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "report": report})
}

// Backfill handles POST /admin/maintenance/backfill.
func (h *AdminSlotsHandler) Backfill(w http.ResponseWriter, r *http.Request) {
	runID := uuid.NewString()
	h.recordPending(r.Context(), &admin.RunRecord{RunID: runID, Operation: admin.OpBackfill})

	report, err := h.bulk.BackfillDenormalization(r.Context())
	if err != nil {
		h.recordFailed(r.Context(), runID, err, report)
		h.logger.Error("backfill failed", "run_id", runID, "error", err)
		jsonError(w, "backfill failed", http.StatusInternalServerError)
		return
	}
	h.recordCompleted(r.Context(), runID, report)

	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "report": report})
}

// GetRun handles GET /admin/runs/{runID}.
func (h *AdminSlotsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		jsonError(w, "run tracking disabled", http.StatusServiceUnavailable)
		return
	}
	run, err := h.runs.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		if errors.Is(err, admin.ErrRunNotFound) {
			jsonError(w, "run not found", http.StatusNotFound)
			return
		}
		h.logger.Error("run lookup failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GetSchedule handles GET /admin/businesses/{businessID}/schedule.
func (h *AdminSlotsHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")
	cfg, err := h.schedules.Get(r.Context(), businessID)
	if err != nil {
		h.logger.Error("schedule lookup failed", "business_id", businessID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// PutSchedule handles PUT /admin/businesses/{businessID}/schedule.
func (h *AdminSlotsHandler) PutSchedule(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")
	var cfg schedule.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	cfg.BusinessID = businessID
	if err := cfg.Validate(); err != nil {
		jsonErrorCode(w, err.Error(), "invalid_configuration", http.StatusBadRequest)
		return
	}
	if err := h.schedules.Set(r.Context(), &cfg); err != nil {
		h.logger.Error("schedule save failed", "business_id", businessID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// GetStats handles GET /admin/businesses/{businessID}/stats.
func (h *AdminSlotsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		jsonError(w, "stats disabled", http.StatusServiceUnavailable)
		return
	}
	businessID := chi.URLParam(r, "businessID")
	start, err := parseDay(r.URL.Query().Get("start"))
	if err != nil {
		jsonError(w, "start must be formatted as 2006-01-02", http.StatusBadRequest)
		return
	}
	end, err := parseDay(r.URL.Query().Get("end"))
	if err != nil {
		jsonError(w, "end must be formatted as 2006-01-02", http.StatusBadRequest)
		return
	}

	summary, err := h.stats.Summarize(r.Context(), businessID, start, end)
	if err != nil {
		h.logger.Error("stats summary failed", "business_id", businessID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *AdminSlotsHandler) recordPending(ctx context.Context, run *admin.RunRecord) {
	if h.runs == nil {
		return
	}
	if err := h.runs.PutPending(ctx, run); err != nil {
		h.logger.Error("failed to record pending run", "run_id", run.RunID, "error", err)
	}
}

func (h *AdminSlotsHandler) recordCompleted(ctx context.Context, runID string, report *lifecycle.BatchReport) {
	if h.runs == nil {
		return
	}
	if err := h.runs.MarkCompleted(ctx, runID, report); err != nil {
		h.logger.Error("failed to record completed run", "run_id", runID, "error", err)
	}
}

func (h *AdminSlotsHandler) recordFailed(ctx context.Context, runID string, opErr error, report *lifecycle.BatchReport) {
	if h.runs == nil {
		return
	}
	if err := h.runs.MarkFailed(ctx, runID, opErr.Error(), report); err != nil {
		h.logger.Error("failed to record failed run", "run_id", runID, "error", err)
	}
}
