// Package handlers exposes the booking and admin HTTP surface. Handlers
// translate transport concerns into service calls; all policy lives in the
// booking, lifecycle and ledger packages.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/salonflow/booking-platform/internal/appointments"
	"github.com/salonflow/booking-platform/internal/booking"
	"github.com/salonflow/booking-platform/internal/ledger"
	"github.com/salonflow/booking-platform/internal/lifecycle"
	"github.com/salonflow/booking-platform/internal/slots"
	"github.com/salonflow/booking-platform/pkg/logging"
)

// Booker is the allocation surface the handler calls.
type Booker interface {
	Book(ctx context.Context, req booking.Request) (*appointments.Appointment, error)
	Availability(ctx context.Context, businessID string, day time.Time, durationMinutes int) ([]slots.Run, error)
}

// LifecycleManager drives post-booking state changes.
type LifecycleManager interface {
	Approve(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID) error
	Cancel(ctx context.Context, id uuid.UUID) error
	Reschedule(ctx context.Context, id uuid.UUID, newStart time.Time) (*appointments.Appointment, error)
}

// AppointmentReader serves appointment lookups.
type AppointmentReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
	ListForBusiness(ctx context.Context, businessID string, from time.Time, limit int) ([]appointments.Appointment, error)
}

// BookingHandler serves the customer-facing booking endpoints.
type BookingHandler struct {
	booker    Booker
	lifecycle LifecycleManager
	reader    AppointmentReader
	logger    *logging.Logger
}

func NewBookingHandler(booker Booker, lc LifecycleManager, reader AppointmentReader, logger *logging.Logger) *BookingHandler {
	if booker == nil || lc == nil || reader == nil {
		panic("handlers: booker, lifecycle and reader are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingHandler{booker: booker, lifecycle: lc, reader: reader, logger: logger}
}

type bookRequest struct {
	CustomerID      string `json:"customer_id"`
	ServiceID       string `json:"service_id"`
	Day             string `json:"day"` // "2026-03-02"
	DurationMinutes int    `json:"duration_minutes"`
	PreferredStart  string `json:"preferred_start,omitempty"` // RFC3339
	CustomerName    string `json:"customer_name,omitempty"`
	CustomerPhone   string `json:"customer_phone,omitempty"`
	ServiceName     string `json:"service_name,omitempty"`
}

// Book handles POST /businesses/{businessID}/appointments.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")
	if businessID == "" {
		jsonError(w, "missing businessID", http.StatusBadRequest)
		return
	}

	var body bookRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	day, err := parseDay(body.Day)
	if err != nil {
		jsonError(w, "day must be formatted as 2006-01-02", http.StatusBadRequest)
		return
	}

	req := booking.Request{
		BusinessID:      businessID,
		CustomerID:      body.CustomerID,
		ServiceID:       body.ServiceID,
		Day:             day,
		DurationMinutes: body.DurationMinutes,
		CustomerName:    body.CustomerName,
		CustomerPhone:   body.CustomerPhone,
		ServiceName:     body.ServiceName,
	}
	if body.PreferredStart != "" {
		preferred, err := time.Parse(time.RFC3339, body.PreferredStart)
		if err != nil {
			jsonError(w, "preferred_start must be RFC3339", http.StatusBadRequest)
			return
		}
		req.PreferredStart = &preferred
	}

	appt, err := h.booker.Book(r.Context(), req)
	if err != nil {
		h.writeBookingError(w, businessID, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (h *BookingHandler) writeBookingError(w http.ResponseWriter, businessID string, err error) {
	switch {
	case errors.Is(err, booking.ErrInvalidRequest):
		jsonErrorCode(w, err.Error(), "invalid_request", http.StatusBadRequest)
	case errors.Is(err, booking.ErrInvalidDate):
		jsonErrorCode(w, "requested day is in the past", "invalid_date", http.StatusBadRequest)
	case errors.Is(err, booking.ErrNoAvailability):
		jsonErrorCode(w, "no availability for the requested time", "no_availability", http.StatusConflict)
	default:
		h.logger.Error("booking failed", "business_id", businessID, "error", err)
		jsonErrorCode(w, "internal error", "infrastructure", http.StatusInternalServerError)
	}
}

// Availability handles GET /businesses/{businessID}/availability.
func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")
	day, err := parseDay(r.URL.Query().Get("day"))
	if err != nil {
		jsonError(w, "day must be formatted as 2006-01-02", http.StatusBadRequest)
		return
	}
	duration, err := strconv.Atoi(r.URL.Query().Get("duration_minutes"))
	if err != nil || duration <= 0 {
		jsonError(w, "duration_minutes must be a positive integer", http.StatusBadRequest)
		return
	}

	runs, err := h.booker.Availability(r.Context(), businessID, day, duration)
	if err != nil {
		if errors.Is(err, booking.ErrInvalidRequest) {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("availability lookup failed", "business_id", businessID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	type startTime struct {
		StartTime time.Time `json:"start_time"`
	}
	starts := make([]startTime, 0, len(runs))
	for _, run := range runs {
		starts = append(starts, startTime{StartTime: run.StartTime})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"business_id": businessID,
		"day":         day.Format("2006-01-02"),
		"available":   starts,
	})
}

// Get handles GET /appointments/{appointmentID}.
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		jsonError(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	appt, err := h.reader.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			jsonError(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("appointment lookup failed", "appointment_id", id, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// List handles GET /businesses/{businessID}/appointments.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")
	from := time.Now().UTC()
	if s := r.URL.Query().Get("from"); s != "" {
		day, err := parseDay(s)
		if err != nil {
			jsonError(w, "from must be formatted as 2006-01-02", http.StatusBadRequest)
			return
		}
		from = day
	}
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	appts, err := h.reader.ListForBusiness(r.Context(), businessID, from, limit)
	if err != nil {
		h.logger.Error("appointment list failed", "business_id", businessID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": appts})
}

// Cancel handles POST /appointments/{appointmentID}/cancel.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.lifecycle.Cancel)
}

// Approve handles POST /appointments/{appointmentID}/approve.
func (h *BookingHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.lifecycle.Approve)
}

// Complete handles POST /appointments/{appointmentID}/complete.
func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.lifecycle.Complete)
}

func (h *BookingHandler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID) error) {
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		jsonError(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	if err := op(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, appointments.ErrNotFound):
			jsonError(w, "appointment not found", http.StatusNotFound)
		case errors.Is(err, lifecycle.ErrNotActive):
			jsonErrorCode(w, "appointment is not in a state that allows this change", "not_active", http.StatusConflict)
		default:
			h.logger.Error("lifecycle change failed", "appointment_id", id, "error", err)
			jsonError(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type rescheduleRequest struct {
	NewStart string `json:"new_start"` // RFC3339
}

// Reschedule handles POST /appointments/{appointmentID}/reschedule.
func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		jsonError(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	var body rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	newStart, err := time.Parse(time.RFC3339, body.NewStart)
	if err != nil {
		jsonError(w, "new_start must be RFC3339", http.StatusBadRequest)
		return
	}

	appt, err := h.lifecycle.Reschedule(r.Context(), id, newStart)
	if err != nil {
		switch {
		case errors.Is(err, appointments.ErrNotFound):
			jsonError(w, "appointment not found", http.StatusNotFound)
		case errors.Is(err, lifecycle.ErrNotActive):
			jsonErrorCode(w, "appointment is not in a state that allows rescheduling", "not_active", http.StatusConflict)
		case errors.Is(err, lifecycle.ErrNoAvailability):
			jsonErrorCode(w, "no availability at the requested time", "no_availability", http.StatusConflict)
		case errors.Is(err, ledger.ErrConflict):
			jsonErrorCode(w, "slot was booked by another customer", "conflict", http.StatusConflict)
		default:
			h.logger.Error("reschedule failed", "appointment_id", id, "error", err)
			jsonError(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, appt)
}
