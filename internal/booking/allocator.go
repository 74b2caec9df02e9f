// Package booking turns an availability request into a confirmed appointment.
// The allocator owns candidate selection and the reserve-then-persist ordering;
// all slot mutation goes through the ledger.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/salonflow/booking-platform/internal/appointments"
	"github.com/salonflow/booking-platform/internal/clock"
	"github.com/salonflow/booking-platform/internal/events"
	"github.com/salonflow/booking-platform/internal/ledger"
	"github.com/salonflow/booking-platform/internal/observability/metrics"
	"github.com/salonflow/booking-platform/internal/schedule"
	"github.com/salonflow/booking-platform/internal/slots"
	"github.com/salonflow/booking-platform/pkg/logging"
)

var tracer = otel.Tracer("internal/booking")

// defaultReserveAttempts bounds the conflict retry loop. Each attempt
// re-reads the ledger, so losing a race simply moves the request to the next
// candidate.
const defaultReserveAttempts = 3

// AppointmentWriter is the persistence surface the allocator needs.
type AppointmentWriter interface {
	Create(ctx context.Context, a *appointments.Appointment) error
}

// Request describes a booking attempt for a single service on a single day.
type Request struct {
	BusinessID      string
	CustomerID      string
	ServiceID       string
	Day             time.Time
	DurationMinutes int

	// PreferredStart pins the appointment to an exact slot boundary. When nil
	// the earliest available run wins.
	PreferredStart *time.Time

	// Denormalized display fields carried onto the appointment row.
	CustomerName  string
	CustomerPhone string
	ServiceName   string
}

func (r Request) validate() error {
	if r.BusinessID == "" || r.CustomerID == "" || r.ServiceID == "" {
		return fmt.Errorf("%w: business, customer and service ids are required", ErrInvalidRequest)
	}
	if r.DurationMinutes <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidRequest)
	}
	return nil
}

// Allocator books appointments against the availability ledger.
type Allocator struct {
	schedules   schedule.Provider
	index       ledger.Index
	store       AppointmentWriter
	recorder    events.Recorder
	clock       clock.Clock
	metrics     *metrics.BookingMetrics
	logger      *logging.Logger
	maxAttempts int
}

func NewAllocator(
	schedules schedule.Provider,
	index ledger.Index,
	store AppointmentWriter,
	recorder events.Recorder,
	clk clock.Clock,
	m *metrics.BookingMetrics,
	logger *logging.Logger,
) *Allocator {
	if schedules == nil || index == nil || store == nil {
		panic("booking: schedules, index and store are required")
	}
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Allocator{
		schedules:   schedules,
		index:       index,
		store:       store,
		recorder:    recorder,
		clock:       clk,
		metrics:     m,
		logger:      logger,
		maxAttempts: defaultReserveAttempts,
	}
}

// WithMaxAttempts overrides the conflict retry bound.
func (a *Allocator) WithMaxAttempts(attempts int) *Allocator {
	if attempts > 0 {
		a.maxAttempts = attempts
	}
	return a
}

// Availability returns every run of free slots on the day that can hold the
// service, starting at or after the current time.
func (a *Allocator) Availability(ctx context.Context, businessID string, day time.Time, durationMinutes int) ([]slots.Run, error) {
	ctx, span := tracer.Start(ctx, "booking.Availability")
	defer span.End()

	if durationMinutes <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidRequest)
	}
	cfg, err := a.schedules.Get(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("booking: load schedule: %w", err)
	}
	required := slots.SlotsForDuration(durationMinutes, cfg.SlotDurationMinutes)
	return a.index.FindConsecutiveFree(ctx, businessID, day, required, a.clock.Now())
}

// Book reserves a run of slots and persists the appointment. The reservation
// happens first; if the appointment row cannot be written the run is released
// so a crash between the two steps never strands availability behind a booking
// that does not exist.
func (a *Allocator) Book(ctx context.Context, req Request) (*appointments.Appointment, error) {
	ctx, span := tracer.Start(ctx, "booking.Book")
	defer span.End()
	span.SetAttributes(attribute.String("business_id", req.BusinessID))

	if err := req.validate(); err != nil {
		a.metrics.ObserveBooking("invalid")
		return nil, err
	}

	cfg, err := a.schedules.Get(ctx, req.BusinessID)
	if err != nil {
		a.metrics.ObserveBooking("error")
		return nil, fmt.Errorf("booking: load schedule: %w", err)
	}

	now := a.clock.Now()
	if pastDay(req.Day, now, cfg.Location()) {
		a.metrics.ObserveBooking("invalid_date")
		return nil, ErrInvalidDate
	}

	required := slots.SlotsForDuration(req.DurationMinutes, cfg.SlotDurationMinutes)

	appointmentID := uuid.New()
	var run slots.Run
	reserved := false
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		candidate, err := a.pickCandidate(ctx, req, required, now)
		if err != nil {
			a.metrics.ObserveBooking(outcomeLabel(err))
			return nil, err
		}

		start := a.clock.Now()
		err = a.index.Reserve(ctx, req.BusinessID, req.Day, candidate.Indexes, appointmentID, req.CustomerID)
		a.metrics.ObserveReserveLatency(time.Since(start).Seconds())
		if err == nil {
			run = candidate
			reserved = true
			break
		}
		if !errors.Is(err, ledger.ErrConflict) {
			a.metrics.ObserveBooking("error")
			return nil, fmt.Errorf("booking: reserve slots: %w", err)
		}
		a.metrics.ObserveConflict()
		a.logger.Debug("reservation lost race, retrying",
			"business_id", req.BusinessID, "attempt", attempt, "start_time", candidate.StartTime)
	}
	if !reserved {
		// Conflicts are internal to the allocator; once the retries are spent
		// the caller-visible answer is that nothing could be held.
		a.metrics.ObserveBooking("conflict")
		return nil, fmt.Errorf("%w: retries exhausted after %d conflicts", ErrNoAvailability, a.maxAttempts)
	}

	status := appointments.StatusPending
	if cfg.AutoApprove {
		status = appointments.StatusApproved
	}

	appt := &appointments.Appointment{
		ID:              appointmentID,
		BusinessID:      req.BusinessID,
		CustomerID:      req.CustomerID,
		ServiceID:       req.ServiceID,
		StartTime:       run.StartTime,
		EndTime:         run.StartTime.Add(time.Duration(req.DurationMinutes) * time.Minute),
		DurationMinutes: req.DurationMinutes,
		Status:          status,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		ServiceName:     req.ServiceName,
	}
	if err := a.store.Create(ctx, appt); err != nil {
		if _, relErr := a.index.ReleaseRun(ctx, req.BusinessID, req.Day, appointmentID, run.Indexes); relErr != nil {
			a.logger.Error("failed to release slots after persist failure",
				"error", relErr, "appointment_id", appointmentID)
		}
		a.metrics.ObserveBooking("error")
		return nil, fmt.Errorf("booking: persist appointment: %w", err)
	}

	a.emitBooked(ctx, appt)
	a.metrics.ObserveBooking("booked")
	a.logger.Info("appointment booked",
		"appointment_id", appt.ID, "business_id", appt.BusinessID,
		"start_time", appt.StartTime, "status", appt.Status)
	return appt, nil
}

// pickCandidate re-reads the ledger and selects the run to attempt. Re-reading
// on every attempt means a lost race naturally skips the slot the winner took.
func (a *Allocator) pickCandidate(ctx context.Context, req Request, required int, now time.Time) (slots.Run, error) {
	runs, err := a.index.FindConsecutiveFree(ctx, req.BusinessID, req.Day, required, now)
	if err != nil {
		return slots.Run{}, fmt.Errorf("booking: find free slots: %w", err)
	}
	if req.PreferredStart != nil {
		for _, r := range runs {
			if r.StartTime.Equal(*req.PreferredStart) {
				return r, nil
			}
		}
		return slots.Run{}, ErrNoAvailability
	}
	if len(runs) == 0 {
		return slots.Run{}, ErrNoAvailability
	}
	return runs[0], nil
}

func (a *Allocator) emitBooked(ctx context.Context, appt *appointments.Appointment) {
	if a.recorder == nil {
		return
	}
	_, err := a.recorder.Insert(ctx, appt.BusinessID, events.TypeAppointmentBooked, events.AppointmentBookedV1{
		EventID:         uuid.NewString(),
		BusinessID:      appt.BusinessID,
		AppointmentID:   appt.ID.String(),
		CustomerID:      appt.CustomerID,
		ServiceID:       appt.ServiceID,
		ServiceName:     appt.ServiceName,
		StartTime:       appt.StartTime,
		DurationMinutes: appt.DurationMinutes,
		Status:          string(appt.Status),
		BookedAt:        a.clock.Now(),
	})
	if err != nil {
		// The booking itself committed; a lost event is logged, not fatal.
		a.logger.Error("failed to record booked event", "error", err, "appointment_id", appt.ID)
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrNoAvailability):
		return "no_availability"
	case errors.Is(err, ErrInvalidDate):
		return "invalid_date"
	case errors.Is(err, ledger.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

// pastDay reports whether the calendar date of day, in the business timezone,
// is strictly before today's date. Same-day bookings stay valid; slots already
// elapsed are filtered by notBefore instead.
func pastDay(day, now time.Time, loc *time.Location) bool {
	d := day.In(loc)
	n := now.In(loc)
	dayDate := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	nowDate := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
	return dayDate.Before(nowDate)
}
