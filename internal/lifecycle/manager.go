// Package lifecycle drives appointment state changes after booking: approval,
// completion, cancellation and rescheduling, plus the admin bulk operations
// over the availability ledger. Every slot mutation still goes through the
// ledger so the booking invariants hold here too.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/salonflow/booking-platform/internal/appointments"
	"github.com/salonflow/booking-platform/internal/clock"
	"github.com/salonflow/booking-platform/internal/events"
	"github.com/salonflow/booking-platform/internal/ledger"
	"github.com/salonflow/booking-platform/internal/schedule"
	"github.com/salonflow/booking-platform/internal/slots"
	"github.com/salonflow/booking-platform/pkg/logging"
)

var tracer = otel.Tracer("internal/lifecycle")

var (
	// ErrNotActive rejects lifecycle changes on terminal appointments.
	ErrNotActive = errors.New("lifecycle: appointment is not active")

	// ErrNoAvailability means the reschedule target cannot hold the service.
	ErrNoAvailability = errors.New("lifecycle: no availability at requested time")
)

// AppointmentStore is the persistence surface the manager needs.
type AppointmentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
	Transition(ctx context.Context, id uuid.UUID, to appointments.Status, from ...appointments.Status) (bool, error)
	Reanchor(ctx context.Context, id uuid.UUID, start, end time.Time, to appointments.Status, from ...appointments.Status) (bool, error)
}

// Manager applies appointment state changes and keeps the ledger in sync.
type Manager struct {
	schedules schedule.Provider
	index     ledger.Index
	store     AppointmentStore
	recorder  events.Recorder
	clock     clock.Clock
	logger    *logging.Logger
}

func NewManager(
	schedules schedule.Provider,
	index ledger.Index,
	store AppointmentStore,
	recorder events.Recorder,
	clk clock.Clock,
	logger *logging.Logger,
) *Manager {
	if schedules == nil || index == nil || store == nil {
		panic("lifecycle: schedules, index and store are required")
	}
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		schedules: schedules,
		index:     index,
		store:     store,
		recorder:  recorder,
		clock:     clk,
		logger:    logger,
	}
}

// Approve moves a pending appointment to approved.
func (m *Manager) Approve(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "lifecycle.Approve")
	defer span.End()

	moved, err := m.store.Transition(ctx, id, appointments.StatusApproved, appointments.StatusPending)
	if err != nil {
		return fmt.Errorf("lifecycle: approve: %w", err)
	}
	if !moved {
		return ErrNotActive
	}
	return nil
}

// Complete moves an approved appointment to completed. The slots stay booked;
// completed appointments occupy history, not availability, and their day is
// already in the past.
func (m *Manager) Complete(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "lifecycle.Complete")
	defer span.End()

	moved, err := m.store.Transition(ctx, id, appointments.StatusCompleted, appointments.StatusApproved)
	if err != nil {
		return fmt.Errorf("lifecycle: complete: %w", err)
	}
	if !moved {
		return ErrNotActive
	}
	return nil
}

// Cancel marks an active appointment canceled and frees its slots so the run
// becomes bookable again. Canceling an already-canceled appointment is a
// no-op, not an error; releasing slots is itself idempotent so a retried
// cancel converges on the same ledger state.
func (m *Manager) Cancel(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "lifecycle.Cancel")
	defer span.End()

	appt, err := m.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("lifecycle: cancel: %w", err)
	}
	if appt.Status == appointments.StatusCanceled {
		return nil
	}

	moved, err := m.store.Transition(ctx, id, appointments.StatusCanceled,
		appointments.StatusPending, appointments.StatusApproved)
	if err != nil {
		return fmt.Errorf("lifecycle: cancel: %w", err)
	}
	if !moved {
		return ErrNotActive
	}

	released, err := m.index.Release(ctx, appt.BusinessID, appt.StartTime, id)
	if err != nil {
		// Status already flipped; the slots must still be freed. Surface the
		// failure so the caller retries the (idempotent) cancel.
		return fmt.Errorf("lifecycle: release slots: %w", err)
	}
	m.logger.Info("appointment canceled",
		"appointment_id", id, "business_id", appt.BusinessID, "slots_released", released)

	m.emit(ctx, appt.BusinessID, events.TypeAppointmentCanceled, events.AppointmentCanceledV1{
		EventID:       uuid.NewString(),
		BusinessID:    appt.BusinessID,
		AppointmentID: id.String(),
		CustomerID:    appt.CustomerID,
		StartTime:     appt.StartTime,
		CanceledAt:    m.clock.Now(),
	})
	return nil
}

// Reschedule moves an active appointment to a new start time. The new run is
// reserved before the old one is released, so a failure at any point leaves
// the customer holding a valid reservation: either still the old one, or
// already the new one. A same-day move to an overlapping window fails with
// a conflict because the appointment's own slots block the new run.
func (m *Manager) Reschedule(ctx context.Context, id uuid.UUID, newStart time.Time) (*appointments.Appointment, error) {
	ctx, span := tracer.Start(ctx, "lifecycle.Reschedule")
	defer span.End()

	appt, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: reschedule: %w", err)
	}
	if !appt.Status.Active() {
		return nil, ErrNotActive
	}

	cfg, err := m.schedules.Get(ctx, appt.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: load schedule: %w", err)
	}
	required := slots.SlotsForDuration(appt.DurationMinutes, cfg.SlotDurationMinutes)

	oldIndexes, err := m.heldIndexes(ctx, appt.BusinessID, appt.StartTime, id)
	if err != nil {
		return nil, err
	}

	runs, err := m.index.FindConsecutiveFree(ctx, appt.BusinessID, newStart, required, m.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("lifecycle: find free slots: %w", err)
	}
	var target *slots.Run
	for i, r := range runs {
		if r.StartTime.Equal(newStart) {
			target = &runs[i]
			break
		}
	}
	if target == nil {
		return nil, ErrNoAvailability
	}

	if err := m.index.Reserve(ctx, appt.BusinessID, newStart, target.Indexes, id, appt.CustomerID); err != nil {
		if errors.Is(err, ledger.ErrConflict) {
			return nil, fmt.Errorf("lifecycle: %w", ledger.ErrConflict)
		}
		return nil, fmt.Errorf("lifecycle: reserve new slots: %w", err)
	}

	newEnd := newStart.Add(time.Duration(appt.DurationMinutes) * time.Minute)
	status := appointments.StatusPending
	if cfg.AutoApprove {
		status = appointments.StatusApproved
	}
	moved, err := m.store.Reanchor(ctx, id, newStart, newEnd, status,
		appointments.StatusPending, appointments.StatusApproved)
	if err != nil {
		m.releaseNewRun(ctx, appt.BusinessID, newStart, id, target.Indexes)
		return nil, fmt.Errorf("lifecycle: reanchor appointment: %w", err)
	}
	if !moved {
		// The status changed between the Active check and the update, e.g. a
		// concurrent cancel committed. Give back the new run and reject; the
		// appointment keeps whatever state won.
		m.releaseNewRun(ctx, appt.BusinessID, newStart, id, target.Indexes)
		return nil, ErrNotActive
	}

	// Targeted release: on a same-day move the new run also references this
	// appointment, and a blanket release would clear it.
	if _, err := m.index.ReleaseRun(ctx, appt.BusinessID, appt.StartTime, id, oldIndexes); err != nil {
		m.logger.Error("failed to release old slots after reschedule",
			"error", err, "appointment_id", id)
	}

	m.logger.Info("appointment rescheduled",
		"appointment_id", id, "business_id", appt.BusinessID,
		"old_start", appt.StartTime, "new_start", newStart)

	m.emit(ctx, appt.BusinessID, events.TypeAppointmentRescheduled, events.AppointmentRescheduledV1{
		EventID:       uuid.NewString(),
		BusinessID:    appt.BusinessID,
		AppointmentID: id.String(),
		CustomerID:    appt.CustomerID,
		OldStartTime:  appt.StartTime,
		NewStartTime:  newStart,
		RescheduledAt: m.clock.Now(),
	})

	updated := *appt
	updated.StartTime = newStart
	updated.EndTime = newEnd
	updated.Status = status
	return &updated, nil
}

func (m *Manager) releaseNewRun(ctx context.Context, businessID string, day time.Time, id uuid.UUID, indexes []int) {
	if _, err := m.index.ReleaseRun(ctx, businessID, day, id, indexes); err != nil {
		m.logger.Error("failed to release new slots after reanchor failure",
			"error", err, "appointment_id", id)
	}
}

// heldIndexes snapshots the slots referencing the appointment before any new
// reservation is made for it.
func (m *Manager) heldIndexes(ctx context.Context, businessID string, day time.Time, id uuid.UUID) ([]int, error) {
	ledgerDay, err := m.index.Day(ctx, businessID, day)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: read ledger: %w", err)
	}
	var held []int
	for _, s := range ledgerDay {
		if s.AppointmentID != nil && *s.AppointmentID == id {
			held = append(held, s.Index)
		}
	}
	return held, nil
}

func (m *Manager) emit(ctx context.Context, businessID, eventType string, payload any) {
	if m.recorder == nil {
		return
	}
	if _, err := m.recorder.Insert(ctx, businessID, eventType, payload); err != nil {
		m.logger.Error("failed to record lifecycle event", "error", err, "type", eventType)
	}
}
