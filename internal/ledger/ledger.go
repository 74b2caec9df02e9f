// Package ledger is the per-business, per-day record of slots and their
// booked state. It is the only component allowed to mutate slot occupancy,
// and the source of truth the allocator and lifecycle manager act through.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/salonflow/booking-platform/internal/slots"
)

// ErrConflict signals that a concurrent actor booked one of the targeted
// slots first. Callers retry with a different candidate; infrastructure
// failures are wrapped errors and must not be confused with this.
var ErrConflict = errors.New("ledger: slot reservation conflict")

// Index provides transactional access to the availability ledger.
type Index interface {
	// Day returns the slot sequence for a business day, materializing it
	// lazily on first access. A closed day yields an empty sequence.
	Day(ctx context.Context, businessID string, day time.Time) ([]slots.Slot, error)

	// FindConsecutiveFree returns every candidate run of the required length
	// starting at or after notBefore, in chronological order.
	FindConsecutiveFree(ctx context.Context, businessID string, day time.Time, requiredSlots int, notBefore time.Time) ([]slots.Run, error)

	// Reserve atomically marks the given slots booked for an appointment.
	// If any targeted slot is already booked, nothing is mutated and
	// ErrConflict is returned.
	Reserve(ctx context.Context, businessID string, day time.Time, indexes []int, appointmentID uuid.UUID, customerID string) error

	// Release clears every slot referencing the appointment on that day.
	// Idempotent: releasing with no matching slots is a no-op.
	Release(ctx context.Context, businessID string, day time.Time, appointmentID uuid.UUID) (int, error)

	// ReleaseRun clears only the given slot indexes where they reference the
	// appointment. Used by same-day reschedules so the freshly reserved run
	// survives the release of the old one.
	ReleaseRun(ctx context.Context, businessID string, day time.Time, appointmentID uuid.UUID, indexes []int) (int, error)

	// EnsureDay fills in any missing slots for the day without touching
	// existing rows, booked or not. Returns the number of slots created.
	EnsureDay(ctx context.Context, businessID string, day time.Time) (int, error)

	// DeleteUnbooked removes free slots in [from, to] in bounded batches,
	// never touching a slot with a live appointment reference. Returns the
	// number of slots deleted.
	DeleteUnbooked(ctx context.Context, businessID string, from, to time.Time, batchSize int) (int64, error)
}

// DayKey normalizes an instant to its calendar-date ledger key.
func DayKey(day time.Time) string {
	return day.Format("2006-01-02")
}
