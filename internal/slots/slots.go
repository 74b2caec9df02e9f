// Package slots generates the bookable time units for a business day and
// scans them for candidate runs. Everything here is pure; persistence lives
// in the ledger package.
package slots

import (
	"time"

	"github.com/google/uuid"

	"github.com/salonflow/booking-platform/internal/schedule"
)

// Slot is one atomic bookable unit of time within a business day.
type Slot struct {
	Index           int        `json:"index"`
	StartTime       time.Time  `json:"start_time"`
	DurationMinutes int        `json:"duration_minutes"`
	IsBooked        bool       `json:"is_booked"`
	AppointmentID   *uuid.UUID `json:"appointment_id,omitempty"`
	CustomerID      string     `json:"customer_id,omitempty"`
}

// End returns the instant the slot's window closes.
func (s Slot) End() time.Time {
	return s.StartTime.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// Generate derives the ordered, unbooked slot sequence for a business on the
// given calendar day. A closed day — no hours, or close <= open — yields an
// empty sequence and no error. The output is deterministic for identical
// inputs, which is what makes ledger regeneration idempotent.
func Generate(cfg *schedule.Config, day time.Time) ([]Slot, error) {
	if cfg.SlotDurationMinutes <= 0 {
		return nil, schedule.ErrInvalidSlotDuration
	}

	open, close, ok := cfg.DayWindow(day)
	if !ok {
		return nil, nil
	}

	step := cfg.SlotDuration()
	var out []Slot
	for start := open; !start.Add(step).After(close); start = start.Add(step) {
		out = append(out, Slot{
			Index:           len(out),
			StartTime:       start,
			DurationMinutes: cfg.SlotDurationMinutes,
		})
	}
	return out, nil
}

// Run is a contiguous sequence of free slots long enough to cover a requested
// service duration.
type Run struct {
	Indexes   []int
	StartTime time.Time
}

// End returns the instant the run's last slot closes.
func (r Run) End(slotMinutes int) time.Time {
	return r.StartTime.Add(time.Duration(len(r.Indexes)*slotMinutes) * time.Minute)
}

// FreeRuns scans an ordered ledger for every run of `required` contiguous
// free slots starting at or after notBefore, in chronological order.
// Contiguity is positional: the ledger tiles the open window, so adjacent
// indexes are adjacent in time.
func FreeRuns(ledger []Slot, required int, notBefore time.Time) []Run {
	if required <= 0 || len(ledger) < required {
		return nil
	}

	var runs []Run
	for i := 0; i+required <= len(ledger); i++ {
		if ledger[i].IsBooked || ledger[i].StartTime.Before(notBefore) {
			continue
		}
		ok := true
		for j := i + 1; j < i+required; j++ {
			if ledger[j].IsBooked {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		indexes := make([]int, 0, required)
		for j := i; j < i+required; j++ {
			indexes = append(indexes, ledger[j].Index)
		}
		runs = append(runs, Run{Indexes: indexes, StartTime: ledger[i].StartTime})
	}
	return runs
}

// SlotsForDuration converts a service duration to the number of base slots it
// occupies, rounding up so partial slots are paid in full.
func SlotsForDuration(serviceMinutes, slotMinutes int) int {
	if serviceMinutes <= 0 || slotMinutes <= 0 {
		return 0
	}
	return (serviceMinutes + slotMinutes - 1) / slotMinutes
}

// Overlaps reports whether two half-open minute ranges [aStart, aEnd) and
// [bStart, bEnd) intersect. This is the canonical conflict definition for
// services spanning multiple base slots.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
