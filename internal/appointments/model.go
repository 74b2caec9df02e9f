// Package appointments holds the appointment record: the denormalized,
// display-oriented side of a booking. The ledger stays the authority on slot
// occupancy; appointment rows are derived state for history and rendering.
package appointments

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks the lifecycle of an appointment.
type Status string

const (
	StatusPending     Status = "pending"
	StatusApproved    Status = "approved"
	StatusCompleted   Status = "completed"
	StatusCanceled    Status = "canceled"
	StatusRescheduled Status = "rescheduled"
)

var transitions = map[Status][]Status{
	StatusPending:     {StatusApproved, StatusCanceled},
	StatusApproved:    {StatusCompleted, StatusCanceled, StatusRescheduled},
	StatusRescheduled: {StatusPending},
	StatusCompleted:   nil,
	StatusCanceled:    nil,
}

// CanTransitionTo reports whether the status machine permits the move.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions exist.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// Active reports whether the appointment currently holds slots in the ledger.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusApproved
}

// Appointment represents a confirmed or pending booking.
type Appointment struct {
	ID              uuid.UUID `json:"id"`
	BusinessID      string    `json:"business_id"`
	CustomerID      string    `json:"customer_id"`
	ServiceID       string    `json:"service_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          Status    `json:"status"`

	// Denormalized display fields, copied at booking time so history
	// rendering needs no extra lookups.
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`
	ServiceName   string `json:"service_name,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
