package events

import "time"

// Event type names recorded in the outbox.
const (
	TypeAppointmentBooked      = "appointment.booked.v1"
	TypeAppointmentCanceled    = "appointment.canceled.v1"
	TypeAppointmentRescheduled = "appointment.rescheduled.v1"
)

type AppointmentBookedV1 struct {
	EventID         string    `json:"event_id"`
	BusinessID      string    `json:"business_id"`
	AppointmentID   string    `json:"appointment_id"`
	CustomerID      string    `json:"customer_id"`
	ServiceID       string    `json:"service_id"`
	ServiceName     string    `json:"service_name,omitempty"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
	BookedAt        time.Time `json:"booked_at"`
}

type AppointmentCanceledV1 struct {
	EventID       string    `json:"event_id"`
	BusinessID    string    `json:"business_id"`
	AppointmentID string    `json:"appointment_id"`
	CustomerID    string    `json:"customer_id"`
	StartTime     time.Time `json:"start_time"`
	CanceledAt    time.Time `json:"canceled_at"`
}

type AppointmentRescheduledV1 struct {
	EventID       string    `json:"event_id"`
	BusinessID    string    `json:"business_id"`
	AppointmentID string    `json:"appointment_id"`
	CustomerID    string    `json:"customer_id"`
	OldStartTime  time.Time `json:"old_start_time"`
	NewStartTime  time.Time `json:"new_start_time"`
	RescheduledAt time.Time `json:"rescheduled_at"`
}
