package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when an appointment does not exist.
var ErrNotFound = errors.New("appointments: not found")

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides CRUD operations for appointments.
type Store struct {
	db DB
}

// NewStore creates a new appointment store.
func NewStore(db DB) *Store {
	if db == nil {
		panic("appointments: db required")
	}
	return &Store{db: db}
}

const appointmentColumns = `id, business_id, customer_id, service_id, start_time, end_time, duration_minutes, status, customer_name, customer_phone, service_name, created_at, updated_at`

// Create inserts a new appointment row.
func (s *Store) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = StatusPending
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO appointments (id, business_id, customer_id, service_id, start_time, end_time, duration_minutes, status, customer_name, customer_phone, service_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.BusinessID, a.CustomerID, a.ServiceID, a.StartTime, a.EndTime,
		a.DurationMinutes, string(a.Status), a.CustomerName, a.CustomerPhone, a.ServiceName,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("appointments: create: %w", err)
	}
	return nil
}

// GetByID fetches an appointment.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("appointments: get: %w", err)
	}
	defer rows.Close()

	out, err := scanAppointments(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return &out[0], nil
}

// Transition moves an appointment to the target status only if its current
// status is one of the allowed sources. Returns false when no row matched,
// which callers use for idempotent no-op decisions.
func (s *Store) Transition(ctx context.Context, id uuid.UUID, to Status, from ...Status) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("appointments: transition requires source statuses")
	}
	sources := make([]string, len(from))
	for i, st := range from {
		sources[i] = string(st)
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET status = $1, updated_at = $2
		WHERE id = $3 AND status = ANY($4::text[])`,
		string(to), time.Now().UTC(), id, sources)
	if err != nil {
		return false, fmt.Errorf("appointments: transition: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Reanchor moves an appointment to a new time window, used by reschedule
// after the new slots are safely reserved. Like Transition it is a
// check-and-set: the update only applies while the current status is one of
// the allowed sources, so a concurrent cancel cannot be overwritten. Returns
// false when no row matched.
func (s *Store) Reanchor(ctx context.Context, id uuid.UUID, start, end time.Time, to Status, from ...Status) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("appointments: reanchor requires source statuses")
	}
	sources := make([]string, len(from))
	for i, st := range from {
		sources[i] = string(st)
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET start_time = $1, end_time = $2, status = $3, updated_at = $4
		WHERE id = $5 AND status = ANY($6::text[])`,
		start, end, string(to), time.Now().UTC(), id, sources)
	if err != nil {
		return false, fmt.Errorf("appointments: reanchor: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListForBusiness returns appointments for a business ordered by start time.
func (s *Store) ListForBusiness(ctx context.Context, businessID string, from time.Time, limit int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1 AND start_time >= $2
		ORDER BY start_time ASC
		LIMIT $3`, businessID, from, limit)
	if err != nil {
		return nil, fmt.Errorf("appointments: list for business: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// BackfillDenormalizedCustomers copies customer display fields onto legacy
// appointment rows that predate denormalization.
func (s *Store) BackfillDenormalizedCustomers(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments a
		SET customer_name = c.name, customer_phone = c.phone, updated_at = now()
		FROM customers c
		WHERE a.customer_id = c.id AND (a.customer_name = '' OR a.customer_name IS NULL)`)
	if err != nil {
		return 0, fmt.Errorf("appointments: backfill customers: %w", err)
	}
	return tag.RowsAffected(), nil
}

// BackfillEndTimes computes missing end times from duration on legacy rows.
func (s *Store) BackfillEndTimes(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET end_time = start_time + make_interval(mins => duration_minutes), updated_at = now()
		WHERE end_time IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("appointments: backfill end times: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		var a Appointment
		var status string
		err := rows.Scan(
			&a.ID, &a.BusinessID, &a.CustomerID, &a.ServiceID,
			&a.StartTime, &a.EndTime, &a.DurationMinutes, &status,
			&a.CustomerName, &a.CustomerPhone, &a.ServiceName,
			&a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		a.Status = Status(status)
		result = append(result, a)
	}
	return result, rows.Err()
}
