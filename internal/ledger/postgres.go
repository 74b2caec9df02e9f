package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/salonflow/booking-platform/internal/schedule"
	"github.com/salonflow/booking-platform/internal/slots"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresIndex stores the availability ledger in the slots table.
type PostgresIndex struct {
	db        DB
	schedules schedule.Provider
	tracer    trace.Tracer
}

// NewPostgresIndex creates a ledger index backed by pgx.
func NewPostgresIndex(db DB, schedules schedule.Provider) *PostgresIndex {
	if db == nil {
		panic("ledger: db required")
	}
	if schedules == nil {
		panic("ledger: schedule provider required")
	}
	return &PostgresIndex{
		db:        db,
		schedules: schedules,
		tracer:    otel.Tracer("internal/ledger"),
	}
}

const selectDaySQL = `
	SELECT slot_index, start_time, duration_minutes, is_booked, appointment_id, customer_id
	FROM slots
	WHERE business_id = $1 AND day = $2
	ORDER BY slot_index
`

const insertSlotSQL = `
	INSERT INTO slots (business_id, day, slot_index, start_time, duration_minutes, is_booked)
	VALUES ($1, $2, $3, $4, $5, FALSE)
	ON CONFLICT (business_id, day, slot_index) DO NOTHING
`

// Day returns the slot sequence for a business day, generating and persisting
// it on first access. The ON CONFLICT guard makes a racing materialization
// harmless: whichever writer loses simply re-reads the winner's rows.
func (p *PostgresIndex) Day(ctx context.Context, businessID string, day time.Time) ([]slots.Slot, error) {
	existing, err := p.selectDay(ctx, businessID, day)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	generated, err := p.generateDay(ctx, businessID, day)
	if err != nil {
		return nil, err
	}
	if len(generated) == 0 {
		// Closed day; nothing to materialize.
		return nil, nil
	}
	if _, err := p.insertSlots(ctx, businessID, day, generated); err != nil {
		return nil, err
	}
	// Re-read regardless of how many inserts landed: a racing materialization
	// may have won every ON CONFLICT, and its rows are just as valid.
	return p.selectDay(ctx, businessID, day)
}

func (p *PostgresIndex) selectDay(ctx context.Context, businessID string, day time.Time) ([]slots.Slot, error) {
	rows, err := p.db.Query(ctx, selectDaySQL, businessID, DayKey(day))
	if err != nil {
		return nil, fmt.Errorf("ledger: select day: %w", err)
	}
	defer rows.Close()
	return scanSlots(rows)
}

// EnsureDay fills in missing slots for the day. Existing rows, booked or
// free, are left untouched; this is the merge rule bulk regeneration relies
// on.
func (p *PostgresIndex) EnsureDay(ctx context.Context, businessID string, day time.Time) (int, error) {
	generated, err := p.generateDay(ctx, businessID, day)
	if err != nil {
		return 0, err
	}
	if len(generated) == 0 {
		return 0, nil
	}
	return p.insertSlots(ctx, businessID, day, generated)
}

func (p *PostgresIndex) generateDay(ctx context.Context, businessID string, day time.Time) ([]slots.Slot, error) {
	cfg, err := p.schedules.Get(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("ledger: load schedule config: %w", err)
	}
	return slots.Generate(cfg, day)
}

func (p *PostgresIndex) insertSlots(ctx context.Context, businessID string, day time.Time, generated []slots.Slot) (int, error) {
	created := 0
	for _, s := range generated {
		tag, err := p.db.Exec(ctx, insertSlotSQL,
			businessID, DayKey(day), s.Index, s.StartTime.UTC(), s.DurationMinutes)
		if err != nil {
			return created, fmt.Errorf("ledger: insert slot %d: %w", s.Index, err)
		}
		created += int(tag.RowsAffected())
	}
	return created, nil
}

// FindConsecutiveFree scans the day's ledger for candidate runs.
func (p *PostgresIndex) FindConsecutiveFree(ctx context.Context, businessID string, day time.Time, requiredSlots int, notBefore time.Time) ([]slots.Run, error) {
	ctx, span := p.tracer.Start(ctx, "ledger.find_consecutive_free")
	defer span.End()

	ledger, err := p.Day(ctx, businessID, day)
	if err != nil {
		return nil, err
	}
	return slots.FreeRuns(ledger, requiredSlots, notBefore), nil
}

const reserveSQL = `
	UPDATE slots
	SET is_booked = TRUE, appointment_id = $1, customer_id = $2
	WHERE business_id = $3 AND day = $4 AND slot_index = ANY($5::int[]) AND is_booked = FALSE
`

// Reserve is the atomic check-and-set at the core of booking consistency.
// The conditional UPDATE only claims slots still free; if the affected row
// count falls short of the targeted set, someone else won the race and the
// whole transaction rolls back.
func (p *PostgresIndex) Reserve(ctx context.Context, businessID string, day time.Time, indexes []int, appointmentID uuid.UUID, customerID string) error {
	ctx, span := p.tracer.Start(ctx, "ledger.reserve")
	defer span.End()

	if len(indexes) == 0 {
		return fmt.Errorf("ledger: reserve requires at least one slot")
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ledger: begin reserve: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, reserveSQL,
		appointmentID, customerID, businessID, DayKey(day), toInt32(indexes))
	if err != nil {
		return fmt.Errorf("ledger: reserve update: %w", err)
	}
	if tag.RowsAffected() != int64(len(indexes)) {
		return ErrConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ledger: commit reserve: %w", err)
	}
	return nil
}

const releaseSQL = `
	UPDATE slots
	SET is_booked = FALSE, appointment_id = NULL, customer_id = NULL
	WHERE business_id = $1 AND day = $2 AND appointment_id = $3
`

// Release clears every slot referencing the appointment on that day.
func (p *PostgresIndex) Release(ctx context.Context, businessID string, day time.Time, appointmentID uuid.UUID) (int, error) {
	tag, err := p.db.Exec(ctx, releaseSQL, businessID, DayKey(day), appointmentID)
	if err != nil {
		return 0, fmt.Errorf("ledger: release: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

const releaseRunSQL = `
	UPDATE slots
	SET is_booked = FALSE, appointment_id = NULL, customer_id = NULL
	WHERE business_id = $1 AND day = $2 AND appointment_id = $3 AND slot_index = ANY($4::int[])
`

// ReleaseRun clears only the given indexes where they reference the appointment.
func (p *PostgresIndex) ReleaseRun(ctx context.Context, businessID string, day time.Time, appointmentID uuid.UUID, indexes []int) (int, error) {
	if len(indexes) == 0 {
		return 0, nil
	}
	tag, err := p.db.Exec(ctx, releaseRunSQL, businessID, DayKey(day), appointmentID, toInt32(indexes))
	if err != nil {
		return 0, fmt.Errorf("ledger: release run: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

const deleteUnbookedSQL = `
	DELETE FROM slots
	WHERE ctid IN (
		SELECT ctid FROM slots
		WHERE business_id = $1 AND day >= $2 AND day <= $3 AND is_booked = FALSE
		LIMIT $4
	)
`

// DeleteUnbooked removes free slots in batches bounded by batchSize so a
// large purge never exceeds the store's write limits in one statement.
func (p *PostgresIndex) DeleteUnbooked(ctx context.Context, businessID string, from, to time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 250
	}
	var total int64
	for {
		tag, err := p.db.Exec(ctx, deleteUnbookedSQL, businessID, DayKey(from), DayKey(to), batchSize)
		if err != nil {
			return total, fmt.Errorf("ledger: delete unbooked: %w", err)
		}
		total += tag.RowsAffected()
		if tag.RowsAffected() < int64(batchSize) {
			return total, nil
		}
	}
}

func scanSlots(rows pgx.Rows) ([]slots.Slot, error) {
	var out []slots.Slot
	for rows.Next() {
		var s slots.Slot
		var customerID *string
		if err := rows.Scan(&s.Index, &s.StartTime, &s.DurationMinutes, &s.IsBooked, &s.AppointmentID, &customerID); err != nil {
			return nil, fmt.Errorf("ledger: scan slot: %w", err)
		}
		if customerID != nil {
			s.CustomerID = *customerID
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func toInt32(indexes []int) []int32 {
	out := make([]int32, len(indexes))
	for i, v := range indexes {
		out[i] = int32(v)
	}
	return out
}
