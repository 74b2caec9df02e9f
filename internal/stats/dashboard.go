// Package stats computes read-only booking metrics for the admin dashboard.
// It runs aggregate queries over database/sql so reporting load stays off the
// pgx pool serving the booking path.
package stats

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/salonflow/booking-platform/pkg/logging"
)

// Summary contains the per-business booking metrics for a period.
type Summary struct {
	BusinessID    string           `json:"business_id"`
	PeriodStart   string           `json:"period_start"`
	PeriodEnd     string           `json:"period_end"`
	ByStatus      map[string]int64 `json:"by_status"`
	TotalSlots    int64            `json:"total_slots"`
	BookedSlots   int64            `json:"booked_slots"`
	UtilizationPc float64          `json:"utilization_pct"`
}

// Dashboard serves aggregate booking metrics.
type Dashboard struct {
	db     *sql.DB
	logger *logging.Logger
}

func NewDashboard(db *sql.DB, logger *logging.Logger) *Dashboard {
	if db == nil {
		panic("stats: db cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dashboard{db: db, logger: logger}
}

// Summarize computes booking counts by status and slot utilization for a
// business over [start, end).
func (d *Dashboard) Summarize(ctx context.Context, businessID string, start, end time.Time) (*Summary, error) {
	byStatus, err := d.countByStatus(ctx, businessID, start, end)
	if err != nil {
		return nil, err
	}
	total, booked, err := d.slotCounts(ctx, businessID, start, end)
	if err != nil {
		return nil, err
	}

	utilization := 0.0
	if total > 0 {
		utilization = (float64(booked) / float64(total)) * 100.0
	}

	return &Summary{
		BusinessID:    businessID,
		PeriodStart:   start.Format(time.RFC3339),
		PeriodEnd:     end.Format(time.RFC3339),
		ByStatus:      byStatus,
		TotalSlots:    total,
		BookedSlots:   booked,
		UtilizationPc: utilization,
	}, nil
}

func (d *Dashboard) countByStatus(ctx context.Context, businessID string, start, end time.Time) (map[string]int64, error) {
	query := `
		SELECT status, COUNT(*)
		FROM appointments
		WHERE business_id = $1 AND start_time >= $2 AND start_time < $3
		GROUP BY status
	`
	rows, err := d.db.QueryContext(ctx, query, businessID, start, end)
	if err != nil {
		return nil, fmt.Errorf("stats: count by status: %w", err)
	}
	defer rows.Close()

	counts := map[string]int64{}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("stats: scan status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (d *Dashboard) slotCounts(ctx context.Context, businessID string, start, end time.Time) (total, booked int64, err error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_booked)
		FROM slots
		WHERE business_id = $1 AND day >= $2 AND day < $3
	`
	row := d.db.QueryRowContext(ctx, query, businessID, start.Format("2006-01-02"), end.Format("2006-01-02"))
	if err := row.Scan(&total, &booked); err != nil {
		return 0, 0, fmt.Errorf("stats: slot counts: %w", err)
	}
	return total, booked, nil
}

// BusiestDays returns the top-N days by booked slot count in [start, end).
func (d *Dashboard) BusiestDays(ctx context.Context, businessID string, start, end time.Time, limit int) (map[string]int64, error) {
	if limit <= 0 {
		limit = 7
	}
	query := `
		SELECT day, COUNT(*)
		FROM slots
		WHERE business_id = $1 AND day >= $2 AND day < $3 AND is_booked
		GROUP BY day
		ORDER BY COUNT(*) DESC, day
		LIMIT $4
	`
	rows, err := d.db.QueryContext(ctx, query, businessID, start.Format("2006-01-02"), end.Format("2006-01-02"), limit)
	if err != nil {
		return nil, fmt.Errorf("stats: busiest days: %w", err)
	}
	defer rows.Close()

	days := map[string]int64{}
	for rows.Next() {
		var day string
		var n int64
		if err := rows.Scan(&day, &n); err != nil {
			return nil, fmt.Errorf("stats: scan busiest day: %w", err)
		}
		days[day] = n
	}
	return days, rows.Err()
}
