package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/salonflow/booking-platform/internal/ledger"
	"github.com/salonflow/booking-platform/pkg/logging"
)

// BatchReport summarizes a bulk operation. Per-day failures are collected
// rather than aborting the run, so one bad day never blocks the rest of the
// range.
type BatchReport struct {
	TotalProcessed int      `json:"total_processed"`
	Succeeded      int      `json:"succeeded"`
	Failed         int      `json:"failed"`
	Errors         []string `json:"errors,omitempty"`
}

func (r *BatchReport) ok(n int) {
	r.TotalProcessed += n
	r.Succeeded += n
}

func (r *BatchReport) fail(day time.Time, err error) {
	r.TotalProcessed++
	r.Failed++
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", ledger.DayKey(day), err))
}

// Backfiller covers the denormalization repair queries.
type Backfiller interface {
	BackfillDenormalizedCustomers(ctx context.Context) (int64, error)
	BackfillEndTimes(ctx context.Context) (int64, error)
}

// BulkOperator runs the admin maintenance operations over the ledger.
type BulkOperator struct {
	index      ledger.Index
	backfiller Backfiller
	batchSize  int
	logger     *logging.Logger
}

func NewBulkOperator(index ledger.Index, backfiller Backfiller, batchSize int, logger *logging.Logger) *BulkOperator {
	if index == nil {
		panic("lifecycle: ledger index required")
	}
	if batchSize <= 0 {
		batchSize = 250
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &BulkOperator{index: index, backfiller: backfiller, batchSize: batchSize, logger: logger}
}

// RegenerateRange materializes missing slots for every day in [from, to],
// never touching existing rows. Regeneration after a schedule change adds the
// new grid alongside whatever is already booked; it cannot cancel anything.
func (b *BulkOperator) RegenerateRange(ctx context.Context, businessID string, from, to time.Time) (*BatchReport, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("lifecycle: range end %s before start %s", ledger.DayKey(to), ledger.DayKey(from))
	}

	report := &BatchReport{}
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		created, err := b.index.EnsureDay(ctx, businessID, day)
		if err != nil {
			report.fail(day, err)
			continue
		}
		report.ok(created)
	}
	b.logger.Info("slot regeneration finished",
		"business_id", businessID, "from", ledger.DayKey(from), "to", ledger.DayKey(to),
		"created", report.Succeeded, "failed_days", report.Failed)
	return report, nil
}

// DeleteAvailable removes unbooked slots in [from, to] in bounded batches.
// Booked slots are never deleted; the appointment row is the authority and a
// bulk cleanup must not orphan it.
func (b *BulkOperator) DeleteAvailable(ctx context.Context, businessID string, from, to time.Time) (*BatchReport, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("lifecycle: range end %s before start %s", ledger.DayKey(to), ledger.DayKey(from))
	}

	deleted, err := b.index.DeleteUnbooked(ctx, businessID, from, to, b.batchSize)
	report := &BatchReport{TotalProcessed: int(deleted), Succeeded: int(deleted)}
	if err != nil {
		report.Failed++
		report.Errors = append(report.Errors, err.Error())
		return report, fmt.Errorf("lifecycle: delete unbooked: %w", err)
	}
	b.logger.Info("unbooked slots deleted",
		"business_id", businessID, "from", ledger.DayKey(from), "to", ledger.DayKey(to), "deleted", deleted)
	return report, nil
}

// BackfillDenormalization repairs appointment rows missing denormalized
// customer fields or end times.
func (b *BulkOperator) BackfillDenormalization(ctx context.Context) (*BatchReport, error) {
	if b.backfiller == nil {
		return nil, fmt.Errorf("lifecycle: backfiller not configured")
	}

	report := &BatchReport{}
	customers, err := b.backfiller.BackfillDenormalizedCustomers(ctx)
	if err != nil {
		report.Failed++
		report.Errors = append(report.Errors, err.Error())
		return report, fmt.Errorf("lifecycle: backfill customers: %w", err)
	}
	report.ok(int(customers))

	ends, err := b.backfiller.BackfillEndTimes(ctx)
	if err != nil {
		report.Failed++
		report.Errors = append(report.Errors, err.Error())
		return report, fmt.Errorf("lifecycle: backfill end times: %w", err)
	}
	report.ok(int(ends))

	b.logger.Info("denormalization backfill finished", "customers", customers, "end_times", ends)
	return report, nil
}
