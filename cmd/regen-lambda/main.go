// Command regen-lambda extends the rolling booking window on a schedule.
// A CloudWatch rule fires it daily; each invocation materializes missing
// slots out to the configured horizon for every listed business.
package main

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"

	"github.com/salonflow/booking-platform/cmd/mainconfig"
	"github.com/salonflow/booking-platform/internal/admin"
	"github.com/salonflow/booking-platform/internal/app/bootstrap"
	appconfig "github.com/salonflow/booking-platform/internal/config"
	"github.com/salonflow/booking-platform/internal/ledger"
	"github.com/salonflow/booking-platform/internal/lifecycle"
	"github.com/salonflow/booking-platform/internal/schedule"
	"github.com/salonflow/booking-platform/pkg/logging"
)

type regenerator struct {
	bulk       *lifecycle.BulkOperator
	runs       *admin.RunStore
	businesses []string
	windowDays int
	logger     *logging.Logger
}

func (r *regenerator) handle(ctx context.Context, _ events.CloudWatchEvent) error {
	from := time.Now().UTC().Truncate(24 * time.Hour)
	to := from.AddDate(0, 0, r.windowDays)

	var failed []string
	for _, businessID := range r.businesses {
		runID := uuid.NewString()
		if r.runs != nil {
			_ = r.runs.PutPending(ctx, &admin.RunRecord{
				RunID:      runID,
				BusinessID: businessID,
				Operation:  admin.OpRegenerate,
				FromDay:    ledger.DayKey(from),
				ToDay:      ledger.DayKey(to),
			})
		}

		report, err := r.bulk.RegenerateRange(ctx, businessID, from, to)
		if err != nil {
			failed = append(failed, businessID)
			r.logger.Error("window regeneration failed", "business_id", businessID, "error", err)
			if r.runs != nil {
				_ = r.runs.MarkFailed(ctx, runID, err.Error(), report)
			}
			continue
		}
		if r.runs != nil {
			_ = r.runs.MarkCompleted(ctx, runID, report)
		}
		r.logger.Info("window regenerated",
			"business_id", businessID, "created", report.Succeeded, "to", ledger.DayKey(to))
	}

	if len(failed) > 0 {
		return errors.New("regeneration failed for: " + strings.Join(failed, ", "))
	}
	return nil
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	businesses := splitList(os.Getenv("BUSINESS_IDS"))
	if len(businesses) == 0 {
		logger.Error("BUSINESS_IDS is required")
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := bootstrap.BuildPgxPool(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}

	var schedules schedule.Provider
	if store := bootstrap.BuildScheduleStore(bootstrap.BuildRedisClient(ctx, cfg, logger, true)); store != nil {
		schedules = store
	} else {
		schedules = fallbackSchedules{}
	}

	var runs *admin.RunStore
	if cfg.AdminRunsTable != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		runs = admin.NewRunStore(dynamodb.NewFromConfig(awsCfg), cfg.AdminRunsTable, logger)
	}

	index := ledger.NewPostgresIndex(pool, schedules)
	r := &regenerator{
		bulk:       lifecycle.NewBulkOperator(index, nil, cfg.BulkBatchSize, logger),
		runs:       runs,
		businesses: businesses,
		windowDays: cfg.BookingWindowDays,
		logger:     logger,
	}

	lambda.Start(r.handle)
}

type fallbackSchedules struct{}

func (fallbackSchedules) Get(_ context.Context, businessID string) (*schedule.Config, error) {
	return schedule.DefaultConfig(businessID), nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
