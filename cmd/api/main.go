package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/salonflow/booking-platform/cmd/mainconfig"
	"github.com/salonflow/booking-platform/internal/admin"
	"github.com/salonflow/booking-platform/internal/api/router"
	"github.com/salonflow/booking-platform/internal/app/bootstrap"
	"github.com/salonflow/booking-platform/internal/appointments"
	"github.com/salonflow/booking-platform/internal/booking"
	"github.com/salonflow/booking-platform/internal/clock"
	appconfig "github.com/salonflow/booking-platform/internal/config"
	"github.com/salonflow/booking-platform/internal/events"
	"github.com/salonflow/booking-platform/internal/http/handlers"
	"github.com/salonflow/booking-platform/internal/ledger"
	"github.com/salonflow/booking-platform/internal/lifecycle"
	"github.com/salonflow/booking-platform/internal/observability/metrics"
	"github.com/salonflow/booking-platform/internal/schedule"
	"github.com/salonflow/booking-platform/internal/stats"
	"github.com/salonflow/booking-platform/pkg/logging"
)

// defaultSchedules serves default working hours when Redis is unavailable so
// local development works without the full stack.
type defaultSchedules struct {
	slotMinutes int
}

func (d defaultSchedules) Get(_ context.Context, businessID string) (*schedule.Config, error) {
	cfg := schedule.DefaultConfig(businessID)
	if d.slotMinutes > 0 {
		cfg.SlotDurationMinutes = d.slotMinutes
	}
	return cfg, nil
}

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := bootstrap.BuildPgxPool(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)

	var schedules schedule.Provider = defaultSchedules{slotMinutes: cfg.DefaultSlotMinutes}
	scheduleStore := bootstrap.BuildScheduleStore(redisClient)
	if scheduleStore != nil {
		schedules = scheduleStore
	} else {
		logger.Warn("schedule store disabled, serving default working hours")
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	index := ledger.NewPostgresIndex(pool, schedules)
	appointmentStore := appointments.NewStore(pool)
	outbox := events.NewOutboxStore(pool)
	bookingMetrics := metrics.NewBookingMetrics(nil)
	clk := clock.System{}

	allocator := booking.NewAllocator(schedules, index, appointmentStore, outbox, clk, bookingMetrics, logger).
		WithMaxAttempts(cfg.BookingRetryAttempts)
	manager := lifecycle.NewManager(schedules, index, appointmentStore, outbox, clk, logger)
	bulk := lifecycle.NewBulkOperator(index, appointmentStore, cfg.BulkBatchSize, logger)

	if cfg.EventQueueURL != "" {
		sqsClient := sqs.NewFromConfig(awsCfg)
		publisher := events.NewSQSPublisher(sqsClient, cfg.EventQueueURL)
		deliverer := events.NewDeliverer(outbox, publisher, logger).
			WithBatchSize(int32(cfg.OutboxBatchSize)).
			WithInterval(cfg.OutboxPollInterval)
		go deliverer.Start(ctx)
		logger.Info("outbox deliverer started", "queue_url", cfg.EventQueueURL)
	} else {
		logger.Warn("EVENT_QUEUE_URL not set, domain events stay in the outbox")
	}

	var runStore *admin.RunStore
	if cfg.AdminRunsTable != "" {
		dynamoClient := dynamodb.NewFromConfig(awsCfg)
		runStore = admin.NewRunStore(dynamoClient, cfg.AdminRunsTable, logger)
	}

	var dashboard *stats.Dashboard
	if cfg.DatabaseURL != "" {
		statsDB, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Warn("stats database unavailable", "error", err)
		} else {
			defer func() { _ = statsDB.Close() }()
			dashboard = stats.NewDashboard(statsDB, logger)
		}
	}

	var scheduleRW handlers.ScheduleStore
	if scheduleStore != nil {
		scheduleRW = scheduleStore
	} else {
		scheduleRW = readOnlySchedules{schedules}
	}

	var runRecorder handlers.RunRecorder
	if runStore != nil {
		runRecorder = runStore
	}
	var statsProvider handlers.StatsProvider
	if dashboard != nil {
		statsProvider = dashboard
	}

	routerCfg := &router.Config{
		Logger:          logger,
		Booking:         handlers.NewBookingHandler(allocator, manager, appointmentStore, logger),
		AdminSlots:      handlers.NewAdminSlotsHandler(bulk, runRecorder, scheduleRW, statsProvider, logger),
		AdminAuthSecret: cfg.AdminJWTSecret,
		MetricsHandler:  promhttp.Handler(),
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// readOnlySchedules adapts a bare provider to the admin handler's store
// interface when Redis-backed persistence is disabled.
type readOnlySchedules struct {
	provider schedule.Provider
}

func (r readOnlySchedules) Get(ctx context.Context, businessID string) (*schedule.Config, error) {
	return r.provider.Get(ctx, businessID)
}

func (r readOnlySchedules) Set(context.Context, *schedule.Config) error {
	return schedule.ErrStoreDisabled
}
