// Package router wires the HTTP surface: customer booking routes, admin
// maintenance routes behind JWT, and the health/metrics endpoints.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/salonflow/booking-platform/internal/http/handlers"
	httpmiddleware "github.com/salonflow/booking-platform/internal/http/middleware"
	"github.com/salonflow/booking-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger          *logging.Logger
	Booking         *handlers.BookingHandler
	AdminSlots      *handlers.AdminSlotsHandler
	AdminAuthSecret string
	MetricsHandler  http.Handler
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Booking != nil {
		r.Route("/businesses/{businessID}", func(biz chi.Router) {
			biz.Get("/availability", cfg.Booking.Availability)
			biz.Post("/appointments", cfg.Booking.Book)
			biz.Get("/appointments", cfg.Booking.List)
		})
		r.Route("/appointments/{appointmentID}", func(appt chi.Router) {
			appt.Get("/", cfg.Booking.Get)
			appt.Post("/cancel", cfg.Booking.Cancel)
			appt.Post("/approve", cfg.Booking.Approve)
			appt.Post("/complete", cfg.Booking.Complete)
			appt.Post("/reschedule", cfg.Booking.Reschedule)
		})
	}

	if cfg.AdminSlots != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))

			admin.Route("/businesses/{businessID}", func(biz chi.Router) {
				biz.Post("/slots/regenerate", cfg.AdminSlots.Regenerate)
				biz.Post("/slots/delete-available", cfg.AdminSlots.DeleteAvailable)
				biz.Get("/schedule", cfg.AdminSlots.GetSchedule)
				biz.Put("/schedule", cfg.AdminSlots.PutSchedule)
				biz.Get("/stats", cfg.AdminSlots.GetStats)
			})
			admin.Post("/maintenance/backfill", cfg.AdminSlots.Backfill)
			admin.Get("/runs/{runID}", cfg.AdminSlots.GetRun)
		})
	}

	return r
}
