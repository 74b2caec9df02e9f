package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/salonflow/booking-platform/internal/appointments"
	"github.com/salonflow/booking-platform/internal/booking"
	"github.com/salonflow/booking-platform/internal/clock"
	"github.com/salonflow/booking-platform/internal/http/handlers"
	"github.com/salonflow/booking-platform/internal/ledger"
	"github.com/salonflow/booking-platform/internal/lifecycle"
	"github.com/salonflow/booking-platform/internal/schedule"
	"github.com/salonflow/booking-platform/pkg/logging"
)

type staticSchedules struct{}

func (staticSchedules) Get(_ context.Context, businessID string) (*schedule.Config, error) {
	cfg := schedule.DefaultConfig(businessID)
	cfg.Timezone = "UTC"
	return cfg, nil
}

type memAppointments struct {
	appts map[uuid.UUID]*appointments.Appointment
}

func newMemAppointments() *memAppointments {
	return &memAppointments{appts: map[uuid.UUID]*appointments.Appointment{}}
}

func (m *memAppointments) Create(_ context.Context, a *appointments.Appointment) error {
	copied := *a
	m.appts[a.ID] = &copied
	return nil
}

func (m *memAppointments) GetByID(_ context.Context, id uuid.UUID) (*appointments.Appointment, error) {
	a, ok := m.appts[id]
	if !ok {
		return nil, appointments.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (m *memAppointments) ListForBusiness(_ context.Context, businessID string, _ time.Time, _ int) ([]appointments.Appointment, error) {
	var out []appointments.Appointment
	for _, a := range m.appts {
		if a.BusinessID == businessID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memAppointments) Transition(_ context.Context, id uuid.UUID, to appointments.Status, from ...appointments.Status) (bool, error) {
	a, ok := m.appts[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if a.Status == f {
			a.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (m *memAppointments) Reanchor(_ context.Context, id uuid.UUID, start, end time.Time, to appointments.Status, from ...appointments.Status) (bool, error) {
	a, ok := m.appts[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if a.Status == f {
			a.StartTime = start
			a.EndTime = end
			a.Status = to
			return true, nil
		}
	}
	return false, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	logger := logging.New("error")
	schedules := staticSchedules{}
	index := ledger.NewMemoryIndex(schedules)
	store := newMemAppointments()
	clk := clock.Fixed{Instant: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	allocator := booking.NewAllocator(schedules, index, store, nil, clk, nil, logger)
	manager := lifecycle.NewManager(schedules, index, store, nil, clk, logger)

	return New(&Config{
		Logger:          logger,
		Booking:         handlers.NewBookingHandler(allocator, manager, store, logger),
		AdminAuthSecret: "test-secret",
	})
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterBookAndCancelFlow(t *testing.T) {
	router := newTestRouter(t)

	body := `{"customer_id":"cust-1","service_id":"svc-1","day":"2026-03-02","duration_minutes":45}`
	req := httptest.NewRequest(http.MethodPost, "/businesses/biz-1/appointments", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rr.Code, rr.Body.String())
	}

	var appt appointments.Appointment
	if err := json.NewDecoder(rr.Body).Decode(&appt); err != nil {
		t.Fatalf("failed to decode appointment: %v", err)
	}
	if appt.Status != appointments.StatusPending {
		t.Fatalf("expected pending status, got %s", appt.Status)
	}

	cancelReq := httptest.NewRequest(http.MethodPost, "/appointments/"+appt.ID.String()+"/cancel", nil)
	cancelRR := httptest.NewRecorder()
	router.ServeHTTP(cancelRR, cancelReq)

	if cancelRR.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, cancelRR.Code, cancelRR.Body.String())
	}

	// The freed window is bookable again.
	rebookRR := httptest.NewRecorder()
	rebookReq := httptest.NewRequest(http.MethodPost, "/businesses/biz-1/appointments",
		strings.NewReader(`{"customer_id":"cust-2","service_id":"svc-1","day":"2026-03-02","duration_minutes":45,"preferred_start":"2026-03-02T09:00:00Z"}`))
	router.ServeHTTP(rebookRR, rebookReq)

	if rebookRR.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rebookRR.Code, rebookRR.Body.String())
	}
}

func TestRouterAvailability(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/businesses/biz-1/availability?day=2026-03-02&duration_minutes=30", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp struct {
		Available []struct {
			StartTime time.Time `json:"start_time"`
		} `json:"available"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode availability: %v", err)
	}
	if len(resp.Available) != 16 {
		t.Fatalf("expected 16 open slots, got %d", len(resp.Available))
	}
}

func TestRouterAdminRequiresJWT(t *testing.T) {
	logger := logging.New("error")
	schedules := staticSchedules{}
	index := ledger.NewMemoryIndex(schedules)
	bulk := lifecycle.NewBulkOperator(index, nil, 100, logger)

	router := New(&Config{
		Logger:          logger,
		AdminSlots:      handlers.NewAdminSlotsHandler(bulk, nil, &scheduleStoreAdapter{schedules}, nil, logger),
		AdminAuthSecret: "test-secret",
	})

	body := `{"from":"2026-03-02","to":"2026-03-06"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/businesses/biz-1/slots/regenerate", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}

	claims := jwt.RegisteredClaims{
		Subject:   "admin",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	authedReq := httptest.NewRequest(http.MethodPost, "/admin/businesses/biz-1/slots/regenerate", strings.NewReader(body))
	authedReq.Header.Set("Authorization", "Bearer "+token)
	authedRR := httptest.NewRecorder()
	router.ServeHTTP(authedRR, authedReq)

	if authedRR.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, authedRR.Code, authedRR.Body.String())
	}
}

// scheduleStoreAdapter makes a read-only provider satisfy the handler's
// store interface for tests that never write.
type scheduleStoreAdapter struct {
	provider schedule.Provider
}

func (a *scheduleStoreAdapter) Get(ctx context.Context, businessID string) (*schedule.Config, error) {
	return a.provider.Get(ctx, businessID)
}

func (a *scheduleStoreAdapter) Set(context.Context, *schedule.Config) error {
	return nil
}
