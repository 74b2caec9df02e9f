package appointments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewStore(mock)
}

func TestCreateFillsDefaults(t *testing.T) {
	mock, store := newMockStore(t)

	a := &Appointment{
		BusinessID:      "biz-1",
		CustomerID:      "cust-1",
		ServiceID:       "svc-1",
		StartTime:       time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		EndTime:         time.Date(2026, 3, 2, 9, 45, 0, 0, time.UTC),
		DurationMinutes: 45,
	}

	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), "biz-1", "cust-1", "svc-1", a.StartTime, a.EndTime,
			45, "pending", "", "", "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Create(context.Background(), a))
	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.Equal(t, StatusPending, a.Status)
	assert.False(t, a.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionReportsNoMatch(t *testing.T) {
	mock, store := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE appointments").
		WithArgs("canceled", pgxmock.AnyArg(), id, []string{"pending", "approved"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	moved, err := store.Transition(context.Background(), id, StatusCanceled, StatusPending, StatusApproved)
	require.NoError(t, err)
	assert.False(t, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDNotFound(t *testing.T) {
	mock, store := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT id, business_id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "business_id", "customer_id", "service_id", "start_time", "end_time",
			"duration_minutes", "status", "customer_name", "customer_phone", "service_name",
			"created_at", "updated_at",
		}))

	_, err := store.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReanchorAppliesWhileActive(t *testing.T) {
	mock, store := newMockStore(t)
	id := uuid.New()
	start := time.Date(2026, 3, 3, 11, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE appointments").
		WithArgs(start, start.Add(30*time.Minute), "pending", pgxmock.AnyArg(), id,
			[]string{"pending", "approved"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	moved, err := store.Reanchor(context.Background(), id, start, start.Add(30*time.Minute),
		StatusPending, StatusPending, StatusApproved)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// The status filter makes the reanchor a check-and-set: when a competing
// transition got there first, zero rows match and no write happens.
func TestReanchorReportsNoMatch(t *testing.T) {
	mock, store := newMockStore(t)
	id := uuid.New()
	start := time.Date(2026, 3, 3, 11, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE appointments").
		WithArgs(start, start.Add(30*time.Minute), "pending", pgxmock.AnyArg(), id,
			[]string{"pending", "approved"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	moved, err := store.Reanchor(context.Background(), id, start, start.Add(30*time.Minute),
		StatusPending, StatusPending, StatusApproved)
	require.NoError(t, err)
	assert.False(t, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}
