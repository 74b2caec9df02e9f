package schedule

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client)
}

func TestStoreGetReturnsDefaultWhenMissing(t *testing.T) {
	store := newTestStore(t)

	cfg, err := store.Get(context.Background(), "biz-1")
	require.NoError(t, err)
	assert.Equal(t, "biz-1", cfg.BusinessID)
	assert.Equal(t, DefaultSlotMinutes, cfg.SlotDurationMinutes)
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cfg := DefaultConfig("biz-2")
	cfg.Name = "Shear Genius"
	cfg.SlotDurationMinutes = 15
	cfg.AutoApprove = true
	cfg.WorkingHours.Saturday = &DayHours{Open: "10:00", Close: "14:00"}

	require.NoError(t, store.Set(ctx, cfg))

	got, err := store.Get(ctx, "biz-2")
	require.NoError(t, err)
	assert.Equal(t, "Shear Genius", got.Name)
	assert.Equal(t, 15, got.SlotDurationMinutes)
	assert.True(t, got.AutoApprove)
	require.NotNil(t, got.WorkingHours.Saturday)
	assert.Equal(t, "10:00", got.WorkingHours.Saturday.Open)
}

func TestStoreSetRejectsInvalidConfig(t *testing.T) {
	store := newTestStore(t)

	cfg := DefaultConfig("biz-3")
	cfg.SlotDurationMinutes = -1
	assert.ErrorIs(t, store.Set(context.Background(), cfg), ErrInvalidSlotDuration)
}
