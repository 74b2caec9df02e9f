package slots

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salonflow/booking-platform/internal/schedule"
)

func utcConfig() *schedule.Config {
	cfg := schedule.DefaultConfig("biz-1")
	cfg.Timezone = "UTC"
	return cfg
}

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func TestGenerateTilesOpenWindow(t *testing.T) {
	cfg := utcConfig() // 09:00-17:00, 30 min slots

	out, err := Generate(cfg, monday)
	require.NoError(t, err)
	require.Len(t, out, 16)

	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), out[0].StartTime)
	assert.Equal(t, time.Date(2026, 3, 2, 16, 30, 0, 0, time.UTC), out[15].StartTime)
	for i, s := range out {
		assert.Equal(t, i, s.Index)
		assert.False(t, s.IsBooked)
		assert.Equal(t, 30, s.DurationMinutes)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	cfg := utcConfig()

	first, err := Generate(cfg, monday)
	require.NoError(t, err)
	second, err := Generate(cfg, monday)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGenerateClosedDay(t *testing.T) {
	cfg := utcConfig()

	// Saturday is closed by default.
	saturday := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	out, err := Generate(cfg, saturday)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestGenerateDropsTrailingPartialWindow(t *testing.T) {
	cfg := utcConfig()
	cfg.WorkingHours.Monday = &schedule.DayHours{Open: "09:00", Close: "10:45"}

	out, err := Generate(cfg, monday)
	require.NoError(t, err)
	// 09:00, 09:30, 10:00 fit; 10:30-11:00 spills past close.
	require.Len(t, out, 3)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), out[2].StartTime)
}

func TestGenerateInvalidSlotDuration(t *testing.T) {
	cfg := utcConfig()
	cfg.SlotDurationMinutes = 0

	_, err := Generate(cfg, monday)
	assert.ErrorIs(t, err, schedule.ErrInvalidSlotDuration)
}

func TestGenerateCloseBeforeOpenIsClosed(t *testing.T) {
	cfg := utcConfig()
	cfg.WorkingHours.Monday = &schedule.DayHours{Open: "17:00", Close: "09:00"}

	out, err := Generate(cfg, monday)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestFreeRunsFindsAllCandidates(t *testing.T) {
	cfg := utcConfig()
	ledger, err := Generate(cfg, monday)
	require.NoError(t, err)

	// Book slots 2 and 3 (10:00, 10:30).
	ledger[2].IsBooked = true
	ledger[3].IsBooked = true

	runs := FreeRuns(ledger, 2, time.Time{})
	require.NotEmpty(t, runs)

	// First candidate is 09:00+09:30; nothing may start at 09:30 (its second
	// slot would collide with the booked 10:00).
	assert.Equal(t, []int{0, 1}, runs[0].Indexes)
	assert.Equal(t, []int{4, 5}, runs[1].Indexes)

	for i := 1; i < len(runs); i++ {
		assert.True(t, runs[i].StartTime.After(runs[i-1].StartTime), "runs must be chronological")
	}
}

func TestFreeRunsHonorsNotBefore(t *testing.T) {
	cfg := utcConfig()
	ledger, err := Generate(cfg, monday)
	require.NoError(t, err)

	notBefore := time.Date(2026, 3, 2, 15, 45, 0, 0, time.UTC)
	runs := FreeRuns(ledger, 1, notBefore)
	require.Len(t, runs, 2) // 16:00 and 16:30
	assert.Equal(t, time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC), runs[0].StartTime)
}

func TestFreeRunsNoRoomBeforeClose(t *testing.T) {
	cfg := utcConfig()
	ledger, err := Generate(cfg, monday)
	require.NoError(t, err)

	runs := FreeRuns(ledger, len(ledger)+1, time.Time{})
	assert.Empty(t, runs)
}

func TestSlotsForDuration(t *testing.T) {
	assert.Equal(t, 2, SlotsForDuration(45, 30))
	assert.Equal(t, 1, SlotsForDuration(30, 30))
	assert.Equal(t, 3, SlotsForDuration(61, 30))
	assert.Equal(t, 0, SlotsForDuration(0, 30))
}

func TestOverlaps(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC) }

	assert.True(t, Overlaps(at(9, 0), at(10, 0), at(9, 30), at(10, 30)))
	assert.False(t, Overlaps(at(9, 0), at(10, 0), at(10, 0), at(11, 0)), "touching ranges do not overlap")
	assert.True(t, Overlaps(at(9, 0), at(11, 0), at(9, 30), at(10, 0)), "containment overlaps")
}
