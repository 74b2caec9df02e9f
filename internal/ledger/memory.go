package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/salonflow/booking-platform/internal/schedule"
	"github.com/salonflow/booking-platform/internal/slots"
)

// MemoryIndex is an in-memory ledger for tests and local development. The
// mutex gives it the same all-or-nothing reservation semantics the Postgres
// index gets from its transaction.
type MemoryIndex struct {
	mu        sync.Mutex
	schedules schedule.Provider
	days      map[string][]slots.Slot
}

// NewMemoryIndex creates an in-memory ledger index.
func NewMemoryIndex(schedules schedule.Provider) *MemoryIndex {
	if schedules == nil {
		panic("ledger: schedule provider required")
	}
	return &MemoryIndex{
		schedules: schedules,
		days:      make(map[string][]slots.Slot),
	}
}

func (m *MemoryIndex) key(businessID string, day time.Time) string {
	return businessID + "|" + DayKey(day)
}

// materialize must be called with the mutex held.
func (m *MemoryIndex) materialize(ctx context.Context, businessID string, day time.Time) ([]slots.Slot, error) {
	key := m.key(businessID, day)
	if existing, ok := m.days[key]; ok {
		return existing, nil
	}
	cfg, err := m.schedules.Get(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("ledger: load schedule config: %w", err)
	}
	generated, err := slots.Generate(cfg, day)
	if err != nil {
		return nil, err
	}
	m.days[key] = generated
	return generated, nil
}

func (m *MemoryIndex) Day(ctx context.Context, businessID string, day time.Time) ([]slots.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ledger, err := m.materialize(ctx, businessID, day)
	if err != nil {
		return nil, err
	}
	out := make([]slots.Slot, len(ledger))
	copy(out, ledger)
	return out, nil
}

func (m *MemoryIndex) FindConsecutiveFree(ctx context.Context, businessID string, day time.Time, requiredSlots int, notBefore time.Time) ([]slots.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ledger, err := m.materialize(ctx, businessID, day)
	if err != nil {
		return nil, err
	}
	return slots.FreeRuns(ledger, requiredSlots, notBefore), nil
}

func (m *MemoryIndex) Reserve(ctx context.Context, businessID string, day time.Time, indexes []int, appointmentID uuid.UUID, customerID string) error {
	if len(indexes) == 0 {
		return fmt.Errorf("ledger: reserve requires at least one slot")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ledger, err := m.materialize(ctx, businessID, day)
	if err != nil {
		return err
	}

	pos := positionsByIndex(ledger)
	for _, idx := range indexes {
		p, ok := pos[idx]
		if !ok || ledger[p].IsBooked {
			return ErrConflict
		}
	}
	id := appointmentID
	for _, idx := range indexes {
		p := pos[idx]
		ledger[p].IsBooked = true
		ledger[p].AppointmentID = &id
		ledger[p].CustomerID = customerID
	}
	return nil
}

func (m *MemoryIndex) Release(ctx context.Context, businessID string, day time.Time, appointmentID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ledger := m.days[m.key(businessID, day)]

	released := 0
	for i := range ledger {
		if ledger[i].AppointmentID != nil && *ledger[i].AppointmentID == appointmentID {
			clearSlot(&ledger[i])
			released++
		}
	}
	return released, nil
}

func (m *MemoryIndex) ReleaseRun(ctx context.Context, businessID string, day time.Time, appointmentID uuid.UUID, indexes []int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ledger := m.days[m.key(businessID, day)]

	pos := positionsByIndex(ledger)
	released := 0
	for _, idx := range indexes {
		p, ok := pos[idx]
		if !ok {
			continue
		}
		if ledger[p].AppointmentID != nil && *ledger[p].AppointmentID == appointmentID {
			clearSlot(&ledger[p])
			released++
		}
	}
	return released, nil
}

func (m *MemoryIndex) EnsureDay(ctx context.Context, businessID string, day time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := m.key(businessID, day)

	cfg, err := m.schedules.Get(ctx, businessID)
	if err != nil {
		return 0, fmt.Errorf("ledger: load schedule config: %w", err)
	}
	generated, err := slots.Generate(cfg, day)
	if err != nil {
		return 0, err
	}

	existing, ok := m.days[key]
	if !ok {
		m.days[key] = generated
		return len(generated), nil
	}

	present := make(map[int]bool, len(existing))
	for _, s := range existing {
		present[s.Index] = true
	}
	created := 0
	for _, s := range generated {
		if !present[s.Index] {
			existing = append(existing, s)
			created++
		}
	}
	if created > 0 {
		sortByIndex(existing)
		m.days[key] = existing
	}
	return created, nil
}

func (m *MemoryIndex) DeleteUnbooked(ctx context.Context, businessID string, from, to time.Time, batchSize int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fromKey, toKey := DayKey(from), DayKey(to)
	var deleted int64
	for key, ledger := range m.days {
		bizID, dayKey, ok := splitKey(key)
		if !ok || bizID != businessID || dayKey < fromKey || dayKey > toKey {
			continue
		}
		kept := ledger[:0]
		for _, s := range ledger {
			if s.IsBooked {
				kept = append(kept, s)
			} else {
				deleted++
			}
		}
		m.days[key] = kept
	}
	return deleted, nil
}

// positionsByIndex maps Slot.Index to slice position. After DeleteUnbooked
// compacts a day the two no longer coincide, so slots must be addressed by
// their index, never by position.
func positionsByIndex(ledger []slots.Slot) map[int]int {
	pos := make(map[int]int, len(ledger))
	for i, s := range ledger {
		pos[s.Index] = i
	}
	return pos
}

func clearSlot(s *slots.Slot) {
	s.IsBooked = false
	s.AppointmentID = nil
	s.CustomerID = ""
}

func sortByIndex(ledger []slots.Slot) {
	sort.Slice(ledger, func(i, j int) bool { return ledger[i].Index < ledger[j].Index })
}

func splitKey(key string) (businessID, day string, ok bool) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '|' {
			return key[:i], key[i+1:], true
		}
	}
	return "", "", false
}
