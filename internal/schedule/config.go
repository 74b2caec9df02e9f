// Package schedule provides per-business scheduling configuration: working
// hours, slot sizing, and booking policy. The scheduling core treats this
// configuration as read-only; it is owned by the business-settings surface.
package schedule

import (
	"errors"
	"fmt"
	"time"
)

// DefaultSlotMinutes is used when a business has no explicit slot duration.
const DefaultSlotMinutes = 30

var (
	// ErrInvalidSlotDuration is returned for a non-positive slot duration.
	ErrInvalidSlotDuration = errors.New("schedule: slot duration must be positive")

	// ErrMalformedHours is returned when a day's open/close times cannot be parsed.
	ErrMalformedHours = errors.New("schedule: malformed working hours")
)

// DayHours represents the bookable window for a single day.
// Nil means the business is closed that day.
type DayHours struct {
	Open  string `json:"open"`  // "09:00" in 24-hour format
	Close string `json:"close"` // "18:00" in 24-hour format
}

// WorkingHours maps day names to their hours.
type WorkingHours struct {
	Monday    *DayHours `json:"monday,omitempty"`
	Tuesday   *DayHours `json:"tuesday,omitempty"`
	Wednesday *DayHours `json:"wednesday,omitempty"`
	Thursday  *DayHours `json:"thursday,omitempty"`
	Friday    *DayHours `json:"friday,omitempty"`
	Saturday  *DayHours `json:"saturday,omitempty"`
	Sunday    *DayHours `json:"sunday,omitempty"`
}

// ForDay returns the hours for a given weekday.
func (w *WorkingHours) ForDay(weekday time.Weekday) *DayHours {
	switch weekday {
	case time.Sunday:
		return w.Sunday
	case time.Monday:
		return w.Monday
	case time.Tuesday:
		return w.Tuesday
	case time.Wednesday:
		return w.Wednesday
	case time.Thursday:
		return w.Thursday
	case time.Friday:
		return w.Friday
	case time.Saturday:
		return w.Saturday
	default:
		return nil
	}
}

// Config holds scheduling configuration for a single business.
type Config struct {
	BusinessID          string       `json:"business_id"`
	Name                string       `json:"name"`
	Timezone            string       `json:"timezone"` // e.g., "America/New_York"
	WorkingHours        WorkingHours `json:"working_hours"`
	SlotDurationMinutes int          `json:"slot_duration_minutes"`
	// AutoApprove confirms bookings immediately instead of leaving them pending
	// for the business to approve.
	AutoApprove bool `json:"auto_approve"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig(businessID string) *Config {
	return &Config{
		BusinessID: businessID,
		Name:       "Salon",
		Timezone:   "America/New_York",
		WorkingHours: WorkingHours{
			Monday:    &DayHours{Open: "09:00", Close: "17:00"},
			Tuesday:   &DayHours{Open: "09:00", Close: "17:00"},
			Wednesday: &DayHours{Open: "09:00", Close: "17:00"},
			Thursday:  &DayHours{Open: "09:00", Close: "17:00"},
			Friday:    &DayHours{Open: "09:00", Close: "17:00"},
			Saturday:  nil, // Closed
			Sunday:    nil, // Closed
		},
		SlotDurationMinutes: DefaultSlotMinutes,
		AutoApprove:         false,
	}
}

// Validate rejects malformed configuration at the boundary so the allocator
// never has to apply silent defaults.
func (c *Config) Validate() error {
	if c.SlotDurationMinutes <= 0 {
		return ErrInvalidSlotDuration
	}
	for _, day := range []*DayHours{
		c.WorkingHours.Monday, c.WorkingHours.Tuesday, c.WorkingHours.Wednesday,
		c.WorkingHours.Thursday, c.WorkingHours.Friday, c.WorkingHours.Saturday,
		c.WorkingHours.Sunday,
	} {
		if day == nil {
			continue
		}
		if _, err := parseClock(day.Open); err != nil {
			return fmt.Errorf("%w: open %q", ErrMalformedHours, day.Open)
		}
		if _, err := parseClock(day.Close); err != nil {
			return fmt.Errorf("%w: close %q", ErrMalformedHours, day.Close)
		}
	}
	return nil
}

// Location resolves the business timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SlotDuration returns the configured slot duration, applying the default
// when the stored value is zero (legacy records).
func (c *Config) SlotDuration() time.Duration {
	if c.SlotDurationMinutes == 0 {
		return DefaultSlotMinutes * time.Minute
	}
	return time.Duration(c.SlotDurationMinutes) * time.Minute
}

// DayWindow returns the open and close instants for the given calendar day in
// the business's timezone. ok is false when the business is closed that day,
// including the close <= open case.
func (c *Config) DayWindow(day time.Time) (open, close time.Time, ok bool) {
	loc := c.Location()
	local := day.In(loc)

	hours := c.WorkingHours.ForDay(local.Weekday())
	if hours == nil {
		return time.Time{}, time.Time{}, false
	}

	openClock, err := parseClock(hours.Open)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	closeClock, err := parseClock(hours.Close)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}

	open = time.Date(local.Year(), local.Month(), local.Day(), openClock.Hour(), openClock.Minute(), 0, 0, loc)
	close = time.Date(local.Year(), local.Month(), local.Day(), closeClock.Hour(), closeClock.Minute(), 0, 0, loc)
	if !close.After(open) {
		return time.Time{}, time.Time{}, false
	}
	return open, close, true
}

func parseClock(s string) (time.Time, error) {
	return time.Parse("15:04", s)
}
