package domain

import (
	"fmt"
	"time"
)

// DateLayout keys holiday dates. Holidays match on the calendar-local date,
// independent of the caller's zone.
const DateLayout = "2006-01-02"

// DayWindow is the single open/close window for a weekday, as minutes after
// midnight calendar-local time. At most one window per day; no split shifts.
type DayWindow struct {
	OpenMinute  int
	CloseMinute int
}

// BusinessHoursCalendar is a tenant-owned weekly schedule plus holiday
// overrides. A weekday absent from Windows is closed all day; a holiday date
// overrides the weekly window for that date.
type BusinessHoursCalendar struct {
	ID        string
	TenantID  string
	Name      string
	Timezone  string
	Windows   map[time.Weekday]DayWindow
	Holidays  map[string]struct{}
	IsDefault bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Location resolves the calendar's IANA timezone.
func (c *BusinessHoursCalendar) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("calendar %s: invalid timezone %q: %w", c.ID, c.Timezone, err)
	}
	return loc, nil
}

// IsHoliday reports whether the given calendar-local date is a holiday.
func (c *BusinessHoursCalendar) IsHoliday(localDate time.Time) bool {
	_, ok := c.Holidays[localDate.Format(DateLayout)]
	return ok
}

// HasOpenWindow reports whether any weekday carries a window at all. A
// calendar without one can never accrue operational time.
func (c *BusinessHoursCalendar) HasOpenWindow() bool {
	for _, w := range c.Windows {
		if w.CloseMinute > w.OpenMinute {
			return true
		}
	}
	return false
}

// Validate checks the calendar is usable for SLA arithmetic.
func (c *BusinessHoursCalendar) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if !c.HasOpenWindow() {
		return fmt.Errorf("calendar %s: no open windows on any weekday", c.ID)
	}
	for day, w := range c.Windows {
		if w.OpenMinute < 0 || w.CloseMinute > 24*60 || w.CloseMinute <= w.OpenMinute {
			return fmt.Errorf("calendar %s: invalid window on %s", c.ID, day)
		}
	}
	return nil
}
