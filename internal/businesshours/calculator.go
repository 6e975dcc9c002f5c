// Package businesshours implements operational-time arithmetic over a
// tenant's business-hours calendar. All functions are pure; the single
// timezone conversion happens at the boundary of each calculation and the
// walk proceeds in calendar-local days from there.
package businesshours

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// maxWalkDays bounds the day walk. A calendar that accrues no time within
// two years of walking is treated as misconfigured rather than looped on.
const maxWalkDays = 732

// AddOperationalTime walks forward from start consuming durationMinutes of
// in-window time and returns the instant the duration is exhausted. A start
// outside hours snaps forward to the next window open, so a zero duration
// returns start itself or the snapped open instant. In 24x7 mode the
// calendar is ignored entirely.
func AddOperationalTime(start time.Time, durationMinutes int, cal *domain.BusinessHoursCalendar, mode domain.SLAMode) (time.Time, error) {
	if durationMinutes < 0 {
		return time.Time{}, apperrors.NewValidationError("duration must be non-negative", nil)
	}
	if mode == domain.SLAMode24x7 {
		return start.Add(time.Duration(durationMinutes) * time.Minute), nil
	}
	if err := cal.Validate(); err != nil {
		return time.Time{}, apperrors.NewConfigurationError(err.Error(), map[string]any{"calendar_id": cal.ID})
	}
	loc, err := cal.Location()
	if err != nil {
		return time.Time{}, apperrors.NewConfigurationError(err.Error(), map[string]any{"calendar_id": cal.ID})
	}

	cur := start.In(loc)
	remaining := time.Duration(durationMinutes) * time.Minute

	for day := 0; day < maxWalkDays; day++ {
		midnight := startOfDay(cur)
		open, close, ok := windowFor(cal, midnight)
		if !ok {
			cur = midnight.AddDate(0, 0, 1)
			continue
		}
		if cur.Before(open) {
			cur = open
		}
		if !cur.Before(close) {
			cur = midnight.AddDate(0, 0, 1)
			continue
		}
		if remaining == 0 {
			return cur, nil
		}
		available := close.Sub(cur)
		if remaining <= available {
			return cur.Add(remaining), nil
		}
		remaining -= available
		cur = midnight.AddDate(0, 0, 1)
	}

	return time.Time{}, apperrors.NewConfigurationError(
		"calendar accrues no operational time within walk horizon",
		map[string]any{"calendar_id": cal.ID})
}

// ElapsedOperationalTime accumulates the in-window minutes between from and
// to. It is the inverse of AddOperationalTime and backs elapsed-vs-target
// ratio computation for warning thresholds.
func ElapsedOperationalTime(from, to time.Time, cal *domain.BusinessHoursCalendar, mode domain.SLAMode) (int, error) {
	if !to.After(from) {
		return 0, nil
	}
	if mode == domain.SLAMode24x7 {
		return int(to.Sub(from) / time.Minute), nil
	}
	if err := cal.Validate(); err != nil {
		return 0, apperrors.NewConfigurationError(err.Error(), map[string]any{"calendar_id": cal.ID})
	}
	loc, err := cal.Location()
	if err != nil {
		return 0, apperrors.NewConfigurationError(err.Error(), map[string]any{"calendar_id": cal.ID})
	}

	cur := from.In(loc)
	end := to.In(loc)
	var total time.Duration

	for day := 0; day < maxWalkDays; day++ {
		midnight := startOfDay(cur)
		if open, close, ok := windowFor(cal, midnight); ok {
			segStart := cur
			if segStart.Before(open) {
				segStart = open
			}
			segEnd := end
			if segEnd.After(close) {
				segEnd = close
			}
			if segStart.Before(segEnd) {
				total += segEnd.Sub(segStart)
			}
		}
		next := midnight.AddDate(0, 0, 1)
		if !next.Before(end) {
			return int(total / time.Minute), nil
		}
		cur = next
	}

	// An interval wider than the walk horizon must not silently
	// under-report; a capped total would shrink the warning ratio.
	return 0, apperrors.NewConfigurationError(
		"elapsed-time walk exceeded horizon",
		map[string]any{"calendar_id": cal.ID})
}

// windowFor resolves the open/close instants for the day beginning at
// midnight, honoring holiday overrides. ok is false on closed days.
func windowFor(cal *domain.BusinessHoursCalendar, midnight time.Time) (open, close time.Time, ok bool) {
	if cal.IsHoliday(midnight) {
		return time.Time{}, time.Time{}, false
	}
	w, exists := cal.Windows[midnight.Weekday()]
	if !exists || w.CloseMinute <= w.OpenMinute {
		return time.Time{}, time.Time{}, false
	}
	open = midnight.Add(time.Duration(w.OpenMinute) * time.Minute)
	close = midnight.Add(time.Duration(w.CloseMinute) * time.Minute)
	return open, close, true
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
