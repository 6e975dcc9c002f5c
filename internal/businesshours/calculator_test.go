package businesshours

import (
	"testing"
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

func weekdayCalendar(tz string, holidays ...string) *domain.BusinessHoursCalendar {
	hol := make(map[string]struct{}, len(holidays))
	for _, h := range holidays {
		hol[h] = struct{}{}
	}
	// Mon-Fri 08:00-17:00
	windows := map[time.Weekday]domain.DayWindow{}
	for d := time.Monday; d <= time.Friday; d++ {
		windows[d] = domain.DayWindow{OpenMinute: 8 * 60, CloseMinute: 17 * 60}
	}
	return &domain.BusinessHoursCalendar{
		ID:       "cal-1",
		TenantID: "tenant-1",
		Name:     "weekday",
		Timezone: tz,
		Windows:  windows,
		Holidays: hol,
	}
}

func mustTime(t *testing.T, layout, value, tz string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation(tz)
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	ts, err := time.ParseInLocation(layout, value, loc)
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	return ts
}

const layout = "2006-01-02 15:04"

func TestAddOperationalTimeCarriesRemainderToNextDay(t *testing.T) {
	cal := weekdayCalendar("America/New_York")
	// Monday 15:00 + 4h: 2h fit before 17:00, 2h carry to Tuesday 08:00-10:00.
	start := mustTime(t, layout, "2024-06-03 15:00", "America/New_York")

	end, err := AddOperationalTime(start, 240, cal, domain.SLAModeBusinessHours)
	if err != nil {
		t.Fatalf("AddOperationalTime: %v", err)
	}
	want := mustTime(t, layout, "2024-06-04 10:00", "America/New_York")
	if !end.Equal(want) {
		t.Fatalf("got %v, want %v", end, want)
	}
}

func TestAddOperationalTimeSnapsWeekendStartToMonday(t *testing.T) {
	cal := weekdayCalendar("America/New_York")
	// Saturday 10:00: clock snaps to Monday 08:00, +1h = 09:00.
	start := mustTime(t, layout, "2024-06-08 10:00", "America/New_York")

	end, err := AddOperationalTime(start, 60, cal, domain.SLAModeBusinessHours)
	if err != nil {
		t.Fatalf("AddOperationalTime: %v", err)
	}
	want := mustTime(t, layout, "2024-06-10 09:00", "America/New_York")
	if !end.Equal(want) {
		t.Fatalf("got %v, want %v", end, want)
	}
}

func TestAddOperationalTimeZeroDuration(t *testing.T) {
	cal := weekdayCalendar("America/New_York")

	inside := mustTime(t, layout, "2024-06-03 11:30", "America/New_York")
	got, err := AddOperationalTime(inside, 0, cal, domain.SLAModeBusinessHours)
	if err != nil {
		t.Fatalf("AddOperationalTime: %v", err)
	}
	if !got.Equal(inside) {
		t.Fatalf("inside hours: got %v, want start unchanged %v", got, inside)
	}

	outside := mustTime(t, layout, "2024-06-03 06:00", "America/New_York")
	got, err = AddOperationalTime(outside, 0, cal, domain.SLAModeBusinessHours)
	if err != nil {
		t.Fatalf("AddOperationalTime: %v", err)
	}
	want := mustTime(t, layout, "2024-06-03 08:00", "America/New_York")
	if !got.Equal(want) {
		t.Fatalf("outside hours: got %v, want snapped open %v", got, want)
	}
}

func TestAddOperationalTimeIdempotentUnderZeroReapplication(t *testing.T) {
	cal := weekdayCalendar("America/New_York")
	start := mustTime(t, layout, "2024-06-03 16:45", "America/New_York")

	once, err := AddOperationalTime(start, 90, cal, domain.SLAModeBusinessHours)
	if err != nil {
		t.Fatalf("AddOperationalTime: %v", err)
	}
	again, err := AddOperationalTime(once, 0, cal, domain.SLAModeBusinessHours)
	if err != nil {
		t.Fatalf("AddOperationalTime: %v", err)
	}
	if !again.Equal(once) {
		t.Fatalf("re-application with zero duration moved the instant: %v -> %v", once, again)
	}
}

func TestAddOperationalTimeSkipsHolidays(t *testing.T) {
	cal := weekdayCalendar("America/New_York", "2024-06-04")
	// Monday 16:00 + 2h: 1h Monday, Tuesday is a holiday, remainder lands Wednesday 09:00.
	start := mustTime(t, layout, "2024-06-03 16:00", "America/New_York")

	end, err := AddOperationalTime(start, 120, cal, domain.SLAModeBusinessHours)
	if err != nil {
		t.Fatalf("AddOperationalTime: %v", err)
	}
	want := mustTime(t, layout, "2024-06-05 09:00", "America/New_York")
	if !end.Equal(want) {
		t.Fatalf("got %v, want %v", end, want)
	}
}

func TestAddOperationalTime24x7IgnoresCalendar(t *testing.T) {
	cal := weekdayCalendar("America/New_York")
	start := mustTime(t, layout, "2024-06-08 10:00", "America/New_York") // Saturday

	end, err := AddOperationalTime(start, 90, cal, domain.SLAMode24x7)
	if err != nil {
		t.Fatalf("AddOperationalTime: %v", err)
	}
	if want := start.Add(90 * time.Minute); !end.Equal(want) {
		t.Fatalf("got %v, want %v", end, want)
	}
}

func TestAddOperationalTimeAllClosedCalendarIsConfigurationError(t *testing.T) {
	cal := &domain.BusinessHoursCalendar{
		ID:       "cal-dead",
		TenantID: "tenant-1",
		Timezone: "UTC",
		Windows:  map[time.Weekday]domain.DayWindow{},
		Holidays: map[string]struct{}{},
	}
	start := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

	_, err := AddOperationalTime(start, 60, cal, domain.SLAModeBusinessHours)
	if !apperrors.IsConfigurationError(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestElapsedOperationalTime(t *testing.T) {
	cal := weekdayCalendar("America/New_York")

	tests := []struct {
		name string
		from string
		to   string
		want int
	}{
		{"within one day", "2024-06-03 09:00", "2024-06-03 12:30", 210},
		{"spans overnight", "2024-06-03 16:00", "2024-06-04 09:00", 120},
		{"spans weekend", "2024-06-07 16:00", "2024-06-10 09:00", 120},
		{"entirely outside hours", "2024-06-08 09:00", "2024-06-08 18:00", 0},
		{"to before from", "2024-06-03 12:00", "2024-06-03 11:00", 0},
		{"starts before open", "2024-06-03 06:00", "2024-06-03 09:00", 60},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			from := mustTime(t, layout, tc.from, "America/New_York")
			to := mustTime(t, layout, tc.to, "America/New_York")
			got, err := ElapsedOperationalTime(from, to, cal, domain.SLAModeBusinessHours)
			if err != nil {
				t.Fatalf("ElapsedOperationalTime: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %d minutes, want %d", got, tc.want)
			}
		})
	}
}

func TestElapsedOperationalTimeBeyondHorizonIsConfigurationError(t *testing.T) {
	cal := weekdayCalendar("America/New_York")
	from := mustTime(t, layout, "2021-01-04 09:00", "America/New_York")
	to := mustTime(t, layout, "2024-06-03 09:00", "America/New_York")

	_, err := ElapsedOperationalTime(from, to, cal, domain.SLAModeBusinessHours)
	if !apperrors.IsConfigurationError(err) {
		t.Fatalf("interval wider than the walk horizon should be a configuration error, got %v", err)
	}
}

func TestElapsedOperationalTimeInvertsAdd(t *testing.T) {
	cal := weekdayCalendar("America/New_York")
	start := mustTime(t, layout, "2024-06-03 15:00", "America/New_York")

	end, err := AddOperationalTime(start, 240, cal, domain.SLAModeBusinessHours)
	if err != nil {
		t.Fatalf("AddOperationalTime: %v", err)
	}
	elapsed, err := ElapsedOperationalTime(start, end, cal, domain.SLAModeBusinessHours)
	if err != nil {
		t.Fatalf("ElapsedOperationalTime: %v", err)
	}
	if elapsed != 240 {
		t.Fatalf("elapsed %d, want 240", elapsed)
	}
}
