package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/tenant"
)

// CalendarRepository loads business-hours calendars with their windows and
// holiday sets. Every query binds the tenant scope.
type CalendarRepository interface {
	GetByID(ctx context.Context, scope tenant.Scope, id string) (*domain.BusinessHoursCalendar, error)
	GetDefault(ctx context.Context, scope tenant.Scope) (*domain.BusinessHoursCalendar, error)
}

type calendarRepository struct {
	pool *pgxpool.Pool
}

// NewCalendarRepository instantiates repository.
func NewCalendarRepository(pool *pgxpool.Pool) CalendarRepository {
	return &calendarRepository{pool: pool}
}

func (r *calendarRepository) GetByID(ctx context.Context, scope tenant.Scope, id string) (*domain.BusinessHoursCalendar, error) {
	const query = `
        SELECT id, tenant_id, name, timezone, is_default, created_at, updated_at
        FROM business_hours_calendars WHERE tenant_id=$1 AND id=$2`
	return r.fetch(ctx, scope, query, scope.TenantID, id)
}

func (r *calendarRepository) GetDefault(ctx context.Context, scope tenant.Scope) (*domain.BusinessHoursCalendar, error) {
	const query = `
        SELECT id, tenant_id, name, timezone, is_default, created_at, updated_at
        FROM business_hours_calendars WHERE tenant_id=$1 AND is_default=TRUE LIMIT 1`
	return r.fetch(ctx, scope, query, scope.TenantID)
}

func (r *calendarRepository) fetch(ctx context.Context, scope tenant.Scope, query string, args ...any) (*domain.BusinessHoursCalendar, error) {
	cal := domain.BusinessHoursCalendar{
		Windows:  make(map[time.Weekday]domain.DayWindow),
		Holidays: make(map[string]struct{}),
	}
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&cal.ID,
		&cal.TenantID,
		&cal.Name,
		&cal.Timezone,
		&cal.IsDefault,
		&cal.CreatedAt,
		&cal.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := r.loadWindows(ctx, &cal); err != nil {
		return nil, err
	}
	if err := r.loadHolidays(ctx, &cal); err != nil {
		return nil, err
	}
	return &cal, nil
}

func (r *calendarRepository) loadWindows(ctx context.Context, cal *domain.BusinessHoursCalendar) error {
	const query = `
        SELECT day_of_week, open_minute, close_minute
        FROM calendar_windows WHERE calendar_id=$1`
	rows, err := r.pool.Query(ctx, query, cal.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var day int
		var w domain.DayWindow
		if err := rows.Scan(&day, &w.OpenMinute, &w.CloseMinute); err != nil {
			return err
		}
		cal.Windows[time.Weekday(day)] = w
	}
	return rows.Err()
}

func (r *calendarRepository) loadHolidays(ctx context.Context, cal *domain.BusinessHoursCalendar) error {
	const query = `
        SELECT holiday_date FROM calendar_holidays WHERE calendar_id=$1`
	rows, err := r.pool.Query(ctx, query, cal.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var date time.Time
		if err := rows.Scan(&date); err != nil {
			return err
		}
		cal.Holidays[date.Format(domain.DateLayout)] = struct{}{}
	}
	return rows.Err()
}
