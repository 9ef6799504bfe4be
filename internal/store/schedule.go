package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"velora/internal/model"
)

// GetSchedule loads the aggregate: weekly hours plus dated overrides. Days
// with no stored row default to closed, so a fresh database books nothing
// until an admin writes hours.
func (s *Store) GetSchedule(ctx context.Context) (*model.Schedule, error) {
	weekly := make(model.WeeklySchedule, len(model.WeekDays))
	for _, day := range model.WeekDays {
		weekly[day] = model.DailySchedule{Closed: true}
	}

	rows, err := s.ext.QueryContext(ctx, `
		SELECT day, closed, opening_am, closing_am, opening_pm, closing_pm
		FROM weekly_hours`)
	if err != nil {
		return nil, fmt.Errorf("query weekly hours: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var day string
		var d model.DailySchedule
		if err := rows.Scan(&day, &d.Closed, &d.OpeningAM, &d.ClosingAM, &d.OpeningPM, &d.ClosingPM); err != nil {
			return nil, fmt.Errorf("scan weekly hours: %w", err)
		}
		if model.IsWeekDay(day) {
			weekly[day] = d
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	specials, err := s.listSpecialDays(ctx)
	if err != nil {
		return nil, err
	}
	return &model.Schedule{Weekly: weekly, SpecialDays: specials}, nil
}

func (s *Store) listSpecialDays(ctx context.Context) ([]model.SpecialDay, error) {
	rows, err := s.ext.QueryContext(ctx, `
		SELECT date, closed, opening_am, closing_am, opening_pm, closing_pm
		FROM special_days ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("query special days: %w", err)
	}
	defer rows.Close()

	var specials []model.SpecialDay
	for rows.Next() {
		var sd model.SpecialDay
		if err := rows.Scan(&sd.Date, &sd.Hours.Closed, &sd.Hours.OpeningAM, &sd.Hours.ClosingAM,
			&sd.Hours.OpeningPM, &sd.Hours.ClosingPM); err != nil {
			return nil, fmt.Errorf("scan special day: %w", err)
		}
		specials = append(specials, sd)
	}
	return specials, rows.Err()
}

// SaveWeeklySchedule replaces the stored weekly hours, one upsert per day.
func (s *Store) SaveWeeklySchedule(ctx context.Context, w model.WeeklySchedule) error {
	now := time.Now()
	for _, day := range model.WeekDays {
		d := w[day]
		_, err := s.ext.ExecContext(ctx, `
			INSERT INTO weekly_hours (day, closed, opening_am, closing_am, opening_pm, closing_pm, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(day) DO UPDATE SET
				closed = excluded.closed,
				opening_am = excluded.opening_am,
				closing_am = excluded.closing_am,
				opening_pm = excluded.opening_pm,
				closing_pm = excluded.closing_pm,
				updated_at = excluded.updated_at`,
			day, d.Closed, d.OpeningAM, d.ClosingAM, d.OpeningPM, d.ClosingPM, now,
		)
		if err != nil {
			return fmt.Errorf("save weekly hours for %s: %w", day, err)
		}
	}
	return nil
}

// UpsertSpecialDay writes an override, replacing any previous one for the
// same date.
func (s *Store) UpsertSpecialDay(ctx context.Context, sd model.SpecialDay) error {
	_, err := s.ext.ExecContext(ctx, `
		INSERT INTO special_days (date, closed, opening_am, closing_am, opening_pm, closing_pm, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			closed = excluded.closed,
			opening_am = excluded.opening_am,
			closing_am = excluded.closing_am,
			opening_pm = excluded.opening_pm,
			closing_pm = excluded.closing_pm,
			updated_at = excluded.updated_at`,
		sd.Date, sd.Hours.Closed, sd.Hours.OpeningAM, sd.Hours.ClosingAM,
		sd.Hours.OpeningPM, sd.Hours.ClosingPM, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("upsert special day %s: %w", sd.Date, err)
	}
	return nil
}

// DeleteSpecialDay removes the override for a date.
func (s *Store) DeleteSpecialDay(ctx context.Context, date string) error {
	_, err := s.ext.ExecContext(ctx, `DELETE FROM special_days WHERE date = ?`, date)
	if err != nil {
		return fmt.Errorf("delete special day %s: %w", date, err)
	}
	return nil
}

// GetServiceByID returns a catalog entry, or nil when it does not exist.
func (s *Store) GetServiceByID(ctx context.Context, id int64) (*model.Service, error) {
	var svc model.Service
	err := s.ext.QueryRowContext(ctx, `
		SELECT id, name, duration_min, active FROM services WHERE id = ?`, id).
		Scan(&svc.ID, &svc.Name, &svc.Duration, &svc.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query service %d: %w", id, err)
	}
	return &svc, nil
}

// ListActiveServices returns the bookable catalog ordered by name.
func (s *Store) ListActiveServices(ctx context.Context) ([]model.Service, error) {
	rows, err := s.ext.QueryContext(ctx, `
		SELECT id, name, duration_min, active FROM services WHERE active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query services: %w", err)
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var svc model.Service
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.Duration, &svc.Active); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// SyncServices upserts the configured catalog by name and deactivates
// entries no longer configured. The catalog has no dedicated admin surface;
// it is seeded from configuration at startup.
func (s *Store) SyncServices(ctx context.Context, services []model.Service) error {
	now := time.Now()
	seen := make([]any, 0, len(services))
	for _, svc := range services {
		_, err := s.ext.ExecContext(ctx, `
			INSERT INTO services (name, duration_min, active, created_at, updated_at)
			VALUES (?, ?, 1, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				duration_min = excluded.duration_min,
				active = 1,
				updated_at = excluded.updated_at`,
			svc.Name, svc.Duration, now, now,
		)
		if err != nil {
			return fmt.Errorf("sync service %q: %w", svc.Name, err)
		}
		seen = append(seen, svc.Name)
	}
	if len(seen) == 0 {
		return nil
	}

	placeholders := ""
	for i := range seen {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
	}
	args := append([]any{now}, seen...)
	_, err := s.ext.ExecContext(ctx,
		`UPDATE services SET active = 0, updated_at = ? WHERE name NOT IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("deactivate removed services: %w", err)
	}
	return nil
}
