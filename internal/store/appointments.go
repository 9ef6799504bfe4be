package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"velora/internal/model"
)

const appointmentColumns = `id, public_id, user_id, user_name, date, time, duration_min,
	status, notes, cancel_reason, cancelled_at, reminder_sent, reminded_at,
	version, created_at, updated_at`

// CreateAppointment inserts a new appointment and its service links. Hitting
// the slot uniqueness index returns model.ErrSlotTaken.
func (s *Store) CreateAppointment(ctx context.Context, a *model.Appointment) error {
	now := time.Now()
	if a.PublicID == "" {
		return fmt.Errorf("appointment has no public id")
	}
	a.Version = 1
	a.CreatedAt = now
	a.UpdatedAt = now

	res, err := s.ext.ExecContext(ctx, `
		INSERT INTO appointments (
			public_id, user_id, user_name, date, time, duration_min, status,
			notes, cancel_reason, cancelled_at, reminder_sent, reminded_at,
			version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.PublicID, a.UserID, a.UserName, a.Date, a.Time, a.Duration, string(a.Status),
		a.Notes, a.CancelReason, a.CancelledAt, a.ReminderSent, a.RemindedAt,
		a.Version, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return slotTaken(err)
	}
	a.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("appointment insert id: %w", err)
	}

	for _, ref := range a.Services {
		if _, err := s.ext.ExecContext(ctx, `
			INSERT INTO appointment_services (appointment_id, service_id) VALUES (?, ?)`,
			a.ID, ref.ID(),
		); err != nil {
			return fmt.Errorf("link service %d: %w", ref.ID(), err)
		}
	}
	return nil
}

// UpdateAppointment saves an appointment with an optimistic version check.
// The version the caller read must still be current; on success the stored
// and in-memory versions are bumped. Moving an appointment onto an occupied
// slot returns model.ErrSlotTaken.
func (s *Store) UpdateAppointment(ctx context.Context, a *model.Appointment) error {
	now := time.Now()
	res, err := s.ext.ExecContext(ctx, `
		UPDATE appointments SET
			user_name = ?, date = ?, time = ?, duration_min = ?, status = ?,
			notes = ?, cancel_reason = ?, cancelled_at = ?,
			reminder_sent = ?, reminded_at = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		a.UserName, a.Date, a.Time, a.Duration, string(a.Status),
		a.Notes, a.CancelReason, a.CancelledAt,
		a.ReminderSent, a.RemindedAt,
		now, a.ID, a.Version,
	)
	if err != nil {
		return slotTaken(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("appointment update result: %w", err)
	}
	if n == 0 {
		return ErrStaleVersion
	}
	a.Version++
	a.UpdatedAt = now

	if len(a.Services) > 0 {
		if _, err := s.ext.ExecContext(ctx,
			`DELETE FROM appointment_services WHERE appointment_id = ?`, a.ID); err != nil {
			return fmt.Errorf("unlink services: %w", err)
		}
		for _, ref := range a.Services {
			if _, err := s.ext.ExecContext(ctx, `
				INSERT INTO appointment_services (appointment_id, service_id) VALUES (?, ?)`,
				a.ID, ref.ID(),
			); err != nil {
				return fmt.Errorf("link service %d: %w", ref.ID(), err)
			}
		}
	}
	return nil
}

// GetAppointmentByPublicID returns an appointment with expanded service
// references, or nil when it does not exist.
func (s *Store) GetAppointmentByPublicID(ctx context.Context, publicID string) (*model.Appointment, error) {
	row := s.ext.QueryRowContext(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE public_id = ?`, publicID)
	a, err := scanAppointment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query appointment %s: %w", publicID, err)
	}
	if err := s.loadServices(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListActiveByDate returns the non-cancelled appointments on a date ordered
// by start time.
func (s *Store) ListActiveByDate(ctx context.Context, date string) ([]model.Appointment, error) {
	return s.listAppointments(ctx, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE date = ? AND status != 'cancelled'
		ORDER BY time`, date)
}

// ListNonTerminalByDate returns the appointments on a date that can still be
// cancelled.
func (s *Store) ListNonTerminalByDate(ctx context.Context, date string) ([]model.Appointment, error) {
	return s.listAppointments(ctx, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE date = ? AND status NOT IN ('cancelled', 'completed')
		ORDER BY time`, date)
}

// ListActiveByRange returns non-cancelled appointments with dates inside
// [from, to], ordered by date then time.
func (s *Store) ListActiveByRange(ctx context.Context, from, to string) ([]model.Appointment, error) {
	return s.listAppointments(ctx, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE date >= ? AND date <= ? AND status != 'cancelled'
		ORDER BY date, time`, from, to)
}

// ListByRange returns every appointment in the date range regardless of
// status, for reporting.
func (s *Store) ListByRange(ctx context.Context, from, to string) ([]model.Appointment, error) {
	return s.listAppointments(ctx, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE date >= ? AND date <= ?
		ORDER BY date, time`, from, to)
}

// ListUpcomingUnreminded returns pending or confirmed appointments in the
// date range whose reminder has not gone out yet.
func (s *Store) ListUpcomingUnreminded(ctx context.Context, from, to string) ([]model.Appointment, error) {
	return s.listAppointments(ctx, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE date >= ? AND date <= ?
		AND status IN ('pending', 'confirmed')
		AND reminder_sent = 0
		ORDER BY date, time`, from, to)
}

// MarkReminderSent flags an appointment's reminder as dispatched.
func (s *Store) MarkReminderSent(ctx context.Context, id int64, at time.Time) error {
	_, err := s.ext.ExecContext(ctx, `
		UPDATE appointments SET reminder_sent = 1, reminded_at = ?, updated_at = ?
		WHERE id = ?`, at, at, id)
	if err != nil {
		return fmt.Errorf("mark reminder sent for %d: %w", id, err)
	}
	return nil
}

func (s *Store) listAppointments(ctx context.Context, query string, args ...any) ([]model.Appointment, error) {
	rows, err := s.ext.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := s.loadServices(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAppointment(sc scanner) (*model.Appointment, error) {
	var a model.Appointment
	var status string
	var cancelledAt, remindedAt sql.NullTime
	err := sc.Scan(
		&a.ID, &a.PublicID, &a.UserID, &a.UserName, &a.Date, &a.Time, &a.Duration,
		&status, &a.Notes, &a.CancelReason, &cancelledAt, &a.ReminderSent, &remindedAt,
		&a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = model.Status(status)
	if cancelledAt.Valid {
		t := cancelledAt.Time
		a.CancelledAt = &t
	}
	if remindedAt.Valid {
		t := remindedAt.Time
		a.RemindedAt = &t
	}
	return &a, nil
}

func (s *Store) loadServices(ctx context.Context, a *model.Appointment) error {
	rows, err := s.ext.QueryContext(ctx, `
		SELECT sv.id, sv.name, sv.duration_min, sv.active
		FROM appointment_services aps
		JOIN services sv ON sv.id = aps.service_id
		WHERE aps.appointment_id = ?
		ORDER BY sv.name`, a.ID)
	if err != nil {
		return fmt.Errorf("query appointment services: %w", err)
	}
	defer rows.Close()

	a.Services = a.Services[:0]
	for rows.Next() {
		var svc model.Service
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.Duration, &svc.Active); err != nil {
			return fmt.Errorf("scan appointment service: %w", err)
		}
		a.Services = append(a.Services, model.ExpandService(svc))
	}
	return rows.Err()
}
