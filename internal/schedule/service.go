// Package schedule manages the business calendar aggregate and propagates
// the consequences of admin edits to affected appointments.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"velora/internal/access"
	"velora/internal/booking"
	"velora/internal/calendar"
	"velora/internal/model"
)

// ClosureReason is recorded on appointments cancelled by a schedule edit.
const ClosureReason = "cambio de horario del negocio"

// Repository stores the schedule aggregate. UpsertSpecialDay must replace an
// existing override for the same date, keeping at most one per calendar date.
type Repository interface {
	GetSchedule(ctx context.Context) (*model.Schedule, error)
	SaveWeeklySchedule(ctx context.Context, w model.WeeklySchedule) error
	UpsertSpecialDay(ctx context.Context, sd model.SpecialDay) error
	DeleteSpecialDay(ctx context.Context, date string) error
}

// DayCloser cancels all non-terminal appointments on a date. Satisfied by the
// booking service; each call runs in its own transaction, separate from the
// schedule write.
type DayCloser interface {
	CancelDay(ctx context.Context, date, reason string) (int, error)
}

// Service applies admin edits to the Schedule aggregate. Edits are
// last-write-wins over the whole aggregate; there is no field-level merge.
type Service struct {
	repo        Repository
	closer      DayCloser
	cal         *calendar.Calendar
	horizonDays int
	logger      zerolog.Logger
	now         func() time.Time
}

// NewService wires the schedule admin service. horizonDays bounds how far
// forward a weekly edit is scanned for newly-closed dates; it should cover
// the booking horizon.
func NewService(repo Repository, closer DayCloser, cal *calendar.Calendar, horizonDays int, logger zerolog.Logger) *Service {
	if horizonDays <= 0 {
		horizonDays = 62
	}
	return &Service{
		repo:        repo,
		closer:      closer,
		cal:         cal,
		horizonDays: horizonDays,
		logger:      logger.With().Str("component", "schedule").Logger(),
		now:         time.Now,
	}
}

// Get returns the current schedule aggregate.
func (s *Service) Get(ctx context.Context) (*model.Schedule, error) {
	return s.repo.GetSchedule(ctx)
}

// UpdateWeekly replaces the weekly hours, then propagates closures: any date
// inside the horizon that was open before the edit and is closed after it
// gets its appointments cancelled. The schedule write commits on its own;
// propagation failures are logged, never rolled back into the edit.
func (s *Service) UpdateWeekly(ctx context.Context, p access.Principal, weekly model.WeeklySchedule) error {
	if !p.Admin() {
		return booking.ErrForbidden
	}
	if err := weekly.Validate(); err != nil {
		return fmt.Errorf("invalid weekly schedule: %w", err)
	}

	before, err := s.repo.GetSchedule(ctx)
	if err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}
	if err := s.repo.SaveWeeklySchedule(ctx, weekly); err != nil {
		return fmt.Errorf("save weekly schedule: %w", err)
	}
	s.logger.Info().Int64("admin", p.UserID).Msg("weekly schedule updated")

	after := &model.Schedule{Weekly: weekly, SpecialDays: before.SpecialDays}
	s.propagateClosures(ctx, before, after)
	return nil
}

// UpsertSpecialDay writes a dated override, replacing any previous override
// for the same date, then propagates a closure for that date if the edit
// closed it.
func (s *Service) UpsertSpecialDay(ctx context.Context, p access.Principal, sd model.SpecialDay) error {
	if !p.Admin() {
		return booking.ErrForbidden
	}
	day, err := s.cal.ParseDate(sd.Date)
	if err != nil {
		return fmt.Errorf("invalid special day date: %w", err)
	}
	if err := sd.Hours.Validate(); err != nil {
		return fmt.Errorf("invalid special day hours: %w", err)
	}

	before, err := s.repo.GetSchedule(ctx)
	if err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}
	wasClosed := s.cal.IsClosed(day, before)

	if err := s.repo.UpsertSpecialDay(ctx, sd); err != nil {
		return fmt.Errorf("save special day: %w", err)
	}
	s.logger.Info().Int64("admin", p.UserID).Str("date", sd.Date).Bool("closed", sd.Hours.Closed).Msg("special day saved")

	if !wasClosed && sd.Hours.Closed {
		s.closeDate(ctx, sd.Date)
	}
	return nil
}

// DeleteSpecialDay removes an override; the date falls back to weekly hours.
// Falling back can only open a date, so nothing is propagated.
func (s *Service) DeleteSpecialDay(ctx context.Context, p access.Principal, date string) error {
	if !p.Admin() {
		return booking.ErrForbidden
	}
	if _, err := s.cal.ParseDate(date); err != nil {
		return fmt.Errorf("invalid date: %w", err)
	}
	if err := s.repo.DeleteSpecialDay(ctx, date); err != nil {
		return fmt.Errorf("delete special day: %w", err)
	}
	s.logger.Info().Int64("admin", p.UserID).Str("date", date).Msg("special day removed")
	return nil
}

// propagateClosures scans the horizon for dates the edit flipped from open to
// closed and cancels their appointments.
func (s *Service) propagateClosures(ctx context.Context, before, after *model.Schedule) {
	loc := s.cal.Location()
	now := s.now().In(loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	for i := 0; i < s.horizonDays; i++ {
		d := day.AddDate(0, 0, i)
		if !s.cal.IsClosed(d, before) && s.cal.IsClosed(d, after) {
			s.closeDate(ctx, d.Format(model.DateLayout))
		}
	}
}

func (s *Service) closeDate(ctx context.Context, date string) {
	n, err := s.closer.CancelDay(ctx, date, ClosureReason)
	if err != nil {
		s.logger.Error().Err(err).Str("date", date).Msg("closure propagation failed")
		return
	}
	if n > 0 {
		s.logger.Info().Str("date", date).Int("cancelled", n).Msg("closure propagated")
	}
}
