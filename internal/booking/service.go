// Package booking orchestrates the appointment lifecycle: create, cancel,
// reschedule and bulk day cancellation. Every operation validates, checks
// conflicts and writes inside one transaction; notifications go out after
// commit and are best-effort.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"velora/internal/access"
	"velora/internal/calendar"
	"velora/internal/conflict"
	"velora/internal/metrics"
	"velora/internal/model"
	"velora/internal/notify"
	"velora/internal/relocation"
)

// Repository is the transactional storage contract the lifecycle needs. InTx
// runs fn against a transaction-bound repository; reads inside fn see a
// consistent snapshot and the write commits atomically with them.
type Repository interface {
	InTx(ctx context.Context, fn func(Repository) error) error
	GetSchedule(ctx context.Context) (*model.Schedule, error)
	GetServiceByID(ctx context.Context, id int64) (*model.Service, error)
	ListActiveByDate(ctx context.Context, date string) ([]model.Appointment, error)
	ListNonTerminalByDate(ctx context.Context, date string) ([]model.Appointment, error)
	GetAppointmentByPublicID(ctx context.Context, publicID string) (*model.Appointment, error)
	CreateAppointment(ctx context.Context, a *model.Appointment) error
	UpdateAppointment(ctx context.Context, a *model.Appointment) error
}

// Notifier dispatches typed notification events after commit.
type Notifier interface {
	Dispatch(ctx context.Context, ev notify.Event) error
	Broadcast(ctx context.Context, events []notify.Event)
}

// Options tune the lifecycle windows.
type Options struct {
	// HorizonMonths bounds how far ahead a booking may be placed.
	HorizonMonths int
	// RelocationHorizonDays bounds the alternative-slot search.
	RelocationHorizonDays int
	// PenaltyWindow flags cancellations closer to the start than this.
	PenaltyWindow time.Duration
}

// DefaultOptions returns the standard windows.
func DefaultOptions() Options {
	return Options{
		HorizonMonths:         2,
		RelocationHorizonDays: relocation.DefaultHorizonDays,
		PenaltyWindow:         24 * time.Hour,
	}
}

// Service is the appointment lifecycle manager.
type Service struct {
	repo     Repository
	cal      *calendar.Calendar
	search   *relocation.Search
	notifier Notifier
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService wires the lifecycle manager.
func NewService(repo Repository, cal *calendar.Calendar, notifier Notifier, opts Options, logger zerolog.Logger) *Service {
	if opts.HorizonMonths <= 0 {
		opts.HorizonMonths = 2
	}
	if opts.PenaltyWindow <= 0 {
		opts.PenaltyWindow = 24 * time.Hour
	}
	return &Service{
		repo:     repo,
		cal:      cal,
		search:   relocation.NewSearch(cal, opts.RelocationHorizonDays),
		notifier: notifier,
		opts:     opts,
		logger:   logger.With().Str("component", "booking").Logger(),
		now:      time.Now,
	}
}

// CreateRequest books a slot for the calling principal.
type CreateRequest struct {
	Date       string  `json:"date"`
	Time       string  `json:"time"`
	ServiceIDs []int64 `json:"service_ids"`
	Notes      string  `json:"notes,omitempty"`
}

// CreateResult reports the booked appointment. Relocated is set when the
// requested slot was lost to a conflict and the booking landed on the
// alternative recorded in the appointment itself.
type CreateResult struct {
	Appointment   *model.Appointment `json:"appointment"`
	Relocated     bool               `json:"relocated"`
	RequestedDate string             `json:"requested_date,omitempty"`
	RequestedTime string             `json:"requested_time,omitempty"`
}

// Create validates, conflict-checks and persists a new appointment in one
// transaction. A conflict found before the write, or a uniqueness violation
// raised by the store at write time, is routed through the relocation search;
// when the search comes back empty the caller receives a ConflictError.
func (s *Service) Create(ctx context.Context, p access.Principal, req CreateRequest) (*CreateResult, error) {
	day, err := s.validateDate(req.Date)
	if err != nil {
		metrics.IncAppointmentCreated(metrics.OutcomeRejected)
		return nil, err
	}
	startMin, err := model.ParseClock(req.Time)
	if err != nil {
		metrics.IncAppointmentCreated(metrics.OutcomeRejected)
		return nil, validationf("invalid time %q", req.Time)
	}

	var result *CreateResult
	txErr := s.repo.InTx(ctx, func(r Repository) error {
		refs, duration, err := s.resolveServices(ctx, r, req.ServiceIDs)
		if err != nil {
			return err
		}
		sched, err := r.GetSchedule(ctx)
		if err != nil {
			return fmt.Errorf("load schedule: %w", err)
		}
		if err := s.checkOpenHours(sched, day, req.Date, startMin, duration); err != nil {
			return err
		}

		existing, err := r.ListActiveByDate(ctx, req.Date)
		if err != nil {
			return fmt.Errorf("list appointments: %w", err)
		}

		appt := &model.Appointment{
			PublicID: uuid.NewString(),
			UserID:   p.UserID,
			UserName: p.Name,
			Services: refs,
			Date:     req.Date,
			Time:     req.Time,
			Duration: duration,
			Status:   model.StatusPending,
			Notes:    req.Notes,
		}
		relocated := false
		if conflict.Overlaps(conflict.Candidate{Start: startMin, Duration: duration}, existing, 0) {
			if err := s.relocate(ctx, r, sched, appt, day, req.Time); err != nil {
				return err
			}
			relocated = true
		}

		err = r.CreateAppointment(ctx, appt)
		if errors.Is(err, model.ErrSlotTaken) {
			// A concurrent transaction won the slot between our read and the
			// write. One more relocation pass, then give up.
			if rerr := s.relocate(ctx, r, sched, appt, day, appt.Time); rerr != nil {
				return rerr
			}
			relocated = true
			if err := r.CreateAppointment(ctx, appt); err != nil {
				if errors.Is(err, model.ErrSlotTaken) {
					return &ConflictError{Date: req.Date, Time: req.Time}
				}
				return fmt.Errorf("create appointment: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		result = &CreateResult{
			Appointment:   appt,
			Relocated:     relocated,
			RequestedDate: req.Date,
			RequestedTime: req.Time,
		}
		return nil
	})
	if txErr != nil {
		metrics.IncAppointmentCreated(createOutcome(txErr))
		return nil, txErr
	}

	if result.Relocated {
		metrics.IncAppointmentCreated(metrics.OutcomeRelocated)
	} else {
		metrics.IncAppointmentCreated(metrics.OutcomeOK)
	}
	s.logger.Info().
		Str("appointment", result.Appointment.PublicID).
		Int64("user_id", p.UserID).
		Str("date", result.Appointment.Date).
		Str("time", result.Appointment.Time).
		Bool("relocated", result.Relocated).
		Msg("appointment created")

	ev := notify.Event{
		Kind:     notify.KindBooked,
		UserID:   p.UserID,
		UserName: p.Name,
		Date:     result.Appointment.Date,
		Time:     result.Appointment.Time,
		Services: result.Appointment.ServiceNames(),
	}
	if result.Relocated {
		ev.Kind = notify.KindConflictRescheduled
		ev.OldDate = req.Date
		ev.OldTime = req.Time
	}
	_ = s.notifier.Dispatch(ctx, ev)

	return result, nil
}

// CancelResult reports a cancellation. LateCancellation flags cancellations
// inside the no-penalty window; it never blocks the operation.
type CancelResult struct {
	Appointment      *model.Appointment `json:"appointment"`
	LateCancellation bool               `json:"late_cancellation"`
}

// Cancel transitions an appointment to cancelled. Only the owner or an
// administrative actor may cancel.
func (s *Service) Cancel(ctx context.Context, p access.Principal, publicID, reason string) (*CancelResult, error) {
	var result *CancelResult
	txErr := s.repo.InTx(ctx, func(r Repository) error {
		appt, err := s.loadOwned(ctx, r, p, publicID)
		if err != nil {
			return err
		}
		if appt.Status.Terminal() {
			return validationf("appointment is already %s", appt.Status)
		}

		now := s.now()
		appt.Status = model.StatusCancelled
		appt.CancelReason = reason
		appt.CancelledAt = &now
		if err := r.UpdateAppointment(ctx, appt); err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}

		late := false
		if start, err := appt.StartsAt(s.cal.Location()); err == nil {
			late = start.Sub(now) < s.opts.PenaltyWindow
		}
		result = &CancelResult{Appointment: appt, LateCancellation: late}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	metrics.IncAppointmentCancelled()
	s.logger.Info().
		Str("appointment", result.Appointment.PublicID).
		Bool("late", result.LateCancellation).
		Msg("appointment cancelled")

	_ = s.notifier.Dispatch(ctx, notify.Event{
		Kind:     notify.KindCancelled,
		UserID:   result.Appointment.UserID,
		UserName: result.Appointment.UserName,
		Date:     result.Appointment.Date,
		Time:     result.Appointment.Time,
		Services: result.Appointment.ServiceNames(),
		Reason:   reason,
	})
	return result, nil
}

// RescheduleRequest moves an appointment. An empty ServiceIDs keeps the
// current services and duration.
type RescheduleRequest struct {
	Date       string  `json:"date"`
	Time       string  `json:"time"`
	ServiceIDs []int64 `json:"service_ids,omitempty"`
}

// RescheduleResult reports the outcome. When relocation was needed the
// returned appointment is a fresh confirmed record and the original one was
// cancelled; otherwise the original was updated in place.
type RescheduleResult struct {
	Appointment  *model.Appointment `json:"appointment"`
	Relocated    bool               `json:"relocated"`
	PreviousDate string             `json:"previous_date"`
	PreviousTime string             `json:"previous_time"`
}

// Reschedule re-validates bounds and conflicts (excluding the appointment's
// own record) and moves the appointment, relocating on conflict like Create.
func (s *Service) Reschedule(ctx context.Context, p access.Principal, publicID string, req RescheduleRequest) (*RescheduleResult, error) {
	day, err := s.validateDate(req.Date)
	if err != nil {
		metrics.IncAppointmentRescheduled(metrics.OutcomeRejected)
		return nil, err
	}
	startMin, err := model.ParseClock(req.Time)
	if err != nil {
		metrics.IncAppointmentRescheduled(metrics.OutcomeRejected)
		return nil, validationf("invalid time %q", req.Time)
	}

	var result *RescheduleResult
	txErr := s.repo.InTx(ctx, func(r Repository) error {
		appt, err := s.loadOwned(ctx, r, p, publicID)
		if err != nil {
			return err
		}
		if appt.Status.Terminal() {
			return validationf("appointment is already %s", appt.Status)
		}
		prevDate, prevTime := appt.Date, appt.Time

		refs, duration := appt.Services, appt.Duration
		if len(req.ServiceIDs) > 0 {
			refs, duration, err = s.resolveServices(ctx, r, req.ServiceIDs)
			if err != nil {
				return err
			}
		}

		sched, err := r.GetSchedule(ctx)
		if err != nil {
			return fmt.Errorf("load schedule: %w", err)
		}
		if err := s.checkOpenHours(sched, day, req.Date, startMin, duration); err != nil {
			return err
		}
		existing, err := r.ListActiveByDate(ctx, req.Date)
		if err != nil {
			return fmt.Errorf("list appointments: %w", err)
		}

		moved := *appt
		moved.Date = req.Date
		moved.Time = req.Time
		moved.Services = refs
		moved.Duration = duration

		relocated := false
		if conflict.Overlaps(conflict.Candidate{Start: startMin, Duration: duration}, existing, appt.ID) {
			if err := s.relocate(ctx, r, sched, &moved, day, req.Time); err != nil {
				return err
			}
			relocated = true
		}

		if relocated {
			// Cancel the original and book a fresh confirmed record at the
			// relocated slot.
			if err := s.replaceWithRelocated(ctx, r, appt, &moved); err != nil {
				return err
			}
			result = &RescheduleResult{Appointment: &moved, Relocated: true, PreviousDate: prevDate, PreviousTime: prevTime}
			return nil
		}

		err = r.UpdateAppointment(ctx, &moved)
		if errors.Is(err, model.ErrSlotTaken) {
			if rerr := s.relocate(ctx, r, sched, &moved, day, moved.Time); rerr != nil {
				return rerr
			}
			if err := s.replaceWithRelocated(ctx, r, appt, &moved); err != nil {
				return err
			}
			result = &RescheduleResult{Appointment: &moved, Relocated: true, PreviousDate: prevDate, PreviousTime: prevTime}
			return nil
		}
		if err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		result = &RescheduleResult{Appointment: &moved, PreviousDate: prevDate, PreviousTime: prevTime}
		return nil
	})
	if txErr != nil {
		metrics.IncAppointmentRescheduled(createOutcome(txErr))
		return nil, txErr
	}

	if result.Relocated {
		metrics.IncAppointmentRescheduled(metrics.OutcomeRelocated)
	} else {
		metrics.IncAppointmentRescheduled(metrics.OutcomeOK)
	}
	s.logger.Info().
		Str("appointment", result.Appointment.PublicID).
		Str("from", result.PreviousDate+" "+result.PreviousTime).
		Str("to", result.Appointment.Date+" "+result.Appointment.Time).
		Bool("relocated", result.Relocated).
		Msg("appointment rescheduled")

	kind := notify.KindRescheduled
	if result.Relocated {
		kind = notify.KindConflictRescheduled
	}
	_ = s.notifier.Dispatch(ctx, notify.Event{
		Kind:     kind,
		UserID:   result.Appointment.UserID,
		UserName: result.Appointment.UserName,
		Date:     result.Appointment.Date,
		Time:     result.Appointment.Time,
		Services: result.Appointment.ServiceNames(),
		OldDate:  result.PreviousDate,
		OldTime:  result.PreviousTime,
	})
	return result, nil
}

// CancelDay cancels every non-terminal appointment on a date with a
// system-supplied reason, regardless of the penalty window, and notifies each
// affected user after commit. Used when an admin closes a day.
func (s *Service) CancelDay(ctx context.Context, date, reason string) (int, error) {
	if _, err := s.cal.ParseDate(date); err != nil {
		return 0, validationf("invalid date %q", date)
	}

	var events []notify.Event
	txErr := s.repo.InTx(ctx, func(r Repository) error {
		appts, err := r.ListNonTerminalByDate(ctx, date)
		if err != nil {
			return fmt.Errorf("list appointments: %w", err)
		}
		now := s.now()
		for i := range appts {
			a := &appts[i]
			a.Status = model.StatusCancelled
			a.CancelReason = reason
			a.CancelledAt = &now
			if err := r.UpdateAppointment(ctx, a); err != nil {
				return fmt.Errorf("cancel appointment %s: %w", a.PublicID, err)
			}
			events = append(events, notify.Event{
				Kind:     notify.KindScheduleChanged,
				UserID:   a.UserID,
				UserName: a.UserName,
				Date:     a.Date,
				Time:     a.Time,
				Services: a.ServiceNames(),
				Reason:   reason,
			})
		}
		return nil
	})
	if txErr != nil {
		return 0, txErr
	}

	if len(events) > 0 {
		metrics.IncScheduleCancellations(len(events))
		s.logger.Info().Str("date", date).Int("cancelled", len(events)).Msg("day cancelled")
		s.notifier.Broadcast(ctx, events)
	}
	return len(events), nil
}

// Get returns an appointment visible to the principal.
func (s *Service) Get(ctx context.Context, p access.Principal, publicID string) (*model.Appointment, error) {
	appt, err := s.repo.GetAppointmentByPublicID(ctx, publicID)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if appt == nil {
		return nil, ErrNotFound
	}
	if !p.CanManage(appt.UserID) {
		return nil, ErrForbidden
	}
	return appt, nil
}

// relocate mutates appt to the first free alternative slot and confirms it.
func (s *Service) relocate(ctx context.Context, r Repository, sched *model.Schedule, appt *model.Appointment, day time.Time, fromTime string) error {
	res, err := s.search.Find(ctx, r, sched, day, fromTime, appt.Duration)
	if err != nil {
		return fmt.Errorf("relocation search: %w", err)
	}
	if !res.Found {
		return &ConflictError{Date: appt.Date, Time: appt.Time}
	}
	appt.Date = res.Date
	appt.Time = res.Time
	appt.Status = model.StatusConfirmed
	return nil
}

// replaceWithRelocated cancels the original record and inserts the moved one
// as a fresh confirmed appointment.
func (s *Service) replaceWithRelocated(ctx context.Context, r Repository, original, moved *model.Appointment) error {
	now := s.now()
	original.Status = model.StatusCancelled
	original.CancelReason = "reubicada"
	original.CancelledAt = &now
	if err := r.UpdateAppointment(ctx, original); err != nil {
		return fmt.Errorf("cancel original: %w", err)
	}
	moved.ID = 0
	moved.PublicID = uuid.NewString()
	moved.Status = model.StatusConfirmed
	moved.Version = 0
	moved.CancelReason = ""
	moved.CancelledAt = nil
	if err := r.CreateAppointment(ctx, moved); err != nil {
		if errors.Is(err, model.ErrSlotTaken) {
			return &ConflictError{Date: moved.Date, Time: moved.Time}
		}
		return fmt.Errorf("create relocated appointment: %w", err)
	}
	return nil
}

// loadOwned fetches an appointment and enforces the ownership rule.
func (s *Service) loadOwned(ctx context.Context, r Repository, p access.Principal, publicID string) (*model.Appointment, error) {
	appt, err := r.GetAppointmentByPublicID(ctx, publicID)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if appt == nil {
		return nil, ErrNotFound
	}
	if !p.CanManage(appt.UserID) {
		return nil, ErrForbidden
	}
	return appt, nil
}

// validateDate enforces the not-in-the-past and booking-horizon rules in the
// business timezone.
func (s *Service) validateDate(dateStr string) (time.Time, error) {
	day, err := s.cal.ParseDate(dateStr)
	if err != nil {
		return time.Time{}, validationf("invalid date %q", dateStr)
	}
	now := s.now().In(s.cal.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.cal.Location())
	if day.Before(today) {
		return time.Time{}, validationf("date %s is in the past", dateStr)
	}
	if day.After(today.AddDate(0, s.opts.HorizonMonths, 0)) {
		return time.Time{}, validationf("date %s is beyond the %d-month booking window", dateStr, s.opts.HorizonMonths)
	}
	return day, nil
}

// resolveServices expands service references and sums their durations.
func (s *Service) resolveServices(ctx context.Context, r Repository, ids []int64) ([]model.ServiceRef, int, error) {
	if len(ids) == 0 {
		return nil, 0, validationf("at least one service is required")
	}
	refs := make([]model.ServiceRef, 0, len(ids))
	total := 0
	for _, id := range ids {
		svc, err := r.GetServiceByID(ctx, id)
		if err != nil {
			return nil, 0, fmt.Errorf("get service %d: %w", id, err)
		}
		if svc == nil || !svc.Active {
			return nil, 0, validationf("unknown service %d", id)
		}
		refs = append(refs, model.ExpandService(*svc))
		total += svc.Duration
	}
	if total < model.MinDuration || total > model.MaxDuration {
		return nil, 0, validationf("total duration %d minutes is out of range", total)
	}
	return refs, total, nil
}

// checkOpenHours rejects candidates the calendar cannot host.
func (s *Service) checkOpenHours(sched *model.Schedule, day time.Time, dateStr string, startMin, duration int) error {
	hours := s.cal.ScheduleFor(day, sched)
	if hours.Closed {
		return &BusinessClosedError{Msg: fmt.Sprintf("we are closed on %s", dateStr)}
	}
	fit := conflict.FitsOpenHours(hours, conflict.Candidate{Start: startMin, Duration: duration})
	if fit.Fits {
		return nil
	}
	if fit.Remaining > 0 {
		return &BusinessClosedError{
			Msg:       fmt.Sprintf("only %d minutes remain before closing", fit.Remaining),
			Remaining: fit.Remaining,
		}
	}
	return &BusinessClosedError{Msg: fmt.Sprintf("%s %s is outside opening hours", dateStr, model.FormatClock(startMin))}
}

// createOutcome maps a failed operation to its metric label.
func createOutcome(err error) string {
	var conflictErr *ConflictError
	if errors.As(err, &conflictErr) {
		return metrics.OutcomeConflict
	}
	return metrics.OutcomeRejected
}
