// Package reminders sends upcoming-appointment reminders on a fixed sweep.
package reminders

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"velora/internal/calendar"
	"velora/internal/metrics"
	"velora/internal/model"
	"velora/internal/notify"
)

// Store is the persistence surface the sweep needs.
type Store interface {
	ListUpcomingUnreminded(ctx context.Context, fromDate, toDate string) ([]model.Appointment, error)
	MarkReminderSent(ctx context.Context, id int64, at time.Time) error
}

// Notifier delivers the reminder events.
type Notifier interface {
	Dispatch(ctx context.Context, ev notify.Event) error
}

// Config tunes the sweep loop.
type Config struct {
	// CheckInterval is how often to sweep. Default: 15 minutes.
	CheckInterval time.Duration
	// HoursBefore is how far before the appointment the reminder fires.
	// Default: 24 hours.
	HoursBefore int
}

// Service periodically finds appointments that start within the reminder
// window and dispatches one reminder each.
type Service struct {
	cfg      Config
	store    Store
	notifier Notifier
	cal      *calendar.Calendar
	logger   zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	now func() time.Time
}

// New builds the service. Zero config fields get defaults.
func New(cfg Config, store Store, notifier Notifier, cal *calendar.Calendar, logger zerolog.Logger) *Service {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 15 * time.Minute
	}
	if cfg.HoursBefore <= 0 {
		cfg.HoursBefore = 24
	}
	return &Service{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		cal:      cal,
		logger:   logger.With().Str("component", "reminders").Logger(),
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
}

// Start launches the sweep loop. Safe to call once.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()
	s.logger.Info().
		Dur("check_interval", s.cfg.CheckInterval).
		Int("hours_before", s.cfg.HoursBefore).
		Msg("reminder service started")
}

// Stop halts the loop and waits for the in-flight sweep.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info().Msg("reminder service stopped")
}

func (s *Service) loop() {
	defer s.wg.Done()

	s.sweep()

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// Sweep runs one pass immediately. Exposed for manual triggering.
func (s *Service) Sweep() { s.sweep() }

func (s *Service) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	now := s.now()
	from := s.cal.Today(now)
	to := now.In(s.cal.Location()).Add(time.Duration(s.cfg.HoursBefore) * time.Hour).Format(model.DateLayout)

	appts, err := s.store.ListUpcomingUnreminded(ctx, from, to)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list upcoming appointments")
		return
	}

	sent := 0
	for i := range appts {
		a := &appts[i]
		start, err := a.StartsAt(s.cal.Location())
		if err != nil {
			s.logger.Error().Err(err).Str("public_id", a.PublicID).Msg("bad appointment start")
			continue
		}
		// Fire only inside the window; the past ones were missed, skip them.
		if start.Before(now) || start.Sub(now) > time.Duration(s.cfg.HoursBefore)*time.Hour {
			continue
		}

		if err := s.store.MarkReminderSent(ctx, a.ID, now); err != nil {
			s.logger.Error().Err(err).Str("public_id", a.PublicID).Msg("failed to mark reminder sent")
			continue
		}
		_ = s.notifier.Dispatch(ctx, notify.Event{
			Kind:     notify.KindReminder,
			UserID:   a.UserID,
			UserName: a.UserName,
			Date:     a.Date,
			Time:     a.Time,
			Services: a.ServiceNames(),
		})
		metrics.IncReminderSent()
		sent++
	}

	if sent > 0 {
		s.logger.Info().Int("sent", sent).Int("checked", len(appts)).Msg("reminder sweep done")
	}
}
