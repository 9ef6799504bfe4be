// Package notify renders and dispatches user-facing booking notifications.
// Dispatch is best-effort: failures are logged and surfaced to the caller,
// but never unwind the operation that triggered them.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Kind discriminates the payload variants.
type Kind string

const (
	KindBooked              Kind = "booked"
	KindCancelled           Kind = "cancelled"
	KindRescheduled         Kind = "rescheduled"
	KindConflictRescheduled Kind = "rescheduled_due_to_conflict"
	KindReminder            Kind = "reminder"
	KindScheduleChanged     Kind = "schedule_changed"
)

// Event is one typed notification payload. Date and Time describe the
// appointment slot the message is about; OldDate and OldTime are set for
// reschedule variants, Reason for cancellations and closures.
type Event struct {
	Kind     Kind
	UserID   int64
	UserName string
	Date     string
	Time     string
	Services []string
	OldDate  string
	OldTime  string
	Reason   string
}

// Channel delivers a rendered message to one recipient.
type Channel interface {
	Send(ctx context.Context, userID int64, text string) error
}

// Dispatcher paces, retries and fans out event delivery over a Channel.
type Dispatcher struct {
	ch       Channel
	limiter  *rate.Limiter
	delays   []time.Duration
	workers  int
	logger   zerolog.Logger
	onFailed func() // metrics hook, may be nil
}

// DispatcherConfig tunes pacing and fan-out.
type DispatcherConfig struct {
	// MessagesPerSecond caps outbound delivery.
	MessagesPerSecond float64
	// Burst allows short bursts above the sustained rate.
	Burst int
	// RetryDelays are waited between failed attempts; their count bounds the
	// retries.
	RetryDelays []time.Duration
	// Workers bounds Broadcast concurrency.
	Workers int
}

// DefaultDispatcherConfig mirrors the delivery limits of the messaging
// providers in use.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MessagesPerSecond: 20,
		Burst:             30,
		RetryDelays:       []time.Duration{time.Second, 5 * time.Second, 30 * time.Second},
		Workers:           4,
	}
}

// NewDispatcher builds a Dispatcher over ch.
func NewDispatcher(ch Channel, cfg DispatcherConfig, logger zerolog.Logger) *Dispatcher {
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Dispatcher{
		ch:      ch,
		limiter: rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), cfg.Burst),
		delays:  cfg.RetryDelays,
		workers: cfg.Workers,
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

// OnFailure installs a hook invoked once per event that exhausts its retries.
func (d *Dispatcher) OnFailure(fn func()) {
	d.onFailed = fn
}

// Dispatch delivers one event, waiting on the rate limiter and retrying with
// backoff. The returned error is informational; callers log it and move on.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	text := Render(ev)
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = d.ch.Send(ctx, ev.UserID, text)
		if lastErr == nil {
			return nil
		}
		if attempt >= len(d.delays) {
			break
		}
		d.logger.Warn().
			Err(lastErr).
			Int64("user_id", ev.UserID).
			Str("kind", string(ev.Kind)).
			Int("attempt", attempt+1).
			Msg("notification send failed, retrying")
		select {
		case <-time.After(d.delays[attempt]):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	d.logger.Error().
		Err(lastErr).
		Int64("user_id", ev.UserID).
		Str("kind", string(ev.Kind)).
		Msg("notification dropped")
	if d.onFailed != nil {
		d.onFailed()
	}
	return lastErr
}

// Broadcast delivers a batch with bounded concurrency. Each event fails or
// succeeds on its own; the call returns once every delivery finished.
func (d *Dispatcher) Broadcast(ctx context.Context, events []Event) {
	sem := make(chan struct{}, d.workers)
	var wg sync.WaitGroup
	for _, ev := range events {
		wg.Add(1)
		sem <- struct{}{}
		go func(ev Event) {
			defer wg.Done()
			defer func() { <-sem }()
			_ = d.Dispatch(ctx, ev)
		}(ev)
	}
	wg.Wait()
}

// Render produces the user-facing message for an event.
func Render(ev Event) string {
	services := strings.Join(ev.Services, ", ")
	switch ev.Kind {
	case KindBooked:
		return fmt.Sprintf("Hola %s, tu cita está reservada.\n\nFecha: %s\nHora: %s\nServicios: %s",
			ev.UserName, ev.Date, ev.Time, services)
	case KindCancelled:
		msg := fmt.Sprintf("Hola %s, tu cita del %s a las %s ha sido cancelada.", ev.UserName, ev.Date, ev.Time)
		if ev.Reason != "" {
			msg += fmt.Sprintf("\nMotivo: %s", ev.Reason)
		}
		return msg
	case KindRescheduled:
		return fmt.Sprintf("Hola %s, tu cita ha sido modificada.\n\nAntes: %s a las %s\nAhora: %s a las %s\nServicios: %s",
			ev.UserName, ev.OldDate, ev.OldTime, ev.Date, ev.Time, services)
	case KindConflictRescheduled:
		return fmt.Sprintf("Hola %s, la hora solicitada (%s a las %s) acababa de ocuparse. Te hemos reservado la alternativa más próxima.\n\nFecha: %s\nHora: %s\nServicios: %s",
			ev.UserName, ev.OldDate, ev.OldTime, ev.Date, ev.Time, services)
	case KindReminder:
		return fmt.Sprintf("Hola %s, te recordamos tu cita de mañana.\n\nFecha: %s\nHora: %s\nServicios: %s",
			ev.UserName, ev.Date, ev.Time, services)
	case KindScheduleChanged:
		msg := fmt.Sprintf("Hola %s, hemos tenido que cancelar tu cita del %s a las %s por un cambio en nuestro horario.", ev.UserName, ev.Date, ev.Time)
		if ev.Reason != "" {
			msg += fmt.Sprintf("\nMotivo: %s", ev.Reason)
		}
		return msg + "\nPor favor, reserva una nueva hora cuando te venga bien."
	default:
		return fmt.Sprintf("Hola %s, hay novedades sobre tu cita del %s a las %s.", ev.UserName, ev.Date, ev.Time)
	}
}
