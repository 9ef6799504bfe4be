package model

import (
	"errors"
	"fmt"
	"time"
)

// Appointment durations are bounded by the longest bookable visit.
const (
	MinDuration = 1
	MaxDuration = 480
)

// ErrSlotTaken is returned by the store when an insert or update hits the
// uniqueness constraint on (date, time) for non-cancelled appointments. The
// booking service reinterprets it as a conflict detected late.
var ErrSlotTaken = errors.New("slot already taken")

// Status of an appointment. Completed and cancelled are terminal.
type Status string

const (
	StatusPending           Status = "pending"
	StatusConfirmed         Status = "confirmed"
	StatusCompleted         Status = "completed"
	StatusCancelled         Status = "cancelled"
	StatusNeedsRescheduling Status = "needsRescheduling"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Appointment is the transactional booking entity. Date and Time are kept as
// calendar-date and clock strings in the business timezone; Duration is the
// sum of the constituent service durations in minutes.
type Appointment struct {
	ID           int64        `json:"-"`
	PublicID     string       `json:"id"`
	UserID       int64        `json:"user_id"`
	UserName     string       `json:"user_name,omitempty"`
	Services     []ServiceRef `json:"services"`
	Date         string       `json:"date"` // DateLayout
	Time         string       `json:"time"` // "HH:MM"
	Duration     int          `json:"duration_min"`
	Status       Status       `json:"status"`
	Notes        string       `json:"notes,omitempty"`
	CancelReason string       `json:"cancel_reason,omitempty"`
	CancelledAt  *time.Time   `json:"cancelled_at,omitempty"`
	ReminderSent bool         `json:"reminder_sent"`
	RemindedAt   *time.Time   `json:"reminded_at,omitempty"`
	Version      int64        `json:"version"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Active reports whether the appointment still occupies its slot.
func (a *Appointment) Active() bool {
	return a.Status != StatusCancelled
}

// StartMinutes returns the start time as minutes since midnight.
func (a *Appointment) StartMinutes() (int, error) {
	return ParseClock(a.Time)
}

// StartsAt resolves the appointment's wall-clock start in loc.
func (a *Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, a.Date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", a.Date, err)
	}
	start, err := ParseClock(a.Time)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(time.Duration(start) * time.Minute), nil
}

// ServiceNames returns the display names of the resolved services. References
// that were never expanded contribute their id instead.
func (a *Appointment) ServiceNames() []string {
	names := make([]string, 0, len(a.Services))
	for _, ref := range a.Services {
		if svc, ok := ref.Expanded(); ok {
			names = append(names, svc.Name)
		} else {
			names = append(names, fmt.Sprintf("#%d", ref.ID()))
		}
	}
	return names
}
