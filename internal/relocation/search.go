// Package relocation finds the earliest alternative slot for a booking
// candidate that lost its requested one.
package relocation

import (
	"context"
	"fmt"
	"time"

	"velora/internal/calendar"
	"velora/internal/conflict"
	"velora/internal/model"
)

// DefaultHorizonDays bounds how far forward the search walks.
const DefaultHorizonDays = 7

// AppointmentSource supplies the active appointments holding a calendar date.
// Inside a booking transaction this is the transaction-bound repository, so
// the search sees the same state the conflict check saw.
type AppointmentSource interface {
	ListActiveByDate(ctx context.Context, date string) ([]model.Appointment, error)
}

// Result is the outcome of a search. Found is false when the horizon was
// exhausted without a usable slot.
type Result struct {
	Date  string
	Time  string
	Found bool
}

// Search walks day by day from the requested date looking for the first slot
// that fits the duration inside one half-day window with every granularity
// sub-slot free. The walk is deterministic: chronological within a day, AM
// before PM, same day before later days.
type Search struct {
	cal         *calendar.Calendar
	horizonDays int
}

// NewSearch builds a Search over the business calendar. A non-positive
// horizon falls back to DefaultHorizonDays.
func NewSearch(cal *calendar.Calendar, horizonDays int) *Search {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	return &Search{cal: cal, horizonDays: horizonDays}
}

// Find locates the earliest alternative for a candidate of the given duration
// originally requested at (fromDate, fromTime). On the original date only
// slots at or after the requested time plus one granularity step are
// considered; later days are scanned from opening.
func (s *Search) Find(ctx context.Context, source AppointmentSource, sched *model.Schedule, fromDate time.Time, fromTime string, duration int) (Result, error) {
	origStart, err := model.ParseClock(fromTime)
	if err != nil {
		return Result{}, fmt.Errorf("relocation origin time: %w", err)
	}
	gran := s.cal.Granularity()
	loc := s.cal.Location()

	for offset := 0; offset < s.horizonDays; offset++ {
		day := fromDate.In(loc).AddDate(0, 0, offset)
		hours := s.cal.ScheduleFor(day, sched)
		if hours.Closed {
			continue
		}

		date := day.Format(model.DateLayout)
		existing, err := source.ListActiveByDate(ctx, date)
		if err != nil {
			return Result{}, fmt.Errorf("list appointments for %s: %w", date, err)
		}
		busy := footprint(existing, gran)

		for _, slot := range s.cal.GenerateSlots(hours) {
			start, err := model.ParseClock(slot)
			if err != nil {
				continue
			}
			if offset == 0 && start < origStart+gran {
				continue
			}
			if !conflict.FitsOpenHours(hours, conflict.Candidate{Start: start, Duration: duration}).Fits {
				continue
			}
			if footprintFree(busy, start, duration, gran) {
				return Result{Date: date, Time: slot, Found: true}, nil
			}
		}
	}
	return Result{}, nil
}

// footprint expands active appointments to the set of granularity sub-slots
// they occupy, keyed by minutes since midnight.
func footprint(appts []model.Appointment, gran int) map[int]bool {
	busy := make(map[int]bool)
	for i := range appts {
		a := &appts[i]
		if !a.Active() {
			continue
		}
		start, err := a.StartMinutes()
		if err != nil {
			continue
		}
		aligned := start - start%gran
		for m := aligned; m < start+a.Duration; m += gran {
			busy[m] = true
		}
	}
	return busy
}

func footprintFree(busy map[int]bool, start, duration, gran int) bool {
	for m := start; m < start+duration; m += gran {
		if busy[m-m%gran] {
			return false
		}
	}
	return true
}
