// Package availability produces the per-day, per-slot booking view over a
// forward-looking date range.
package availability

import (
	"time"

	"velora/internal/calendar"
	"velora/internal/model"
)

// Slot is one bookable start time with its current availability.
type Slot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

// Day is the availability view for one calendar date.
type Day struct {
	Date  string `json:"date"`
	Open  bool   `json:"open"`
	Slots []Slot `json:"slots,omitempty"`
}

// Resolver merges calendar-derived slots with booked occupancy. It is
// read-only; callers supply the appointments for the requested range.
type Resolver struct {
	cal *calendar.Calendar
}

// NewResolver builds a Resolver over the business calendar.
func NewResolver(cal *calendar.Calendar) *Resolver {
	return &Resolver{cal: cal}
}

// Resolve walks [from, to] inclusive in the business timezone and returns one
// entry per date in ascending order. Dates before today are skipped. A slot
// is unavailable when any granularity sub-slot of an active appointment's
// full duration footprint lands on it, so the view agrees with the conflict
// detector.
func (r *Resolver) Resolve(now time.Time, from, to time.Time, sched *model.Schedule, appts []model.Appointment) []Day {
	today := r.cal.Today(now)
	occupied := r.occupancy(appts)

	var out []Day
	loc := r.cal.Location()
	for d := from.In(loc); !d.After(to.In(loc)); d = d.AddDate(0, 0, 1) {
		date := d.Format(model.DateLayout)
		if date < today {
			continue
		}
		hours := r.cal.ScheduleFor(d, sched)
		if hours.Closed {
			out = append(out, Day{Date: date, Open: false})
			continue
		}
		day := Day{Date: date, Open: true}
		busy := occupied[date]
		for _, slot := range r.cal.GenerateSlots(hours) {
			day.Slots = append(day.Slots, Slot{Time: slot, Available: !busy[slot]})
		}
		out = append(out, day)
	}
	return out
}

// occupancy maps date -> slot -> taken, expanding every active appointment to
// the sub-slots its duration spans.
func (r *Resolver) occupancy(appts []model.Appointment) map[string]map[string]bool {
	gran := r.cal.Granularity()
	occupied := make(map[string]map[string]bool)
	for i := range appts {
		a := &appts[i]
		if !a.Active() {
			continue
		}
		start, err := a.StartMinutes()
		if err != nil {
			continue
		}
		busy := occupied[a.Date]
		if busy == nil {
			busy = make(map[string]bool)
			occupied[a.Date] = busy
		}
		// Mark every sub-slot the footprint overlaps, including a partial
		// trailing one.
		aligned := start - start%gran
		for m := aligned; m < start+a.Duration; m += gran {
			busy[model.FormatClock(m)] = true
		}
	}
	return occupied
}
