// Package conflict implements the overlap test between a booking candidate
// and the non-cancelled appointments already holding the date.
package conflict

import (
	"velora/internal/model"
)

// Candidate is a prospective occupation of [Start, Start+Duration) minutes
// since midnight on one calendar date.
type Candidate struct {
	Start    int
	Duration int
}

// Overlaps reports whether the candidate intersects any active appointment in
// existing. Intervals are half-open, so touching boundaries do not conflict.
// excludeID skips an appointment's own prior record during a reschedule; pass
// 0 when there is nothing to exclude.
func Overlaps(c Candidate, existing []model.Appointment, excludeID int64) bool {
	cEnd := c.Start + c.Duration
	for i := range existing {
		a := &existing[i]
		if !a.Active() {
			continue
		}
		if excludeID != 0 && a.ID == excludeID {
			continue
		}
		start, err := a.StartMinutes()
		if err != nil {
			continue
		}
		if c.Start < start+a.Duration && cEnd > start {
			return true
		}
	}
	return false
}

// Fit is the outcome of checking a candidate against the day's open hours.
// When the candidate starts inside a half-day window but runs past its close,
// Remaining carries the minutes left before that boundary.
type Fit struct {
	Fits      bool
	Remaining int
}

// FitsOpenHours verifies the candidate lies entirely within a single AM or PM
// window of the day; a visit cannot span the midday closure. A closed day
// never fits.
func FitsOpenHours(hours model.DailySchedule, c Candidate) Fit {
	cEnd := c.Start + c.Duration
	best := Fit{}
	for _, iv := range hours.Intervals() {
		if c.Start < iv.Open || c.Start >= iv.Close {
			continue
		}
		if cEnd <= iv.Close {
			return Fit{Fits: true}
		}
		if rem := iv.Close - c.Start; rem > best.Remaining {
			best.Remaining = rem
		}
	}
	return best
}
