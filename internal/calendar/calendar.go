// Package calendar derives which hours apply to a calendar date and
// enumerates bookable slots. It is pure: no storage, no clock side effects
// beyond the injected business timezone.
package calendar

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"velora/internal/model"
)

// DefaultGranularity is the slot step in minutes.
const DefaultGranularity = 30

// Localized weekday names indexed by time.Weekday (Sunday = 0). Diacritics
// are stripped afterwards to produce the canonical identifiers.
var weekdayNames = [7]string{
	"Domingo", "Lunes", "Martes", "Miércoles", "Jueves", "Viernes", "Sábado",
}

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Calendar anchors all date computations to one business timezone.
type Calendar struct {
	loc         *time.Location
	granularity int
}

// New builds a Calendar. A nil location falls back to UTC, a non-positive
// granularity to DefaultGranularity.
func New(loc *time.Location, granularity int) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	if granularity <= 0 {
		granularity = DefaultGranularity
	}
	return &Calendar{loc: loc, granularity: granularity}
}

// Location returns the business timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Granularity returns the slot step in minutes.
func (c *Calendar) Granularity() int {
	return c.granularity
}

// Today returns the current calendar date in the business timezone.
func (c *Calendar) Today(now time.Time) string {
	return now.In(c.loc).Format(model.DateLayout)
}

// ParseDate parses a calendar-date string anchored at midnight in the
// business timezone.
func (c *Calendar) ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(model.DateLayout, s, c.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// DayIdentifierFor maps a date to its canonical day identifier. The date is
// localized to the business timezone first, so the same date always yields
// the same identifier regardless of the caller's zone.
func (c *Calendar) DayIdentifierFor(date time.Time) string {
	name := weekdayNames[date.In(c.loc).Weekday()]
	return NormalizeDayName(name)
}

// NormalizeDayName lowercases a weekday name and strips diacritics.
func NormalizeDayName(name string) string {
	out, _, err := transform.String(stripAccents, name)
	if err != nil {
		out = name
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// ScheduleFor resolves the effective hours for a date: the special-day
// override when one exists, otherwise the weekly entry for the weekday.
func (c *Calendar) ScheduleFor(date time.Time, sched *model.Schedule) model.DailySchedule {
	day := date.In(c.loc).Format(model.DateLayout)
	if sd, ok := sched.SpecialDayFor(day); ok {
		return sd.Hours
	}
	return sched.Weekly[c.DayIdentifierFor(date)]
}

// IsClosed reports whether the business is closed on a date.
func (c *Calendar) IsClosed(date time.Time, sched *model.Schedule) bool {
	return c.ScheduleFor(date, sched).Closed
}

// GenerateSlots enumerates bookable start times for one day's hours, every
// granularity minutes, AM before PM. A slot is emitted only when a full
// granularity step still fits before the interval closes. Closed days and
// days without configured pairs yield nothing.
func (c *Calendar) GenerateSlots(d model.DailySchedule) []string {
	if d.Closed {
		return nil
	}
	var slots []string
	for _, iv := range d.Intervals() {
		for cur := iv.Open; cur+c.granularity <= iv.Close; cur += c.granularity {
			slots = append(slots, model.FormatClock(cur))
		}
	}
	return slots
}
