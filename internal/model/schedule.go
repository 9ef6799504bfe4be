package model

import (
	"fmt"
	"strconv"
	"strings"
)

// DateLayout is the calendar-date format exchanged with external callers.
// Dates carry no time component; all day-level comparisons happen on this form.
const DateLayout = "2006-01-02"

// Canonical day identifiers: lowercase, accent-stripped weekday names in the
// business locale. These are the only legal keys of a WeeklySchedule.
const (
	DayLunes     = "lunes"
	DayMartes    = "martes"
	DayMiercoles = "miercoles"
	DayJueves    = "jueves"
	DayViernes   = "viernes"
	DaySabado    = "sabado"
	DayDomingo   = "domingo"
)

// WeekDays lists the canonical day identifiers Monday first.
var WeekDays = [7]string{
	DayLunes, DayMartes, DayMiercoles, DayJueves, DayViernes, DaySabado, DayDomingo,
}

// Interval is an open half-day window in minutes since midnight, [Open, Close).
type Interval struct {
	Open  int
	Close int
}

// DailySchedule holds the opening hours for one day. The AM and PM pairs are
// independent: a day may configure one, both, or neither. An open day with no
// pairs simply yields no slots.
type DailySchedule struct {
	Closed    bool   `yaml:"closed" json:"closed"`
	OpeningAM string `yaml:"opening_am,omitempty" json:"openingAM,omitempty"`
	ClosingAM string `yaml:"closing_am,omitempty" json:"closingAM,omitempty"`
	OpeningPM string `yaml:"opening_pm,omitempty" json:"openingPM,omitempty"`
	ClosingPM string `yaml:"closing_pm,omitempty" json:"closingPM,omitempty"`
}

// Intervals returns the configured half-day windows in chronological order.
// Incomplete pairs are skipped. Returns nil when the day is closed.
func (d DailySchedule) Intervals() []Interval {
	if d.Closed {
		return nil
	}
	var out []Interval
	if iv, err := parseInterval(d.OpeningAM, d.ClosingAM); err == nil {
		out = append(out, iv)
	}
	if iv, err := parseInterval(d.OpeningPM, d.ClosingPM); err == nil {
		out = append(out, iv)
	}
	return out
}

// Validate checks the clock strings and pair ordering.
func (d DailySchedule) Validate() error {
	if d.Closed {
		return nil
	}
	pairs := [][2]string{{d.OpeningAM, d.ClosingAM}, {d.OpeningPM, d.ClosingPM}}
	for _, p := range pairs {
		if p[0] == "" && p[1] == "" {
			continue
		}
		if p[0] == "" || p[1] == "" {
			return fmt.Errorf("incomplete opening pair %q-%q", p[0], p[1])
		}
		open, err := ParseClock(p[0])
		if err != nil {
			return err
		}
		cls, err := ParseClock(p[1])
		if err != nil {
			return err
		}
		if open >= cls {
			return fmt.Errorf("opening %s is not before closing %s", p[0], p[1])
		}
	}
	return nil
}

func parseInterval(open, cls string) (Interval, error) {
	if open == "" || cls == "" {
		return Interval{}, fmt.Errorf("empty pair")
	}
	o, err := ParseClock(open)
	if err != nil {
		return Interval{}, err
	}
	c, err := ParseClock(cls)
	if err != nil {
		return Interval{}, err
	}
	if o >= c {
		return Interval{}, fmt.Errorf("interval %s-%s is empty", open, cls)
	}
	return Interval{Open: o, Close: c}, nil
}

// WeeklySchedule maps every canonical day identifier to its hours.
type WeeklySchedule map[string]DailySchedule

// Validate requires exactly the seven canonical entries, each well-formed.
func (w WeeklySchedule) Validate() error {
	for _, day := range WeekDays {
		d, ok := w[day]
		if !ok {
			return fmt.Errorf("missing day %q", day)
		}
		if err := d.Validate(); err != nil {
			return fmt.Errorf("day %q: %w", day, err)
		}
	}
	if len(w) != len(WeekDays) {
		for k := range w {
			if !IsWeekDay(k) {
				return fmt.Errorf("unknown day %q", k)
			}
		}
	}
	return nil
}

// IsWeekDay reports whether s is a canonical day identifier.
func IsWeekDay(s string) bool {
	for _, d := range WeekDays {
		if d == s {
			return true
		}
	}
	return false
}

// SpecialDay overrides the weekly hours for one calendar date.
type SpecialDay struct {
	Date  string        `yaml:"date" json:"date"` // DateLayout
	Hours DailySchedule `yaml:"hours" json:"hours"`
}

// Schedule is the business calendar aggregate: regular weekly hours plus
// dated overrides. At most one SpecialDay per calendar date; the store
// enforces this at write time.
type Schedule struct {
	Weekly      WeeklySchedule `yaml:"weekly" json:"weekly"`
	SpecialDays []SpecialDay   `yaml:"special_days" json:"specialDays"`
}

// SpecialDayFor returns the override for a calendar date, if any.
func (s *Schedule) SpecialDayFor(date string) (SpecialDay, bool) {
	for _, sd := range s.SpecialDays {
		if sd.Date == date {
			return sd, true
		}
	}
	return SpecialDay{}, false
}

// ParseClock converts a zero-padded 24h "HH:MM" string to minutes since
// midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("invalid time format: %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("time out of range: %q", s)
	}
	return hour*60 + minute, nil
}

// FormatClock converts minutes since midnight back to "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
