package booking

import (
	"errors"
	"fmt"
)

// ErrForbidden is returned when the principal may not act on an appointment.
var ErrForbidden = errors.New("operation not allowed for this user")

// ErrNotFound is returned when the referenced appointment does not exist.
var ErrNotFound = errors.New("appointment not found")

// ValidationError rejects a request before any side effect: bad dates, bad
// times, unknown services. Not retryable.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// BusinessClosedError rejects a candidate the calendar cannot host: the day
// or half-day is closed, or the visit does not fit before closing. When the
// candidate partially fits, Remaining carries the minutes left before the
// nearest closing boundary.
type BusinessClosedError struct {
	Msg       string
	Remaining int
}

func (e *BusinessClosedError) Error() string {
	return e.Msg
}

// ConflictError reports an overlap for which the relocation search found no
// alternative inside its horizon. Distinguishable from validation failures so
// clients can prompt a re-selection.
type ConflictError struct {
	Date string
	Time string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("slot %s %s is taken and no alternative was found", e.Date, e.Time)
}
