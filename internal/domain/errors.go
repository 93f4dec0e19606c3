package domain

import (
	"errors"
	"fmt"
)

// ErrDegenerateSeries is returned by models that cannot fit a series with no variation.
var ErrDegenerateSeries = errors.New("degenerate series")

// MalformedScheduleError reports a pivot month header that is not a calendar date.
// It aborts the whole run because every item shares the same schedule.
type MalformedScheduleError struct {
	Column int
	Header string
	Err    error
}

func (e *MalformedScheduleError) Error() string {
	return fmt.Sprintf("malformed schedule header %q at column %d: %v", e.Header, e.Column, e.Err)
}

func (e *MalformedScheduleError) Unwrap() error { return e.Err }

// ForecastFitError reports that the statistical model could not be fitted for one item.
type ForecastFitError struct {
	ItemID string
	Model  string
	Err    error
}

func (e *ForecastFitError) Error() string {
	return fmt.Sprintf("forecast fit failed for item %s (%s): %v", e.ItemID, e.Model, e.Err)
}

func (e *ForecastFitError) Unwrap() error { return e.Err }

// EmptyInputError reports a pivot with nothing to forecast.
type EmptyInputError struct {
	Reason string
}

func (e *EmptyInputError) Error() string {
	if e.Reason == "" {
		return "empty input: pivot has no items"
	}
	return "empty input: " + e.Reason
}

// InvalidQuantityError reports a pivot cell that is not a number.
type InvalidQuantityError struct {
	ItemID string
	Header string
	Value  string
	Err    error
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid quantity %q for item %s in column %q", e.Value, e.ItemID, e.Header)
}

func (e *InvalidQuantityError) Unwrap() error { return e.Err }

// IsRunLevel reports whether err should abort a whole run rather than a single item.
func IsRunLevel(err error) bool {
	var malformed *MalformedScheduleError
	var empty *EmptyInputError
	return errors.As(err, &malformed) || errors.As(err, &empty)
}
