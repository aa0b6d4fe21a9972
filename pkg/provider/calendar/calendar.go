// Package calendar defines the Scheduler interface for creating booked
// appointments in an external calendar.
package calendar

import (
	"context"
	"errors"
)

// Event is a single appointment to create. Start and End are local wall-clock
// timestamps in "2006-01-02T15:04:05" form, interpreted in TimeZone.
type Event struct {
	Summary   string
	Start     string
	End       string
	TimeZone  string
	Attendees []string
}

// Validate reports missing fields.
func (e Event) Validate() error {
	var errs []error
	if e.Summary == "" {
		errs = append(errs, errors.New("calendar: event summary is required"))
	}
	if e.Start == "" || e.End == "" {
		errs = append(errs, errors.New("calendar: event start and end are required"))
	}
	return errors.Join(errs...)
}

// Scheduler creates calendar events.
type Scheduler interface {
	// CreateEvent inserts ev and returns a human-shareable link to it.
	CreateEvent(ctx context.Context, ev Event) (string, error)
}
