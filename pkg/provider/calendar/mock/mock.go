// Package mock provides a test double for calendar.Scheduler.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/frontdesk/pkg/provider/calendar"
)

var _ calendar.Scheduler = (*Scheduler)(nil)

// Scheduler records every CreateEvent call and returns Link or Err.
type Scheduler struct {
	mu sync.Mutex

	// Link is returned by CreateEvent when Err is nil.
	Link string

	// Err, if non-nil, is returned from CreateEvent.
	Err error

	events []calendar.Event
}

// CreateEvent implements calendar.Scheduler.
func (s *Scheduler) CreateEvent(_ context.Context, ev calendar.Event) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev.Attendees = append([]string(nil), ev.Attendees...)
	s.events = append(s.events, ev)
	if s.Err != nil {
		return "", s.Err
	}
	return s.Link, nil
}

// Events returns a copy of every event passed to CreateEvent.
func (s *Scheduler) Events() []calendar.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]calendar.Event(nil), s.events...)
}
