// Package calendar creates, finds and deletes reservation events.
//
// Google implements Calendar on the Google Calendar API; Local keeps events
// in a SQLite file for offline use and tests.
package calendar

import (
	"context"
	"fmt"
	"time"
)

// Event is a calendar entry as returned by the backend.
type Event struct {
	ID          string
	Title       string
	Description string
	Start       time.Time
	End         time.Time
}

// NewEvent is the data needed to create an event.
type NewEvent struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
}

// Calendar is the calendar surface the workflows depend on.
type Calendar interface {
	// CreateEvent adds an event covering [Start, End).
	CreateEvent(ctx context.Context, ev NewEvent) (Event, error)

	// Events returns events overlapping [from, to) whose text contains
	// search, ordered by start time. An empty search matches everything.
	Events(ctx context.Context, from, to time.Time, search string) ([]Event, error)

	// DeleteEvent removes ev from the calendar.
	DeleteEvent(ctx context.Context, ev Event) error
}

// ServiceError wraps a failed calendar service call.
type ServiceError struct {
	Backend string
	Op      string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("calendar %s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func validateNewEvent(ev NewEvent) error {
	if ev.Title == "" {
		return fmt.Errorf("event title is required")
	}
	if !ev.End.After(ev.Start) {
		return fmt.Errorf("event %q ends at or before its start", ev.Title)
	}
	return nil
}
