package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/nhle/chocosync/internal/calendar"
)

// NewLocalCalendar creates an in-memory SQLite calendar with all migrations
// applied. It automatically closes the calendar when the test completes.
func NewLocalCalendar(t *testing.T, loc *time.Location) *calendar.Local {
	t.Helper()

	c, err := calendar.NewLocal(":memory:", loc)
	if err != nil {
		t.Fatalf("creating test calendar: %v", err)
	}

	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("closing test calendar: %v", err)
		}
	})

	return c
}

// FlakyCalendar wraps a calendar and fails the calls whose error is set.
type FlakyCalendar struct {
	calendar.Calendar

	CreateErr error
	EventsErr error
	DeleteErr error

	Creates int
	Deletes int
}

func (f *FlakyCalendar) CreateEvent(ctx context.Context, ev calendar.NewEvent) (calendar.Event, error) {
	if f.CreateErr != nil {
		return calendar.Event{}, f.CreateErr
	}
	f.Creates++
	return f.Calendar.CreateEvent(ctx, ev)
}

func (f *FlakyCalendar) Events(ctx context.Context, from, to time.Time, search string) ([]calendar.Event, error) {
	if f.EventsErr != nil {
		return nil, f.EventsErr
	}
	return f.Calendar.Events(ctx, from, to, search)
}

func (f *FlakyCalendar) DeleteEvent(ctx context.Context, ev calendar.Event) error {
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	f.Deletes++
	return f.Calendar.DeleteEvent(ctx, ev)
}
