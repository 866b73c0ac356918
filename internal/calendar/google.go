package calendar

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const backendGoogle = "google"

// Google is a Calendar backed by one Google calendar.
type Google struct {
	svc        *gcal.Service
	calendarID string
	loc        *time.Location
}

// NewGoogle creates a Google Calendar client on an authorized HTTP client.
// calendarID defaults to "primary"; returned times are converted to loc.
func NewGoogle(
	ctx context.Context,
	client *http.Client,
	calendarID string,
	loc *time.Location,
	opts ...option.ClientOption,
) (*Google, error) {
	if calendarID == "" {
		calendarID = "primary"
	}
	if loc == nil {
		loc = time.Local
	}

	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating calendar service: %w", err)
	}

	return &Google{svc: svc, calendarID: calendarID, loc: loc}, nil
}

// CreateEvent inserts a timed event.
func (g *Google) CreateEvent(ctx context.Context, ev NewEvent) (Event, error) {
	if err := validateNewEvent(ev); err != nil {
		return Event{}, err
	}

	created, err := g.svc.Events.Insert(g.calendarID, &gcal.Event{
		Summary:     ev.Title,
		Description: ev.Description,
		Start:       g.eventDateTime(ev.Start),
		End:         g.eventDateTime(ev.End),
	}).Context(ctx).Do()
	if err != nil {
		return Event{}, g.serviceError("create", fmt.Errorf("%q: %w", ev.Title, err))
	}

	return g.fromAPI(created)
}

// Events lists single (expanded) events overlapping [from, to) whose text
// matches search.
func (g *Google) Events(ctx context.Context, from, to time.Time, search string) ([]Event, error) {
	call := g.svc.Events.List(g.calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(250).
		Context(ctx)
	if search != "" {
		call = call.Q(search)
	}

	var events []Event
	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			ev, err := g.fromAPI(item)
			if err != nil {
				return err
			}
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return nil, g.serviceError("list", err)
	}

	return events, nil
}

// DeleteEvent deletes the event by id.
func (g *Google) DeleteEvent(ctx context.Context, ev Event) error {
	if err := g.svc.Events.Delete(g.calendarID, ev.ID).Context(ctx).Do(); err != nil {
		return g.serviceError("delete", fmt.Errorf("%s: %w", ev.ID, err))
	}
	return nil
}

func (g *Google) eventDateTime(t time.Time) *gcal.EventDateTime {
	edt := &gcal.EventDateTime{DateTime: t.Format(time.RFC3339)}
	// Only IANA names are accepted; the RFC 3339 offset covers the rest.
	if name := t.Location().String(); strings.Contains(name, "/") {
		edt.TimeZone = name
	}
	return edt
}

func (g *Google) fromAPI(item *gcal.Event) (Event, error) {
	start, err := g.parseEventTime(item.Start)
	if err != nil {
		return Event{}, fmt.Errorf("event %s start: %w", item.Id, err)
	}
	end, err := g.parseEventTime(item.End)
	if err != nil {
		return Event{}, fmt.Errorf("event %s end: %w", item.Id, err)
	}

	return Event{
		ID:          item.Id,
		Title:       item.Summary,
		Description: item.Description,
		Start:       start,
		End:         end,
	}, nil
}

// parseEventTime handles both timed events (RFC 3339) and all-day events
// (date only, midnight in the configured zone).
func (g *Google) parseEventTime(edt *gcal.EventDateTime) (time.Time, error) {
	if edt == nil {
		return time.Time{}, fmt.Errorf("missing time")
	}
	if edt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, edt.DateTime)
		if err != nil {
			return time.Time{}, err
		}
		return t.In(g.loc), nil
	}
	return time.ParseInLocation("2006-01-02", edt.Date, g.loc)
}

func (g *Google) serviceError(op string, err error) error {
	return &ServiceError{Backend: backendGoogle, Op: op, Err: err}
}

var _ Calendar = (*Google)(nil)
