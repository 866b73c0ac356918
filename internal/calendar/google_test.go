package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type fakeGoogleCalendar struct {
	mu       sync.Mutex
	inserted []map[string]any
	listed   []url.Values
	deleted  []string
}

// ServeHTTP answers the events endpoints of one calendar, matching on the
// path after "/calendars/".
func (f *fakeGoogleCalendar) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, rest, ok := strings.Cut(r.URL.Path, "/calendars/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[0] != "primary" || parts[1] != "events" {
		http.NotFound(w, r)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && len(parts) == 2:
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.inserted = append(f.inserted, body)
		body["id"] = "ev1"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)

	case r.Method == http.MethodGet && len(parts) == 2:
		f.listed = append(f.listed, r.URL.Query())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{
					"id":      "ev1",
					"summary": "ながらウォーク @ 渋谷店",
					"start":   map[string]string{"dateTime": "2025-06-10T01:00:00Z"},
					"end":     map[string]string{"dateTime": "2025-06-10T01:50:00Z"},
				},
				{
					"id":      "ev2",
					"summary": "休館日",
					"start":   map[string]string{"date": "2025-06-10"},
					"end":     map[string]string{"date": "2025-06-11"},
				},
			},
		})

	case r.Method == http.MethodDelete && len(parts) == 3:
		f.deleted = append(f.deleted, parts[2])
		w.WriteHeader(http.StatusNoContent)

	default:
		http.NotFound(w, r)
	}
}

func newTestGoogle(t *testing.T) (*Google, *fakeGoogleCalendar) {
	t.Helper()

	fake := &fakeGoogleCalendar{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	g, err := NewGoogle(context.Background(), srv.Client(), "", jst, option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	return g, fake
}

func TestGoogleCreateEvent(t *testing.T) {
	g, fake := newTestGoogle(t)

	ev, err := g.CreateEvent(context.Background(), NewEvent{
		Title:       "ながらウォーク @ 渋谷店",
		Description: "chocoZAP 予約",
		Start:       at(10, 0),
		End:         at(10, 50),
	})
	require.NoError(t, err)

	assert.Equal(t, "ev1", ev.ID)
	assert.True(t, ev.Start.Equal(at(10, 0)))
	assert.True(t, ev.End.Equal(at(10, 50)))

	require.Len(t, fake.inserted, 1)
	sent := fake.inserted[0]
	assert.Equal(t, "ながらウォーク @ 渋谷店", sent["summary"])
	assert.Equal(t, "chocoZAP 予約", sent["description"])
	start := sent["start"].(map[string]any)
	assert.Equal(t, "2025-06-10T10:00:00+09:00", start["dateTime"])
	assert.NotContains(t, start, "timeZone", "fixed zones are sent as offsets only")
}

func TestGoogleCreateEventValidates(t *testing.T) {
	g, fake := newTestGoogle(t)

	_, err := g.CreateEvent(context.Background(), NewEvent{Title: "x", Start: at(10, 0), End: at(9, 0)})
	require.Error(t, err)
	assert.Empty(t, fake.inserted)
}

func TestGoogleEvents(t *testing.T) {
	g, fake := newTestGoogle(t)

	events, err := g.Events(context.Background(), at(9, 59), at(10, 1), "ながらウォーク @ 渋谷店")
	require.NoError(t, err)

	require.Len(t, fake.listed, 1)
	q := fake.listed[0]
	assert.Equal(t, "2025-06-10T09:59:00+09:00", q.Get("timeMin"))
	assert.Equal(t, "2025-06-10T10:01:00+09:00", q.Get("timeMax"))
	assert.Equal(t, "ながらウォーク @ 渋谷店", q.Get("q"))
	assert.Equal(t, "true", q.Get("singleEvents"))
	assert.Equal(t, "startTime", q.Get("orderBy"))

	require.Len(t, events, 2)
	assert.Equal(t, "ev1", events[0].ID)
	assert.True(t, events[0].Start.Equal(at(10, 0)))
	assert.Equal(t, jst, events[0].Start.Location())

	assert.Equal(t, "ev2", events[1].ID)
	assert.True(t, events[1].Start.Equal(time.Date(2025, 6, 10, 0, 0, 0, 0, jst)))
}

func TestGoogleDeleteEvent(t *testing.T) {
	g, fake := newTestGoogle(t)

	require.NoError(t, g.DeleteEvent(context.Background(), Event{ID: "ev1"}))
	assert.Equal(t, []string{"ev1"}, fake.deleted)

	err := g.DeleteEvent(context.Background(), Event{ID: "missing/x"})
	require.Error(t, err)
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "delete", svcErr.Op)
}
