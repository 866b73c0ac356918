package model

import (
	"fmt"
	"strings"
	"time"
)

// ExtractionMethod records which extraction tier produced a reservation.
type ExtractionMethod string

const (
	// MethodPrimary means every field came from labeled body fields.
	MethodPrimary ExtractionMethod = "primary"

	// MethodFallback means the date/time came from the subject line and the
	// end time was assumed from the default session length.
	MethodFallback ExtractionMethod = "fallback"
)

// Label returns the human-readable name written into event descriptions.
func (m ExtractionMethod) Label() string {
	switch m {
	case MethodPrimary:
		return "主要パターン"
	case MethodFallback:
		return "代替パターン"
	default:
		return string(m)
	}
}

// TitleSeparator joins menu and store names in event titles.
const TitleSeparator = " @ "

// EventTitle builds the calendar title for a menu/store pair. The title,
// together with the minute-precision start time, is the only identity shared
// between a created event and the cancellation notice that later removes it.
func EventTitle(menu, store string) string {
	return menu + TitleSeparator + store
}

// Reservation is a fully extracted booking from a confirmation message.
type Reservation struct {
	// Menu is the trimmed, non-empty menu name.
	Menu string `json:"menu"`

	// Store is the trimmed, non-empty store name.
	Store string `json:"store"`

	// Start is the local wall-clock start, minute precision.
	Start time.Time `json:"start"`

	// End is the local wall-clock end, minute precision, after Start.
	End time.Time `json:"end"`

	// Method is provenance only; it never influences matching.
	Method ExtractionMethod `json:"method"`
}

// Title returns the calendar event title for the reservation.
func (r Reservation) Title() string {
	return EventTitle(r.Menu, r.Store)
}

// Key returns the identity used to find this reservation's event later.
func (r Reservation) Key() EventKey {
	return EventKey{Menu: r.Menu, Store: r.Store, Start: r.Start}
}

// Description documents the reservation and where it came from.
func (r Reservation) Description(subject string) string {
	var b strings.Builder
	b.WriteString("chocoZAP 予約\n")
	fmt.Fprintf(&b, "メニュー: %s\n", r.Menu)
	fmt.Fprintf(&b, "店舗: %s\n", r.Store)
	fmt.Fprintf(&b, "メール件名: %s\n", subject)
	fmt.Fprintf(&b, "抽出方法: %s", r.Method.Label())
	return b.String()
}

// EventKey identifies a calendar event by title and start minute.
type EventKey struct {
	Menu  string    `json:"menu"`
	Store string    `json:"store"`
	Start time.Time `json:"start"`
}

// Title returns the calendar title the key refers to.
func (k EventKey) Title() string {
	return EventTitle(k.Menu, k.Store)
}

// Matches reports whether an event with the given title and start is the
// one identified by k: exact title equality and equal start to the minute.
func (k EventKey) Matches(title string, start time.Time) bool {
	if title != k.Title() {
		return false
	}
	return start.Truncate(time.Minute).Equal(k.Start.Truncate(time.Minute))
}
