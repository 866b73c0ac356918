// Package extract turns chocoZAP notification text into reservation records.
//
// Confirmation messages go through two tiers. The primary tier reads every
// field from labeled body lines, including a full start〜end range. The
// fallback tier keeps menu and store from the body but takes a short
// "MM/DD HH:MM" start from the subject, borrows the year from the message's
// received time and assumes a fixed session length. The fallback only runs
// when the body carried both menu and store.
//
// Cancellation messages have a single labeled start time and no fallback.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/chocosync/internal/model"
)

// DefaultSessionLength is the assumed duration of a reservation whose
// notice only carries a start time.
const DefaultSessionLength = 50 * time.Minute

// ws matches the whitespace that appears around labels after HTML bodies are
// flattened: ASCII whitespace, no-break space and the ideographic space.
const ws = `[\s\x{00A0}\x{3000}]`

var (
	// 来店日時: 2025/06/10 10:00〜2025/06/10 10:50
	primaryRangePattern = regexp.MustCompile(
		`来店日時` + ws + `*[:：]?` + ws + `*\n?` + ws + `*` +
			`(\d{4}/\d{2}/\d{2})` + ws + `+(\d{2}:\d{2})` + ws + `*[〜～~]` + ws + `*` +
			`(\d{4}/\d{2}/\d{2})` + ws + `+(\d{2}:\d{2})`,
	)

	// ■ご予約メニュー
	// ながらウォーク
	menuPattern = regexp.MustCompile(
		`■ご予約メニュー` + ws + `*[:：]?` + ws + `*\n?` + ws + `*(.+)`,
	)

	// ■chocoZAP 渋谷店
	storePattern = regexp.MustCompile(`■chocoZAP` + ws + `+([^\n]+)`)

	// 【予約確定】06/10 10:00〜
	subjectStartPattern = regexp.MustCompile(
		`(\d{2}/\d{2})` + ws + `+(\d{2}:\d{2})`,
	)

	// ■来店日時 2025/06/10 10:00
	cancelStartPattern = regexp.MustCompile(
		`■来店日時` + ws + `*[:：]?` + ws + `*\n?` + ws + `*` +
			`(\d{4}/\d{2}/\d{2})` + ws + `+(\d{2}:\d{2})`,
	)

	// ■キャンセルしたご予約メニュー
	cancelMenuPattern = regexp.MustCompile(
		`■キャンセルしたご予約メニュー` + ws + `*[:：]?` + ws + `*\n?` + ws + `*(.+)`,
	)
)

// Extractor parses notification subjects and bodies.
type Extractor struct {
	// Location defines local wall-clock time for parsed timestamps.
	Location *time.Location

	// SessionLength is added to fallback start times.
	SessionLength time.Duration
}

// New returns an Extractor using the process local zone and the default
// session length.
func New() *Extractor {
	return &Extractor{Location: time.Local, SessionLength: DefaultSessionLength}
}

func (e *Extractor) location() *time.Location {
	if e == nil || e.Location == nil {
		return time.Local
	}
	return e.Location
}

func (e *Extractor) sessionLength() time.Duration {
	if e == nil || e.SessionLength <= 0 {
		return DefaultSessionLength
	}
	return e.SessionLength
}

// Confirmation extracts a reservation from a booking confirmation, trying the
// primary tier first and the fallback tier second.
func (e *Extractor) Confirmation(subject, body string, received time.Time) Result[model.Reservation] {
	body = normalizeNewlines(body)
	return firstSuccess(
		func() Result[model.Reservation] { return e.primary(body) },
		func() Result[model.Reservation] { return e.fallback(subject, body, received) },
	)
}

// Cancellation extracts the identity of a cancelled reservation.
func (e *Extractor) Cancellation(subject, body string, received time.Time) Result[model.EventKey] {
	body = normalizeNewlines(body)

	var missing []Field
	var cause error

	var start time.Time
	if m := cancelStartPattern.FindStringSubmatch(body); m == nil {
		missing = append(missing, FieldDateTime)
	} else if t, err := e.parseDateTime(m[1], m[2]); err != nil {
		missing = append(missing, FieldDateTime)
		cause = err
	} else {
		start = t
	}

	menu, ok := captureLine(cancelMenuPattern, body)
	if !ok {
		missing = append(missing, FieldMenu)
	}
	store, ok := captureLine(storePattern, body)
	if !ok {
		missing = append(missing, FieldStore)
	}

	if len(missing) > 0 {
		return Incomplete[model.EventKey](missing, cause)
	}
	return Extracted(model.EventKey{Menu: menu, Store: store, Start: start})
}

// primary reads the full labeled range, menu and store from the body.
func (e *Extractor) primary(body string) Result[model.Reservation] {
	var missing []Field
	var cause error

	var start, end time.Time
	if m := primaryRangePattern.FindStringSubmatch(body); m == nil {
		missing = append(missing, FieldDateTime)
	} else if s, en, err := e.parseRange(m[1], m[2], m[3], m[4]); err != nil {
		missing = append(missing, FieldDateTime)
		cause = err
	} else {
		start, end = s, en
	}

	menu, store, bodyMissing := menuAndStore(body)
	missing = append(missing, bodyMissing...)

	if len(missing) > 0 {
		return Incomplete[model.Reservation](missing, cause)
	}
	return Extracted(model.Reservation{
		Menu:   menu,
		Store:  store,
		Start:  start,
		End:    end,
		Method: model.MethodPrimary,
	})
}

// fallback takes the start from the subject and menu/store from the body.
// It never succeeds without both body fields.
func (e *Extractor) fallback(subject, body string, received time.Time) Result[model.Reservation] {
	var missing []Field
	var cause error

	var start time.Time
	if m := subjectStartPattern.FindStringSubmatch(subject); m == nil {
		missing = append(missing, FieldDateTime)
	} else {
		year := received.In(e.location()).Year()
		t, err := e.parseDateTime(fmt.Sprintf("%04d/%s", year, m[1]), m[2])
		if err != nil {
			missing = append(missing, FieldDateTime)
			cause = err
		} else {
			start = t
		}
	}

	menu, store, bodyMissing := menuAndStore(body)
	missing = append(missing, bodyMissing...)

	if len(missing) > 0 {
		return Incomplete[model.Reservation](missing, cause)
	}
	return Extracted(model.Reservation{
		Menu:   menu,
		Store:  store,
		Start:  start,
		End:    start.Add(e.sessionLength()),
		Method: model.MethodFallback,
	})
}

func menuAndStore(body string) (menu, store string, missing []Field) {
	menu, ok := captureLine(menuPattern, body)
	if !ok {
		missing = append(missing, FieldMenu)
	}
	store, ok = captureLine(storePattern, body)
	if !ok {
		missing = append(missing, FieldStore)
	}
	return menu, store, missing
}

// captureLine returns the trimmed first capture group, rejecting blanks.
func captureLine(re *regexp.Regexp, text string) (string, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	v := strings.TrimFunc(m[1], isSpace)
	return v, v != ""
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f', '\u00a0', '\u3000':
		return true
	}
	return false
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\r", "\n")
}

// parseRange converts a start and end date/time pair, requiring end > start.
func (e *Extractor) parseRange(startDate, startClock, endDate, endClock string) (time.Time, time.Time, error) {
	start, err := e.parseDateTime(startDate, startClock)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := e.parseDateTime(endDate, endClock)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, &DateTimeError{
			Input:  fmt.Sprintf("%s %s〜%s %s", startDate, startClock, endDate, endClock),
			Reason: "end is not after start",
		}
	}
	return start, end, nil
}

// parseDateTime combines "YYYY/MM/DD" and "HH:MM" into a local timestamp,
// rejecting components outside the calendar instead of normalizing them.
func (e *Extractor) parseDateTime(date, clock string) (time.Time, error) {
	input := date + " " + clock
	dparts := strings.Split(date, "/")
	cparts := strings.Split(clock, ":")
	if len(dparts) != 3 || len(cparts) != 2 {
		return time.Time{}, &DateTimeError{Input: input, Reason: "malformed"}
	}

	nums := make([]int, 0, 5)
	for _, p := range append(dparts, cparts...) {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, &DateTimeError{Input: input, Reason: "not a number", Err: err}
		}
		nums = append(nums, n)
	}
	year, month, day, hour, minute := nums[0], nums[1], nums[2], nums[3], nums[4]

	switch {
	case month < 1 || month > 12:
		return time.Time{}, &DateTimeError{Input: input, Reason: "month out of range"}
	case day < 1 || day > daysIn(year, time.Month(month)):
		return time.Time{}, &DateTimeError{Input: input, Reason: "day out of range"}
	case hour < 0 || hour > 23:
		return time.Time{}, &DateTimeError{Input: input, Reason: "hour out of range"}
	case minute < 0 || minute > 59:
		return time.Time{}, &DateTimeError{Input: input, Reason: "minute out of range"}
	}

	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, e.location()), nil
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
