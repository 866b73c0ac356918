package extract

import (
	"slices"
	"strings"
)

// Field names a required piece of a notification. The values are the labels
// operators see in logs when triaging a message that stayed unread.
type Field string

const (
	FieldDateTime Field = "日時"
	FieldMenu     Field = "メニュー"
	FieldStore    Field = "店舗名"
)

// allFields is the canonical reporting order.
var allFields = []Field{FieldDateTime, FieldMenu, FieldStore}

// Result is either Extracted(value) or Incomplete(missing fields). A value is
// never partially populated: Value reports ok only for a complete record.
type Result[T any] struct {
	value   T
	ok      bool
	missing []Field
	err     error
}

// Extracted wraps a complete value.
func Extracted[T any](v T) Result[T] {
	return Result[T]{value: v, ok: true}
}

// Incomplete reports the fields that could not be extracted. cause is the
// first conversion error encountered, if any.
func Incomplete[T any](missing []Field, cause error) Result[T] {
	return Result[T]{missing: normalize(missing), err: cause}
}

// Value returns the extracted value and whether extraction succeeded.
func (r Result[T]) Value() (T, bool) {
	return r.value, r.ok
}

// OK reports whether extraction succeeded.
func (r Result[T]) OK() bool {
	return r.ok
}

// Missing lists the absent or unparsable fields of an incomplete result.
func (r Result[T]) Missing() []Field {
	return r.missing
}

// Err returns the conversion error behind an incomplete result, if any.
func (r Result[T]) Err() error {
	return r.err
}

// MissingString joins the missing field names for log output.
func (r Result[T]) MissingString() string {
	names := make([]string, len(r.missing))
	for i, f := range r.missing {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// firstSuccess runs attempts in order and returns the first Extracted result.
// When every attempt is incomplete, a field is reported missing only if no
// attempt found it, and the first conversion error is kept.
func firstSuccess[T any](attempts ...func() Result[T]) Result[T] {
	var missing []Field
	var cause error
	for i, attempt := range attempts {
		res := attempt()
		if res.ok {
			return res
		}
		if cause == nil {
			cause = res.err
		}
		if i == 0 {
			missing = slices.Clone(res.missing)
			continue
		}
		missing = slices.DeleteFunc(missing, func(f Field) bool {
			return !slices.Contains(res.missing, f)
		})
	}
	return Incomplete[T](missing, cause)
}

// normalize orders fields canonically and drops duplicates.
func normalize(fields []Field) []Field {
	out := make([]Field, 0, len(fields))
	for _, f := range allFields {
		if slices.Contains(fields, f) {
			out = append(out, f)
		}
	}
	return out
}
