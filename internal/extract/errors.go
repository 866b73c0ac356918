package extract

import "fmt"

// DateTimeError reports a date/time field that matched textually but does
// not name a real local time. It invalidates the tier that produced it.
type DateTimeError struct {
	Input  string
	Reason string
	Err    error
}

func (e *DateTimeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parsing date/time %q: %s: %v", e.Input, e.Reason, e.Err)
	}
	return fmt.Sprintf("parsing date/time %q: %s", e.Input, e.Reason)
}

func (e *DateTimeError) Unwrap() error {
	return e.Err
}
