package event

import "fmt"

// FormatError reports a title (or a token inside one) that does not conform
// to the event-line grammar. Input carries the offending substring for
// diagnostics. It is never fatal: callers log and skip the topic.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: %q", e.Reason, e.Input)
}
