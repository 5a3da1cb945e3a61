// Package schedule decides whether a parsed event qualifies for an automatic
// vote, given the operator's configured recurring events.
package schedule

import (
	"strings"
	"time"

	"votebot/internal/event"
)

// Rule is one operator-configured recurring event. Type and Day are matched
// case-insensitively against the parsed event. A nil Start matches any start
// time; a set Start requires exact hour/minute equality.
//
// Rules are loaded once from configuration and never mutated by the matcher.
type Rule struct {
	Type  string
	Day   string
	Start *event.TimeOfDay
}

// Acceptable reports whether ev should receive an automatic vote.
//
// The event date must be strictly after today: the bot exists to vote ahead
// of time, so same-day events are rejected regardless of the rules. Rules are
// scanned in configured order and the first full match wins. A rule whose
// type and day match but whose start time differs does not stop the scan;
// a later rule may still accept the event.
func Acceptable(ev event.Info, today time.Time, rules []Rule) bool {
	if !ev.Date.After(dateOnly(today)) {
		return false
	}

	for _, r := range rules {
		if !strings.EqualFold(r.Type, ev.Type) || !strings.EqualFold(r.Day, ev.Weekday) {
			continue
		}
		if r.Start != nil && *r.Start != ev.Start {
			continue
		}
		return true
	}
	return false
}

// dateOnly drops the time-of-day so the comparison is between calendar dates,
// matching the parser's midnight-UTC representation.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
