// Package event parses forum-topic titles into structured event descriptions.
//
// A title like "Game 2025-09-30, Tue, 20:00-22:00" decomposes into an event
// type, a calendar date, a weekday label and a start/end time-of-day pair.
// Parsing is pure: identical input yields identical output or failure.
package event

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Info is a fully parsed event line. All fields are set on every value
// returned by ParseLine; there is no partially-constructed state.
//
// Weekday is the token taken verbatim from the title. It is NOT derived from
// Date and the two are never cross-validated: a title may claim "Tue" for a
// Thursday date and the claimed label is what schedule matching uses.
type Info struct {
	Type    string
	Date    time.Time // calendar date only, midnight UTC
	Weekday string
	Start   TimeOfDay
	End     TimeOfDay
}

// TimeOfDay is a wall-clock hour/minute pair without date or zone.
type TimeOfDay struct {
	Hour   int // 0..23
	Minute int // 0..59
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

var reClockStrict = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// ParseClock parses a strict "HH:MM" string (as used in config files).
// For the lenient title notation, see ParseTimeToken.
func ParseClock(s string) (TimeOfDay, error) {
	m := reClockStrict.FindStringSubmatch(s)
	if m == nil {
		return TimeOfDay{}, &FormatError{Input: s, Reason: "invalid time, want HH:MM"}
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	return makeTimeOfDay(s, hour, minute)
}

func makeTimeOfDay(raw string, hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 {
		return TimeOfDay{}, &FormatError{Input: raw, Reason: fmt.Sprintf("hour %d out of range", hour)}
	}
	if minute < 0 || minute > 59 {
		return TimeOfDay{}, &FormatError{Input: raw, Reason: fmt.Sprintf("minute %d out of range", minute)}
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// MarshalJSON encodes the time as its "HH:MM" string form.
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts a strict "HH:MM" string. Config files go through a
// YAML-to-JSON coercion, so this is the single decode path for clock values.
func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseClock(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}
