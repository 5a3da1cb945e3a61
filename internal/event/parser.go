package event

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Line grammar: "<type> <YYYY-MM-DD>, <weekday>, <start>-<end>".
// The type capture is non-greedy so it may itself contain spaces; the commas
// are required separators; the weekday is any alphabetic token.
var (
	reLine       = regexp.MustCompile(`^\s*(.+?)\s+(\d{4}-\d{2}-\d{2}),\s*([A-Za-z]+),\s*(.+?)\s*$`)
	reRangeSplit = regexp.MustCompile(`\s*-\s*`)
	reAllDigits  = regexp.MustCompile(`^\d+$`)
	reClockLoose = regexp.MustCompile(`^(\d{1,2}):(\d{1,2})$`)
)

const dateLayout = "2006-01-02"

// ParseLine decomposes a topic title into an Info value.
// It returns a *FormatError when the line does not match the grammar, the
// date is not a real calendar date, or either time token is malformed.
func ParseLine(line string) (Info, error) {
	m := reLine.FindStringSubmatch(line)
	if m == nil {
		return Info{}, &FormatError{Input: line, Reason: "line does not match expected format"}
	}

	eventType := strings.TrimSpace(m[1])

	date, err := time.Parse(dateLayout, m[2])
	if err != nil {
		return Info{}, &FormatError{Input: m[2], Reason: "invalid calendar date"}
	}

	weekday := m[3]

	// Split the range on the first dash only; end times may not contain one.
	parts := reRangeSplit.Split(m[4], 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Info{}, &FormatError{Input: m[4], Reason: "missing separator between start and end times"}
	}

	start, err := ParseTimeToken(parts[0])
	if err != nil {
		return Info{}, err
	}
	end, err := ParseTimeToken(parts[1])
	if err != nil {
		return Info{}, err
	}

	return Info{
		Type:    eventType,
		Date:    date,
		Weekday: weekday,
		Start:   start,
		End:     end,
	}, nil
}

// ParseTimeToken parses a lenient time-of-day token as found in topic titles.
//
// Accepted notations (after normalizing '.' to ':'):
//
//	"8"     -> 08:00
//	"08"    -> 08:00
//	"930"   -> 09:30
//	"2030"  -> 20:30
//	"8:3"   -> 08:03
//	"20:30" -> 20:30
//	"20.30" -> 20:30
func ParseTimeToken(raw string) (TimeOfDay, error) {
	norm := strings.ReplaceAll(strings.TrimSpace(raw), ".", ":")

	var hh, mm string
	switch {
	case reAllDigits.MatchString(norm):
		switch len(norm) {
		case 1, 2: // hour only
			hh, mm = norm, "0"
		case 3: // Hmm
			hh, mm = norm[:1], norm[1:]
		case 4: // HHmm
			hh, mm = norm[:2], norm[2:]
		default:
			return TimeOfDay{}, &FormatError{Input: raw, Reason: "invalid time format"}
		}
	case reClockLoose.MatchString(norm):
		i := strings.IndexByte(norm, ':')
		hh, mm = norm[:i], norm[i+1:]
	default:
		return TimeOfDay{}, &FormatError{Input: raw, Reason: "invalid time format"}
	}

	hour, _ := strconv.Atoi(hh)
	minute, _ := strconv.Atoi(mm)
	return makeTimeOfDay(raw, hour, minute)
}
