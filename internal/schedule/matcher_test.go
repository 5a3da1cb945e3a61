package schedule

import (
	"testing"
	"time"

	"votebot/internal/event"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func tod(h, m int) *event.TimeOfDay {
	return &event.TimeOfDay{Hour: h, Minute: m}
}

func futureEvent() event.Info {
	return event.Info{
		Type:    "Game",
		Date:    day(2099, 9, 30),
		Weekday: "Tue",
		Start:   event.TimeOfDay{Hour: 20, Minute: 30},
		End:     event.TimeOfDay{Hour: 22, Minute: 0},
	}
}

func TestAcceptablePastAndSameDayRejected(t *testing.T) {
	t.Parallel()
	// Even a universally-matching rule set cannot accept a non-future event.
	rules := []Rule{{Type: "Game", Day: "Tue"}}

	ev := futureEvent()
	tests := []struct {
		name  string
		today time.Time
	}{
		{name: "same day", today: day(2099, 9, 30)},
		{name: "same day with wall clock", today: time.Date(2099, 9, 30, 15, 4, 5, 0, time.UTC)},
		{name: "day after", today: day(2099, 10, 1)},
		{name: "far future", today: day(2120, 1, 1)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if Acceptable(ev, tt.today, rules) {
				t.Fatalf("Acceptable = true for today=%v, want false", tt.today)
			}
			if Acceptable(ev, tt.today, nil) {
				t.Fatal("Acceptable = true with no rules, want false")
			}
		})
	}
}

func TestAcceptableCaseInsensitiveMatch(t *testing.T) {
	t.Parallel()
	today := day(2099, 9, 1)
	rules := []Rule{{Type: "Game", Day: "Wed"}}

	ev := futureEvent()
	ev.Type = "gAmE"
	ev.Weekday = "wed"
	if !Acceptable(ev, today, rules) {
		t.Fatal("expected case-insensitive type/day match to accept")
	}

	ev.Weekday = "thu"
	if Acceptable(ev, today, rules) {
		t.Fatal("expected mismatched weekday to reject")
	}
}

func TestAcceptableExactStartTime(t *testing.T) {
	t.Parallel()
	today := day(2099, 9, 1)
	rules := []Rule{{Type: "Game", Day: "Tue", Start: tod(20, 30)}}

	ev := futureEvent()
	ev.Start = event.TimeOfDay{Hour: 20, Minute: 0}
	if Acceptable(ev, today, rules) {
		t.Fatal("expected start-time mismatch to reject")
	}

	ev.Start = event.TimeOfDay{Hour: 20, Minute: 30}
	if !Acceptable(ev, today, rules) {
		t.Fatal("expected exact start-time match to accept")
	}
}

func TestAcceptableNilStartMatchesAnyTime(t *testing.T) {
	t.Parallel()
	today := day(2099, 9, 1)
	rules := []Rule{{Type: "Game", Day: "Tue"}}

	for _, start := range []event.TimeOfDay{{Hour: 0, Minute: 0}, {Hour: 9, Minute: 30}, {Hour: 23, Minute: 59}} {
		ev := futureEvent()
		ev.Start = start
		if !Acceptable(ev, today, rules) {
			t.Fatalf("expected rule without start time to accept start=%v", start)
		}
	}
}

// A time-mismatched candidate must not short-circuit the scan; a later rule
// for the same type/day can still accept.
func TestAcceptableScanContinuesPastPartialMatch(t *testing.T) {
	t.Parallel()
	today := day(2099, 9, 1)
	rules := []Rule{
		{Type: "Game", Day: "Tue", Start: tod(18, 0)},  // type/day match, wrong time
		{Type: "Game", Day: "Tue", Start: tod(20, 30)}, // full match
	}

	if !Acceptable(futureEvent(), today, rules) {
		t.Fatal("expected scan to continue past the time-mismatched rule")
	}
}

func TestAcceptableFirstFullMatchWins(t *testing.T) {
	t.Parallel()
	today := day(2099, 9, 1)
	rules := []Rule{
		{Type: "Training", Day: "Wed"},
		{Type: "Game", Day: "Tue"},
		{Type: "Game", Day: "Tue", Start: tod(0, 0)}, // never reached
	}

	if !Acceptable(futureEvent(), today, rules) {
		t.Fatal("expected the second rule to accept")
	}
}
