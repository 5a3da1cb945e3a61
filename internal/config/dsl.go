package config

import (
	"fmt"
	"strings"

	"votebot/internal/event"
)

// ParseScheduleDSL expands the compact schedule string into schedule entries.
//
// Format: "Type day [HH:MM]; Type day [HH:MM]; ..."
// Example: "Game wed 20:30; Game sat 11:00; Game sun"
//
// Empty segments are skipped, so trailing semicolons are harmless.
func ParseScheduleDSL(dsl string) ([]ScheduledEvent, error) {
	if strings.TrimSpace(dsl) == "" {
		return nil, nil
	}

	var out []ScheduledEvent
	for _, entry := range strings.Split(dsl, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.Fields(entry)
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("invalid schedule entry %q: want 'Type day [HH:MM]'", entry)
		}

		ev := ScheduledEvent{Type: parts[0], Day: parts[1]}
		if len(parts) == 3 {
			t, err := event.ParseClock(parts[2])
			if err != nil {
				return nil, fmt.Errorf("invalid schedule entry %q: %w", entry, err)
			}
			ev.StartTime = &t
		}
		out = append(out, ev)
	}
	return out, nil
}
