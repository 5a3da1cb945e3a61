package config

import (
	"os"
	"path/filepath"
	"testing"

	"votebot/internal/event"
)

func writeConfig(t *testing.T, name, body string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return NewManager(path)
}

const validYAML = `
telegram:
  token: "123:abc"
  poll_timeout: "10s"
group:
  chat_id: -100123456
  vote_option: "yes"
  vote_delay: "5s"
event:
  schedule:
    - type: Game
      day: wed
      start_time: "20:30"
    - type: Game
      day: sun
logging:
  level: INFO
  console: true
  file:
    enabled: false
health:
  enabled: true
  addr: "0.0.0.0:8080"
`

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", validYAML)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Group.ChatID != -100123456 {
		t.Fatalf("ChatID = %d", cfg.Group.ChatID)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}

	rules, err := cfg.ScheduleRules()
	if err != nil {
		t.Fatalf("ScheduleRules error: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("len(rules) = %d, want 2", len(rules))
	}
	if rules[0].Start == nil || *rules[0].Start != (event.TimeOfDay{Hour: 20, Minute: 30}) {
		t.Fatalf("rules[0].Start = %v, want 20:30", rules[0].Start)
	}
	if rules[1].Start != nil {
		t.Fatalf("rules[1].Start = %v, want nil (any time)", rules[1].Start)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", validYAML+"\nbogus_section:\n  x: 1\n")
	if _, err := m.Load(); err == nil {
		t.Fatal("expected unknown-field error")
	}
}

func TestLoadRejectsBadStartTime(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
group:
  chat_id: 1
  vote_option: "yes"
event:
  schedule:
    - type: Game
      day: wed
      start_time: "2030"
logging:
  console: true
  file:
    enabled: false
health:
  enabled: false
`)
	if _, err := m.Load(); err == nil {
		t.Fatal("expected start_time parse error (strict HH:MM only)")
	}
}

func TestValidateMissingToken(t *testing.T) {
	t.Parallel()
	cfg := &Config{}
	cfg.Group.ChatID = 1
	cfg.Group.VoteOption = "yes"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing-token error")
	}
}

func TestParseScheduleDSL(t *testing.T) {
	t.Parallel()
	got, err := ParseScheduleDSL("Game wed 20:30; Game sat 11:00; Game sun;")
	if err != nil {
		t.Fatalf("ParseScheduleDSL error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].StartTime == nil || got[0].StartTime.String() != "20:30" {
		t.Fatalf("entry 0 start = %v, want 20:30", got[0].StartTime)
	}
	if got[2].StartTime != nil {
		t.Fatalf("entry 2 start = %v, want nil", got[2].StartTime)
	}
	if got[2].Type != "Game" || got[2].Day != "sun" {
		t.Fatalf("entry 2 = %+v", got[2])
	}
}

func TestParseScheduleDSLInvalid(t *testing.T) {
	t.Parallel()
	for _, dsl := range []string{"Game", "Game wed 25:00", "Game wed 20:30 extra"} {
		if _, err := ParseScheduleDSL(dsl); err == nil {
			t.Fatalf("ParseScheduleDSL(%q): expected error", dsl)
		}
	}

	got, err := ParseScheduleDSL("   ")
	if err != nil || got != nil {
		t.Fatalf("blank DSL: got %v, %v; want nil, nil", got, err)
	}
}

func TestScheduleRulesCombinesExplicitAndDSL(t *testing.T) {
	t.Parallel()
	cfg := &Config{}
	cfg.Event.Schedule = []ScheduledEvent{{Type: "Training", Day: "mon"}}
	cfg.Event.ScheduleDSL = "Game wed 20:30"

	rules, err := cfg.ScheduleRules()
	if err != nil {
		t.Fatalf("ScheduleRules error: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("len(rules) = %d, want 2", len(rules))
	}
	// Explicit entries keep priority over DSL expansion.
	if rules[0].Type != "Training" || rules[1].Type != "Game" {
		t.Fatalf("rule order = %s, %s", rules[0].Type, rules[1].Type)
	}
}
