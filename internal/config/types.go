// Package config loads and watches votebot's configuration file.
//
// Both YAML and JSON are accepted; YAML is coerced to JSON bytes so a single
// strict decoder (DisallowUnknownFields) covers both formats.
package config

import (
	"errors"
	"fmt"
	"strings"

	"votebot/internal/event"
	"votebot/internal/schedule"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Group    GroupConfig    `json:"group"`
	Event    EventConfig    `json:"event"`
	Logging  LoggingConfig  `json:"logging"`
	Health   HealthConfig   `json:"health"`
	Storage  *StorageConfig `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// GroupConfig identifies the watched forum group and the vote behavior.
type GroupConfig struct {
	ChatID int64 `json:"chat_id"`

	// VoteOption selects the poll option to vote for: the first option whose
	// text contains this substring (case-insensitive) wins.
	VoteOption string `json:"vote_option"`

	// VoteDelay is the pause between acceptance and the vote call.
	// Go duration string; defaults to "5s".
	VoteDelay string `json:"vote_delay,omitempty"`
}

// ScheduledEvent is one recurring event eligible for automatic votes.
type ScheduledEvent struct {
	Type string `json:"type"`
	Day  string `json:"day"`

	// StartTime is an optional exact "HH:MM" constraint. When omitted, any
	// start time matches.
	StartTime *event.TimeOfDay `json:"start_time,omitempty"`
}

// EventConfig holds the schedule. Schedule and ScheduleDSL are additive; the
// DSL form is expanded and appended after the explicit entries.
type EventConfig struct {
	Schedule []ScheduledEvent `json:"schedule,omitempty"`

	// ScheduleDSL is a compact one-line form: "Type day [HH:MM]; ...",
	// e.g. "Game wed 20:30; Game sat 11:00; Game sun".
	ScheduleDSL string `json:"schedule_dsl,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level,omitempty"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// HealthConfig controls the liveness/readiness HTTP server.
type HealthConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "0.0.0.0:8080"

	// PingURL is the base URL the self-ping hits (deployment platforms that
	// idle out services need the traffic). Empty disables self-ping.
	PingURL string `json:"ping_url,omitempty"`

	// PingInterval is a Go duration string; default "20s".
	PingInterval string `json:"ping_interval,omitempty"`
}

// StorageConfig controls the optional vote journal.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./votebot_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// Validate checks the fields the app cannot start (or hot-reload) without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if c.Group.ChatID == 0 {
		return errors.New("group.chat_id is required")
	}
	if strings.TrimSpace(c.Group.VoteOption) == "" {
		return errors.New("group.vote_option is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("group.vote_delay", c.Group.VoteDelay); err != nil {
		return err
	}
	if _, err := ParseDurationField("health.ping_interval", c.Health.PingInterval); err != nil {
		return err
	}
	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	if _, err := c.ScheduleRules(); err != nil {
		return err
	}
	return nil
}

// ScheduleRules expands the explicit schedule entries plus the DSL string
// into matcher rules, preserving configured order.
func (c *Config) ScheduleRules() ([]schedule.Rule, error) {
	entries := append([]ScheduledEvent(nil), c.Event.Schedule...)

	if strings.TrimSpace(c.Event.ScheduleDSL) != "" {
		fromDSL, err := ParseScheduleDSL(c.Event.ScheduleDSL)
		if err != nil {
			return nil, fmt.Errorf("event.schedule_dsl: %w", err)
		}
		entries = append(entries, fromDSL...)
	}

	rules := make([]schedule.Rule, 0, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.Type) == "" || strings.TrimSpace(e.Day) == "" {
			return nil, fmt.Errorf("event.schedule[%d]: type and day are required", i)
		}
		rules = append(rules, schedule.Rule{Type: e.Type, Day: e.Day, Start: e.StartTime})
	}
	return rules, nil
}
