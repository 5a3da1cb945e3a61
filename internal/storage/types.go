package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the vote journal.
//
// Driver values:
//   - "file": dependency-free backend (append-only jsonl)
//   - "sqlite": SQLite database file (build with -tags sqlite)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// VoteRecord is one journal entry. Keep it compact and schema-stable.
type VoteRecord struct {
	At          time.Time `json:"at"`
	ChatID      int64     `json:"chat_id"`
	ThreadID    int       `json:"thread_id"`
	MessageID   int       `json:"message_id"`
	Topic       string    `json:"topic"`
	EventType   string    `json:"event_type"`
	EventDate   string    `json:"event_date"` // YYYY-MM-DD
	OptionIndex int       `json:"option_index"`
	OptionText  string    `json:"option_text,omitempty"`
	Outcome     string    `json:"outcome"` // "cast" | "failed"
	Error       string    `json:"error,omitempty"`
}
