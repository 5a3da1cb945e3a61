// Package transport defines the platform-neutral types the bot core works
// with. The core never sees SDK-specific message or poll types; adapters
// translate in both directions.
package transport

import "context"

type UpdateKind string

const (
	UpdatePollMessage UpdateKind = "poll_message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

// Message is an inbound message relevant to the voter. Poll is non-nil only
// for poll-carrying messages.
type Message struct {
	ID       int
	ChatID   int64
	ThreadID int // forum topic thread id (0 if none)
	IsTopic  bool
	Poll     *Poll
}

// Poll carries the question and the ordered option texts of a poll message.
type Poll struct {
	ID       string
	Question string
	Options  []string
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

// Adapter is the messaging-platform boundary.
//
// TopicName resolves a forum thread id to its current title.
// VotePoll casts a vote on the poll in the referenced message by option index.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	TopicName(ctx context.Context, chatID int64, threadID int) (string, error)
	VotePoll(ctx context.Context, ref MessageRef, option int) error
}
