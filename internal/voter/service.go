// Package voter is the pipeline between inbound poll messages and the vote
// call: topic title -> event parse -> schedule match -> option choice ->
// delayed vote.
package voter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"votebot/internal/event"
	"votebot/internal/eventbus"
	"votebot/internal/schedule"
	"votebot/internal/transport"
	logx "votebot/pkg/logx"
)

// Bus event types published by the voter.
const (
	EventVoteCast    = "vote.cast"
	EventVoteSkipped = "vote.skipped"
	EventVoteFailed  = "vote.failed"
)

// Outcome is the bus payload for every handled poll message.
type Outcome struct {
	At          time.Time
	ChatID      int64
	ThreadID    int
	MessageID   int
	Topic       string
	EventType   string
	EventDate   string // YYYY-MM-DD, empty if the title never parsed
	OptionIndex int
	OptionText  string
	Reason      string // skip reason or failure detail
}

type Config struct {
	ChatID     int64
	VoteOption string

	// VoteDelay is the fixed pause between acceptance and the vote call.
	// It exists to let the poll propagate before we touch it.
	VoteDelay time.Duration

	// RatePerSec bounds outgoing vote calls; 0 picks a conservative default.
	RatePerSec int
}

type Service struct {
	cfg     Config
	adapter transport.Adapter
	log     logx.Logger
	bus     eventbus.Bus
	limiter *rate.Limiter

	// clock returns "now" for the strictly-future date check; injectable for
	// tests.
	clock func() time.Time

	rulesMu sync.RWMutex
	rules   []schedule.Rule

	wg sync.WaitGroup
}

func New(cfg Config, adapter transport.Adapter, rules []schedule.Rule, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	return &Service{
		cfg:     cfg,
		adapter: adapter,
		log:     log,
		bus:     bus,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		clock:   time.Now,
		rules:   append([]schedule.Rule(nil), rules...),
	}
}

// SetClock overrides the time source. Test hook.
func (s *Service) SetClock(clock func() time.Time) {
	if clock != nil {
		s.clock = clock
	}
}

// SetRules swaps the schedule rules (config hot reload).
func (s *Service) SetRules(rules []schedule.Rule) {
	s.rulesMu.Lock()
	s.rules = append([]schedule.Rule(nil), rules...)
	s.rulesMu.Unlock()
	s.log.Info("schedule rules updated", logx.Int("count", len(rules)))
}

func (s *Service) snapshotRules() []schedule.Rule {
	s.rulesMu.RLock()
	defer s.rulesMu.RUnlock()
	return s.rules
}

// Run consumes updates until ctx is done. Each candidate poll is handled on
// its own goroutine: there is no ordering or mutual exclusion between topics,
// and a redelivered poll is handled again (no dedup).
func (s *Service) Run(ctx context.Context, updates <-chan transport.Update) error {
	defer s.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m := up.Message
			if up.Kind != transport.UpdatePollMessage || m == nil || m.Poll == nil {
				continue
			}
			if m.ChatID != s.cfg.ChatID {
				s.log.Debug("poll outside watched group; ignoring", logx.Int64("chat_id", m.ChatID))
				continue
			}
			if !m.IsTopic || m.ThreadID == 0 {
				s.log.Debug("poll outside a forum topic; ignoring", logx.Int("message_id", m.ID))
				continue
			}

			s.wg.Add(1)
			go func(m *transport.Message) {
				defer s.wg.Done()
				s.handle(ctx, m)
			}(m)
		}
	}
}

func (s *Service) handle(ctx context.Context, m *transport.Message) {
	log := s.log.With(
		logx.Int64("chat_id", m.ChatID),
		logx.Int("thread_id", m.ThreadID),
		logx.Int("message_id", m.ID),
	)

	title, err := s.adapter.TopicName(ctx, m.ChatID, m.ThreadID)
	if err != nil {
		log.Warn("could not resolve topic title; skipping", logx.Err(err))
		s.publish(EventVoteSkipped, Outcome{
			At: s.clock(), ChatID: m.ChatID, ThreadID: m.ThreadID, MessageID: m.ID,
			OptionIndex: -1, Reason: "unknown topic: " + err.Error(),
		})
		return
	}
	log = log.With(logx.String("topic", title))

	info, err := event.ParseLine(title)
	if err != nil {
		log.Warn("topic title is not an event line; skipping", logx.Err(err))
		s.publish(EventVoteSkipped, Outcome{
			At: s.clock(), ChatID: m.ChatID, ThreadID: m.ThreadID, MessageID: m.ID,
			Topic: title, OptionIndex: -1, Reason: "parse: " + err.Error(),
		})
		return
	}

	if !schedule.Acceptable(info, s.clock(), s.snapshotRules()) {
		log.Info("event does not match schedule; skipping")
		s.publish(EventVoteSkipped, s.outcome(m, title, info, -1, "", "no schedule match"))
		return
	}

	idx := ChooseOption(m.Poll.Options, s.cfg.VoteOption)
	if idx < 0 {
		log.Warn("poll has no options; skipping")
		s.publish(EventVoteSkipped, s.outcome(m, title, info, -1, "", "empty poll"))
		return
	}
	optText := m.Poll.Options[idx]
	log.Info("event matched; voting after delay",
		logx.Int("option", idx),
		logx.Duration("delay", s.cfg.VoteDelay),
	)

	// Fixed pause before touching the poll.
	if !sleep(ctx, s.cfg.VoteDelay) {
		return
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}

	ref := transport.MessageRef{ChatID: m.ChatID, ThreadID: m.ThreadID, MessageID: m.ID}
	if err := s.adapter.VotePoll(ctx, ref, idx); err != nil {
		// Not retried: the poll stays untouched and the operator sees the log.
		log.Error("vote failed", logx.Err(err))
		s.publish(EventVoteFailed, s.outcome(m, title, info, idx, optText, err.Error()))
		return
	}

	log.Info("vote cast", logx.Int("option", idx), logx.String("option_text", optText))
	s.publish(EventVoteCast, s.outcome(m, title, info, idx, optText, ""))
}

func (s *Service) outcome(m *transport.Message, title string, info event.Info, idx int, optText, reason string) Outcome {
	return Outcome{
		At:          s.clock(),
		ChatID:      m.ChatID,
		ThreadID:    m.ThreadID,
		MessageID:   m.ID,
		Topic:       title,
		EventType:   info.Type,
		EventDate:   info.Date.Format("2006-01-02"),
		OptionIndex: idx,
		OptionText:  optText,
		Reason:      reason,
	}
}

func (s *Service) publish(typ string, o Outcome) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: o.At, Data: o})
}

// sleep waits d, returning false if ctx expired first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
