package voter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"votebot/internal/event"
	"votebot/internal/eventbus"
	"votebot/internal/schedule"
	"votebot/internal/transport"
	logx "votebot/pkg/logx"
)

type voteCall struct {
	ref    transport.MessageRef
	option int
}

type fakeAdapter struct {
	mu       sync.Mutex
	topics   map[int]string
	voteErr  error
	votes    chan voteCall
	topicErr error
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		topics: map[int]string{},
		votes:  make(chan voteCall, 8),
	}
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                               { return nil }

func (f *fakeAdapter) TopicName(ctx context.Context, chatID int64, threadID int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.topicErr != nil {
		return "", f.topicErr
	}
	name, ok := f.topics[threadID]
	if !ok {
		return "", errors.New("no such topic")
	}
	return name, nil
}

func (f *fakeAdapter) VotePoll(ctx context.Context, ref transport.MessageRef, option int) error {
	f.mu.Lock()
	err := f.voteErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.votes <- voteCall{ref: ref, option: option}
	return nil
}

const chatID = int64(-100123)

func fixedClock() time.Time {
	return time.Date(2099, 9, 1, 12, 0, 0, 0, time.UTC)
}

func newTestService(t *testing.T, ad *fakeAdapter, rules []schedule.Rule, bus eventbus.Bus) (*Service, chan transport.Update, func()) {
	t.Helper()
	s := New(Config{ChatID: chatID, VoteOption: "yes", VoteDelay: 0}, ad, rules, logx.Nop(), bus)
	s.SetClock(fixedClock)

	updates := make(chan transport.Update, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx, updates)
	}()
	stop := func() {
		cancel()
		<-done
	}
	t.Cleanup(stop)
	return s, updates, stop
}

func pollUpdate(threadID, messageID int, options ...string) transport.Update {
	return transport.Update{
		Kind: transport.UpdatePollMessage,
		Message: &transport.Message{
			ID:       messageID,
			ChatID:   chatID,
			ThreadID: threadID,
			IsTopic:  true,
			Poll:     &transport.Poll{ID: "p1", Question: "Coming?", Options: options},
		},
	}
}

func waitVote(t *testing.T, ad *fakeAdapter) voteCall {
	t.Helper()
	select {
	case v := <-ad.votes:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for vote call")
		return voteCall{}
	}
}

func waitBusEvent(t *testing.T, ch <-chan eventbus.Event, typ string) eventbus.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Type == typ {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for bus event %q", typ)
		}
	}
}

func TestVoteCastEndToEnd(t *testing.T) {
	ad := newFakeAdapter()
	ad.topics[7] = "Match 2099-09-30, Tue, 930-1130"

	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	rules := []schedule.Rule{{Type: "match", Day: "tue"}}
	_, updates, _ := newTestService(t, ad, rules, bus)

	updates <- pollUpdate(7, 42, "No", "Yes, I'm in")

	v := waitVote(t, ad)
	if v.option != 1 {
		t.Fatalf("voted option %d, want 1", v.option)
	}
	if v.ref != (transport.MessageRef{ChatID: chatID, ThreadID: 7, MessageID: 42}) {
		t.Fatalf("vote ref = %+v", v.ref)
	}

	e := waitBusEvent(t, events, EventVoteCast)
	o, ok := e.Data.(Outcome)
	if !ok {
		t.Fatalf("event data = %T, want Outcome", e.Data)
	}
	if o.EventType != "Match" || o.EventDate != "2099-09-30" || o.OptionIndex != 1 {
		t.Fatalf("outcome = %+v", o)
	}
}

func TestSkipUnparsableTitle(t *testing.T) {
	ad := newFakeAdapter()
	ad.topics[7] = "General chit-chat"

	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	_, updates, _ := newTestService(t, ad, []schedule.Rule{{Type: "match", Day: "tue"}}, bus)
	updates <- pollUpdate(7, 42, "Yes")

	e := waitBusEvent(t, events, EventVoteSkipped)
	o := e.Data.(Outcome)
	if o.Topic != "General chit-chat" {
		t.Fatalf("outcome = %+v", o)
	}
	select {
	case v := <-ad.votes:
		t.Fatalf("unexpected vote: %+v", v)
	default:
	}
}

func TestSkipNoScheduleMatch(t *testing.T) {
	ad := newFakeAdapter()
	ad.topics[7] = "Training 2099-09-30, Tue, 20:00-22:00"

	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	_, updates, _ := newTestService(t, ad, []schedule.Rule{{Type: "match", Day: "tue"}}, bus)
	updates <- pollUpdate(7, 42, "Yes")

	e := waitBusEvent(t, events, EventVoteSkipped)
	if o := e.Data.(Outcome); o.Reason != "no schedule match" {
		t.Fatalf("reason = %q", o.Reason)
	}
}

func TestSkipUnknownTopicAndForeignChat(t *testing.T) {
	ad := newFakeAdapter()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	_, updates, _ := newTestService(t, ad, []schedule.Rule{{Type: "match", Day: "tue"}}, bus)

	// Unknown thread: skipped with an outcome event.
	updates <- pollUpdate(99, 42, "Yes")
	waitBusEvent(t, events, EventVoteSkipped)

	// Foreign chat: filtered before handling, no outcome at all.
	up := pollUpdate(7, 43, "Yes")
	up.Message.ChatID = 555
	updates <- up

	select {
	case e := <-events:
		t.Fatalf("unexpected event for foreign chat: %+v", e)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestVoteFailurePublishesFailed(t *testing.T) {
	ad := newFakeAdapter()
	ad.topics[7] = "Match 2099-09-30, Tue, 930-1130"
	ad.voteErr = errors.New("flood wait")

	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	_, updates, _ := newTestService(t, ad, []schedule.Rule{{Type: "match", Day: "tue"}}, bus)
	updates <- pollUpdate(7, 42, "Yes")

	e := waitBusEvent(t, events, EventVoteFailed)
	if o := e.Data.(Outcome); o.Reason != "flood wait" {
		t.Fatalf("reason = %q", o.Reason)
	}
}

func TestSetRulesHotSwap(t *testing.T) {
	ad := newFakeAdapter()
	ad.topics[7] = "Match 2099-09-30, Tue, 930-1130"

	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	s, updates, _ := newTestService(t, ad, nil, bus)

	updates <- pollUpdate(7, 42, "Yes")
	waitBusEvent(t, events, EventVoteSkipped)

	s.SetRules([]schedule.Rule{{Type: "match", Day: "tue"}})
	updates <- pollUpdate(7, 43, "Yes")
	if v := waitVote(t, ad); v.ref.MessageID != 43 {
		t.Fatalf("vote ref = %+v", v.ref)
	}
}

func TestChooseOption(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		options []string
		want    string
		idx     int
	}{
		{name: "match", options: []string{"No", "Yes"}, want: "yes", idx: 1},
		{name: "case insensitive", options: []string{"NO!", "YES!"}, want: "yes", idx: 1},
		{name: "substring", options: []string{"Maybe", "Yes, count me in"}, want: "count me", idx: 1},
		{name: "fallback first", options: []string{"A", "B"}, want: "zzz", idx: 0},
		{name: "empty list", options: nil, want: "yes", idx: -1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := ChooseOption(tt.options, tt.want); got != tt.idx {
				t.Fatalf("ChooseOption(%v, %q) = %d, want %d", tt.options, tt.want, got, tt.idx)
			}
		})
	}
}

// Exact-time rules flow through the full pipeline: 09:30 parsed from "930"
// must equal a configured "09:30" constraint.
func TestVoteWithExactTimeRule(t *testing.T) {
	ad := newFakeAdapter()
	ad.topics[7] = "Match 2099-09-30, Tue, 930-1130"

	start := event.TimeOfDay{Hour: 9, Minute: 30}
	rules := []schedule.Rule{{Type: "Match", Day: "Tue", Start: &start}}

	_, updates, _ := newTestService(t, ad, rules, eventbus.New())
	updates <- pollUpdate(7, 42, "Yes")

	if v := waitVote(t, ad); v.option != 0 {
		t.Fatalf("voted option %d, want 0", v.option)
	}
}
