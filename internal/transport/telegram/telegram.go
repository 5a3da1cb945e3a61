// Package telegram adapts the Telegram Bot API (via telebot) to the
// platform-neutral transport types.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"votebot/internal/transport"
	logx "votebot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// ErrUnknownTopic is returned by TopicName when the adapter has not yet seen
// a create/edit event for the thread. The Bot API has no topic lookup call,
// so titles are cached from topic service messages as they arrive.
var ErrUnknownTopic = errors.New("topic name not known")

type Adapter struct {
	cfg Config
	log logx.Logger

	bot       *tele.Bot
	out       chan<- transport.Update
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
	runMu     sync.Mutex
	running   bool

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the Telegram poll loop. Logged periodically, not per update.
	droppedUpdates uint64

	topicMu sync.RWMutex
	topics  map[topicKey]string

	http *http.Client
}

type topicKey struct {
	chatID   int64
	threadID int
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{
		cfg:    cfg,
		log:    log,
		bot:    b,
		topics: map[topicKey]string{},
		http:   &http.Client{Timeout: 8 * time.Second},
	}, nil
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out = out
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.runWG.Add(2)
	a.runMu.Unlock()

	// Periodic summary for dropped updates (avoid noisy per-update logs).
	go func() {
		defer a.runWG.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-rctx.Done():
				// Final flush.
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
				}
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
				}
			}
		}
	}()

	a.bot.Handle(tele.OnPoll, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Poll == nil {
			// Poll state updates carry no message; the voter only cares
			// about freshly posted poll messages.
			return nil
		}
		options := make([]string, 0, len(m.Poll.Options))
		for _, o := range m.Poll.Options {
			options = append(options, o.Text)
		}
		up := transport.Update{
			Kind: transport.UpdatePollMessage,
			Message: &transport.Message{
				ID:       m.ID,
				ChatID:   m.Chat.ID,
				ThreadID: m.ThreadID,
				IsTopic:  m.TopicMessage,
				Poll: &transport.Poll{
					ID:       m.Poll.ID,
					Question: m.Poll.Question,
					Options:  options,
				},
			},
		}
		select {
		case out <- up:
		default:
			atomic.AddUint64(&a.droppedUpdates, 1)
		}
		return nil
	})

	a.bot.Handle(tele.OnTopicCreated, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.TopicCreated == nil {
			return nil
		}
		a.rememberTopic(m.Chat.ID, m.ThreadID, m.TopicCreated.Name)
		return nil
	})

	a.bot.Handle(tele.OnTopicEdited, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.TopicEdited == nil || m.TopicEdited.Name == "" {
			return nil
		}
		a.rememberTopic(m.Chat.ID, m.ThreadID, m.TopicEdited.Name)
		return nil
	})

	go func() {
		defer a.runWG.Done()
		// Ensure we stop telebot when context is cancelled.
		go func() {
			<-rctx.Done()
			a.bot.Stop()
		}()
		a.log.Info("polling started")
		a.bot.Start() // blocks until Stop() called
	}()

	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	// Best-effort graceful stop. Never block shutdown for long on the
	// Telegram long-poll.
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()

	if !wasRunning {
		a.log.Debug("telegram stop called but not running")
		return nil
	}

	if cancel != nil {
		cancel()
	}

	// telebot Stop is expected to be fast; run it async just in case.
	if a.bot != nil {
		go a.bot.Stop()
	}

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()

	// Grace window: keep shutdown snappy even if getUpdates long-poll is
	// still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		rem := time.Until(dl)
		if rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		a.log.Info("polling stopped")
		return nil
	case <-ctx.Done():
		a.log.Warn("telegram stop cancelled", logx.Err(ctx.Err()))
		return ctx.Err()
	case <-t.C:
		a.log.Warn("telegram stop grace elapsed; continuing shutdown")
		return nil
	}
}

func (a *Adapter) rememberTopic(chatID int64, threadID int, name string) {
	if threadID == 0 || strings.TrimSpace(name) == "" {
		return
	}
	a.topicMu.Lock()
	a.topics[topicKey{chatID, threadID}] = name
	a.topicMu.Unlock()
	a.log.Debug("topic title cached", logx.Int64("chat_id", chatID), logx.Int("thread_id", threadID))
}

// TopicName returns the cached title for a forum thread.
func (a *Adapter) TopicName(ctx context.Context, chatID int64, threadID int) (string, error) {
	_ = ctx
	a.topicMu.RLock()
	name, ok := a.topics[topicKey{chatID, threadID}]
	a.topicMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("thread %d in chat %d: %w", threadID, chatID, ErrUnknownTopic)
	}
	return name, nil
}

// VotePoll casts a vote on the referenced poll message. telebot has no
// binding for this method, so the adapter calls the HTTP API directly.
func (a *Adapter) VotePoll(ctx context.Context, ref transport.MessageRef, option int) error {
	payload := struct {
		ChatID    int64 `json:"chat_id"`
		MessageID int   `json:"message_id"`
		Options   []int `json:"options"`
	}{ChatID: ref.ChatID, MessageID: ref.MessageID, Options: []int{option}}

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := "https://api.telegram.org/bot" + strings.TrimSpace(a.cfg.Token) + "/votePoll"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := a.http
	if client == nil {
		client = &http.Client{Timeout: 8 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out struct {
		OK          bool   `json:"ok"`
		ErrorCode   int    `json:"error_code"`
		Description string `json:"description"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)

	if resp.StatusCode/100 != 2 || !out.OK {
		return fmt.Errorf("votePoll failed: http=%d code=%d desc=%s", resp.StatusCode, out.ErrorCode, out.Description)
	}
	return nil
}
