// Package app wires configuration, transport, the vote pipeline, the health
// server and the journal into one process.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"votebot/internal/config"
	"votebot/internal/eventbus"
	"votebot/internal/health"
	"votebot/internal/runtime/supervisor"
	"votebot/internal/storage"
	"votebot/internal/transport"
	"votebot/internal/transport/telegram"
	"votebot/internal/voter"
	logx "votebot/pkg/logx"
)

// journalRetention bounds how far back the vote journal reaches; the daily
// maintenance job prunes older entries.
const journalRetention = 90 * 24 * time.Hour

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	bus   eventbus.Bus
	store storage.Store

	adapter transport.Adapter
	votes   *voter.Service
	hc      *health.Service
	cron    *cron.Cron

	updates chan transport.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()

	// Vote journal (optional).
	var store storage.Store
	if cfg.Storage != nil {
		busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if err != nil {
			return nil, err
		}
		store, err = storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busyTimeout,
		}, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		if store != nil {
			log.Info("vote journal enabled", logx.String("driver", cfg.Storage.Driver))
		}
	}

	rules, err := cfg.ScheduleRules()
	if err != nil {
		return nil, err
	}
	voteDelay, err := config.ParseDurationOrDefault("group.vote_delay", cfg.Group.VoteDelay, 5*time.Second)
	if err != nil {
		return nil, err
	}
	votes := voter.New(voter.Config{
		ChatID:     cfg.Group.ChatID,
		VoteOption: cfg.Group.VoteOption,
		VoteDelay:  voteDelay,
	}, adapter, rules, log.With(logx.String("comp", "voter")), bus)

	hc := health.New(log.With(logx.String("comp", "health")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: adapter,
		votes:   votes,
		hc:      hc,
		cron:    cron.New(),
		updates: make(chan transport.Update, 256),
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	cfg := a.cfgm.Get()

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		return c.Validate()
	})

	a.hc.Apply(a.sup.Context(), health.Config{
		Enabled: cfg.Health.Enabled,
		Addr:    cfg.Health.Addr,
		PingURL: cfg.Health.PingURL,
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		a.hc.Stop(ctx)
		return err
	}

	a.sup.Go("voter.run", func(c context.Context) error {
		return a.votes.Run(c, a.updates)
	})

	a.sup.Go0("journal.subscribe", func(c context.Context) {
		a.consumeOutcomes(c)
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})

	a.startMaintenance(cfg)

	a.hc.SetReady(true)
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify: ready")
	}

	a.log.Info("app started")
	return nil
}

// consumeOutcomes journals vote outcomes and mirrors the last one into the
// health status message.
func (a *App) consumeOutcomes(ctx context.Context) {
	events, unsubscribe := a.bus.Subscribe(64)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			o, ok := e.Data.(voter.Outcome)
			if !ok {
				continue
			}

			switch e.Type {
			case voter.EventVoteCast:
				a.hc.SetStatus(true, fmt.Sprintf("last vote %s at %s", o.Topic, o.At.Format(time.RFC3339)))
				a.journal(ctx, o, "cast", "")
			case voter.EventVoteFailed:
				a.journal(ctx, o, "failed", o.Reason)
			}
		}
	}
}

func (a *App) journal(ctx context.Context, o voter.Outcome, outcome, errText string) {
	if a.store == nil {
		return
	}
	rec := storage.VoteRecord{
		At:          o.At,
		ChatID:      o.ChatID,
		ThreadID:    o.ThreadID,
		MessageID:   o.MessageID,
		Topic:       o.Topic,
		EventType:   o.EventType,
		EventDate:   o.EventDate,
		OptionIndex: o.OptionIndex,
		OptionText:  o.OptionText,
		Outcome:     outcome,
		Error:       errText,
	}
	if err := a.store.AppendVote(ctx, rec); err != nil {
		a.log.Warn("journal append failed", logx.Err(err))
	}
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			a.applyConfig(ctx, cfg)
		}
	}
}

func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	// Validator already accepted this config, so rules must expand.
	if rules, err := cfg.ScheduleRules(); err == nil {
		a.votes.SetRules(rules)
	}

	a.hc.Apply(ctx, health.Config{
		Enabled: cfg.Health.Enabled,
		Addr:    cfg.Health.Addr,
		PingURL: cfg.Health.PingURL,
	})

	a.log.Info("config reloaded")
}

// startMaintenance schedules the self-ping and the daily journal prune.
func (a *App) startMaintenance(cfg *config.Config) {
	pingInterval, err := config.ParseDurationOrDefault("health.ping_interval", cfg.Health.PingInterval, 20*time.Second)
	if err != nil {
		pingInterval = 20 * time.Second
	}

	if cfg.Health.Enabled && cfg.Health.PingURL != "" {
		spec := "@every " + pingInterval.String()
		if _, err := a.cron.AddFunc(spec, func() {
			pctx, cancel := context.WithTimeout(a.sup.Context(), 10*time.Second)
			defer cancel()
			a.hc.SelfPing(pctx)
		}); err != nil {
			a.log.Warn("self-ping schedule rejected", logx.String("spec", spec), logx.Err(err))
		}
	}

	if a.store != nil {
		if _, err := a.cron.AddFunc("@daily", func() {
			pctx, cancel := context.WithTimeout(a.sup.Context(), 30*time.Second)
			defer cancel()
			if n, err := a.store.PruneBefore(pctx, time.Now().Add(-journalRetention)); err != nil {
				a.log.Warn("journal prune failed", logx.Err(err))
			} else if n > 0 {
				a.log.Info("journal pruned", logx.Int64("dropped", n))
			}
		}); err != nil {
			a.log.Warn("journal prune schedule rejected", logx.Err(err))
		}
	}

	a.cron.Start()
}

// Done is closed when the app supervisor context is canceled (fatal error or
// Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.hc.SetReady(false)
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// Cancel the run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Each shutdown step gets an upper bound so one component can't stall the
	// whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
	}

	step("cron", 2*time.Second, func(c context.Context) error {
		stopped := a.cron.Stop()
		select {
		case <-stopped.Done():
		case <-c.Done():
			return c.Err()
		}
		return nil
	})
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("health", 2*time.Second, func(c context.Context) error { a.hc.Stop(c); return nil })
	if a.store != nil {
		step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}
