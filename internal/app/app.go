// Package app assembles the bot: configuration, logging, storage, the
// notification engine, the alert pipeline, the Telegram adapter, and the
// command layer, all running under one supervisor.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"tellbot/internal/alerts"
	"tellbot/internal/bot"
	"tellbot/internal/config"
	"tellbot/internal/engine"
	"tellbot/internal/runtime/supervisor"
	"tellbot/internal/storage"
	"tellbot/internal/transport"
	"tellbot/internal/transport/telegram"
	"tellbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	store   storage.Store
	eng     *engine.Engine
	alerts  *alerts.Service
	adapter *telegram.Adapter
	bot     *bot.Bot
	cron    *cron.Cron

	inbound chan transport.Message
}

// New loads the configuration and builds every component. Nothing runs
// until Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(logs.Logger().With(logx.String("comp", "config")))
	cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		return validate(c)
	})

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, logs.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	if store != nil {
		log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(ctx, engCfg, store, logs.Logger().With(logx.String("comp", "engine")))
	if err != nil {
		return nil, err
	}

	alertCfg, err := mapAlertsConfig(cfg)
	if err != nil {
		return nil, err
	}
	alertSvc, err := alerts.New(alertCfg, logs.Logger().With(logx.String("comp", "alerts")))
	if err != nil {
		return nil, err
	}
	eng.SetAlertSink(alertSvc)

	pollTimeout, err := mapPollTimeout(cfg)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
		Rooms:       cfg.Telegram.Rooms,
		AdminIDs:    cfg.Telegram.AdminUserIDs,
	}, logs.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	botCfg, err := mapBotConfig(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logs,
		store:   store,
		eng:     eng,
		alerts:  alertSvc,
		adapter: adapter,
		inbound: make(chan transport.Message, 256),
	}
	a.bot = bot.New(botCfg, eng, adapter, logs.Logger().With(logx.String("comp", "bot")))
	return a, nil
}

// validate is the transactional reload gate: every section must map
// cleanly before a new config is committed.
func validate(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if len(cfg.Telegram.Rooms) == 0 {
		return fmt.Errorf("telegram.rooms must map at least one room")
	}
	if _, err := mapPollTimeout(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapEngineConfig(cfg); err != nil {
		return err
	}
	if _, err := mapAlertsConfig(cfg); err != nil {
		return err
	}
	if _, err := mapBotConfig(cfg); err != nil {
		return err
	}
	if s := cfg.GC.Schedule; s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			return fmt.Errorf("gc.schedule: %w", err)
		}
	}
	return nil
}

// Done is closed when the supervisor context ends, whether by Stop or a
// fatal component error.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.alerts.Start(a.sup.Context())
	if err := a.adapter.Start(a.sup.Context(), a.inbound); err != nil {
		return err
	}
	a.sup.Go("bot.loop", func(c context.Context) error {
		return a.bot.Run(c, a.inbound)
	})

	a.startGC()
	a.startReload()

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("started")
	return nil
}

// startGC arms the periodic sweep of expired messages and reply contexts.
func (a *App) startGC() {
	spec := a.cfgm.Get().GC.Schedule
	if spec == "" {
		spec = "@hourly"
	}
	a.cron = cron.New()
	_, err := a.cron.AddFunc(spec, func() {
		stats, err := a.eng.GC(context.Background())
		if err != nil {
			a.log.Warn("gc sweep finished with errors", logx.Err(err))
		}
		a.log.Debug("gc sweep",
			logx.Int("messages_dropped", stats.Messages),
			logx.Int("replies_dropped", stats.Replies))
	})
	if err != nil {
		// The schedule was validated at load time; this only fires when the
		// default spec is broken, which is a programming error.
		a.log.Error("gc schedule rejected", logx.String("spec", spec), logx.Err(err))
		return
	}
	a.cron.Start()
}

// startReload applies committed config changes to the live components.
// Storage and telegram changes need a restart and only log a warning.
func (a *App) startReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				sections, attrs := config.SummarizeChange(last, cfg)
				if len(sections) == 0 {
					a.log.Debug("config reload without effective changes")
					continue
				}
				fields := append([]logx.Field{
					logx.String("changed", strings.Join(sections, ",")),
				}, attrs...)
				a.log.Info("config reloaded", fields...)
				last = cfg

				for _, s := range sections {
					if s == "storage" || s == "telegram" {
						a.log.Warn("section requires a restart to take effect",
							logx.String("section", s))
					}
				}

				a.logs.Apply(mapLoggingConfig(cfg))
				if bc, err := mapBotConfig(cfg); err == nil {
					a.bot.Apply(bc)
				}
				if ac, err := mapAlertsConfig(cfg); err == nil {
					if err := a.alerts.Apply(ac); err != nil {
						a.log.Warn("alert config not applied", logx.Err(err))
					}
				}
			}
		}
	})
}

// Stop shuts everything down in dependency order: no new input, drain
// alerts, then the supervisor and the store.
func (a *App) Stop(ctx context.Context) error {
	if a.cron != nil {
		cronCtx := a.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-ctx.Done():
		}
	}
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("adapter stop", logx.Err(err))
	}
	a.alerts.Stop(ctx)

	if a.sup != nil {
		a.sup.Cancel()
		if err := a.sup.Wait(ctx); err != nil {
			a.log.Warn("supervisor drain timed out", logx.Err(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("store close", logx.Err(err))
		}
	}
	a.log.Info("stopped")
	return a.logs.Close()
}
