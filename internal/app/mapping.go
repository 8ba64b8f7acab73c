package app

import (
	"fmt"
	"strings"
	"time"

	"tellbot/internal/alerts"
	"tellbot/internal/bot"
	"tellbot/internal/config"
	"tellbot/internal/engine"
	"tellbot/internal/storage"
	"tellbot/pkg/logx"
)

// The map* functions translate the file-level configuration (string
// durations, optional sections) into each component's typed config. They
// are also the validators: the config manager runs them before committing
// a reload, so a bad file never reaches a component.

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg.Storage == nil {
		return storage.Config{Driver: "none"}, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	sc := storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}
	switch sc.Driver {
	case "", "none":
	case "sqlite":
		if strings.TrimSpace(sc.Path) == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required for the sqlite driver")
		}
	default:
		return storage.Config{}, fmt.Errorf("storage.driver: unknown driver %q", sc.Driver)
	}
	return sc, nil
}

func mapEngineConfig(cfg *config.Config) (engine.Config, error) {
	p := cfg.Policy
	var (
		ec  engine.Config
		err error
	)
	if ec.StaleWindow, err = config.ParseDurationOrDefault("policy.stale_window", p.StaleWindow, 0); err != nil {
		return engine.Config{}, err
	}
	if ec.ReplyWindow, err = config.ParseDurationOrDefault("policy.reply_window", p.ReplyWindow, 0); err != nil {
		return engine.Config{}, err
	}
	if ec.InlineCutoff, err = config.ParseDurationOrDefault("policy.inline_cutoff", p.InlineCutoff, 0); err != nil {
		return engine.Config{}, err
	}
	if ec.AwayThreshold, err = config.ParseDurationOrDefault("policy.away_threshold", p.AwayThreshold, 0); err != nil {
		return engine.Config{}, err
	}
	if ec.AlertSendCooldown, err = config.ParseDurationOrDefault("policy.alert_send_cooldown", p.AlertSendCooldown, 0); err != nil {
		return engine.Config{}, err
	}
	if ec.AlertSeenCooldown, err = config.ParseDurationOrDefault("policy.alert_seen_cooldown", p.AlertSeenCooldown, 0); err != nil {
		return engine.Config{}, err
	}
	return ec, nil
}

func mapAlertsConfig(cfg *config.Config) (alerts.Config, error) {
	if cfg.Alerts == nil {
		return alerts.Config{}, nil
	}
	a := cfg.Alerts
	retryBase, err := config.ParseDurationOrDefault("alerts.retry_base", a.RetryBase, 0)
	if err != nil {
		return alerts.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationOrDefault("alerts.retry_max_delay", a.RetryMaxDelay, 0)
	if err != nil {
		return alerts.Config{}, err
	}
	ac := alerts.Config{
		Enabled:         a.Enabled,
		Backend:         a.Backend,
		From:            a.From,
		EnvelopeFrom:    a.EnvelopeFrom,
		SubjectTag:      a.SubjectTag,
		SendmailCommand: a.SendmailCommand,
		Workers:         a.Workers,
		QueueSize:       a.QueueSize,
		RatePerSec:      a.RatePerSec,
		RetryMax:        a.RetryMax,
		RetryBase:       retryBase,
		RetryMaxDelay:   retryMaxDelay,
	}
	if ac.Enabled && strings.TrimSpace(ac.From) == "" {
		return alerts.Config{}, fmt.Errorf("alerts.from is required when alerts are enabled")
	}
	return ac, nil
}

func mapBotConfig(cfg *config.Config) (bot.Config, error) {
	delay, err := config.ParseDurationOrDefault("bot.notify_delay", cfg.Bot.NotifyDelay, 0)
	if err != nil {
		return bot.Config{}, err
	}
	switch cfg.Bot.NotifyMode {
	case "", "off", "always", "delay":
	default:
		return bot.Config{}, fmt.Errorf("bot.notify_mode: unknown mode %q", cfg.Bot.NotifyMode)
	}
	return bot.Config{
		Nick:        cfg.Bot.Nick,
		NotifyMode:  cfg.Bot.NotifyMode,
		NotifyDelay: delay,
	}, nil
}

func mapPollTimeout(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
}
