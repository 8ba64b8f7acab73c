package config

import (
	"reflect"
	"strings"

	logx "tellbot/pkg/logx"
)

// SummarizeChange returns the changed top-level sections and structured
// attrs safe for logging (never the token or alert addresses).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var changed []string
	var attrs []logx.Field

	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.Rooms, newCfg.Telegram.Rooms) ||
		!reflect.DeepEqual(oldCfg.Telegram.AdminUserIDs, newCfg.Telegram.AdminUserIDs) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int("telegram.rooms", len(newCfg.Telegram.Rooms)),
			logx.Int("telegram.admins", len(newCfg.Telegram.AdminUserIDs)))
	}

	if oldCfg.Bot != newCfg.Bot {
		changed = append(changed, "bot")
		attrs = append(attrs, logx.String("bot.notify_mode", newCfg.Bot.NotifyMode))
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled))
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
	}
	if oldCfg.Policy != newCfg.Policy {
		changed = append(changed, "policy")
	}
	if !reflect.DeepEqual(oldCfg.Alerts, newCfg.Alerts) {
		changed = append(changed, "alerts")
		enabled := newCfg.Alerts != nil && newCfg.Alerts.Enabled
		attrs = append(attrs, logx.Bool("alerts.enabled", enabled))
	}
	if oldCfg.GC != newCfg.GC {
		changed = append(changed, "gc")
		attrs = append(attrs, logx.String("gc.schedule", newCfg.GC.Schedule))
	}
	return changed, attrs
}
