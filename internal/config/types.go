package config

// Config is the full bot configuration. Files may be JSON or YAML; YAML is
// coerced to JSON and decoded strictly, so unknown keys are rejected early.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "48h").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Bot      BotConfig      `json:"bot"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Policy   PolicyConfig   `json:"policy"`
	Alerts   *AlertsConfig  `json:"alerts,omitempty"`
	GC       GCConfig       `json:"gc"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// Rooms maps room names to Telegram chat ids. Only mapped chats are
	// served.
	Rooms map[string]int64 `json:"rooms"`
	// AdminUserIDs may use restricted features (URGENT priority).
	AdminUserIDs []int64 `json:"admin_user_ids"`
	PollTimeout  string  `json:"poll_timeout"`
}

// BotConfig controls the command surface.
type BotConfig struct {
	// Nick is how the bot refers to itself and what it answers !seen
	// questions about itself with.
	Nick string `json:"nick"`
	// NotifyMode controls reaction to the generic !notify command:
	//   - "off": never answer it
	//   - "always": treat it like !tnotify immediately
	//   - "delay": answer only if no other bot handled it within
	//     notify_delay (fallback mode)
	NotifyMode  string `json:"notify_mode"`
	NotifyDelay string `json:"notify_delay"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the persistence layer. If omitted, state is
// in-memory only.
type StorageConfig struct {
	Driver      string `json:"driver"` // "none" or "sqlite"
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// PolicyConfig tunes delivery and alert timing; see the engine for the
// semantics of each window.
type PolicyConfig struct {
	StaleWindow       string `json:"stale_window"`
	ReplyWindow       string `json:"reply_window"`
	InlineCutoff      string `json:"inline_cutoff"`
	AwayThreshold     string `json:"away_threshold"`
	AlertSendCooldown string `json:"alert_send_cooldown"`
	AlertSeenCooldown string `json:"alert_seen_cooldown"`
}

// AlertsConfig controls the out-of-band alert pipeline. If the section is
// omitted, alerts are disabled.
type AlertsConfig struct {
	Enabled bool   `json:"enabled"`
	Backend string `json:"backend"` // "sendmail" or "null"

	From            string `json:"from"`
	EnvelopeFrom    string `json:"envelope_from,omitempty"`
	SubjectTag      string `json:"subject_tag,omitempty"`
	SendmailCommand string `json:"sendmail_command,omitempty"`

	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
}

// GCConfig controls the periodic sweep of expired messages and reply
// contexts. Schedule is a cron spec; default "@hourly".
type GCConfig struct {
	Schedule string `json:"schedule,omitempty"`
}
