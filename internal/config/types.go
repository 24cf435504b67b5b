package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`

	Notifications *NotificationsConfig `json:"notifications,omitempty"`
	Storage       *StorageConfig       `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// LogChannelID receives forwarded log lines when logging.channel is enabled.
	LogChannelID int64 `json:"log_channel_id,omitempty"`
	// RatePerSec paces outgoing messages. 0 means the default (20/s).
	RatePerSec int `json:"rate_per_sec,omitempty"`
	// RequestTimeout bounds a single Bot API call (default "10s").
	RequestTimeout string `json:"request_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	Channel LoggingChannel `json:"channel"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingChannel struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// SchedulerConfig controls the notification loop.
//
// Defaults (when fields are omitted/zero):
//   - tick: "@every 60s"
//   - legacy_reminders: false
//   - legacy_concurrency: 4
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// Tick is a cron expression ("* * * * *", "@every 60s") or a Go duration.
	Tick string `json:"tick,omitempty"`

	LegacyReminders   bool `json:"legacy_reminders,omitempty"`
	LegacyConcurrency int  `json:"legacy_concurrency,omitempty"`
}

// NotificationsConfig tunes delivery. If omitted, built-in defaults apply.
//
// breaker_trip is the number of consecutive failures for one target before
// deliveries to it are paused; negative disables the breaker.
type NotificationsConfig struct {
	BreakerTrip       int    `json:"breaker_trip,omitempty"`
	BreakerBaseDelay  string `json:"breaker_base_delay,omitempty"`
	BreakerMaxDelay   string `json:"breaker_max_delay,omitempty"`
	BreakerResetAfter string `json:"breaker_reset_after,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/distask.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
