package app

import (
	"fmt"
	"strings"
	"time"

	"distask/internal/config"
	"distask/internal/notify"
	"distask/internal/scheduler"
	"distask/internal/storage"
	"distask/internal/transport/telegram"
	"distask/pkg/logx"
)

// validateConfig is the startup and hot-reload gate.
func validateConfig(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := scheduler.ParseTick(cfg.Scheduler.Tick); err != nil {
		return fmt.Errorf("scheduler.tick: %w", err)
	}
	if _, err := mapBreakerConfig(cfg); err != nil {
		return err
	}
	_, err := mapStorageConfig(cfg)
	return err
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Channel: logx.ChannelConfig{
			Enabled:    cfg.Logging.Channel.Enabled,
			ChannelID:  cfg.Telegram.LogChannelID,
			MinLevel:   cfg.Logging.Channel.MinLevel,
			RatePerSec: cfg.Logging.Channel.RatePerSec,
		},
	}
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	timeout, err := config.ParseDurationOrDefault("telegram.request_timeout", cfg.Telegram.RequestTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:          cfg.Telegram.Token,
		RatePerSec:     cfg.Telegram.RatePerSec,
		RequestTimeout: timeout,
	}, nil
}

func mapBreakerConfig(cfg *config.Config) (notify.BreakerConfig, error) {
	n := cfg.Notifications
	if n == nil {
		return notify.BreakerConfig{}, nil
	}
	base, err := config.ParseDurationField("notifications.breaker_base_delay", n.BreakerBaseDelay)
	if err != nil {
		return notify.BreakerConfig{}, err
	}
	maxDelay, err := config.ParseDurationField("notifications.breaker_max_delay", n.BreakerMaxDelay)
	if err != nil {
		return notify.BreakerConfig{}, err
	}
	reset, err := config.ParseDurationField("notifications.breaker_reset_after", n.BreakerResetAfter)
	if err != nil {
		return notify.BreakerConfig{}, err
	}
	return notify.BreakerConfig{Trip: n.BreakerTrip, BaseDelay: base, MaxDelay: maxDelay, ResetAfter: reset}, nil
}

// mapStorageConfig requires a sqlite store: every engine reads tasks and
// writes dedup markers through it.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, fmt.Errorf("storage section is required")
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "sqlite", "sqlite3":
	case "", "none":
		return storage.Config{}, fmt.Errorf("storage.driver is required (sqlite)")
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
}
