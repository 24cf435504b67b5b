package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the fields that need no other package to interpret.
// The scheduler tick is checked by the app, which owns the parser.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token: required"))
	}
	if cfg.Telegram.RatePerSec < 0 {
		errs = append(errs, errors.New("telegram.rate_per_sec: must be >= 0"))
	}
	if _, err := ParseDurationField("telegram.request_timeout", cfg.Telegram.RequestTimeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.Logging.Channel.Enabled && cfg.Telegram.LogChannelID == 0 {
		errs = append(errs, errors.New("logging.channel.enabled: telegram.log_channel_id is not set"))
	}

	if cfg.Scheduler.LegacyConcurrency < 0 {
		errs = append(errs, errors.New("scheduler.legacy_concurrency: must be >= 0"))
	}

	if n := cfg.Notifications; n != nil {
		for path, raw := range map[string]string{
			"notifications.breaker_base_delay":  n.BreakerBaseDelay,
			"notifications.breaker_max_delay":   n.BreakerMaxDelay,
			"notifications.breaker_reset_after": n.BreakerResetAfter,
		} {
			if _, err := ParseDurationField(path, raw); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "sqlite", "sqlite3":
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unsupported driver %q", s.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
