package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "telegram": {"token": "123:abc", "log_channel_id": -1001},
  "logging": {"level": "debug", "console": true},
  "scheduler": {"enabled": true, "tick": "@every 60s", "legacy_reminders": true},
  "storage": {"driver": "sqlite", "path": "./data/distask.db"}
}`

const sampleYAML = `
telegram:
  token: "123:abc"
logging:
  level: info
  console: true
scheduler:
  enabled: true
  legacy_concurrency: 8
notifications:
  breaker_trip: 3
  breaker_max_delay: 10m
`

func TestDecodeJSON(t *testing.T) {
	cfg, err := Decode("config.json", []byte(sampleJSON))
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, int64(-1001), cfg.Telegram.LogChannelID)
	assert.True(t, cfg.Scheduler.LegacyReminders)
	require.NotNil(t, cfg.Storage)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Nil(t, cfg.Notifications)
}

func TestDecodeYAML(t *testing.T) {
	cfg, err := Decode("config.yaml", []byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Scheduler.LegacyConcurrency)
	require.NotNil(t, cfg.Notifications)
	assert.Equal(t, 3, cfg.Notifications.BreakerTrip)
	assert.Equal(t, "10m", cfg.Notifications.BreakerMaxDelay)
}

func TestDecodeRejectsUnknownAndTrailing(t *testing.T) {
	_, err := Decode("config.json", []byte(`{"telegram": {"token": "x"}, "plugins": {}}`))
	require.Error(t, err)

	_, err = Decode("config.json", []byte(`{"telegram": {"token": "x"}} {}`))
	require.Error(t, err)

	_, err = Decode("config.yml", []byte("scheduler:\n  workers: 2\n"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Decode("config.json", []byte(sampleJSON))
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing token", func(c *Config) { c.Telegram.Token = "" }, "telegram.token"},
		{"bad timeout", func(c *Config) { c.Telegram.RequestTimeout = "soon" }, "telegram.request_timeout"},
		{"channel log without target", func(c *Config) {
			c.Logging.Channel.Enabled = true
			c.Telegram.LogChannelID = 0
		}, "log_channel_id"},
		{"negative concurrency", func(c *Config) { c.Scheduler.LegacyConcurrency = -1 }, "legacy_concurrency"},
		{"bad driver", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.driver"},
		{"bad breaker delay", func(c *Config) {
			c.Notifications = &NotificationsConfig{BreakerBaseDelay: "-1s"}
		}, "breaker_base_delay"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Decode("config.json", []byte(sampleJSON))
			require.NoError(t, err)
			tt.mutate(c)
			err = Validate(c)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	oldCfg, err := Decode("config.json", []byte(sampleJSON))
	require.NoError(t, err)
	newCfg, err := Decode("config.json", []byte(sampleJSON))
	require.NoError(t, err)

	changed, _ := SummarizeConfigChange(oldCfg, newCfg)
	assert.Empty(t, changed)

	newCfg.Logging.Level = "warn"
	newCfg.Notifications = &NotificationsConfig{BreakerTrip: 2}
	newCfg.Scheduler.Tick = "30s"
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	assert.Equal(t, []string{"logging", "notifications", "scheduler"}, changed)
	assert.NotEmpty(t, attrs)
	assert.Equal(t, []string{"scheduler"}, RestartRequired(changed))
}

func TestPublishKeepsNewest(t *testing.T) {
	m := NewConfigManager("unused.json")
	ch := m.Subscribe(1)

	first, second := &Config{}, &Config{}
	m.publish(first)
	m.publish(second)

	got := <-ch
	assert.Same(t, second, got)

	m.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)
}

func TestWatchPublishesValidChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleJSON), 0o600))

	m := NewConfigManager(path)
	m.debounce = 20 * time.Millisecond
	_, err := m.Load()
	require.NoError(t, err)
	m.SetValidator(func(_ context.Context, c *Config) error { return Validate(c) })
	updates := m.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)

	invalid := `{"telegram": {"token": ""}}`
	require.NoError(t, os.WriteFile(path, []byte(invalid), 0o600))
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, "123:abc", m.Get().Telegram.Token, "rejected config is not committed")

	valid := `{"telegram": {"token": "456:def"}, "logging": {"level": "warn"}}`
	require.NoError(t, os.WriteFile(path, []byte(valid), 0o600))

	select {
	case cfg := <-updates:
		assert.Equal(t, "456:def", cfg.Telegram.Token)
		assert.Equal(t, "warn", m.Get().Logging.Level)
	case <-time.After(3 * time.Second):
		t.Fatal("config update not published")
	}
}
