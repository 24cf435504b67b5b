package logx

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"distask/internal/transport/transporttest"
)

func TestConsoleLevelAndFields(t *testing.T) {
	var buf bytes.Buffer
	svc, log := New(Config{Level: "warn", Console: true, Output: &buf}, nil)
	defer svc.Close()

	log = log.With(String("comp", "router"))
	log.Info("hidden")
	log.Warn("delivery failed", Int64("user", 7), Err(assertErr("boom")))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "delivery failed")
	assert.Contains(t, out, "comp=router")
	assert.Contains(t, out, "user=7")
	assert.Contains(t, out, "err=boom")
	assert.Contains(t, out, "logx_test.go:")
}

func TestApplyAffectsExistingLoggers(t *testing.T) {
	var buf bytes.Buffer
	svc, log := New(Config{Level: "info", Output: &buf}, nil)
	defer svc.Close()

	log.Debug("before")
	svc.Apply(Config{Level: "debug", Output: &buf})
	log.Debug("after")

	assert.NotContains(t, buf.String(), "before")
	assert.Contains(t, buf.String(), "after")
}

func TestZeroLoggerIsSilent(t *testing.T) {
	var l Logger
	assert.NotPanics(t, func() {
		l.With(String("a", "b")).Error("nothing")
		Nop().Info("nothing")
	})
}

func TestChannelSinkForwardsWarnings(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fake := transporttest.New()
	var buf bytes.Buffer
	svc, log := New(Config{
		Level:   "debug",
		Output:  &buf,
		Channel: ChannelConfig{Enabled: true, ChannelID: 55, RatePerSec: 100},
	}, nil)
	svc.SetSender(fake)

	log.Info("not forwarded")
	log.Error("store unavailable", String("comp", "scheduler"))

	require.Eventually(t, func() bool { return len(fake.ToChannel(55)) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, svc.Close())

	msg := fake.ToChannel(55)[0].Message
	assert.Equal(t, "[ERROR] store unavailable", msg.Title)
	var names []string
	for _, f := range msg.Fields {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"caller", "comp"}, names)
}

func TestFormatLogMessage(t *testing.T) {
	msg, ok := formatLogMessage([]byte(`{"level":"warn","time":"x","message":"slow tick","took":"2s","engine":"digest"}` + "\n"))
	require.True(t, ok)
	assert.Equal(t, "[WARN] slow tick", msg.Title)
	require.Len(t, msg.Fields, 2)
	assert.Equal(t, "engine", msg.Fields[0].Name)
	assert.Equal(t, "took", msg.Fields[1].Name)

	msg, ok = formatLogMessage([]byte("plain text"))
	require.True(t, ok)
	assert.Equal(t, "log", msg.Title)
	assert.Equal(t, "plain text", msg.Description)

	_, ok = formatLogMessage([]byte("  \n"))
	assert.False(t, ok)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "abc", truncate("abcdef", 3))
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
