package reminder_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distask/internal/eventbus"
	"distask/internal/reminder"
	"distask/internal/storage"
	"distask/internal/storage/storagetest"
	"distask/pkg/logx"
)

func newDigest(f *fixture) *reminder.DigestEngine {
	return reminder.NewDigestEngine(f.store, f.store, f.prefs, f.out, f.bus, logx.Nop())
}

func fieldValues(msgFields []string) string { return strings.Join(msgFields, "\n") }

func allText(t *testing.T, f *fixture, channel int64) string {
	t.Helper()
	var parts []string
	for _, p := range f.out.ToChannel(channel) {
		parts = append(parts, p.Message.Title, p.Message.Description)
		for _, fl := range p.Message.Fields {
			parts = append(parts, fl.Name, fl.Value)
		}
	}
	return fieldValues(parts)
}

func TestDigestNewYorkMorning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.at(time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC)) // 09:00 EDT
	f.userPrefs(t, 7, 1, storage.PreferenceOverrides{
		Timezone:        storagetest.Ptr("America/New_York"),
		DailyDigestTime: storagetest.Ptr("09:00"),
	})
	b := storagetest.Board(t, f.store, 1, 100, "Launch")
	storagetest.Task(t, f.store, b, "Fix login bug", storagetest.At(now.Add(-2*time.Hour)), 7)
	storagetest.Task(t, f.store, b, "Publish changelog", storagetest.At(now.Add(3*time.Hour)), 7)

	events, unsub := f.bus.Subscribe(4)
	defer unsub()

	e := newDigest(f)
	require.NoError(t, e.Run(ctx, now))

	posts := f.out.ToChannel(100)
	require.Len(t, posts, 1)
	msg := posts[0].Message
	assert.Equal(t, "Daily Task Digest", msg.Title)
	require.Len(t, msg.Fields, 2)
	assert.Equal(t, "Overdue (1)", msg.Fields[0].Name)
	assert.Contains(t, msg.Fields[0].Value, "Fix login bug")
	assert.Equal(t, "Due Today (1)", msg.Fields[1].Name)
	assert.Contains(t, msg.Fields[1].Value, "Publish changelog")

	ev := <-events
	assert.Equal(t, eventbus.TopicDigestSent, ev.Type)

	require.NoError(t, e.Run(ctx, f.at(now.Add(time.Minute))))
	assert.Len(t, f.out.ToChannel(100), 1)
}

func TestDigestIdempotentAcrossInstances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.at(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	b := storagetest.Board(t, f.store, 1, 100, "Launch")
	storagetest.Task(t, f.store, b, "A", nil, 7)

	require.NoError(t, newDigest(f).Run(ctx, now))
	require.NoError(t, newDigest(f).Run(ctx, now), "a restarted process sees the durable marker")

	e := newDigest(f)
	require.NoError(t, e.Run(ctx, now))
	require.NoError(t, e.Run(ctx, now))
	assert.Len(t, f.out.ToChannel(100), 1)

	// Next day the window has passed.
	require.NoError(t, e.Run(ctx, now.Add(24*time.Hour)))
	assert.Len(t, f.out.ToChannel(100), 2)
}

func TestDigestGuildFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SetGuildNotificationDefaults(ctx, 1, storage.PreferenceOverrides{
		Timezone:        storagetest.Ptr("Europe/Berlin"),
		DailyDigestTime: storagetest.Ptr("08:30"),
	}))
	b := storagetest.Board(t, f.store, 1, 100, "Launch")
	storagetest.Task(t, f.store, b, "unassigned work", nil)

	e := newDigest(f)
	require.NoError(t, e.Run(ctx, time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)))
	assert.Empty(t, f.out.Sent())

	require.NoError(t, e.Run(ctx, time.Date(2025, 3, 10, 7, 30, 0, 0, time.UTC))) // 08:30 CET
	assert.Len(t, f.out.ToChannel(100), 1)
}

func TestDigestSuppressedByAnyQuietAssignee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	f.userPrefs(t, 8, 1, storage.PreferenceOverrides{
		QuietHoursStart: storagetest.Ptr("08:00"),
		QuietHoursEnd:   storagetest.Ptr("10:00"),
	})
	b := storagetest.Board(t, f.store, 1, 100, "Launch")
	storagetest.Task(t, f.store, b, "A", nil, 7)
	storagetest.Task(t, f.store, b, "B", nil, 8)

	require.NoError(t, newDigest(f).Run(ctx, now))
	assert.Empty(t, f.out.Sent())

	ok, err := f.store.ChannelDigestSentSince(ctx, 100, 1, "daily_digest", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "a suppressed digest leaves no marker")
}

func TestDigestPerChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	b1 := storagetest.Board(t, f.store, 1, 100, "Frontend")
	b2 := storagetest.Board(t, f.store, 1, 100, "Backend")
	b3 := storagetest.Board(t, f.store, 1, 200, "Design")
	storagetest.Board(t, f.store, 1, 300, "Empty")
	storagetest.Task(t, f.store, b1, "A", nil, 1)
	storagetest.Task(t, f.store, b2, "B", nil, 2)
	storagetest.Task(t, f.store, b3, "C", nil, 3)

	require.NoError(t, newDigest(f).Run(ctx, now))
	assert.Len(t, f.out.ToChannel(100), 1, "boards sharing a channel get one digest")
	assert.Len(t, f.out.ToChannel(200), 1)
	assert.Empty(t, f.out.ToChannel(300))
	assert.Contains(t, allText(t, f, 100), "Frontend:")
	assert.Contains(t, allText(t, f, 100), "Backend:")
}

func TestDigestWeekly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SetGuildNotificationDefaults(ctx, 1, storage.PreferenceOverrides{
		EnableWeeklyDigest: storagetest.Ptr(true),
	}))
	monday := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	b := storagetest.Board(t, f.store, 1, 100, "Launch")
	storagetest.Task(t, f.store, b, "late", storagetest.At(monday.Add(-time.Hour)))
	storagetest.Task(t, f.store, b, "fine", nil)

	e := newDigest(f)
	require.NoError(t, e.Run(ctx, monday))
	posts := f.out.ToChannel(100)
	require.Len(t, posts, 2)
	weekly := posts[1].Message
	assert.Equal(t, "Weekly Task Summary", weekly.Title)
	require.Len(t, weekly.Fields, 1)
	assert.Equal(t, "Launch", weekly.Fields[0].Name)
	assert.True(t, strings.HasPrefix(weekly.Fields[0].Value, "2 tasks (1 overdue)"))

	require.NoError(t, e.Run(ctx, monday.Add(24*time.Hour)))
	posts = f.out.ToChannel(100)
	require.Len(t, posts, 3)
	assert.Equal(t, "Daily Task Digest", posts[2].Message.Title)
}

type failingHistory struct{ *storage.SQLiteStore }

func (failingHistory) ChannelDigestSentSince(context.Context, int64, int64, string, time.Time) (bool, error) {
	return false, errBroken
}

func TestDigestFailsClosedOnHistoryError(t *testing.T) {
	f := newFixture(t)
	b := storagetest.Board(t, f.store, 1, 100, "Launch")
	storagetest.Task(t, f.store, b, "A", nil, 7)

	e := reminder.NewDigestEngine(f.store, failingHistory{f.store}, f.prefs, f.out, nil, logx.Nop())
	require.NoError(t, e.Run(context.Background(), time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)))
	assert.Empty(t, f.out.Sent())
}

func TestDigestStoreFailureAbortsRun(t *testing.T) {
	f := newFixture(t)
	e := reminder.NewDigestEngine(brokenTasks{}, f.store, f.prefs, f.out, nil, logx.Nop())
	assert.ErrorIs(t, e.Run(context.Background(), f.clock()), errBroken)
}

func TestDigestRenderCaps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		b := storagetest.Board(t, f.store, 1, 100, fmt.Sprintf("Board %d", i))
		for j := 0; j < 7; j++ {
			storagetest.Task(t, f.store, b, fmt.Sprintf("task %d.%d", i, j), storagetest.At(now.Add(-time.Duration(j+1)*time.Hour)))
		}
	}

	require.NoError(t, newDigest(f).Run(ctx, now))
	posts := f.out.ToChannel(100)
	require.Len(t, posts, 1)
	fields := posts[0].Message.Fields
	require.Len(t, fields, 1)
	assert.Equal(t, "Overdue (28)", fields[0].Name)

	v := fields[0].Value
	assert.Equal(t, 3, strings.Count(v, "… and 2 more\n"), "five items shown per board")
	assert.True(t, strings.HasSuffix(v, "… and 1 more"), "three boards shown per bucket")
	assert.NotContains(t, v, "Board 3:")
	assert.Equal(t, 15, strings.Count(v, "• "))
}
