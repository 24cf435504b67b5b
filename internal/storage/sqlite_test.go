package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distask/internal/storage"
	"distask/internal/storage/storagetest"
	"distask/pkg/logx"
)

var base = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestMigrateIsIdempotent(t *testing.T) {
	s := storagetest.NewStore(t)
	ctx := context.Background()

	require.NoError(t, s.Migrate(ctx))
	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestOpenDisabled(t *testing.T) {
	_, err := storage.Open(storage.Config{Driver: "none"}, logx.Nop())
	assert.True(t, errors.Is(err, storage.ErrDisabled))

	_, err = storage.Open(storage.Config{Driver: "postgres"}, logx.Nop())
	assert.Error(t, err)
}

func TestFetchDueTasks(t *testing.T) {
	s := storagetest.NewStore(t)
	ctx := context.Background()

	b := storagetest.Board(t, s, 1, 100, "Sprint")
	overdue := storagetest.Task(t, s, b, "overdue", storagetest.At(base.Add(-2*time.Hour)), 7, 8)
	soon := storagetest.Task(t, s, b, "soon", storagetest.At(base.Add(3*time.Hour)), 7)
	storagetest.Task(t, s, b, "later", storagetest.At(base.Add(10*24*time.Hour)))
	storagetest.Task(t, s, b, "undated", nil)
	done := storagetest.Task(t, s, b, "done", storagetest.At(base.Add(time.Hour)))
	require.NoError(t, s.SetTaskCompleted(ctx, done, true))

	tasks, err := s.FetchDueTasks(ctx, base.Add(7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	assert.Equal(t, overdue, tasks[0].ID)
	assert.Equal(t, soon, tasks[1].ID)
	assert.Equal(t, []int64{7, 8}, tasks[0].AssigneeIDs)
	assert.Equal(t, "Sprint", tasks[0].BoardName)
	assert.Equal(t, int64(100), tasks[0].ChannelID)
	assert.Equal(t, int64(1), tasks[0].GuildID)
	require.NotNil(t, tasks[0].DueAt)
	assert.True(t, tasks[0].DueAt.Equal(base.Add(-2*time.Hour)))
}

func TestFetchTask(t *testing.T) {
	s := storagetest.NewStore(t)
	ctx := context.Background()

	b := storagetest.Board(t, s, 1, 100, "Ops")
	id := storagetest.Task(t, s, b, "rotate keys", nil, 3)

	got, err := s.FetchTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "rotate keys", got.Title)
	assert.Nil(t, got.DueAt)
	assert.Equal(t, []int64{3}, got.AssigneeIDs)

	require.NoError(t, s.DeleteTask(ctx, id))
	_, err = s.FetchTask(ctx, id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFetchTasksIncludeCompleted(t *testing.T) {
	s := storagetest.NewStore(t)
	ctx := context.Background()

	b := storagetest.Board(t, s, 1, 100, "Ops")
	storagetest.Task(t, s, b, "a", nil)
	done := storagetest.Task(t, s, b, "b", nil)
	require.NoError(t, s.SetTaskCompleted(ctx, done, true))

	open, err := s.FetchTasks(ctx, b, false)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	all, err := s.FetchTasks(ctx, b, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGuildsAndBoards(t *testing.T) {
	s := storagetest.NewStore(t)
	ctx := context.Background()

	storagetest.Board(t, s, 2, 200, "x")
	storagetest.Board(t, s, 2, 201, "y")
	require.NoError(t, s.EnsureGuild(ctx, storage.Guild{ID: 1, NotifyEnabled: false, ReminderTime: "08:30"}))

	guilds, err := s.ListGuilds(ctx)
	require.NoError(t, err)
	require.Len(t, guilds, 2)
	assert.Equal(t, storage.Guild{ID: 1, NotifyEnabled: false, ReminderTime: "08:30"}, guilds[0])
	assert.Equal(t, storage.Guild{ID: 2, NotifyEnabled: true, ReminderTime: "09:00"}, guilds[1])

	boards, err := s.FetchBoards(ctx, 2)
	require.NoError(t, err)
	require.Len(t, boards, 2)
	assert.Equal(t, int64(201), boards[1].ChannelID)
}

func TestPreferenceLayers(t *testing.T) {
	s := storagetest.NewStore(t)
	ctx := context.Background()

	got, err := s.UserNotificationPrefs(ctx, 1, 1)
	require.NoError(t, err)
	assert.Nil(t, got)

	want := storage.PreferenceOverrides{
		DeliveryMethod:     storagetest.Ptr("dm"),
		EnableDailyDigest:  storagetest.Ptr(false),
		WeeklyDigestDay:    storagetest.Ptr(4),
		QuietHoursStart:    storagetest.Ptr("22:00"),
		DueDateAdvanceDays: []int{1, 3},
	}
	require.NoError(t, s.SetUserNotificationPrefs(ctx, 1, 1, want))

	got, err = s.UserNotificationPrefs(ctx, 1, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)
	assert.Nil(t, got.Timezone)

	// Setting again replaces the whole layer.
	require.NoError(t, s.SetUserNotificationPrefs(ctx, 1, 1, storage.PreferenceOverrides{Timezone: storagetest.Ptr("Europe/Berlin")}))
	got, err = s.UserNotificationPrefs(ctx, 1, 1)
	require.NoError(t, err)
	assert.Nil(t, got.DeliveryMethod)
	assert.Equal(t, "Europe/Berlin", *got.Timezone)

	require.NoError(t, s.SetGuildNotificationDefaults(ctx, 1, storage.PreferenceOverrides{EnableWeeklyDigest: storagetest.Ptr(true)}))
	g, err := s.GuildNotificationDefaults(ctx, 1)
	require.NoError(t, err)
	assert.True(t, *g.EnableWeeklyDigest)
}

func TestNotificationHistory(t *testing.T) {
	s := storagetest.NewStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordNotification(ctx, storage.NotificationRecord{
		UserID: 5, GuildID: 1, TaskID: 9, Category: "due_date", DeliveryMethod: "dm", SentAt: base,
	}))
	require.NoError(t, s.RecordNotification(ctx, storage.NotificationRecord{
		UserID: 5, GuildID: 1, Category: "custom", DeliveryMethod: "channel", SentAt: base,
	}))

	tests := []struct {
		name     string
		taskID   int64
		category string
		since    time.Time
		want     bool
	}{
		{"inside window", 9, "due_date", base.Add(-12 * time.Hour), true},
		{"boundary", 9, "due_date", base, true},
		{"outside window", 9, "due_date", base.Add(time.Second), false},
		{"other category", 9, "escalation", base.Add(-time.Hour), false},
		{"other task", 10, "due_date", base.Add(-time.Hour), false},
		{"no task", 0, "custom", base.Add(-time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.NotificationSentSince(ctx, 5, tt.taskID, tt.category, tt.since)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChannelDigestAndGuildMarkers(t *testing.T) {
	s := storagetest.NewStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordChannelDigest(ctx, 100, 1, "daily_digest", base))
	ok, err := s.ChannelDigestSentSince(ctx, 100, 1, "daily_digest", base.Add(-23*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.ChannelDigestSentSince(ctx, 100, 1, "weekly_digest", base.Add(-23*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.RecordGuildReminder(ctx, 1, "2025-03-10", base))
	ok, err = s.GuildReminderSent(ctx, 1, "2025-03-10")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.DeleteGuildReminder(ctx, 1, "2025-03-10"))
	ok, err = s.GuildReminderSent(ctx, 1, "2025-03-10")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPruneHistory(t *testing.T) {
	s := storagetest.NewStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordNotification(ctx, storage.NotificationRecord{UserID: 1, Category: "x", DeliveryMethod: "dm", SentAt: base.Add(-40 * 24 * time.Hour)}))
	require.NoError(t, s.RecordNotification(ctx, storage.NotificationRecord{UserID: 1, Category: "x", DeliveryMethod: "dm", SentAt: base}))
	require.NoError(t, s.RecordChannelDigest(ctx, 1, 1, "daily_digest", base.Add(-40*24*time.Hour)))

	n, err := s.PruneHistory(ctx, base.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSnoozes(t *testing.T) {
	s := storagetest.NewStore(t)
	ctx := context.Background()

	due, err := s.SnoozeReminder(ctx, storage.SnoozedReminder{TaskID: 1, UserID: 2, GuildID: 3, ChannelID: 4, Category: "due_date", DueAt: base})
	require.NoError(t, err)
	_, err = s.SnoozeReminder(ctx, storage.SnoozedReminder{TaskID: 1, UserID: 2, GuildID: 3, Category: "due_date", DueAt: base.Add(time.Hour)})
	require.NoError(t, err)

	got, err := s.DueSnoozedReminders(ctx, base)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, due, got[0].ID)
	assert.Equal(t, int64(4), got[0].ChannelID)
	assert.True(t, got[0].DueAt.Equal(base))

	require.NoError(t, s.DeleteSnoozedReminder(ctx, due))
	got, err = s.DueSnoozedReminders(ctx, base)
	require.NoError(t, err)
	assert.Empty(t, got)
}
