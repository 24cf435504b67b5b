package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"distask/pkg/logx"
)

// TaskReader is the read-only view of boards and tasks.
type TaskReader interface {
	ListGuilds(ctx context.Context) ([]Guild, error)
	FetchBoards(ctx context.Context, guildID int64) ([]Board, error)
	FetchTasks(ctx context.Context, boardID int64, includeCompleted bool) ([]Task, error)
	// FetchTask returns ErrNotFound when the task does not exist.
	FetchTask(ctx context.Context, taskID int64) (Task, error)
	// FetchDueTasks returns open tasks due at or before the given time, oldest first.
	FetchDueTasks(ctx context.Context, before time.Time) ([]Task, error)
}

// PreferenceStore holds the two stored preference layers.
// Getters return (nil, nil) when nothing is stored.
type PreferenceStore interface {
	UserNotificationPrefs(ctx context.Context, userID, guildID int64) (*PreferenceOverrides, error)
	GuildNotificationDefaults(ctx context.Context, guildID int64) (*PreferenceOverrides, error)
	SetUserNotificationPrefs(ctx context.Context, userID, guildID int64, p PreferenceOverrides) error
	SetGuildNotificationDefaults(ctx context.Context, guildID int64, p PreferenceOverrides) error
}

// DedupStore holds the durable "already sent" markers.
type DedupStore interface {
	NotificationSentSince(ctx context.Context, userID, taskID int64, category string, since time.Time) (bool, error)
	RecordNotification(ctx context.Context, r NotificationRecord) error
	ChannelDigestSentSince(ctx context.Context, channelID, guildID int64, kind string, since time.Time) (bool, error)
	RecordChannelDigest(ctx context.Context, channelID, guildID int64, kind string, at time.Time) error
	GuildReminderSent(ctx context.Context, guildID int64, day string) (bool, error)
	RecordGuildReminder(ctx context.Context, guildID int64, day string, at time.Time) error
	DeleteGuildReminder(ctx context.Context, guildID int64, day string) error
}

type SnoozeStore interface {
	SnoozeReminder(ctx context.Context, r SnoozedReminder) (int64, error)
	DueSnoozedReminders(ctx context.Context, now time.Time) ([]SnoozedReminder, error)
	DeleteSnoozedReminder(ctx context.Context, id int64) error
}

// Store is everything the notification core needs from persistence.
type Store interface {
	TaskReader
	PreferenceStore
	DedupStore
	SnoozeStore
	Ping(ctx context.Context) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (*SQLiteStore, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "none":
		return nil, ErrDisabled
	case "sqlite", "sqlite3":
		return OpenSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
