package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("not found")
)

// isoFormat is the on-disk timestamp layout (always UTC).
const isoFormat = "2006-01-02T15:04:05Z"

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (":memory:" for tests)
//
// If Driver is empty or "none", Open returns ErrDisabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

type Guild struct {
	ID            int64
	NotifyEnabled bool
	ReminderTime  string // HH:MM, UTC
}

type Board struct {
	ID        int64
	GuildID   int64
	ChannelID int64
	Name      string
}

// Task is a board task with its board/channel/guild denormalized.
type Task struct {
	ID          int64
	BoardID     int64
	BoardName   string
	ChannelID   int64
	GuildID     int64
	Title       string
	Description string
	DueAt       *time.Time
	Completed   bool
	CreatedBy   int64
	AssigneeIDs []int64
}

// NewTask is the input of CreateTask.
type NewTask struct {
	BoardID     int64
	Title       string
	Description string
	DueAt       *time.Time
	CreatedBy   int64
	AssigneeIDs []int64
}

// PreferenceOverrides is one stored preference layer (guild default or user
// override). A nil field inherits from the layer below.
type PreferenceOverrides struct {
	DeliveryMethod         *string
	Timezone               *string
	EnableDueDateReminders *bool
	EnableEventAlerts      *bool
	EnableDailyDigest      *bool
	EnableWeeklyDigest     *bool
	EnableCustomReminders  *bool
	QuietHoursStart        *string
	QuietHoursEnd          *string
	DailyDigestTime        *string
	WeeklyDigestDay        *int // 0=Monday .. 6=Sunday
	WeeklyDigestTime       *string
	DueDateAdvanceDays     []int
}

// NotificationRecord is a dedup marker for a delivered notification.
// TaskID 0 means the notification was not bound to a task.
type NotificationRecord struct {
	UserID         int64
	GuildID        int64
	TaskID         int64
	Category       string
	DeliveryMethod string
	SentAt         time.Time
}

type SnoozedReminder struct {
	ID        int64
	TaskID    int64
	UserID    int64
	GuildID   int64
	ChannelID int64
	Category  string
	DueAt     time.Time
}

func formatTime(t time.Time) string { return t.UTC().Format(isoFormat) }

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(isoFormat, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
