package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"distask/pkg/logx"
)

// historyRetention bounds how long dedup markers are kept. It must exceed the
// largest dedup window (weekly digest, 167h).
const historyRetention = 30 * 24 * time.Hour

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db  *sqlx.DB
	log logx.Logger
	now func() time.Time

	opCount    atomic.Uint64
	pruneEvery uint64
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database at cfg.Path and applies pending
// migrations. ":memory:" is accepted for tests.
func OpenSQLite(cfg Config, log logx.Logger) (*SQLiteStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One connection: SQLite has a single writer and ":memory:" is per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	if path != ":memory:" {
		_, _ = db.Exec("PRAGMA journal_mode = WAL")
	}
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, log: log, now: time.Now, pruneEvery: 500}
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// SetClock overrides the wall clock used for created_at/updated_at columns.
func (s *SQLiteStore) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	return s.db.PingContext(ctx)
}

// SchemaVersion returns the highest applied migration.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.GetContext(ctx, &v, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
	return v, err
}

// Migrate applies outstanding migrations in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	current := 0
	var tables int
	if err := s.db.GetContext(ctx, &tables,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'"); err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tables > 0 {
		v, err := s.SchemaVersion(ctx)
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
		current = v
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration v%d: %w", m.version, err)
		}
		s.log.Debug("migration applied", logx.Int("version", m.version))
	}
	return nil
}

// ---- boards & tasks ----

type guildRow struct {
	ID            int64  `db:"guild_id"`
	NotifyEnabled bool   `db:"notify_enabled"`
	ReminderTime  string `db:"reminder_time"`
}

type boardRow struct {
	ID        int64  `db:"id"`
	GuildID   int64  `db:"guild_id"`
	ChannelID int64  `db:"channel_id"`
	Name      string `db:"name"`
}

type taskRow struct {
	ID          int64          `db:"id"`
	BoardID     int64          `db:"board_id"`
	Title       string         `db:"title"`
	Description string         `db:"description"`
	DueDate     sql.NullString `db:"due_date"`
	CreatedBy   int64          `db:"created_by"`
	Completed   bool           `db:"completed"`
	BoardName   string         `db:"board_name"`
	ChannelID   int64          `db:"channel_id"`
	GuildID     int64          `db:"guild_id"`
}

const taskSelect = `
SELECT t.id, t.board_id, t.title, t.description, t.due_date, t.created_by, t.completed,
       b.name AS board_name, b.channel_id, b.guild_id
FROM tasks t
JOIN boards b ON b.id = t.board_id`

func (s *SQLiteStore) ListGuilds(ctx context.Context) ([]Guild, error) {
	var rows []guildRow
	if err := s.db.SelectContext(ctx, &rows,
		"SELECT guild_id, notify_enabled, reminder_time FROM guilds ORDER BY guild_id"); err != nil {
		return nil, err
	}
	out := make([]Guild, 0, len(rows))
	for _, r := range rows {
		out = append(out, Guild(r))
	}
	return out, nil
}

func (s *SQLiteStore) FetchBoards(ctx context.Context, guildID int64) ([]Board, error) {
	var rows []boardRow
	if err := s.db.SelectContext(ctx, &rows,
		"SELECT id, guild_id, channel_id, name FROM boards WHERE guild_id = ? ORDER BY id", guildID); err != nil {
		return nil, err
	}
	out := make([]Board, 0, len(rows))
	for _, r := range rows {
		out = append(out, Board(r))
	}
	return out, nil
}

func (s *SQLiteStore) FetchTasks(ctx context.Context, boardID int64, includeCompleted bool) ([]Task, error) {
	q := taskSelect + " WHERE t.board_id = ?"
	if !includeCompleted {
		q += " AND t.completed = 0"
	}
	q += " ORDER BY t.id"
	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, q, boardID); err != nil {
		return nil, err
	}
	return s.toTasks(ctx, rows)
}

func (s *SQLiteStore) FetchTask(ctx context.Context, taskID int64) (Task, error) {
	var row taskRow
	err := s.db.GetContext(ctx, &row, taskSelect+" WHERE t.id = ?", taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, err
	}
	tasks, err := s.toTasks(ctx, []taskRow{row})
	if err != nil {
		return Task{}, err
	}
	return tasks[0], nil
}

func (s *SQLiteStore) FetchDueTasks(ctx context.Context, before time.Time) ([]Task, error) {
	var rows []taskRow
	err := s.db.SelectContext(ctx, &rows,
		taskSelect+` WHERE t.completed = 0 AND t.due_date IS NOT NULL AND t.due_date <= ?
		 ORDER BY t.due_date, t.id`, formatTime(before))
	if err != nil {
		return nil, err
	}
	return s.toTasks(ctx, rows)
}

func (s *SQLiteStore) toTasks(ctx context.Context, rows []taskRow) ([]Task, error) {
	out := make([]Task, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	assignees, err := s.assignees(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		t := Task{
			ID:          r.ID,
			BoardID:     r.BoardID,
			BoardName:   r.BoardName,
			ChannelID:   r.ChannelID,
			GuildID:     r.GuildID,
			Title:       r.Title,
			Description: r.Description,
			Completed:   r.Completed,
			CreatedBy:   r.CreatedBy,
			AssigneeIDs: assignees[r.ID],
		}
		if r.DueDate.Valid && r.DueDate.String != "" {
			due, err := parseTime(r.DueDate.String)
			if err != nil {
				s.log.Warn("unparseable due date", logx.Int64("task_id", r.ID), logx.String("due_date", r.DueDate.String))
			} else {
				t.DueAt = &due
			}
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *SQLiteStore) assignees(ctx context.Context, taskIDs []int64) (map[int64][]int64, error) {
	q, args, err := sqlx.In("SELECT task_id, user_id FROM task_assignees WHERE task_id IN (?) ORDER BY task_id, user_id", taskIDs)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		TaskID int64 `db:"task_id"`
		UserID int64 `db:"user_id"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	out := make(map[int64][]int64, len(taskIDs))
	for _, r := range rows {
		out[r.TaskID] = append(out[r.TaskID], r.UserID)
	}
	return out, nil
}

// EnsureGuild inserts or updates a guild's reminder settings.
func (s *SQLiteStore) EnsureGuild(ctx context.Context, g Guild) error {
	rt := g.ReminderTime
	if rt == "" {
		rt = "09:00"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO guilds(guild_id, notify_enabled, reminder_time) VALUES(?,?,?)
		 ON CONFLICT(guild_id) DO UPDATE SET notify_enabled=excluded.notify_enabled, reminder_time=excluded.reminder_time`,
		g.ID, g.NotifyEnabled, rt)
	return err
}

// CreateBoard inserts a board (creating the guild row when missing).
func (s *SQLiteStore) CreateBoard(ctx context.Context, b Board) (int64, error) {
	if _, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO guilds(guild_id) VALUES(?)", b.GuildID); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO boards(guild_id, channel_id, name, created_at) VALUES(?,?,?,?)",
		b.GuildID, b.ChannelID, b.Name, formatTime(s.now()))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CreateTask inserts a task and its assignees in one transaction.
func (s *SQLiteStore) CreateTask(ctx context.Context, t NewTask) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var due any
	if t.DueAt != nil {
		due = formatTime(*t.DueAt)
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO tasks(board_id, title, description, due_date, created_by, created_at) VALUES(?,?,?,?,?,?)",
		t.BoardID, t.Title, t.Description, due, t.CreatedBy, formatTime(s.now()))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for _, uid := range t.AssigneeIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO task_assignees(task_id, user_id) VALUES(?,?)", id, uid); err != nil {
			return 0, err
		}
	}
	return id, tx.Commit()
}

func (s *SQLiteStore) SetTaskCompleted(ctx context.Context, taskID int64, completed bool) error {
	res, err := s.db.ExecContext(ctx, "UPDATE tasks SET completed = ? WHERE id = ?", completed, taskID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteTask(ctx context.Context, taskID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", taskID)
	return err
}

// ---- preferences ----

type prefsRow struct {
	DeliveryMethod         sql.NullString `db:"delivery_method"`
	Timezone               sql.NullString `db:"timezone"`
	EnableDueDateReminders sql.NullBool   `db:"enable_due_date_reminders"`
	EnableEventAlerts      sql.NullBool   `db:"enable_event_alerts"`
	EnableDailyDigest      sql.NullBool   `db:"enable_daily_digest"`
	EnableWeeklyDigest     sql.NullBool   `db:"enable_weekly_digest"`
	EnableCustomReminders  sql.NullBool   `db:"enable_custom_reminders"`
	QuietHoursStart        sql.NullString `db:"quiet_hours_start"`
	QuietHoursEnd          sql.NullString `db:"quiet_hours_end"`
	DailyDigestTime        sql.NullString `db:"daily_digest_time"`
	WeeklyDigestDay        sql.NullInt64  `db:"weekly_digest_day"`
	WeeklyDigestTime       sql.NullString `db:"weekly_digest_time"`
	DueDateAdvanceDays     sql.NullString `db:"due_date_advance_days"`
}

const prefsColumns = `delivery_method, timezone, enable_due_date_reminders, enable_event_alerts,
enable_daily_digest, enable_weekly_digest, enable_custom_reminders, quiet_hours_start, quiet_hours_end,
daily_digest_time, weekly_digest_day, weekly_digest_time, due_date_advance_days`

func (s *SQLiteStore) UserNotificationPrefs(ctx context.Context, userID, guildID int64) (*PreferenceOverrides, error) {
	var row prefsRow
	err := s.db.GetContext(ctx, &row,
		"SELECT "+prefsColumns+" FROM user_notification_prefs WHERE user_id = ? AND guild_id = ?", userID, guildID)
	return s.prefsResult(row, err)
}

func (s *SQLiteStore) GuildNotificationDefaults(ctx context.Context, guildID int64) (*PreferenceOverrides, error) {
	var row prefsRow
	err := s.db.GetContext(ctx, &row,
		"SELECT "+prefsColumns+" FROM guild_notification_defaults WHERE guild_id = ?", guildID)
	return s.prefsResult(row, err)
}

func (s *SQLiteStore) prefsResult(row prefsRow, err error) (*PreferenceOverrides, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p := &PreferenceOverrides{
		DeliveryMethod:         nullString(row.DeliveryMethod),
		Timezone:               nullString(row.Timezone),
		EnableDueDateReminders: nullBool(row.EnableDueDateReminders),
		EnableEventAlerts:      nullBool(row.EnableEventAlerts),
		EnableDailyDigest:      nullBool(row.EnableDailyDigest),
		EnableWeeklyDigest:     nullBool(row.EnableWeeklyDigest),
		EnableCustomReminders:  nullBool(row.EnableCustomReminders),
		QuietHoursStart:        nullString(row.QuietHoursStart),
		QuietHoursEnd:          nullString(row.QuietHoursEnd),
		DailyDigestTime:        nullString(row.DailyDigestTime),
		WeeklyDigestTime:       nullString(row.WeeklyDigestTime),
	}
	if row.WeeklyDigestDay.Valid {
		d := int(row.WeeklyDigestDay.Int64)
		p.WeeklyDigestDay = &d
	}
	if row.DueDateAdvanceDays.Valid && row.DueDateAdvanceDays.String != "" {
		var days []int
		if err := json.Unmarshal([]byte(row.DueDateAdvanceDays.String), &days); err != nil {
			s.log.Warn("invalid due_date_advance_days", logx.String("value", row.DueDateAdvanceDays.String), logx.Err(err))
		} else {
			p.DueDateAdvanceDays = days
		}
	}
	return p, nil
}

func prefsArgs(p PreferenceOverrides) ([]any, error) {
	var days any
	if p.DueDateAdvanceDays != nil {
		b, err := json.Marshal(p.DueDateAdvanceDays)
		if err != nil {
			return nil, err
		}
		days = string(b)
	}
	return []any{
		deref(p.DeliveryMethod), deref(p.Timezone), deref(p.EnableDueDateReminders), deref(p.EnableEventAlerts),
		deref(p.EnableDailyDigest), deref(p.EnableWeeklyDigest), deref(p.EnableCustomReminders),
		deref(p.QuietHoursStart), deref(p.QuietHoursEnd),
		deref(p.DailyDigestTime), deref(p.WeeklyDigestDay), deref(p.WeeklyDigestTime), days,
	}, nil
}

const prefsUpdate = `delivery_method=excluded.delivery_method, timezone=excluded.timezone,
enable_due_date_reminders=excluded.enable_due_date_reminders, enable_event_alerts=excluded.enable_event_alerts,
enable_daily_digest=excluded.enable_daily_digest, enable_weekly_digest=excluded.enable_weekly_digest,
enable_custom_reminders=excluded.enable_custom_reminders, quiet_hours_start=excluded.quiet_hours_start,
quiet_hours_end=excluded.quiet_hours_end, daily_digest_time=excluded.daily_digest_time,
weekly_digest_day=excluded.weekly_digest_day, weekly_digest_time=excluded.weekly_digest_time,
due_date_advance_days=excluded.due_date_advance_days, updated_at=excluded.updated_at`

// SetUserNotificationPrefs replaces the user's override layer for a guild.
func (s *SQLiteStore) SetUserNotificationPrefs(ctx context.Context, userID, guildID int64, p PreferenceOverrides) error {
	args, err := prefsArgs(p)
	if err != nil {
		return err
	}
	args = append([]any{userID, guildID}, args...)
	args = append(args, formatTime(s.now()))
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO user_notification_prefs(user_id, guild_id, "+prefsColumns+", updated_at) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)"+
			" ON CONFLICT(user_id, guild_id) DO UPDATE SET "+prefsUpdate, args...)
	return err
}

// SetGuildNotificationDefaults replaces the guild's default layer.
func (s *SQLiteStore) SetGuildNotificationDefaults(ctx context.Context, guildID int64, p PreferenceOverrides) error {
	args, err := prefsArgs(p)
	if err != nil {
		return err
	}
	args = append([]any{guildID}, args...)
	args = append(args, formatTime(s.now()))
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO guild_notification_defaults(guild_id, "+prefsColumns+", updated_at) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)"+
			" ON CONFLICT(guild_id) DO UPDATE SET "+prefsUpdate, args...)
	return err
}

// ---- dedup markers ----

// NotificationSentSince reports whether a matching record exists with
// sent_at >= since. taskID 0 matches records without a task.
func (s *SQLiteStore) NotificationSentSince(ctx context.Context, userID, taskID int64, category string, since time.Time) (bool, error) {
	var n int
	var err error
	if taskID == 0 {
		err = s.db.GetContext(ctx, &n,
			`SELECT COUNT(*) FROM notification_history
			 WHERE user_id = ? AND task_id IS NULL AND notification_type = ? AND sent_at >= ?`,
			userID, category, formatTime(since))
	} else {
		err = s.db.GetContext(ctx, &n,
			`SELECT COUNT(*) FROM notification_history
			 WHERE user_id = ? AND task_id = ? AND notification_type = ? AND sent_at >= ?`,
			userID, taskID, category, formatTime(since))
	}
	return n > 0, err
}

func (s *SQLiteStore) RecordNotification(ctx context.Context, r NotificationRecord) error {
	if r.SentAt.IsZero() {
		r.SentAt = s.now()
	}
	var task any
	if r.TaskID != 0 {
		task = r.TaskID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_history(user_id, guild_id, task_id, notification_type, delivery_method, sent_at)
		 VALUES(?,?,?,?,?,?)`,
		r.UserID, r.GuildID, task, r.Category, r.DeliveryMethod, formatTime(r.SentAt))
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		if _, perr := s.PruneHistory(pctx, s.now().Add(-historyRetention)); perr != nil {
			s.log.Debug("history prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

func (s *SQLiteStore) ChannelDigestSentSince(ctx context.Context, channelID, guildID int64, kind string, since time.Time) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM channel_digest_history
		 WHERE channel_id = ? AND guild_id = ? AND digest_type = ? AND sent_at >= ?`,
		channelID, guildID, kind, formatTime(since))
	return n > 0, err
}

func (s *SQLiteStore) RecordChannelDigest(ctx context.Context, channelID, guildID int64, kind string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO channel_digest_history(channel_id, guild_id, digest_type, sent_at) VALUES(?,?,?,?)",
		channelID, guildID, kind, formatTime(at))
	return err
}

// GuildReminderSent reports whether the legacy reminder ran for guild on day
// (YYYY-MM-DD, UTC).
func (s *SQLiteStore) GuildReminderSent(ctx context.Context, guildID int64, day string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM guild_reminder_runs WHERE guild_id = ? AND run_date = ?", guildID, day)
	return n > 0, err
}

func (s *SQLiteStore) RecordGuildReminder(ctx context.Context, guildID int64, day string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO guild_reminder_runs(guild_id, run_date, sent_at) VALUES(?,?,?)
		 ON CONFLICT(guild_id, run_date) DO UPDATE SET sent_at=excluded.sent_at`,
		guildID, day, formatTime(at))
	return err
}

func (s *SQLiteStore) DeleteGuildReminder(ctx context.Context, guildID int64, day string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM guild_reminder_runs WHERE guild_id = ? AND run_date = ?", guildID, day)
	return err
}

// PruneHistory drops dedup markers older than before and returns how many
// rows were removed.
func (s *SQLiteStore) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	cut := formatTime(before)
	var total int64
	for _, q := range []string{
		"DELETE FROM notification_history WHERE sent_at < ?",
		"DELETE FROM channel_digest_history WHERE sent_at < ?",
		"DELETE FROM guild_reminder_runs WHERE sent_at < ?",
	} {
		res, err := s.db.ExecContext(ctx, q, cut)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// ---- snoozes ----

type snoozeRow struct {
	ID        int64  `db:"snooze_id"`
	TaskID    int64  `db:"task_id"`
	UserID    int64  `db:"user_id"`
	GuildID   int64  `db:"guild_id"`
	ChannelID int64  `db:"channel_id"`
	Category  string `db:"notification_type"`
	Until     string `db:"snooze_until"`
}

func (s *SQLiteStore) SnoozeReminder(ctx context.Context, r SnoozedReminder) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO snoozed_reminders(task_id, user_id, guild_id, channel_id, notification_type, snooze_until, created_at)
		 VALUES(?,?,?,?,?,?,?)`,
		r.TaskID, r.UserID, r.GuildID, r.ChannelID, r.Category, formatTime(r.DueAt), formatTime(s.now()))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) DueSnoozedReminders(ctx context.Context, now time.Time) ([]SnoozedReminder, error) {
	var rows []snoozeRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT snooze_id, task_id, user_id, guild_id, channel_id, notification_type, snooze_until
		 FROM snoozed_reminders WHERE snooze_until <= ? ORDER BY snooze_until, snooze_id`,
		formatTime(now)); err != nil {
		return nil, err
	}
	out := make([]SnoozedReminder, 0, len(rows))
	for _, r := range rows {
		due, err := parseTime(r.Until)
		if err != nil {
			s.log.Warn("unparseable snooze time", logx.Int64("snooze_id", r.ID), logx.String("snooze_until", r.Until))
		}
		out = append(out, SnoozedReminder{
			ID: r.ID, TaskID: r.TaskID, UserID: r.UserID, GuildID: r.GuildID,
			ChannelID: r.ChannelID, Category: r.Category, DueAt: due,
		})
	}
	return out, nil
}

func (s *SQLiteStore) DeleteSnoozedReminder(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM snoozed_reminders WHERE snooze_id = ?", id)
	return err
}

// deref turns an optional value into a bind argument (nil binds NULL).
func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullBool(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}
