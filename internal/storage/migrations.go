package storage

// migration is one schema step; versions are sequential from 1.
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS guilds (
	guild_id       INTEGER PRIMARY KEY,
	notify_enabled INTEGER NOT NULL DEFAULT 1,
	reminder_time  TEXT NOT NULL DEFAULT '09:00'
);

CREATE TABLE IF NOT EXISTS boards (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	guild_id    INTEGER NOT NULL REFERENCES guilds(guild_id) ON DELETE CASCADE,
	channel_id  INTEGER NOT NULL,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_by  INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	UNIQUE(guild_id, name)
);

CREATE TABLE IF NOT EXISTS tasks (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	board_id    INTEGER NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	due_date    TEXT,
	created_by  INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	completed   INTEGER NOT NULL DEFAULT 0 CHECK(completed IN (0, 1))
);

CREATE TABLE IF NOT EXISTS task_assignees (
	task_id INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	user_id INTEGER NOT NULL,
	PRIMARY KEY (task_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_tasks_board ON tasks(board_id);
CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(completed, due_date);
CREATE INDEX IF NOT EXISTS idx_task_assignees_user ON task_assignees(user_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS user_notification_prefs (
	user_id                   INTEGER NOT NULL,
	guild_id                  INTEGER NOT NULL,
	delivery_method           TEXT,
	timezone                  TEXT,
	enable_due_date_reminders INTEGER,
	enable_event_alerts       INTEGER,
	enable_daily_digest       INTEGER,
	enable_weekly_digest      INTEGER,
	enable_custom_reminders   INTEGER,
	quiet_hours_start         TEXT,
	quiet_hours_end           TEXT,
	daily_digest_time         TEXT,
	weekly_digest_day         INTEGER,
	weekly_digest_time        TEXT,
	due_date_advance_days     TEXT,
	updated_at                TEXT NOT NULL,
	PRIMARY KEY (user_id, guild_id)
);

CREATE TABLE IF NOT EXISTS guild_notification_defaults (
	guild_id                  INTEGER PRIMARY KEY,
	delivery_method           TEXT,
	timezone                  TEXT,
	enable_due_date_reminders INTEGER,
	enable_event_alerts       INTEGER,
	enable_daily_digest       INTEGER,
	enable_weekly_digest      INTEGER,
	enable_custom_reminders   INTEGER,
	quiet_hours_start         TEXT,
	quiet_hours_end           TEXT,
	daily_digest_time         TEXT,
	weekly_digest_day         INTEGER,
	weekly_digest_time        TEXT,
	due_date_advance_days     TEXT,
	updated_at                TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS notification_history (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id           INTEGER NOT NULL,
	guild_id          INTEGER NOT NULL,
	task_id           INTEGER,
	notification_type TEXT NOT NULL,
	delivery_method   TEXT NOT NULL,
	sent_at           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notification_history_lookup
	ON notification_history(user_id, task_id, notification_type, sent_at);

CREATE TABLE IF NOT EXISTS channel_digest_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	channel_id  INTEGER NOT NULL,
	guild_id    INTEGER NOT NULL,
	digest_type TEXT NOT NULL,
	sent_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_channel_digest_lookup
	ON channel_digest_history(channel_id, guild_id, digest_type, sent_at);

CREATE TABLE IF NOT EXISTS snoozed_reminders (
	snooze_id         INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id           INTEGER NOT NULL,
	user_id           INTEGER NOT NULL,
	guild_id          INTEGER NOT NULL,
	channel_id        INTEGER NOT NULL DEFAULT 0,
	notification_type TEXT NOT NULL,
	snooze_until      TEXT NOT NULL,
	created_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snoozed_until ON snoozed_reminders(snooze_until);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
	{
		version: 3,
		sql: `
CREATE TABLE IF NOT EXISTS guild_reminder_runs (
	guild_id INTEGER NOT NULL,
	run_date TEXT NOT NULL,
	sent_at  TEXT NOT NULL,
	PRIMARY KEY (guild_id, run_date)
);

INSERT INTO schema_version (version) VALUES (3);
`,
	},
}
