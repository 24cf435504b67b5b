package notify

import (
	"context"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"distask/internal/storage"
	"distask/pkg/logx"
)

// DeliveryMethod is how a user-addressed notification reaches them.
type DeliveryMethod string

const (
	DeliveryChannel        DeliveryMethod = "channel"
	DeliveryChannelMention DeliveryMethod = "channel_mention"
	DeliveryDM             DeliveryMethod = "dm"
)

func parseDeliveryMethod(s string) DeliveryMethod {
	switch m := DeliveryMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case DeliveryChannel, DeliveryChannelMention, DeliveryDM:
		return m
	default:
		return DeliveryChannel
	}
}

// DigestKind selects the daily or weekly digest schedule.
type DigestKind int

const (
	DigestDaily DigestKind = iota
	DigestWeekly
)

func (k DigestKind) String() string {
	if k == DigestWeekly {
		return "weekly"
	}
	return "daily"
}

// Preferences is a fully resolved preference record. Times are "HH:MM"
// strings as stored; empty quiet-hours strings mean no quiet hours.
type Preferences struct {
	DeliveryMethod         DeliveryMethod
	Timezone               string
	EnableDueDateReminders bool
	EnableEventAlerts      bool
	EnableDailyDigest      bool
	EnableWeeklyDigest     bool
	EnableCustomReminders  bool
	QuietHoursStart        string
	QuietHoursEnd          string
	DailyDigestTime        string
	WeeklyDigestDay        int // 0=Monday .. 6=Sunday
	WeeklyDigestTime       string
	DueDateAdvanceDays     []int
}

const defaultDigestTime = "09:00"

// SystemDefaults returns the bottom preference layer.
func SystemDefaults() Preferences {
	return Preferences{
		DeliveryMethod:         DeliveryChannel,
		Timezone:               "UTC",
		EnableDueDateReminders: true,
		EnableEventAlerts:      true,
		EnableDailyDigest:      true,
		EnableWeeklyDigest:     false,
		EnableCustomReminders:  true,
		DailyDigestTime:        defaultDigestTime,
		WeeklyDigestDay:        0,
		WeeklyDigestTime:       defaultDigestTime,
		DueDateAdvanceDays:     []int{1},
	}
}

// overlay applies the non-nil fields of o onto p.
func (p Preferences) overlay(o *storage.PreferenceOverrides) Preferences {
	if o == nil {
		return p
	}
	setStr := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setBool := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	if o.DeliveryMethod != nil {
		p.DeliveryMethod = DeliveryMethod(*o.DeliveryMethod)
	}
	setStr(&p.Timezone, o.Timezone)
	setBool(&p.EnableDueDateReminders, o.EnableDueDateReminders)
	setBool(&p.EnableEventAlerts, o.EnableEventAlerts)
	setBool(&p.EnableDailyDigest, o.EnableDailyDigest)
	setBool(&p.EnableWeeklyDigest, o.EnableWeeklyDigest)
	setBool(&p.EnableCustomReminders, o.EnableCustomReminders)
	setStr(&p.QuietHoursStart, o.QuietHoursStart)
	setStr(&p.QuietHoursEnd, o.QuietHoursEnd)
	setStr(&p.DailyDigestTime, o.DailyDigestTime)
	setStr(&p.WeeklyDigestTime, o.WeeklyDigestTime)
	if o.WeeklyDigestDay != nil {
		p.WeeklyDigestDay = *o.WeeklyDigestDay
	}
	if o.DueDateAdvanceDays != nil {
		p.DueDateAdvanceDays = append([]int(nil), o.DueDateAdvanceDays...)
	}
	return p
}

// Location returns the preference timezone, UTC when unknown.
func (p Preferences) Location() *time.Location {
	name := strings.TrimSpace(p.Timezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Enabled reports whether category c is switched on.
func (p Preferences) Enabled(c Category) bool {
	switch lookupCategory(c).flag {
	case flagDueDate:
		return p.EnableDueDateReminders
	case flagEvents:
		return p.EnableEventAlerts
	case flagDailyDigest:
		return p.EnableDailyDigest
	case flagWeeklyDigest:
		return p.EnableWeeklyDigest
	case flagCustom:
		return p.EnableCustomReminders
	default:
		return true
	}
}

// QuietAt reports whether now falls in the quiet-hours window, compared at
// minute resolution in the preference timezone. Both bounds are inclusive; a
// window with start after end wraps past midnight.
func (p Preferences) QuietAt(now time.Time) bool {
	start, ok1 := parseClock(p.QuietHoursStart)
	end, ok2 := parseClock(p.QuietHoursEnd)
	if !ok1 || !ok2 {
		return false
	}
	local := now.In(p.Location())
	t := local.Hour()*60 + local.Minute()
	if start <= end {
		return start <= t && t <= end
	}
	return t >= start || t <= end
}

// DigestDue reports whether now is exactly the configured digest minute.
func (p Preferences) DigestDue(kind DigestKind, now time.Time) bool {
	local := now.In(p.Location())
	switch kind {
	case DigestWeekly:
		if !p.EnableWeeklyDigest {
			return false
		}
		day := p.WeeklyDigestDay
		if day < 0 || day > 6 {
			day = 0
		}
		if mondayIndex(local.Weekday()) != day {
			return false
		}
		return clockMatches(p.WeeklyDigestTime, local)
	default:
		if !p.EnableDailyDigest {
			return false
		}
		return clockMatches(p.DailyDigestTime, local)
	}
}

// AdvanceDays returns the non-negative advance offsets, [1] when none are set.
func (p Preferences) AdvanceDays() []int {
	if p.DueDateAdvanceDays == nil {
		return []int{1}
	}
	out := make([]int, 0, len(p.DueDateAdvanceDays))
	for _, d := range p.DueDateAdvanceDays {
		if d >= 0 {
			out = append(out, d)
		}
	}
	return out
}

func clockMatches(hhmm string, local time.Time) bool {
	m, ok := parseClock(hhmm)
	if !ok {
		m, _ = parseClock(defaultDigestTime)
	}
	return local.Hour()*60+local.Minute() == m
}

// parseClock parses "HH:MM" into minutes after midnight.
func parseClock(s string) (int, bool) {
	s = strings.TrimSpace(s)
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return 0, false
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return 0, false
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 || len(m) != 2 {
		return 0, false
	}
	return hh*60 + mm, true
}

// mondayIndex maps time.Weekday (Sunday=0) to 0=Monday .. 6=Sunday.
func mondayIndex(d time.Weekday) int { return (int(d) + 6) % 7 }

// PreferenceManager resolves effective preferences from the stored layers.
// Store failures are logged and the failing layer is skipped.
type PreferenceManager struct {
	store    storage.PreferenceStore
	log      logx.Logger
	defaults Preferences
}

func NewPreferenceManager(store storage.PreferenceStore, log logx.Logger) *PreferenceManager {
	return &PreferenceManager{store: store, log: log, defaults: SystemDefaults()}
}

// Resolve merges system defaults, the guild layer and the user layer.
func (m *PreferenceManager) Resolve(ctx context.Context, userID, guildID int64) Preferences {
	p := m.ResolveGuild(ctx, guildID)
	u, err := m.store.UserNotificationPrefs(ctx, userID, guildID)
	if err != nil {
		m.log.Warn("user prefs lookup failed", logx.Int64("user_id", userID), logx.Int64("guild_id", guildID), logx.Err(err))
		return p
	}
	return p.overlay(u)
}

// ResolveGuild merges system defaults and the guild layer only.
func (m *PreferenceManager) ResolveGuild(ctx context.Context, guildID int64) Preferences {
	p := m.defaults
	p.DueDateAdvanceDays = append([]int(nil), m.defaults.DueDateAdvanceDays...)
	g, err := m.store.GuildNotificationDefaults(ctx, guildID)
	if err != nil {
		m.log.Warn("guild prefs lookup failed", logx.Int64("guild_id", guildID), logx.Err(err))
		return p
	}
	return p.overlay(g)
}

func (m *PreferenceManager) ShouldNotify(ctx context.Context, userID, guildID int64, c Category) bool {
	return m.Resolve(ctx, userID, guildID).Enabled(c)
}

func (m *PreferenceManager) IsQuietHours(ctx context.Context, userID, guildID int64, now time.Time) bool {
	return m.Resolve(ctx, userID, guildID).QuietAt(now)
}

// PreferredDeliveryMethod returns the resolved method, channel when unrecognized.
func (m *PreferenceManager) PreferredDeliveryMethod(ctx context.Context, userID, guildID int64) DeliveryMethod {
	return parseDeliveryMethod(string(m.Resolve(ctx, userID, guildID).DeliveryMethod))
}

func (m *PreferenceManager) ShouldSendDigestNow(ctx context.Context, userID, guildID int64, kind DigestKind, now time.Time) bool {
	return m.Resolve(ctx, userID, guildID).DigestDue(kind, now)
}

func (m *PreferenceManager) AdvanceDays(ctx context.Context, userID, guildID int64) []int {
	return m.Resolve(ctx, userID, guildID).AdvanceDays()
}
