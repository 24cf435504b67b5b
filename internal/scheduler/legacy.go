package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"distask/internal/storage"
	"distask/internal/transport"
	"distask/pkg/logx"
)

const (
	legacyKind    = "reminder"
	legacyWindow  = 23 * time.Hour
	legacyHorizon = 24 * time.Hour
	legacyFields  = 25
	dayLayout     = "2006-01-02"

	DefaultLegacyConcurrency = 4
)

// ReminderLoop posts one daily reminder per board channel for each guild at
// the guild's reminder_time (UTC), listing tasks due within a day.
//
// The per-guild marker is written only after every channel of the guild was
// handled; a partial failure rolls it back so the next tick retries the
// channels that have no per-channel marker yet.
type ReminderLoop struct {
	tasks storage.TaskReader
	dedup storage.DedupStore
	out   transport.Deliverer
	log   logx.Logger
	limit int

	tickMu sync.Mutex

	mu          sync.Mutex
	guildLocks  map[int64]*sync.Mutex
	lastRun     map[int64]string
	channelSent map[int64]time.Time
}

func NewReminderLoop(tasks storage.TaskReader, dedup storage.DedupStore, out transport.Deliverer, log logx.Logger, concurrency int) *ReminderLoop {
	if concurrency <= 0 {
		concurrency = DefaultLegacyConcurrency
	}
	return &ReminderLoop{
		tasks:       tasks,
		dedup:       dedup,
		out:         out,
		log:         log,
		limit:       concurrency,
		guildLocks:  make(map[int64]*sync.Mutex),
		lastRun:     make(map[int64]string),
		channelSent: make(map[int64]time.Time),
	}
}

func (l *ReminderLoop) Name() string { return "legacy_reminders" }

func (l *ReminderLoop) Run(ctx context.Context, now time.Time) error {
	if !l.tickMu.TryLock() {
		l.log.Debug("legacy reminder run already in progress")
		return nil
	}
	defer l.tickMu.Unlock()

	now = now.UTC()
	day := now.Format(dayLayout)
	l.pruneChannels(now)

	guilds, err := l.tasks.ListGuilds(ctx)
	if err != nil {
		return fmt.Errorf("list guilds: %w", err)
	}
	var pending []storage.Guild
	for _, g := range guilds {
		if !g.NotifyEnabled || l.ranOn(g.ID, day) || !reminderDue(now, g.ReminderTime) {
			continue
		}
		pending = append(pending, g)
	}
	if len(pending) == 0 {
		return nil
	}

	due, err := l.tasks.FetchDueTasks(ctx, now.Add(legacyHorizon))
	if err != nil {
		return fmt.Errorf("fetch due tasks: %w", err)
	}
	byGuild := make(map[int64][]storage.Task)
	for _, t := range due {
		if t.Completed || t.DueAt == nil {
			continue
		}
		byGuild[t.GuildID] = append(byGuild[t.GuildID], t)
	}

	var g errgroup.Group
	g.SetLimit(l.limit)
	for _, guild := range pending {
		guild := guild
		g.Go(func() error {
			return l.runGuild(ctx, guild.ID, day, byGuild[guild.ID], now)
		})
	}
	return g.Wait()
}

func (l *ReminderLoop) runGuild(ctx context.Context, guildID int64, day string, tasks []storage.Task, now time.Time) error {
	lock := l.guildLock(guildID)
	if !lock.TryLock() {
		l.log.Debug("guild reminder busy, skipping", logx.Int64("guild", guildID))
		return nil
	}
	defer lock.Unlock()

	log := l.log.With(logx.Int64("guild", guildID))

	sent, err := l.dedup.GuildReminderSent(ctx, guildID, day)
	if err != nil {
		return fmt.Errorf("guild %d reminder marker: %w", guildID, err)
	}
	if sent {
		l.setRan(guildID, day)
		return nil
	}

	// Claim the day in memory; released again below if any channel fails.
	l.setRan(guildID, day)

	channels := byChannel(tasks)
	failed := 0
	for _, ch := range channels {
		if err := l.sendChannel(ctx, guildID, ch, now); err != nil {
			failed++
			log.Warn("reminder delivery failed", logx.Int64("channel", ch.id), logx.Err(err))
		}
	}

	if failed > 0 {
		l.clearRan(guildID)
		if err := l.dedup.DeleteGuildReminder(ctx, guildID, day); err != nil {
			log.Error("rolling back guild reminder marker failed", logx.Err(err))
		}
		log.Warn("guild reminders incomplete, will retry", logx.Int("failed", failed), logx.Int("channels", len(channels)))
		return nil
	}

	if err := l.dedup.RecordGuildReminder(ctx, guildID, day, now); err != nil {
		l.clearRan(guildID)
		return fmt.Errorf("guild %d record reminder: %w", guildID, err)
	}
	if len(channels) > 0 {
		log.Info("guild reminders sent", logx.Int("channels", len(channels)), logx.Int("tasks", len(tasks)))
	}
	return nil
}

func (l *ReminderLoop) sendChannel(ctx context.Context, guildID int64, ch channelBatch, now time.Time) error {
	if l.channelDone(ch.id, now) {
		return nil
	}
	done, err := l.dedup.ChannelDigestSentSince(ctx, ch.id, guildID, legacyKind, now.Add(-legacyWindow))
	if err != nil {
		return fmt.Errorf("check channel marker: %w", err)
	}
	if done {
		l.rememberChannel(ch.id, now)
		return nil
	}

	info, err := l.out.FetchChannel(ctx, ch.id)
	if err != nil {
		return fmt.Errorf("fetch channel: %w", err)
	}
	if !info.CanPost {
		l.log.Warn("cannot post reminders to channel", logx.Int64("guild", guildID), logx.Int64("channel", ch.id))
		return nil
	}

	if err := l.out.SendChannel(ctx, ch.id, reminderMessage(ch.tasks, now), 0); err != nil {
		return err
	}
	if err := l.dedup.RecordChannelDigest(ctx, ch.id, guildID, legacyKind, now); err != nil {
		l.log.Error("recording channel reminder failed", logx.Int64("channel", ch.id), logx.Err(err))
	}
	l.rememberChannel(ch.id, now)
	return nil
}

type channelBatch struct {
	id    int64
	tasks []storage.Task
}

// byChannel groups tasks by their board channel, keeping first-seen order.
func byChannel(tasks []storage.Task) []channelBatch {
	idx := make(map[int64]int)
	var out []channelBatch
	for _, t := range tasks {
		i, ok := idx[t.ChannelID]
		if !ok {
			i = len(out)
			idx[t.ChannelID] = i
			out = append(out, channelBatch{id: t.ChannelID})
		}
		out[i].tasks = append(out[i].tasks, t)
	}
	return out
}

func reminderMessage(tasks []storage.Task, now time.Time) transport.Message {
	msg := transport.Message{
		Title:       "DisTask reminders",
		Description: fmt.Sprintf("%d task(s) due within 24 hours", len(tasks)),
		Timestamp:   now,
	}
	shown := tasks
	if len(shown) > legacyFields {
		shown = shown[:legacyFields]
		msg.Footer = fmt.Sprintf("… and %d more", len(tasks)-legacyFields)
	}
	for _, t := range shown {
		due := t.DueAt.UTC().Format("2006-01-02 15:04 UTC")
		if t.DueAt.Before(now) {
			due += " (overdue)"
		}
		assignee := "Unassigned"
		if len(t.AssigneeIDs) > 0 {
			mentions := make([]string, 0, len(t.AssigneeIDs))
			for _, id := range t.AssigneeIDs {
				mentions = append(mentions, transport.MentionUser(id))
			}
			assignee = strings.Join(mentions, ", ")
		}
		msg = msg.AddField(
			fmt.Sprintf("#%d in %s", t.ID, t.BoardName),
			fmt.Sprintf("Title: %s\nDue: %s\nAssignee: %s", t.Title, due, assignee),
			false,
		)
	}
	return msg
}

// reminderDue reports whether the guild's HH:MM (UTC) has passed today.
// A malformed time never fires.
func reminderDue(now time.Time, hhmm string) bool {
	h, m, err := parseHHMM(hhmm)
	if err != nil {
		return false
	}
	at := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, time.UTC)
	return !now.Before(at)
}

func (l *ReminderLoop) guildLock(guildID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.guildLocks[guildID]
	if !ok {
		m = &sync.Mutex{}
		l.guildLocks[guildID] = m
	}
	return m
}

func (l *ReminderLoop) ranOn(guildID int64, day string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastRun[guildID] == day
}

func (l *ReminderLoop) setRan(guildID int64, day string) {
	l.mu.Lock()
	l.lastRun[guildID] = day
	l.mu.Unlock()
}

func (l *ReminderLoop) clearRan(guildID int64) {
	l.mu.Lock()
	delete(l.lastRun, guildID)
	l.mu.Unlock()
}

func (l *ReminderLoop) channelDone(channelID int64, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	at, ok := l.channelSent[channelID]
	return ok && now.Sub(at) < legacyWindow
}

func (l *ReminderLoop) rememberChannel(channelID int64, now time.Time) {
	l.mu.Lock()
	l.channelSent[channelID] = now
	l.mu.Unlock()
}

func (l *ReminderLoop) pruneChannels(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, at := range l.channelSent {
		if now.Sub(at) >= legacyWindow {
			delete(l.channelSent, id)
		}
	}
}
